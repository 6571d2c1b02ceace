package workflow

import (
	"fmt"
	"time"

	"github.com/BaSui01/flowengine/types"
)

// ErrorPolicy decides what a run does when a step fails.
type ErrorPolicy string

const (
	// OnErrorStop fails the run after the current group.
	OnErrorStop ErrorPolicy = "STOP"
	// OnErrorContinue records the failure and keeps running independent steps.
	OnErrorContinue ErrorPolicy = "CONTINUE"
	// OnErrorRetry retries failing steps and fails the run once retries are exhausted.
	OnErrorRetry ErrorPolicy = "RETRY"
)

// DefaultMaxRetries is the per-step retry ceiling when a definition sets none.
const DefaultMaxRetries = 3

// StepType tags a step with the operation it performs.
type StepType string

// Built-in step kinds.
const (
	StepCreateLease              StepType = "CREATE_LEASE"
	StepSendEmail                StepType = "SEND_EMAIL"
	StepScheduleInspection       StepType = "SCHEDULE_INSPECTION"
	StepCreateMaintenanceRequest StepType = "CREATE_MAINTENANCE_REQUEST"
	StepAssignTechnician         StepType = "ASSIGN_TECHNICIAN"
	StepSendNotification         StepType = "SEND_NOTIFICATION"
	StepAssignPriorityAI         StepType = "ASSIGN_PRIORITY_AI"
	StepAssessPaymentRiskAI      StepType = "ASSESS_PAYMENT_RISK_AI"
	StepPredictRenewalAI         StepType = "PREDICT_RENEWAL_AI"
	StepPersonalizeNotification  StepType = "PERSONALIZE_NOTIFICATION_AI"
	StepConditional              StepType = "CONDITIONAL"
	StepCustom                   StepType = "CUSTOM"
)

// KnownStepTypes lists every step type the engine accepts.
var KnownStepTypes = []StepType{
	StepCreateLease,
	StepSendEmail,
	StepScheduleInspection,
	StepCreateMaintenanceRequest,
	StepAssignTechnician,
	StepSendNotification,
	StepAssignPriorityAI,
	StepAssessPaymentRiskAI,
	StepPredictRenewalAI,
	StepPersonalizeNotification,
	StepConditional,
	StepCustom,
}

// Valid reports whether t is a known step type.
func (t StepType) Valid() bool {
	for _, k := range KnownStepTypes {
		if k == t {
			return true
		}
	}
	return false
}

// Step is one node of a workflow graph.
type Step struct {
	ID          string         `json:"id" yaml:"id"`
	Type        StepType       `json:"type" yaml:"type"`
	Name        string         `json:"name,omitempty" yaml:"name,omitempty"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Input       map[string]any `json:"input,omitempty" yaml:"input,omitempty"`
	DependsOn   []string       `json:"dependsOn,omitempty" yaml:"depends_on,omitempty"`
	// Parallel nil means true. false runs the step alone in its layer.
	Parallel  *bool  `json:"parallel,omitempty" yaml:"parallel,omitempty"`
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`
	OnTrue    string `json:"onTrue,omitempty" yaml:"on_true,omitempty"`
	OnFalse   string `json:"onFalse,omitempty" yaml:"on_false,omitempty"`
	// Handler names the CUSTOM handler; empty falls back to the step id.
	Handler string        `json:"handler,omitempty" yaml:"handler,omitempty"`
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// IsParallel reports whether the step may share its group with others.
func (s Step) IsParallel() bool {
	return s.Parallel == nil || *s.Parallel
}

// HandlerName returns the name a CUSTOM step is dispatched under.
func (s Step) HandlerName() string {
	if s.Handler != "" {
		return s.Handler
	}
	return s.ID
}

// Clone returns a deep copy of the step.
func (s Step) Clone() Step {
	cp := s
	cp.Input = cloneMap(s.Input)
	if s.DependsOn != nil {
		cp.DependsOn = append([]string(nil), s.DependsOn...)
	}
	if s.Parallel != nil {
		p := *s.Parallel
		cp.Parallel = &p
	}
	return cp
}

// FieldType is the declared type of a workflow input field.
type FieldType string

const (
	FieldAny     FieldType = "any"
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
	FieldObject  FieldType = "object"
	FieldArray   FieldType = "array"
)

// InputField declares one caller-supplied parameter.
type InputField struct {
	Name     string    `json:"name" yaml:"name"`
	Type     FieldType `json:"type,omitempty" yaml:"type,omitempty"`
	Required bool      `json:"required,omitempty" yaml:"required,omitempty"`
}

// Definition is a registered workflow.
type Definition struct {
	ID          string       `json:"id" yaml:"id"`
	Name        string       `json:"name" yaml:"name"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`
	Steps       []Step       `json:"steps" yaml:"steps"`
	OnError     ErrorPolicy  `json:"onError,omitempty" yaml:"on_error,omitempty"`
	MaxRetries  int          `json:"maxRetries,omitempty" yaml:"max_retries,omitempty"`
	Input       []InputField `json:"input,omitempty" yaml:"input,omitempty"`
}

// Policy returns the effective error policy.
func (d *Definition) Policy() ErrorPolicy {
	if d.OnError == "" {
		return OnErrorStop
	}
	return d.OnError
}

// Retries returns the effective per-step retry ceiling.
func (d *Definition) Retries() int {
	if d.MaxRetries <= 0 {
		return DefaultMaxRetries
	}
	return d.MaxRetries
}

// Step returns the step with the given id.
func (d *Definition) Step(id string) (Step, bool) {
	for _, s := range d.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return Step{}, false
}

// Clone returns a deep copy of the definition.
func (d *Definition) Clone() *Definition {
	if d == nil {
		return nil
	}
	cp := *d
	cp.Steps = make([]Step, len(d.Steps))
	for i, s := range d.Steps {
		cp.Steps[i] = s.Clone()
	}
	if d.Input != nil {
		cp.Input = append([]InputField(nil), d.Input...)
	}
	return &cp
}

// Validate checks the structure of the definition: non-empty ids, unique
// step ids, known step types, dependsOn and branch targets that exist, and an
// acyclic dependency graph.
func (d *Definition) Validate() error {
	if d == nil {
		return types.NewError(types.ErrInvalidDefinition, "definition is nil")
	}
	if d.ID == "" {
		return types.NewError(types.ErrInvalidDefinition, "workflow id is required")
	}
	if len(d.Steps) == 0 {
		return types.Errorf(types.ErrInvalidDefinition, "workflow %s has no steps", d.ID)
	}
	switch d.OnError {
	case "", OnErrorStop, OnErrorContinue, OnErrorRetry:
	default:
		return types.Errorf(types.ErrInvalidDefinition, "workflow %s: unknown onError policy %q", d.ID, d.OnError)
	}
	if d.MaxRetries < 0 {
		return types.Errorf(types.ErrInvalidDefinition, "workflow %s: maxRetries must not be negative", d.ID)
	}

	ids := make(map[string]bool, len(d.Steps))
	for _, s := range d.Steps {
		if s.ID == "" {
			return types.Errorf(types.ErrInvalidDefinition, "workflow %s: step id is required", d.ID)
		}
		if ids[s.ID] {
			return types.Errorf(types.ErrInvalidDefinition, "workflow %s: duplicate step id %s", d.ID, s.ID).
				WithDetail("stepId", s.ID)
		}
		ids[s.ID] = true
		if !s.Type.Valid() {
			return types.Errorf(types.ErrInvalidDefinition, "workflow %s: step %s has unknown type %q", d.ID, s.ID, s.Type).
				WithDetail("stepId", s.ID)
		}
	}

	for _, s := range d.Steps {
		for _, dep := range s.DependsOn {
			if !ids[dep] {
				return types.Errorf(types.ErrInvalidDefinition, "workflow %s: step %s depends on unknown step %s", d.ID, s.ID, dep).
					WithDetail("stepId", s.ID).
					WithDetail("dependsOn", dep)
			}
			if dep == s.ID {
				return types.Errorf(types.ErrCircularDependency, "workflow %s: step %s depends on itself", d.ID, s.ID).
					WithDetail("stepId", s.ID)
			}
		}
		if s.Type == StepConditional {
			if s.Condition == "" {
				return types.Errorf(types.ErrInvalidDefinition, "workflow %s: conditional step %s requires a condition", d.ID, s.ID).
					WithDetail("stepId", s.ID)
			}
			for _, target := range []string{s.OnTrue, s.OnFalse} {
				if target != "" && !ids[target] {
					return types.Errorf(types.ErrInvalidDefinition, "workflow %s: step %s branches to unknown step %s", d.ID, s.ID, target).
						WithDetail("stepId", s.ID)
				}
			}
		}
	}

	for _, f := range d.Input {
		if f.Name == "" {
			return types.Errorf(types.ErrInvalidDefinition, "workflow %s: input field name is required", d.ID)
		}
	}

	if _, err := TopologicalSort(BuildStepGraph(d.Steps)); err != nil {
		return err
	}
	return nil
}

// ValidateInput checks caller input against the declared input fields.
// Undeclared keys are accepted.
func (d *Definition) ValidateInput(input map[string]any) error {
	if err := ValidateInputShape(input); err != nil {
		return err
	}
	for _, f := range d.Input {
		v, ok := input[f.Name]
		if !ok || v == nil {
			if f.Required {
				return types.Errorf(types.ErrInvalidInput, "missing required input %s", f.Name).
					WithDetail("field", f.Name)
			}
			continue
		}
		if !matchesFieldType(v, f.Type) {
			return types.Errorf(types.ErrInvalidInput, "input %s must be of type %s", f.Name, f.Type).
				WithDetail("field", f.Name)
		}
	}
	return nil
}

// ValidateInputShape rejects input that cannot be a JSON-like parameter snapshot.
func ValidateInputShape(input map[string]any) error {
	for k, v := range input {
		if k == "" {
			return types.NewError(types.ErrInvalidInput, "input keys must not be empty")
		}
		if err := checkValue(v, 0); err != nil {
			return types.Errorf(types.ErrInvalidInput, "input %s: %v", k, err).WithDetail("field", k)
		}
	}
	return nil
}

const maxInputDepth = 32

func checkValue(v any, depth int) error {
	if depth > maxInputDepth {
		return fmt.Errorf("nested deeper than %d levels", maxInputDepth)
	}
	switch t := v.(type) {
	case nil, string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, time.Time:
		return nil
	case map[string]any:
		for _, val := range t {
			if err := checkValue(val, depth+1); err != nil {
				return err
			}
		}
		return nil
	case []any:
		for _, val := range t {
			if err := checkValue(val, depth+1); err != nil {
				return err
			}
		}
		return nil
	case []string, []int, []float64, map[string]string:
		return nil
	default:
		return fmt.Errorf("unsupported value type %T", v)
	}
}

func matchesFieldType(v any, ft FieldType) bool {
	switch ft {
	case "", FieldAny:
		return true
	case FieldString:
		_, ok := v.(string)
		return ok
	case FieldBoolean:
		_, ok := v.(bool)
		return ok
	case FieldNumber:
		switch v.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
			return true
		}
		return false
	case FieldObject:
		switch v.(type) {
		case map[string]any, map[string]string:
			return true
		}
		return false
	case FieldArray:
		switch v.(type) {
		case []any, []string, []int, []float64:
			return true
		}
		return false
	default:
		return false
	}
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
