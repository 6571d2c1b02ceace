package workflow

import (
	"time"

	"github.com/google/uuid"
)

// ExecutionStatus is the lifecycle state of a run.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "PENDING"
	ExecutionRunning   ExecutionStatus = "RUNNING"
	ExecutionCompleted ExecutionStatus = "COMPLETED"
	ExecutionFailed    ExecutionStatus = "FAILED"
	ExecutionCancelled ExecutionStatus = "CANCELLED"
)

// Terminal reports whether the status is final.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case ExecutionCompleted, ExecutionFailed, ExecutionCancelled:
		return true
	}
	return false
}

// StepStatus is the outcome of one attempted step.
type StepStatus string

const (
	StepPending   StepStatus = "PENDING"
	StepRunning   StepStatus = "RUNNING"
	StepCompleted StepStatus = "COMPLETED"
	StepFailed    StepStatus = "FAILED"
	StepSkipped   StepStatus = "SKIPPED"
)

// StepRecord is the result of one step within a run.
type StepRecord struct {
	StepID      string         `json:"stepId"`
	Type        StepType       `json:"type,omitempty"`
	Status      StepStatus     `json:"status"`
	Input       map[string]any `json:"input,omitempty"`
	Output      map[string]any `json:"output,omitempty"`
	Error       string         `json:"error,omitempty"`
	ErrorCode   string         `json:"errorCode,omitempty"`
	Attempts    int            `json:"attempts"`
	StartedAt   time.Time      `json:"startedAt"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
}

// Duration returns how long the step ran.
func (r StepRecord) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// Execution is one run of a workflow.
type Execution struct {
	ID          string          `json:"id"`
	WorkflowID  string          `json:"workflowId"`
	ActorID     string          `json:"actorId,omitempty"`
	Status      ExecutionStatus `json:"status"`
	Input       map[string]any  `json:"input,omitempty"`
	Output      map[string]any  `json:"output"`
	Steps       []StepRecord    `json:"steps"`
	Groups      [][]string      `json:"groups,omitempty"`
	StartedAt   time.Time       `json:"startedAt"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
	Error       string          `json:"error,omitempty"`
	ErrorCode   string          `json:"errorCode,omitempty"`
}

// NewExecutionID returns a fresh run id.
func NewExecutionID() string {
	return "exec-" + uuid.NewString()
}

// Duration returns how long the run took, or 0 while it is still running.
func (e *Execution) Duration() time.Duration {
	if e.CompletedAt == nil {
		return 0
	}
	return e.CompletedAt.Sub(e.StartedAt)
}

// StepRecord returns the record of the given step.
func (e *Execution) StepRecord(stepID string) (StepRecord, bool) {
	for _, r := range e.Steps {
		if r.StepID == stepID {
			return r, true
		}
	}
	return StepRecord{}, false
}

// FailedSteps counts step records in FAILED state.
func (e *Execution) FailedSteps() int {
	n := 0
	for _, r := range e.Steps {
		if r.Status == StepFailed {
			n++
		}
	}
	return n
}

// Clone returns a deep copy of the run.
func (e *Execution) Clone() *Execution {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Input = cloneMap(e.Input)
	cp.Output = cloneMap(e.Output)
	cp.Steps = make([]StepRecord, len(e.Steps))
	for i, r := range e.Steps {
		r.Input = cloneMap(r.Input)
		r.Output = cloneMap(r.Output)
		if r.CompletedAt != nil {
			t := *r.CompletedAt
			r.CompletedAt = &t
		}
		cp.Steps[i] = r
	}
	if e.Groups != nil {
		cp.Groups = make([][]string, len(e.Groups))
		for i, g := range e.Groups {
			cp.Groups[i] = append([]string(nil), g...)
		}
	}
	if e.CompletedAt != nil {
		t := *e.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

// DeadLetter is the record of a run that exhausted its retries.
type DeadLetter struct {
	ID          string         `json:"id"`
	WorkflowID  string         `json:"workflowId"`
	ExecutionID string         `json:"executionId"`
	Input       map[string]any `json:"input,omitempty"`
	Error       string         `json:"error"`
	ErrorCode   string         `json:"errorCode"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// NewDeadLetterID returns a fresh dead letter id.
func NewDeadLetterID() string {
	return "dlq-" + uuid.NewString()
}
