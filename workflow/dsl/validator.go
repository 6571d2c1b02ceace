package dsl

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/BaSui01/flowengine/workflow"
	"github.com/BaSui01/flowengine/workflow/expr"
)

// SupportedVersions DSL 支持的版本号
var SupportedVersions = []string{"1", "1.0"}

// Validator DSL 验证器
type Validator struct {
	// handlers 已知的 CUSTOM 处理器名；为空时不检查
	handlers map[string]struct{}
}

// NewValidator 创建验证器
func NewValidator() *Validator {
	return &Validator{}
}

// WithHandlers 限定 CUSTOM 步骤只能引用 names 中的处理器
func (v *Validator) WithHandlers(names ...string) *Validator {
	if len(names) == 0 {
		v.handlers = nil
		return v
	}
	v.handlers = make(map[string]struct{}, len(names))
	for _, n := range names {
		v.handlers[n] = struct{}{}
	}
	return v
}

// Validate 验证 DSL 定义，返回全部错误
func (v *Validator) Validate(dsl *WorkflowDSL) []error {
	var errs []error

	// 基础字段验证
	if dsl.Version == "" {
		errs = append(errs, fmt.Errorf("version is required"))
	} else if !slices.Contains(SupportedVersions, dsl.Version) {
		errs = append(errs, fmt.Errorf("unsupported version %q", dsl.Version))
	}
	if dsl.ID == "" {
		errs = append(errs, fmt.Errorf("id is required"))
	}
	if _, ok := parsePolicy(dsl.OnError); !ok {
		errs = append(errs, fmt.Errorf("invalid on_error %q", dsl.OnError))
	}
	if dsl.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("max_retries must not be negative"))
	}
	if len(dsl.Steps) == 0 {
		errs = append(errs, fmt.Errorf("steps must have at least one step"))
	}

	errs = append(errs, v.validateInput(dsl.Input)...)

	for name, tpl := range dsl.Templates {
		if tpl.Use != "" {
			errs = append(errs, fmt.Errorf("template %s: templates cannot use other templates", name))
		}
		if tpl.Type != "" && !parseStepType(tpl.Type).Valid() {
			errs = append(errs, fmt.Errorf("template %s: invalid type %q", name, tpl.Type))
		}
	}

	// 收集所有步骤 ID
	stepIDs := make(map[string]bool, len(dsl.Steps))
	for _, step := range dsl.Steps {
		if step.ID == "" {
			errs = append(errs, fmt.Errorf("step ID is required"))
			continue
		}
		if stepIDs[step.ID] {
			errs = append(errs, fmt.Errorf("duplicate step ID: %s", step.ID))
		}
		stepIDs[step.ID] = true
	}

	// 验证每个步骤
	for _, step := range dsl.Steps {
		if step.ID == "" {
			continue
		}
		expanded, err := expandStep(step, dsl.Templates)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		errs = append(errs, v.validateStep(&expanded, stepIDs)...)
	}

	// 验证变量插值引用
	errs = append(errs, v.validateReferences(dsl)...)

	return errs
}

func (v *Validator) validateInput(fields []InputDef) []error {
	var errs []error
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if f.Name == "" {
			errs = append(errs, fmt.Errorf("input field name is required"))
			continue
		}
		if seen[f.Name] {
			errs = append(errs, fmt.Errorf("duplicate input field: %s", f.Name))
		}
		seen[f.Name] = true
		if _, ok := parseFieldType(f.Type); !ok {
			errs = append(errs, fmt.Errorf("input %s: invalid type %q", f.Name, f.Type))
		}
	}
	return errs
}

// validateStep 验证单个步骤
func (v *Validator) validateStep(step *StepDef, stepIDs map[string]bool) []error {
	var errs []error

	kind := parseStepType(step.Type)
	if !kind.Valid() {
		errs = append(errs, fmt.Errorf("step %s: invalid type %q", step.ID, step.Type))
	}

	switch kind {
	case workflow.StepConditional:
		if step.Condition == "" {
			errs = append(errs, fmt.Errorf("step %s: conditional step requires condition expression", step.ID))
		} else if err := expr.Check(step.Condition); err != nil {
			errs = append(errs, fmt.Errorf("step %s: invalid condition: %w", step.ID, err))
		}
		for _, target := range []string{step.OnTrue, step.OnFalse} {
			if target != "" && !stepIDs[target] {
				errs = append(errs, fmt.Errorf("step %s: branch target %q does not exist", step.ID, target))
			}
		}

	case workflow.StepCustom:
		name := step.Handler
		if name == "" {
			name = step.ID
		}
		if v.handlers != nil {
			if _, ok := v.handlers[name]; !ok {
				errs = append(errs, fmt.Errorf("step %s: handler %q is not registered", step.ID, name))
			}
		}

	default:
		if step.Condition != "" || step.OnTrue != "" || step.OnFalse != "" {
			errs = append(errs, fmt.Errorf("step %s: condition and branches are only valid on CONDITIONAL steps", step.ID))
		}
	}

	if step.Timeout != "" {
		if d, err := time.ParseDuration(step.Timeout); err != nil || d < 0 {
			errs = append(errs, fmt.Errorf("step %s: invalid timeout %q", step.ID, step.Timeout))
		}
	}

	// 验证依赖的步骤存在
	for _, dep := range step.DependsOn {
		switch {
		case dep == step.ID:
			errs = append(errs, fmt.Errorf("step %s: depends on itself", step.ID))
		case !stepIDs[dep]:
			errs = append(errs, fmt.Errorf("step %s: dependency %q does not exist", step.ID, dep))
		}
	}

	return errs
}

// validateReferences 验证输入中引用的变量
func (v *Validator) validateReferences(dsl *WorkflowDSL) []error {
	var errs []error
	for _, raw := range dsl.Steps {
		step, err := expandStep(raw, dsl.Templates)
		if err != nil {
			continue
		}
		for _, ref := range collectRefs(step.Input, nil) {
			name, ok := variableRef(ref)
			if !ok {
				continue
			}
			if _, ok := dsl.Variables[name]; !ok {
				errs = append(errs, fmt.Errorf("step %s: variable %q referenced in input not defined", step.ID, name))
			}
		}
	}
	return errs
}

var refPattern = regexp.MustCompile(`\$\{([^{}]+)\}`)

// extractVariableRefs 提取 ${var} 引用
func extractVariableRefs(s string) []string {
	var refs []string
	for _, m := range refPattern.FindAllStringSubmatch(s, -1) {
		refs = append(refs, strings.TrimSpace(m[1]))
	}
	return refs
}

func collectRefs(v any, refs []string) []string {
	switch t := v.(type) {
	case string:
		refs = append(refs, extractVariableRefs(t)...)
	case map[string]any:
		for _, item := range t {
			refs = collectRefs(item, refs)
		}
	case []any:
		for _, item := range t {
			refs = collectRefs(item, refs)
		}
	}
	return refs
}

// variableRef 解析 vars.NAME 形式的 DSL 变量引用；其他引用留给执行期解析
func variableRef(ref string) (string, bool) {
	return strings.CutPrefix(ref, varsPrefix)
}
