package dsl

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/flowengine/types"
	"github.com/BaSui01/flowengine/workflow"
)

const varsPrefix = "vars."

// Parser DSL 解析器
type Parser struct {
	// handlers 已知的 CUSTOM 处理器名
	handlers []string
	// overrides 覆盖变量默认值
	overrides map[string]any
}

// NewParser 创建 DSL 解析器
func NewParser() *Parser {
	return &Parser{overrides: make(map[string]any)}
}

// KnownHandlers 设置允许的 CUSTOM 处理器名，通常来自 HandlerTable.CustomNames
func (p *Parser) KnownHandlers(names ...string) *Parser {
	p.handlers = append([]string(nil), names...)
	return p
}

// SetVariable 覆盖变量默认值
func (p *Parser) SetVariable(name string, value any) *Parser {
	p.overrides[name] = value
	return p
}

// ParseFile 从文件解析 DSL
func (p *Parser) ParseFile(filename string) (*workflow.Definition, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read DSL file: %w", err)
	}
	def, err := p.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return def, nil
}

// ParseDir 解析目录下所有 *.yaml / *.yml 文件（按文件名排序），
// 返回解析成功的定义以及所有失败文件的合并错误
func (p *Parser) ParseDir(dir string) ([]*workflow.Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read DSL dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var (
		defs []*workflow.Definition
		errs []error
		seen = make(map[string]string, len(names))
	)
	for _, name := range names {
		path := filepath.Join(dir, name)
		def, err := p.ParseFile(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if prev, dup := seen[def.ID]; dup {
			errs = append(errs, fmt.Errorf("%s: workflow %s already defined in %s", path, def.ID, prev))
			continue
		}
		seen[def.ID] = path
		defs = append(defs, def)
	}
	return defs, errors.Join(errs...)
}

// Parse 从 YAML 字节解析 DSL
func (p *Parser) Parse(data []byte) (*workflow.Definition, error) {
	var dsl WorkflowDSL
	if err := yaml.Unmarshal(data, &dsl); err != nil {
		return nil, types.NewError(types.ErrInvalidDefinition, "parse YAML").WithCause(err)
	}
	return p.Build(&dsl)
}

// Build 验证 DSL 并构建工作流定义
func (p *Parser) Build(dsl *WorkflowDSL) (*workflow.Definition, error) {
	// 1. 验证 DSL
	if err := p.validate(dsl); err != nil {
		return nil, err
	}

	// 2. 解析变量，构建插值上下文
	vars, err := p.resolveVariables(dsl.Variables)
	if err != nil {
		return nil, err
	}

	// 3. 构建 Definition
	policy, _ := parsePolicy(dsl.OnError)
	def := &workflow.Definition{
		ID:          dsl.ID,
		Name:        dsl.Name,
		Description: dsl.Description,
		OnError:     policy,
		MaxRetries:  dsl.MaxRetries,
	}
	if def.Name == "" {
		def.Name = dsl.ID
	}
	for _, f := range dsl.Input {
		ft, _ := parseFieldType(f.Type)
		def.Input = append(def.Input, workflow.InputField{Name: f.Name, Type: ft, Required: f.Required})
	}
	for _, raw := range dsl.Steps {
		sd, err := expandStep(raw, dsl.Templates)
		if err != nil {
			return nil, types.NewError(types.ErrInvalidDefinition, err.Error())
		}
		def.Steps = append(def.Steps, buildStep(sd, vars))
	}

	// 4. 结构校验（环检测等）
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

// validate 验证 DSL
func (p *Parser) validate(dsl *WorkflowDSL) error {
	v := NewValidator().WithHandlers(p.handlers...)
	errs := v.Validate(dsl)
	if len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return types.Errorf(types.ErrInvalidDefinition, "validation errors: %s", strings.Join(msgs, "; ")).
			WithDetail("errors", msgs)
	}
	return nil
}

// resolveVariables 解析变量默认值与覆盖值
func (p *Parser) resolveVariables(varDefs map[string]VariableDef) (map[string]any, error) {
	vars := make(map[string]any, len(varDefs))
	var missing []string
	for name, def := range varDefs {
		if v, ok := p.overrides[name]; ok {
			vars[name] = v
			continue
		}
		if def.Default != nil {
			vars[name] = def.Default
			continue
		}
		if def.Required {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, types.Errorf(types.ErrInvalidDefinition, "required variables not set: %s", strings.Join(missing, ", ")).
			WithDetail("variables", missing)
	}
	return vars, nil
}

// interpolate 变量插值（替换 ${vars.name}）；整串引用保留原类型
func interpolate(v any, vars map[string]any) any {
	switch t := v.(type) {
	case string:
		if m := refPattern.FindStringSubmatch(t); m != nil && m[0] == t {
			if name, ok := variableRef(strings.TrimSpace(m[1])); ok {
				if val, ok := vars[name]; ok {
					return val
				}
			}
			return t
		}
		return refPattern.ReplaceAllStringFunc(t, func(match string) string {
			name, ok := variableRef(strings.TrimSpace(match[2 : len(match)-1]))
			if !ok {
				return match
			}
			if val, ok := vars[name]; ok {
				return fmt.Sprint(val)
			}
			return match
		})
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = interpolate(item, vars)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = interpolate(item, vars)
		}
		return out
	default:
		return v
	}
}

// expandStep 将模板字段合并进步骤；步骤自身字段优先，input 按键合并
func expandStep(step StepDef, templates map[string]StepDef) (StepDef, error) {
	if step.Use == "" {
		return step, nil
	}
	tpl, ok := templates[step.Use]
	if !ok {
		return StepDef{}, fmt.Errorf("step %s: template %q not found in templates", step.ID, step.Use)
	}

	out := tpl
	out.ID = step.ID
	out.Use = ""
	if step.Type != "" {
		out.Type = step.Type
	}
	if step.Name != "" {
		out.Name = step.Name
	}
	if step.Description != "" {
		out.Description = step.Description
	}
	if len(tpl.Input) > 0 || len(step.Input) > 0 {
		out.Input = make(map[string]any, len(tpl.Input)+len(step.Input))
		for k, v := range tpl.Input {
			out.Input[k] = v
		}
		for k, v := range step.Input {
			out.Input[k] = v
		}
	}
	if step.DependsOn != nil {
		out.DependsOn = step.DependsOn
	}
	if step.Parallel != nil {
		out.Parallel = step.Parallel
	}
	if step.Condition != "" {
		out.Condition = step.Condition
	}
	if step.OnTrue != "" {
		out.OnTrue = step.OnTrue
	}
	if step.OnFalse != "" {
		out.OnFalse = step.OnFalse
	}
	if step.Handler != "" {
		out.Handler = step.Handler
	}
	if step.Timeout != "" {
		out.Timeout = step.Timeout
	}
	return out, nil
}

func buildStep(sd StepDef, vars map[string]any) workflow.Step {
	step := workflow.Step{
		ID:          sd.ID,
		Type:        parseStepType(sd.Type),
		Name:        sd.Name,
		Description: sd.Description,
		DependsOn:   append([]string(nil), sd.DependsOn...),
		Parallel:    sd.Parallel,
		Condition:   sd.Condition,
		OnTrue:      sd.OnTrue,
		OnFalse:     sd.OnFalse,
		Handler:     sd.Handler,
	}
	if sd.Input != nil {
		step.Input, _ = interpolate(sd.Input, vars).(map[string]any)
	}
	if sd.Timeout != "" {
		step.Timeout, _ = time.ParseDuration(sd.Timeout)
	}
	return step
}

func parseStepType(s string) workflow.StepType {
	return workflow.StepType(strings.ToUpper(strings.TrimSpace(s)))
}

func parsePolicy(s string) (workflow.ErrorPolicy, bool) {
	policy := workflow.ErrorPolicy(strings.ToUpper(strings.TrimSpace(s)))
	switch policy {
	case "", workflow.OnErrorStop, workflow.OnErrorContinue, workflow.OnErrorRetry:
		return policy, true
	}
	return "", false
}

func parseFieldType(s string) (workflow.FieldType, bool) {
	ft := workflow.FieldType(strings.ToLower(strings.TrimSpace(s)))
	switch ft {
	case "":
		return workflow.FieldAny, true
	case workflow.FieldAny, workflow.FieldString, workflow.FieldNumber,
		workflow.FieldBoolean, workflow.FieldObject, workflow.FieldArray:
		return ft, true
	}
	return "", false
}
