package dsl

// WorkflowDSL 工作流 DSL 顶层结构
type WorkflowDSL struct {
	// Version DSL 版本
	Version string `yaml:"version" json:"version"`
	// ID 工作流 ID，注册表中的键
	ID string `yaml:"id" json:"id"`
	// Name 工作流名称
	Name string `yaml:"name" json:"name"`
	// Description 工作流描述
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	// OnError 失败策略：STOP、CONTINUE、RETRY（大小写不敏感）
	OnError string `yaml:"on_error,omitempty" json:"on_error,omitempty"`
	// MaxRetries 每个步骤的最大重试次数
	MaxRetries int `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`

	// Variables 全局变量定义，解析期插值
	Variables map[string]VariableDef `yaml:"variables,omitempty" json:"variables,omitempty"`

	// Input 调用方参数声明
	Input []InputDef `yaml:"input,omitempty" json:"input,omitempty"`

	// Templates 可复用步骤模板
	Templates map[string]StepDef `yaml:"templates,omitempty" json:"templates,omitempty"`

	// Steps 步骤列表（声明顺序即同层执行顺序）
	Steps []StepDef `yaml:"steps" json:"steps"`
}

// VariableDef 变量定义
type VariableDef struct {
	Default     any    `yaml:"default,omitempty" json:"default,omitempty"`         // 默认值
	Description string `yaml:"description,omitempty" json:"description,omitempty"` // 描述
	Required    bool   `yaml:"required,omitempty" json:"required,omitempty"`       // 是否必须提供（默认值或覆盖值）
}

// InputDef 输入字段定义
type InputDef struct {
	Name     string `yaml:"name" json:"name"`
	Type     string `yaml:"type,omitempty" json:"type,omitempty"` // any, string, number, boolean, object, array
	Required bool   `yaml:"required,omitempty" json:"required,omitempty"`
}

// StepDef 步骤定义
type StepDef struct {
	ID          string         `yaml:"id,omitempty" json:"id,omitempty"`
	Use         string         `yaml:"use,omitempty" json:"use,omitempty"`   // 引用 templates 中的模板
	Type        string         `yaml:"type,omitempty" json:"type,omitempty"` // CREATE_LEASE、CONDITIONAL、CUSTOM ...
	Name        string         `yaml:"name,omitempty" json:"name,omitempty"`
	Description string         `yaml:"description,omitempty" json:"description,omitempty"`
	Input       map[string]any `yaml:"input,omitempty" json:"input,omitempty"` // 字符串支持 ${variable} 插值
	DependsOn   []string       `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
	Parallel    *bool          `yaml:"parallel,omitempty" json:"parallel,omitempty"`
	Condition   string         `yaml:"condition,omitempty" json:"condition,omitempty"` // 条件表达式
	OnTrue      string         `yaml:"on_true,omitempty" json:"on_true,omitempty"`
	OnFalse     string         `yaml:"on_false,omitempty" json:"on_false,omitempty"`
	Handler     string         `yaml:"handler,omitempty" json:"handler,omitempty"` // CUSTOM 步骤的处理器名
	Timeout     string         `yaml:"timeout,omitempty" json:"timeout,omitempty"` // time.ParseDuration 格式
}
