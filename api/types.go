package api

import (
	"github.com/BaSui01/flowengine/workflow"
)

// =============================================================================
// 工作流定义类型
// =============================================================================

// WorkflowSummary 工作流定义的列表视图。
// @Description 工作流摘要
type WorkflowSummary struct {
	// 工作流 ID
	ID string `json:"id" example:"maintenance-request-lifecycle"`
	// 显示名称
	Name string `json:"name" example:"Maintenance Request Lifecycle"`
	// 描述
	Description string `json:"description,omitempty"`
	// 生效的错误策略（STOP、CONTINUE、RETRY）
	OnError workflow.ErrorPolicy `json:"onError" example:"RETRY"`
	// 生效的单步重试上限
	MaxRetries int `json:"maxRetries" example:"3"`
	// 步骤数
	StepCount int `json:"stepCount" example:"4"`
}

// SummarizeDefinition 构建定义摘要，OnError 与 MaxRetries 取生效值
func SummarizeDefinition(d *workflow.Definition) WorkflowSummary {
	return WorkflowSummary{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		OnError:     d.Policy(),
		MaxRetries:  d.Retries(),
		StepCount:   len(d.Steps),
	}
}

// =============================================================================
// 执行类型
// =============================================================================

// ExecuteRequest 触发工作流执行的请求体。
// @Description 执行请求
type ExecuteRequest struct {
	// 工作流输入
	Input map[string]any `json:"input,omitempty"`
	// true 时立即返回 202 与 RUNNING 记录
	Async bool `json:"async,omitempty" example:"false"`
}

// CancelResponse 取消请求的确认。
// @Description 取消确认
type CancelResponse struct {
	// 执行 ID
	ExecutionID string `json:"executionId" example:"exec-7f0c..."`
	// 固定为 CANCEL_REQUESTED
	Status string `json:"status" example:"CANCEL_REQUESTED"`
}

// CancelRequested 是 CancelResponse.Status 的取值
const CancelRequested = "CANCEL_REQUESTED"

// =============================================================================
// 错误类型
// =============================================================================

// ErrorResponse 表示错误响应。
// @Description 错误响应结构
type ErrorResponse struct {
	// 恒为 false
	Success bool `json:"success" example:"false"`
	// 错误详情
	Error ErrorDetail `json:"error"`
}

// ErrorDetail 表示错误详细信息。
// @Description 错误详细结构
type ErrorDetail struct {
	// 错误代码
	Code string `json:"code" example:"WORKFLOW_NOT_FOUND"`
	// 人类可读的错误消息
	Message string `json:"message" example:"workflow maintenance-request-lifecycle not found"`
	// 附加信息，敏感字段已脱敏
	Details map[string]any `json:"details,omitempty"`
	// 请求是否可以重试
	Retryable bool `json:"retryable,omitempty" example:"false"`
}
