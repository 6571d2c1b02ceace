// Copyright (c) FlowEngine Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 FlowEngine HTTP API 的请求处理器实现。

# 概述

handlers 包实现了工作流定义管理、执行触发、执行查询与取消、
执行指标、死信查询、事件流以及健康检查端点。
所有 Handler 均遵循标准 net/http 接口，通过 Swagger 注解生成 API 文档。

# 核心类型

  - WorkflowHandler : 定义注册（JSON / YAML DSL）、执行、取消、指标与死信
  - EventsHandler   : 基于 websocket 的引擎事件流，支持按工作流/执行过滤
  - HealthHandler   : 服务健康检查（/health, /healthz, /ready）
  - Response        : 统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo       : 结构化错误信息，含 code、message、retryable 标记
  - ResponseWriter  : 包装 http.ResponseWriter 以捕获状态码
  - HealthCheck     : 可插拔健康检查接口，PingCheck 与 BreakerCheck 为内置实现

# 主要能力

  - 统一响应格式：WriteSuccess / WriteStatus / WriteError / WriteJSON
  - 请求验证：DecodeJSONBody（1 MB 限制 + 严格模式）、ValidateContentType
  - ErrorCode → HTTP 状态码映射（types.StatusForCode）
  - 调用者身份取自请求上下文（types.UserID），由认证中间件写入
  - 熔断器打开时就绪检查降级而非失败
*/
package handlers
