// Copyright (c) FlowEngine Authors.
// Licensed under the MIT License.

/*
Package types 提供 FlowEngine 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 workflow、api、cmd
等上层模块提供统一的错误码、Context 传播与敏感字段脱敏工具。

# 核心类型

  - Error / ErrorCode: 结构化错误体系，含 HTTP 状态码、Retryable 与 Details
  - MaskSensitive    : 递归脱敏 map / slice 中的敏感字段

# 主要能力

  - 错误码：WORKFLOW_NOT_FOUND、STEP_EXECUTION_FAILED、INVALID_INPUT、
    UNAUTHORIZED、TIMEOUT、CONDITION_EVALUATION_FAILED、MAX_RETRIES_EXCEEDED
    以及引擎内部的 RATE_LIMITED、CIRCUIT_OPEN、CANCELLED 等
  - 错误工具链：AsError / GetErrorCode / IsCode / IsRetryable / WrapError
  - Context 传播：WithTenantID / WithUserID / WithRoles / WithExecutionID
*/
package types
