// 版权所有 2024 FlowEngine Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package steps 提供内置步骤处理器与默认工作流定义。

# 概述

steps 把 workflow.StepType 绑定到具体实现：有副作用的步骤（建租约、
发邮件、排期验房、报修、派工、通知）委托给 Backend 接口；AI 决策类
步骤通过 retry.Wrapper 调用 DecisionService，享受熔断、超时、退避重试
与决策缓存，服务缺失或失败时返回中性的兜底结果。

# 核心接口与类型

  - Backend         : 业务副作用接口，NopBackend 返回固定的占位输出
  - DecisionService : AI 决策服务接口（维修优先级 / 支付风险 / 续租预测 / 通知个性化）
  - Services        : 各 AI 类型的服务集合
  - Register        : 将内置处理器注册到 workflow.HandlerTable

# 主要能力

  - 兜底：步骤输入 required=true 时不兜底，直接失败
  - 默认工作流：new-tenant-onboarding / maintenance-request-lifecycle / lease-renewal
*/
package steps
