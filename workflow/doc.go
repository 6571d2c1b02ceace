// Copyright (c) FlowEngine Authors.
// Licensed under the MIT License.

/*
Package workflow 提供工作流注册、DAG 调度与执行引擎。

# 概述

workflow 包实现了 FlowEngine 的核心：注册带依赖关系的工作流定义，
按 Kahn 分层算法把步骤切分为执行组，组内并发、组间串行地执行，
每组结束后写入 Checkpoint，失败时按 onError 策略处理。

# 核心接口与类型

  - Definition / Step  : 工作流定义与步骤，Validate 在注册时做结构校验
  - Registry           : 定义注册表（深拷贝存储，变更时失效定义缓存）
  - Engine             : 执行引擎：鉴权、限流、分组执行、重试、死信
  - HandlerTable       : 步骤类型 / CUSTOM 名称 → Handler 的分发表
  - CheckpointStore    : 运行记录持久化接口（Begin / Checkpoint / Complete / Load）
  - DeadLetterSink     : 重试耗尽的运行记录
  - Authorizer         : 基于角色的执行授权（高权限角色 + 白名单角色）
  - Trigger            : 固定间隔调度，以系统身份触发工作流
  - EventBus           : 进程内事件广播（run.started / step.completed / run.finished 等）

# 主要能力

  - 错误策略：STOP / CONTINUE（下游依赖标记为 SKIPPED）/ RETRY（指数退避，耗尽进入死信）
  - 占位符：${name} 从 input ∪ output 解析，整串占位符保留原类型
  - 条件步骤：CONDITIONAL 输出 {conditionResult, nextStep}，仅作提示不改变调度
  - 可观测性：zap 结构化日志（敏感字段脱敏）、OpenTelemetry span、metrics.Recorder 采样
  - 取消：Cancel 在下一组开始前终止运行，进行中的步骤不会被打断
*/
package workflow
