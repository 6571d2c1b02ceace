// Copyright (c) FlowEngine Authors.
// Licensed under the MIT License.

/*
Package main 提供 FlowEngine 服务端程序入口。

# 概述

cmd/flowengine 是 FlowEngine 工作流引擎的可执行入口，提供 HTTP API 服务、
数据库迁移、健康检查和版本查询等子命令。程序支持 YAML 配置文件加载、
结构化日志（zap）、Prometheus 指标采集、OpenTelemetry 追踪以及定义目录热加载。

# 核心类型

  - Server          : 主服务器，组装引擎并管理 HTTP、Metrics 双端口及优雅关闭
  - Middleware      : HTTP 中间件函数签名 func(http.Handler) http.Handler
  - definitionLoader: 把 YAML 定义目录同步到工作流注册表

# 主要能力

  - 子命令：serve（启动服务）、migrate（数据库迁移）、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、OTelTracing、
    MetricsMiddleware、RequestLogger、CORS、JWTAuth、APIKeyAuth、RateLimiter
  - 存储选择：配置数据库驱动时使用 GORM 检查点，否则使用内存存储
  - Redis：决策二级缓存与分布式工作流限流
  - 定时触发：engine.schedules 中的工作流由 Trigger 按间隔执行
  - 优雅关闭：信号监听 → 关闭 HTTP / Metrics → 停止后台任务 → 关闭连接
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
