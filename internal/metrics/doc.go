// 版权所有 2024 FlowEngine Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标导出，覆盖 HTTP、工作流执行、
熔断器、缓存与数据库连接池。

# 概述

Collector 实现 workflow.EventSink，从引擎事件流中统计执行次数、
耗时、步骤结果与重试次数；ObserveEngine 与 RecordDBConnections
由服务进程定时调用，刷新 Gauge。所有指标按 namespace 隔离。

# 核心类型

  - Collector：持有 Counter、Histogram、Gauge 向量指标。

# 主要能力

  - HTTP 指标：请求总数、耗时、请求/响应体大小，状态码归类为 2xx/3xx/4xx/5xx。
  - 工作流指标：执行总数与耗时（按 workflow_id/status），步骤结果与重试次数
    （按 step_type），检查点数量，进行中的执行数。
  - 熔断器指标：每个决策服务的状态（0 closed / 1 open / 2 half-open）与拒绝次数。
  - 缓存与数据库：缓存条目数 Gauge，活跃/空闲连接数 Gauge。
*/
package metrics
