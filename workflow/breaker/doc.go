// 版权所有 2024 FlowEngine Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 breaker 提供按外部依赖命名的熔断器。

# 概述

Breaker 以滚动时间桶统计成功与失败次数。窗口内请求数达到
MinimumRequests 且失败率超过 FailureThresholdPercentage 时打开；
打开后经过 ResetTimeout 进入半开，半开状态只放行一次试探请求，
成功则关闭并清空统计，失败则重新打开。

INVALID_INPUT 与 UNAUTHORIZED 属于调用方错误，不计入失败率。

# 核心类型

  - Breaker：Allow（返回 Ticket）/ Record / Execute / Snapshot / Reset
  - Ticket：放行时的状态代次，状态变更后迟到的结果不再计入
  - Registry：按依赖名懒创建，Snapshots 与 ResetAll
  - Event / EventHandler：open、half-open、close 状态变更事件（异步投递）
*/
package breaker
