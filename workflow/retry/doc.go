// 版权所有 2024 FlowEngine Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 retry 提供外部依赖调用的可靠性包装。

# 概述

Wrapper.Call 的执行顺序：

 1. 决策缓存查找，命中则直接返回
 2. 每次尝试都经过依赖的熔断器，并受单次超时约束
 3. 失败后按分类器决定是否重试，等待 min(2^attempt*BaseDelay + jitter, MaxDelay)
 4. 重试耗尽返回 MAX_RETRIES_EXCEEDED（Cause 为最后一次错误）
 5. 成功结果写入决策缓存

超时产生 TIMEOUT 错误，不重试。

# 错误分类

  - DefaultRetryable：只重试 Retryable 标记、CIRCUIT_OPEN 以及网络/限流/5xx 特征
  - StepRetryable：除 TIMEOUT、INVALID_INPUT、UNAUTHORIZED 外全部重试
*/
package retry
