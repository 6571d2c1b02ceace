// 版权所有 2024 FlowEngine Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 ratelimit 提供按执行者与工作流维度的固定窗口限流。

# 概述

窗口内第一个请求开启新窗口（count=1），达到 points 后的请求被拒绝
且不计数，因此窗口内计数永远不超过 points。拒绝结果携带 ResetAt，
供调用方提示重试时间。

# 核心类型

  - Limiter：Check(ctx, key, points, window) 接口
  - FixedWindow：进程内实现，支持 Reset/Sweep/Stats
  - RedisFixedWindow：基于 go-redis 的多进程共享实现
  - UserKey / TenantKey：限流键构造
*/
package ratelimit
