// 版权所有 2024 FlowEngine Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供工作流引擎的进程内 TTL 缓存。

# 概述

Table 是通用的带过期时间的并发安全表，读取时惰性淘汰过期条目，
Sweep 批量清理。引擎使用两张表：工作流定义（默认 1 小时）与外部
决策服务结果（默认 5 分钟）。

# 核心类型

  - Table[T]：TTL 表，Get/Set/Delete/Clear/Sweep/Len
  - DecisionCache：决策结果缓存，可选 Redis 二级存储（RemoteStore）
  - Janitor：按固定间隔清理多个 Sweeper
  - GenerateKey：与参数顺序无关的决策缓存键
*/
package cache
