// 版权所有 2024 FlowEngine Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供基于 Redis 的缓存管理器，作为决策缓存的二级存储。

# 概述

Manager 封装 go-redis 客户端，实现 workflow/cache.RemoteStore
（GetJSON/SetJSON/Delete），使多个引擎进程共享 AI 决策结果。
Client 暴露底层客户端，供 ratelimit.RedisFixedWindow 复用同一连接池。

# 核心类型

  - Manager：连接生命周期管理，键统一加 KeyPrefix 前缀，
    后台定时 Ping，Close 后所有操作返回错误。
  - Config：地址、密码、连接池、默认 TTL 与健康检查间隔。
  - Stats：从 INFO 输出解析的命中数、内存与连接数。

# 错误语义

未命中返回 ErrCacheMiss，可用 IsCacheMiss 判断。
*/
package cache
