// 版权所有 2024 FlowEngine Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 提供基于 GORM 的数据库连接池管理，是工作流检查点存储的底座。

# 核心类型

  - PoolManager：持有 GORM DB 与底层 sql.DB，提供 DB()、Ping()、
    Stats()、Close() 等生命周期方法，可选后台健康检查。
  - PoolConfig：连接池配置（最大连接数、生命周期、健康检查间隔）。
  - TransactionFunc：事务回调函数类型。

# 驱动

Open/Dialector 支持 postgres、mysql 与 sqlite（glebarez 纯 Go 实现）。

# 事务

WithTransaction 单次执行；WithTransactionRetry 在死锁、序列化失败、
sqlite 锁冲突时指数退避重试。
*/
package database
