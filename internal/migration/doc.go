// 版权所有 2024 FlowEngine Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 migration 管理工作流检查点存储的数据库 Schema，支持 PostgreSQL、
MySQL 与 SQLite（纯 Go 驱动），基于 golang-migrate 实现。

# 概述

通过 embed.FS 内嵌各方言的 SQL 迁移文件（workflow_runs、step_runs、
dead_letters 三张表），也可通过 Config.MigrationsPath 指定磁盘目录。
支持正向迁移、回滚、按步执行、跳转到指定版本以及强制设置版本号。

# 核心接口与类型

  - Migrator：迁移器接口（Up/Down/DownAll/Steps/Goto/Force/
    Version/Status/Info/Close）。
  - DefaultMigrator：默认实现，golang-migrate 输出接入 zap；ctx 取消时
    在当前迁移完成后停止并返回 ctx 错误。
  - CLI：命令行交互层，供 flowengine migrate 子命令使用。

# 工厂函数

NewMigratorFromDatabaseConfig / NewMigratorFromURL
从配置或连接串创建迁移器；NewMigratorWithDB 复用已有连接。
*/
package migration
