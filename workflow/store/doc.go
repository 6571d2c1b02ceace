// 版权所有 2024 FlowEngine Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package store 提供基于 GORM 的工作流检查点存储与死信存储。

GormStore 同时实现 workflow.CheckpointStore 与 workflow.DeadLetterSink：
运行记录写入 workflow_runs，步骤记录写入 step_runs（run_id + step_id
联合主键，按检查点覆盖写），死信写入 dead_letters。每个检查点在一个
事务内完成，提交后才返回。

输入、输出等动态字段以 JSON 文本存储；读回后数字统一为 float64。
表结构由 internal/migration 管理，测试与开发环境可用 AutoMigrate。
*/
package store
