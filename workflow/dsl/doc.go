// 版权所有 2024 FlowEngine Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package dsl 提供 YAML 声明式工作流定义语言，
将工作流文档解析为可注册的 workflow.Definition。

文档支持全局变量插值（${vars.name}，在解析期替换）、可复用步骤模板（use）
以及运行期占位符（${input.x}、${output.y}，原样保留给执行引擎）。
验证阶段收集全部错误后一次性返回。
*/
package dsl
