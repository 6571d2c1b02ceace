// 版权所有 2024 FlowEngine Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

// Package telemetry 封装 OpenTelemetry SDK 初始化逻辑，
// 为 FlowEngine 提供集中式的 TracerProvider 和 MeterProvider 配置。
// 引擎通过 Providers.TracerProvider 获得 workflow.execute / workflow.step 等 span 的导出通道。
// 当遥测功能禁用时，使用 noop 实现，不连接任何外部服务。
package telemetry
