// Copyright (c) FlowEngine Authors.
// Licensed under the MIT License.

// Package config 提供 FlowEngine 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量 的顺序加载，环境变量
// 通过结构体 env 标签反射解析（支持时长、逗号分隔切片与 k=v 映射）。
// FileWatcher 轮询文件或目录变化，供工作流定义目录热加载使用。
package config
