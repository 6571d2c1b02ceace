// 版权所有 2024 FlowEngine Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 提供 FlowEngine API 与 /metrics 端点的 HTTP/HTTPS 服务器
生命周期管理。

# 核心类型

  - Manager：封装 http.Server 与 net.Listener，提供 Start/Shutdown/
    WaitForShutdown，Errors() 返回异步错误通道。
  - Config：监听地址、读写超时、空闲超时、请求头大小、优雅关闭超时，
    以及可选的 TLS 证书与私钥。

# 主要能力

  - 非阻塞启动：Start 在后台 goroutine 中运行服务，证书齐全时使用 TLS。
  - 优雅关闭：Shutdown 在配置的超时内排空请求。
  - 信号监听：WaitForShutdown 监听 SIGINT/SIGTERM 与 ctx。
  - ListenAddr 返回实际绑定地址，便于以 ":0" 启动测试服务器。
*/
package server
