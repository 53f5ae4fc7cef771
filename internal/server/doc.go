// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 管理 consultflow 的 HTTP 监听器：API 端口与 Prometheus
抓取端口各由一个 Manager 负责。

Manager 的状态只会单向推进：idle → serving → stopped。停止后的
Manager 不能再次启动，需要重新创建。

	m := server.NewManager(handler, server.FromServerConfig(cfg.Server), logger)
	if err := m.Start(); err != nil {
		return err
	}
	m.WaitForShutdown()
	_ = m.Shutdown(context.Background())

Start 同步完成端口绑定，端口冲突会立即返回；之后的运行期错误
经 Errors 通道发出。Run 把启动、等待与优雅关闭合成一个阻塞调用，
适合测试与嵌入场景。

Config.WriteTimeout 对普通请求生效。SSE 与 WebSocket 处理器通过
http.ResponseController 清除写超时，长时间运行的工作流流式输出
不会被截断。设置 CertFile 与 KeyFile 后以 HTTPS 监听，TLS 参数
来自 internal/tlsutil。
*/
package server
