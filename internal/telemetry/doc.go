/*
包 telemetry 负责 OpenTelemetry 的启动与关闭，并把工作流事件映射为 span。

Init 在 telemetry.enabled 为 false 时返回 noop Providers，不修改全局
Provider，也不建立任何连接；开启后通过 OTLP gRPC 导出 trace 与 metric，
采样率由 sample_rate 控制，进程退出前调用 Shutdown 刷新缓冲。

TraceSink 挂在工作流观察者上：每次运行一个根 span，每个节点一个子 span，
失败的节点与运行标记为 Error。
*/
package telemetry
