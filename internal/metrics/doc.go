// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 定义 consultflow 的 Prometheus 指标。

Collector 在构造时一次性注册全部指标：NewCollector 用默认 Registry，
NewCollectorWith 可传入独立 Registry（测试中避免重复注册）。

它同时是 llm.MetricsRecorder 与 workflow.Sink：补全请求、缓存命中、
工作流运行与节点结果都直接上报到这里。HTTP 状态码按 2xx..5xx 归类，
路径标签由调用方归一化。
*/
package metrics
