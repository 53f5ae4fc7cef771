// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 llm 提供顾问 Agent 使用的语言模型接入层。

# 概述

上层只依赖 [Generator]：提示词进、文本出。[Provider] 是面向服务商的
传输接口，由 providers/openai（openai-go SDK）与 providers/offline
（确定性离线实现）提供。

# 弹性能力

[ResilientProvider] 以装饰器方式叠加：

  - 响应缓存：[MultiLevelCache]，本地 LRU + 可选 Redis
  - 限流：golang.org/x/time/rate
  - 重试：llm/retry，仅重试标记为可重试的 types.Error
  - 指标：[MetricsRecorder]，由 internal/metrics 实现

# 错误语义

超时、限流与配额错误以 types.Error 返回（UPSTREAM_TIMEOUT、RATE_LIMITED、
QUOTA_EXCEEDED）。Agent 将其视为可恢复失败，降级为 status=error 的响应。
*/
package llm
