// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 ConsultFlow HTTP API 的请求处理器实现。

# 概述

handlers 包实现咨询工作流的 HTTP 端点、健康检查以及统一的响应/错误处理。
所有 Handler 均遵循标准 net/http 接口，路由使用 Go 1.22 的方法与路径参数模式。

# 核心类型

  - WorkflowHandler:  同步运行、SSE 流式运行、WebSocket 运行、运行记录与模式查询
  - Runner:           WorkflowHandler 依赖的编排接口，由 orchestrator.Orchestrator 实现
  - HealthHandler:    服务健康检查（/health, /healthz, /ready, /version）
  - Response:         统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo:        结构化错误信息，含 code、message、retryable 标记
  - HealthCheck:      就绪检查接口；Check 区分关键项与非关键项，
    非关键项（LLM Provider）失败只把 /ready 降为 degraded

# 主要能力

  - 统一响应格式：WriteSuccess / WriteError / WriteAnyError
  - 请求验证：DecodeJSONBody 拒绝未知字段与尾随数据，超过 1 MB 返回 413；
    ValidateContentType 不符合时返回 415
  - HTTPStatus 把 ErrorCode 映射为状态码，运行取消映射为 499
  - SSE 与 WebSocket 共用 api.StreamEnvelope 消息格式
*/
package handlers
