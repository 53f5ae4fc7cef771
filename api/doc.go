// Package api 定义 ConsultFlow HTTP API 的请求与响应结构。
//
// # API 概览
//
// ConsultFlow 通过以下端点对外提供咨询工作流：
//   - POST /api/v1/workflow/run      同步运行一次咨询
//   - POST /api/v1/workflow/stream   以 SSE 推送节点事件与最终结果
//   - GET  /api/v1/workflow/ws       以 WebSocket 推送同样的消息
//   - GET  /api/v1/workflow/runs     最近的运行记录
//   - GET  /api/v1/workflow/runs/{id} 单次运行详情
//   - GET  /api/v1/workflow/modes    支持的运行模式
//   - /health, /healthz, /ready, /version 健康检查
//
// # 鉴权
//
// 启用 JWT 时，API 端点需要携带：
//
//	Authorization: Bearer <token>
//
// # 流式消息
//
// SSE 与 WebSocket 使用相同的 StreamEnvelope：type 为 event 的消息携带
// 节点状态变化，最后一条为 result 或 error。
package api
