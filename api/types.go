package api

import (
	"time"

	"github.com/BaSui01/consultflow/types"
)

// =============================================================================
// 咨询请求类型
// =============================================================================

// WorkflowRequest 一次咨询请求。
// @Description 工作流运行请求结构
type WorkflowRequest struct {
	// 用户问题
	Query string `json:"query" example:"What is our remote work policy?" binding:"required"`
	// 历史对话（可选）
	History []types.Turn `json:"history,omitempty"`
	// 运行模式: standard, parallel, feedback_loop, observable
	Mode string `json:"mode,omitempty" example:"standard"`
}

// MaxHistoryTurns 单次请求允许携带的历史轮数上限。
const MaxHistoryTurns = 50

// =============================================================================
// 运行记录类型
// =============================================================================

// RunSummary 运行记录摘要，用于列表接口。
// @Description 运行记录摘要
type RunSummary struct {
	ID            string        `json:"id"`
	Graph         string        `json:"graph"`
	State         string        `json:"state"`
	Query         string        `json:"query"`
	Language      string        `json:"language,omitempty"`
	FinalResponse string        `json:"final_response,omitempty"`
	StartTime     time.Time     `json:"start_time"`
	Duration      time.Duration `json:"duration_ns"`
	Error         string        `json:"error,omitempty"`
}

// ModeInfo 运行模式说明。
type ModeInfo struct {
	Name        string `json:"name"`
	Graph       string `json:"graph"`
	Description string `json:"description"`
}

// =============================================================================
// 流式消息类型
// =============================================================================

// StreamMessageType 流式消息类型。
type StreamMessageType string

const (
	StreamEvent  StreamMessageType = "event"
	StreamResult StreamMessageType = "result"
	StreamError  StreamMessageType = "error"
)

// StreamEnvelope SSE 与 WebSocket 共用的消息封装。
// Event 与 Result 为原样透传的工作流结构。
type StreamEnvelope struct {
	Type   StreamMessageType `json:"type"`
	Event  any               `json:"event,omitempty"`
	Result any               `json:"result,omitempty"`
	Error  *StreamErrorInfo  `json:"error,omitempty"`
}

// StreamErrorInfo 流中的错误信息。
type StreamErrorInfo struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}
