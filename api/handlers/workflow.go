package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/BaSui01/consultflow/api"
	"github.com/BaSui01/consultflow/orchestrator"
	"github.com/BaSui01/consultflow/types"
	"github.com/BaSui01/consultflow/workflow"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
)

const (
	maxQueryLength   = 8000
	defaultRunsLimit = 20
	maxRunsLimit     = 100
)

// Runner 工作流处理器依赖的编排能力，*orchestrator.Orchestrator 实现了它。
type Runner interface {
	RunWorkflow(ctx context.Context, query string, history []types.Turn, mode orchestrator.Mode) (*orchestrator.Result, error)
	Stream(ctx context.Context, query string, history []types.Turn, mode orchestrator.Mode) (<-chan orchestrator.StreamMessage, error)
	GetRun(ctx context.Context, id string) (*workflow.Run, error)
	ListRuns(ctx context.Context, limit int) ([]*workflow.Run, error)
	Graph(mode orchestrator.Mode) (*workflow.Graph, error)
}

// =============================================================================
// 🧭 工作流 Handler
// =============================================================================

// WorkflowHandler 咨询工作流处理器
type WorkflowHandler struct {
	runner      Runner
	defaultMode orchestrator.Mode
	wsOrigins   []string
	logger      *zap.Logger
}

// WorkflowHandlerOption 处理器选项
type WorkflowHandlerOption func(*WorkflowHandler)

// WithDefaultMode 请求未指定模式时使用的模式
func WithDefaultMode(m orchestrator.Mode) WorkflowHandlerOption {
	return func(h *WorkflowHandler) { h.defaultMode = m }
}

// WithWebSocketOrigins 允许跨域建立 WebSocket 的来源（host 模式，如 "*.example.com"）
func WithWebSocketOrigins(patterns ...string) WorkflowHandlerOption {
	return func(h *WorkflowHandler) { h.wsOrigins = patterns }
}

// NewWorkflowHandler 创建工作流处理器
func NewWorkflowHandler(runner Runner, logger *zap.Logger, opts ...WorkflowHandlerOption) *WorkflowHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &WorkflowHandler{
		runner:      runner,
		defaultMode: orchestrator.ModeStandard,
		logger:      logger.With(zap.String("component", "workflow_handler")),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleRun 处理同步运行请求
// @Summary 运行咨询工作流
// @Description 执行一次咨询并返回最终回答与各 Agent 详情
// @Tags 工作流
// @Accept json
// @Produce json
// @Param request body api.WorkflowRequest true "咨询请求"
// @Success 200 {object} Response "运行结果"
// @Failure 400 {object} Response "无效请求"
// @Failure 500 {object} Response "内部错误"
// @Security BearerAuth
// @Router /api/v1/workflow/run [post]
func (h *WorkflowHandler) HandleRun(w http.ResponseWriter, r *http.Request) {
	query, history, mode, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	res, err := h.runner.RunWorkflow(r.Context(), query, history, mode)
	if err != nil {
		if res != nil {
			h.logger.Warn("workflow run failed",
				zap.String("run_id", res.RunID),
				zap.String("status", string(res.Status)),
				zap.Error(err))
		}
		WriteAnyError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, res)
}

// HandleStream 以 SSE 推送运行事件
// @Summary 流式运行咨询工作流
// @Description 以 text/event-stream 推送节点事件，最后一条为结果或错误
// @Tags 工作流
// @Accept json
// @Produce text/event-stream
// @Param request body api.WorkflowRequest true "咨询请求"
// @Success 200 {string} string "SSE 流"
// @Failure 400 {object} Response "无效请求"
// @Security BearerAuth
// @Router /api/v1/workflow/stream [post]
func (h *WorkflowHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	query, history, mode, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	stream, err := h.runner.Stream(r.Context(), query, history, mode)
	if err != nil {
		WriteAnyError(w, r, err, h.logger)
		return
	}

	// 流式响应不受服务器 WriteTimeout 约束
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.logger.Debug("failed to clear write deadline", zap.Error(err))
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // 禁用 nginx 缓冲
	w.WriteHeader(http.StatusOK)

	for msg := range stream {
		env := envelope(msg)
		data, err := json.Marshal(env)
		if err != nil {
			h.logger.Error("failed to encode stream message", zap.Error(err))
			continue
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", env.Type, data); err != nil {
			// 客户端已断开，ctx 取消后编排器会自行收尾
			h.logger.Debug("stream client gone", zap.Error(err))
			return
		}
		_ = rc.Flush()
	}

	_, _ = w.Write([]byte("data: [DONE]\n\n"))
	_ = rc.Flush()
}

// HandleWebSocket 以 WebSocket 推送运行事件。
// 连接建立后客户端每发送一个 WorkflowRequest，服务端推送该次运行的全部消息。
// @Summary WebSocket 运行咨询工作流
// @Tags 工作流
// @Router /api/v1/workflow/ws [get]
func (h *WorkflowHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.wsOrigins})
	if err != nil {
		h.logger.Debug("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxBodySize)

	ctx := r.Context()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && ctx.Err() == nil {
				h.logger.Debug("websocket read failed", zap.Error(err))
			}
			return
		}
		var req api.WorkflowRequest
		if err := json.Unmarshal(data, &req); err != nil {
			if err := wsjson.Write(ctx, conn, errorEnvelope(types.NewError(types.ErrInvalidRequest, "invalid JSON message"))); err != nil {
				return
			}
			continue
		}

		mode, verr := h.validate(&req)
		if verr != nil {
			if err := wsjson.Write(ctx, conn, errorEnvelope(verr)); err != nil {
				return
			}
			continue
		}

		stream, err := h.runner.Stream(ctx, req.Query, req.History, mode)
		if err != nil {
			if err := wsjson.Write(ctx, conn, errorEnvelope(ToAPIError(err))); err != nil {
				return
			}
			continue
		}
		for msg := range stream {
			if err := wsjson.Write(ctx, conn, envelope(msg)); err != nil {
				h.logger.Debug("websocket write failed", zap.Error(err))
				// 继续排空通道，运行随 ctx 取消结束
				for range stream {
				}
				return
			}
		}
	}
}

// HandleGetRun 查询单次运行
// @Summary 查询运行记录
// @Tags 工作流
// @Produce json
// @Param id path string true "运行 ID"
// @Success 200 {object} Response "运行记录"
// @Failure 404 {object} Response "未找到"
// @Router /api/v1/workflow/runs/{id} [get]
func (h *WorkflowHandler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "run id is required", h.logger)
		return
	}
	run, err := h.runner.GetRun(r.Context(), id)
	if err != nil {
		WriteAnyError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, run)
}

// HandleListRuns 列出最近的运行
// @Summary 最近的运行记录
// @Tags 工作流
// @Produce json
// @Param limit query int false "返回条数（默认 20，最大 100）"
// @Success 200 {object} Response "运行摘要列表"
// @Router /api/v1/workflow/runs [get]
func (h *WorkflowHandler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "limit must be a positive integer", h.logger)
			return
		}
		limit = min(n, maxRunsLimit)
	}
	runs, err := h.runner.ListRuns(r.Context(), limit)
	if err != nil {
		WriteAnyError(w, r, err, h.logger)
		return
	}
	out := make([]api.RunSummary, 0, len(runs))
	for _, run := range runs {
		out = append(out, api.RunSummary{
			ID:            run.ID,
			Graph:         run.Graph,
			State:         string(run.State),
			Query:         run.Query,
			Language:      run.Language,
			FinalResponse: run.FinalResponse,
			StartTime:     run.StartTime,
			Duration:      run.Duration,
			Error:         run.Error,
		})
	}
	WriteSuccess(w, out)
}

var modeDescriptions = map[orchestrator.Mode]string{
	orchestrator.ModeStandard:     "specialists run one after another",
	orchestrator.ModeParallel:     "configured branches run concurrently and merge",
	orchestrator.ModeFeedbackLoop: "architecture and research repeat until the refinement policy is satisfied",
	orchestrator.ModeObservable:   "standard graph with every transition returned in the result",
}

// HandleModes 列出支持的运行模式
// @Summary 运行模式
// @Tags 工作流
// @Produce json
// @Success 200 {object} Response "模式列表"
// @Router /api/v1/workflow/modes [get]
func (h *WorkflowHandler) HandleModes(w http.ResponseWriter, r *http.Request) {
	modes := orchestrator.Modes()
	out := make([]api.ModeInfo, 0, len(modes))
	for _, m := range modes {
		info := api.ModeInfo{Name: string(m), Description: modeDescriptions[m]}
		if g, err := h.runner.Graph(m); err == nil {
			info.Graph = g.Name()
		}
		out = append(out, info)
	}
	WriteSuccess(w, out)
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

func (h *WorkflowHandler) decodeRequest(w http.ResponseWriter, r *http.Request) (string, []types.Turn, orchestrator.Mode, bool) {
	if !ValidateContentType(w, r, h.logger) {
		return "", nil, "", false
	}
	var req api.WorkflowRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return "", nil, "", false
	}
	mode, verr := h.validate(&req)
	if verr != nil {
		WriteError(w, verr, h.logger)
		return "", nil, "", false
	}
	return req.Query, req.History, mode, true
}

// validate 校验请求并解析模式
func (h *WorkflowHandler) validate(req *api.WorkflowRequest) (orchestrator.Mode, *types.Error) {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return "", types.NewError(types.ErrInvalidRequest, "query is required")
	}
	if utf8.RuneCountInString(req.Query) > maxQueryLength {
		return "", types.NewError(types.ErrInvalidRequest, fmt.Sprintf("query exceeds %d characters", maxQueryLength))
	}
	if len(req.History) > api.MaxHistoryTurns {
		return "", types.NewError(types.ErrInvalidRequest, fmt.Sprintf("history exceeds %d turns", api.MaxHistoryTurns))
	}
	if req.Mode == "" {
		return h.defaultMode, nil
	}
	mode, err := orchestrator.ParseMode(req.Mode)
	if err != nil {
		return "", ToAPIError(err)
	}
	return mode, nil
}

func envelope(msg orchestrator.StreamMessage) api.StreamEnvelope {
	switch {
	case msg.Event != nil:
		return api.StreamEnvelope{Type: api.StreamEvent, Event: msg.Event}
	case msg.Err != nil:
		env := errorEnvelope(ToAPIError(msg.Err))
		if msg.Result != nil {
			env.Result = msg.Result
		}
		return env
	default:
		return api.StreamEnvelope{Type: api.StreamResult, Result: msg.Result}
	}
}

func errorEnvelope(err *types.Error) api.StreamEnvelope {
	return api.StreamEnvelope{
		Type: api.StreamError,
		Error: &api.StreamErrorInfo{
			Code:      string(err.Code),
			Message:   err.Message,
			Retryable: err.Retryable,
		},
	}
}
