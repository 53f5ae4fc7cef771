package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/consultflow/internal/ctxkeys"
	"github.com/BaSui01/consultflow/types"
	"github.com/BaSui01/consultflow/workflow"
)

// StatusClientClosedRequest 客户端在运行结束前断开（nginx 约定）
const StatusClientClosedRequest = 499

// Response 所有 JSON 接口共用的外层信封
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	RequestID string     `json:"request_id,omitempty"`
}

// ErrorInfo 信封中的错误部分
type ErrorInfo struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	Retryable  bool   `json:"retryable,omitempty"`
	HTTPStatus int    `json:"-"`
}

// 错误码到 HTTP 状态码，未列出的按 500 处理
var statusByCode = map[types.ErrorCode]int{
	types.ErrInvalidRequest:     http.StatusBadRequest,
	types.ErrAuthentication:     http.StatusUnauthorized,
	types.ErrUnauthorized:       http.StatusUnauthorized,
	types.ErrNotFound:           http.StatusNotFound,
	types.ErrRateLimited:        http.StatusTooManyRequests,
	types.ErrQuotaExceeded:      http.StatusPaymentRequired,
	types.ErrWorkflowCancelled:  StatusClientClosedRequest,
	types.ErrUpstreamTimeout:    http.StatusGatewayTimeout,
	types.ErrServiceUnavailable: http.StatusServiceUnavailable,
	types.ErrUpstreamError:      http.StatusBadGateway,
	types.ErrAgentFailure:       http.StatusBadGateway,
	types.ErrRetrievalFailed:    http.StatusBadGateway,
}

// HTTPStatus 返回错误码对应的 HTTP 状态码
func HTTPStatus(code types.ErrorCode) int {
	if s, ok := statusByCode[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// WriteJSON 先完整编码再写头，编码失败时返回 500 而不是半截响应
func WriteJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		status = http.StatusInternalServerError
		buf.Reset()
		buf.WriteString(`{"success":false,"error":{"code":"INTERNAL_ERROR","message":"response encoding failed"}}` + "\n")
	}
	h := w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func envelopeFor(w http.ResponseWriter) Response {
	return Response{Timestamp: time.Now().UTC(), RequestID: w.Header().Get("X-Request-ID")}
}

// WriteSuccess 以 200 写出成功信封
func WriteSuccess(w http.ResponseWriter, data any) {
	resp := envelopeFor(w)
	resp.Success = true
	resp.Data = data
	WriteJSON(w, http.StatusOK, resp)
}

// WriteError 写出错误信封。5xx 记 Error，4xx 记 Warn。
func WriteError(w http.ResponseWriter, err *types.Error, logger *zap.Logger) {
	status := err.HTTPStatus
	if status == 0 {
		status = HTTPStatus(err.Code)
	}

	if logger != nil {
		fields := []zap.Field{
			zap.String("code", string(err.Code)),
			zap.Int("status", status),
			zap.String("message", err.Message),
		}
		if err.Cause != nil {
			fields = append(fields, zap.Error(err.Cause))
		}
		if status >= http.StatusInternalServerError {
			logger.Error("request failed", fields...)
		} else {
			logger.Warn("request rejected", fields...)
		}
	}

	resp := envelopeFor(w)
	resp.Error = &ErrorInfo{
		Code:       string(err.Code),
		Message:    err.Message,
		Retryable:  err.Retryable,
		HTTPStatus: status,
	}
	WriteJSON(w, status, resp)
}

// WriteErrorMessage 以给定状态码写出一条简单错误
func WriteErrorMessage(w http.ResponseWriter, status int, code types.ErrorCode, message string, logger *zap.Logger) {
	WriteError(w, types.NewError(code, message).WithHTTPStatus(status), logger)
}

// WriteAnyError 归一化任意错误后写出，日志附带请求 ID
func WriteAnyError(w http.ResponseWriter, r *http.Request, err error, logger *zap.Logger) {
	if logger != nil && r != nil {
		if id, ok := ctxkeys.RequestID(r.Context()); ok {
			logger = logger.With(zap.String("request_id", id))
		}
	}
	WriteError(w, ToAPIError(err), logger)
}

// ToAPIError 把错误映射为 types.Error。
// 未识别的错误统一为 INTERNAL_ERROR，原始信息只进日志。
func ToAPIError(err error) *types.Error {
	if e, ok := types.AsError(err); ok {
		return e
	}
	switch {
	case errors.Is(err, workflow.ErrRunNotFound):
		return types.NewError(types.ErrNotFound, "workflow run not found").WithCause(err)
	case errors.Is(err, context.Canceled):
		return types.NewError(types.ErrWorkflowCancelled, "request cancelled").WithCause(err)
	case errors.Is(err, context.DeadlineExceeded):
		return types.NewError(types.ErrUpstreamTimeout, "request timed out").WithCause(err).WithRetryable(true)
	default:
		return types.NewError(types.ErrInternalError, "internal error").WithCause(err)
	}
}
