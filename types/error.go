package types

import (
	"errors"
	"strings"
)

// ErrorCode classifies failures for callers and HTTP mapping.
type ErrorCode string

const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrAuthentication     ErrorCode = "AUTHENTICATION"
	ErrUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrNotFound           ErrorCode = "NOT_FOUND"
	ErrRateLimited        ErrorCode = "RATE_LIMITED"
	ErrQuotaExceeded      ErrorCode = "QUOTA_EXCEEDED"
	ErrUpstreamTimeout    ErrorCode = "UPSTREAM_TIMEOUT"
	ErrUpstreamError      ErrorCode = "UPSTREAM_ERROR"
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"

	// ErrWorkflowConfig: the graph cannot be built as declared.
	ErrWorkflowConfig ErrorCode = "WORKFLOW_CONFIG"
	// ErrAgentFailure: a single agent call failed; the run may continue.
	ErrAgentFailure      ErrorCode = "AGENT_FAILURE"
	ErrWorkflowCancelled ErrorCode = "WORKFLOW_CANCELLED"
	// ErrOrchestrationFatal: a failure escaped a node boundary and ended the run.
	ErrOrchestrationFatal ErrorCode = "ORCHESTRATION_FATAL"
	ErrRetrievalFailed    ErrorCode = "RETRIEVAL_FAILED"
)

// Error is the structured error shared by every package. Build it with
// NewError and the With* setters; inspect it with AsError or the code helpers.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
	Cause      error     `json:"-"`
}

func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteByte('[')
	b.WriteString(string(e.Code))
	b.WriteString("] ")
	b.WriteString(e.Message)
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches another *Error by code, so a bare NewError(code, "") works as
// a sentinel with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// AsError returns the outermost *Error in err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

func IsRetryable(err error) bool {
	e, ok := AsError(err)
	return ok && e.Retryable
}

// GetErrorCode returns "" when err carries no *Error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

func IsErrorCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}
