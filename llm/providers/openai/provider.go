package openai

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/consultflow/llm"
	"github.com/BaSui01/consultflow/types"
	openai "github.com/openai/openai-go"
	openaiopt "github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"go.uber.org/zap"
)

const providerName = "openai"

// Config OpenAI 兼容接口配置。
type Config struct {
	APIKey  string        `json:"api_key" yaml:"api_key"`
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Model   string        `json:"model" yaml:"model"`
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// HTTPClient 可选，用于注入加固过 TLS 的客户端
	HTTPClient *http.Client `json:"-" yaml:"-"`
}

// Provider 基于 openai-go 的 Chat Completions 实现。
// 重试交由 llm.ResilientProvider 负责，SDK 自身重试被关闭。
type Provider struct {
	client openai.Client
	cfg    Config
	logger *zap.Logger
}

// New 创建 OpenAI Provider。
func New(cfg Config, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	clientOpts := []openaiopt.RequestOption{
		openaiopt.WithMaxRetries(0),
		openaiopt.WithRequestTimeout(cfg.Timeout),
	}
	if cfg.APIKey != "" {
		clientOpts = append(clientOpts, openaiopt.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, openaiopt.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		clientOpts = append(clientOpts, openaiopt.WithHTTPClient(cfg.HTTPClient))
	}

	return &Provider{
		client: openai.NewClient(clientOpts...),
		cfg:    cfg,
		logger: logger.With(zap.String("component", "llm_provider"), zap.String("provider", providerName)),
	}
}

// Name 实现 llm.Provider。
func (p *Provider) Name() string { return providerName }

// Completion 实现 llm.Provider。
func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: convertMessages(req.Messages),
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(float64(req.Temperature))
	}

	start := time.Now()
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, p.mapError(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return nil, types.NewError(types.ErrUpstreamError, "empty choices in completion").WithProvider(providerName)
	}

	p.logger.Debug("completion finished",
		zap.String("model", resp.Model),
		zap.String("trace_id", req.TraceID),
		zap.Duration("duration", time.Since(start)),
		zap.Int64("total_tokens", resp.Usage.TotalTokens),
	)

	choice := resp.Choices[0]
	return &llm.ChatResponse{
		ID:           resp.ID,
		Provider:     providerName,
		Model:        resp.Model,
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Usage: llm.ChatUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
		CreatedAt: time.Unix(resp.Created, 0),
	}, nil
}

func convertMessages(msgs []llm.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case llm.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case llm.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

// mapError 将 SDK 错误映射为 types.Error，超时、限流与 5xx 标记为可重试。
func (p *Provider) mapError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.NewError(types.ErrUpstreamTimeout, "request timed out").
			WithCause(err).WithRetryable(true).WithProvider(providerName)
	}

	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return types.NewError(types.ErrUpstreamError, "request failed").
			WithCause(err).WithRetryable(true).WithProvider(providerName)
	}
	return MapHTTPError(apiErr.StatusCode, apiErr.Message).WithCause(err)
}

// MapHTTPError 将 HTTP 状态码映射为 types.Error。
func MapHTTPError(status int, msg string) *types.Error {
	var e *types.Error
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e = types.NewError(types.ErrAuthentication, msg)
	case status == http.StatusTooManyRequests:
		lower := strings.ToLower(msg)
		if strings.Contains(lower, "quota") || strings.Contains(lower, "billing") {
			e = types.NewError(types.ErrQuotaExceeded, msg)
		} else {
			e = types.NewError(types.ErrRateLimited, msg).WithRetryable(true)
		}
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		e = types.NewError(types.ErrUpstreamTimeout, msg).WithRetryable(true)
	case status >= 500:
		e = types.NewError(types.ErrUpstreamError, msg).WithRetryable(true)
	case status == http.StatusNotFound:
		e = types.NewError(types.ErrNotFound, msg)
	default:
		e = types.NewError(types.ErrInvalidRequest, msg)
	}
	return e.WithHTTPStatus(status).WithProvider(providerName)
}
