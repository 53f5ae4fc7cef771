package llm

import (
	"context"
	"errors"
	"time"

	"github.com/BaSui01/consultflow/llm/retry"
	"github.com/BaSui01/consultflow/types"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// MetricsRecorder 接收 LLM 调用指标，由 internal/metrics.Collector 实现。
type MetricsRecorder interface {
	RecordLLMRequest(provider, model, status string, duration time.Duration, promptTokens, completionTokens int)
	RecordCacheHit(cacheType string)
	RecordCacheMiss(cacheType string)
}

// ResilientProvider 具有弹性能力的 Provider 包装器
// 按顺序叠加：响应缓存 → 限流 → 重试 → 指标
type ResilientProvider struct {
	provider Provider
	cache    ResponseCache
	limiter  *rate.Limiter
	retryer  retry.Retryer
	metrics  MetricsRecorder
	logger   *zap.Logger
}

// ResilientOption 配置 ResilientProvider
type ResilientOption func(*ResilientProvider)

// WithCache 启用响应缓存
func WithCache(c ResponseCache) ResilientOption {
	return func(rp *ResilientProvider) { rp.cache = c }
}

// WithRateLimit 限制每秒请求数，burst 为突发容量
func WithRateLimit(rps float64, burst int) ResilientOption {
	return func(rp *ResilientProvider) {
		if rps <= 0 {
			return
		}
		if burst <= 0 {
			burst = 1
		}
		rp.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRetryer 设置重试器
func WithRetryer(r retry.Retryer) ResilientOption {
	return func(rp *ResilientProvider) { rp.retryer = r }
}

// WithMetrics 设置指标记录器
func WithMetrics(m MetricsRecorder) ResilientOption {
	return func(rp *ResilientProvider) { rp.metrics = m }
}

// NewResilientProvider 创建具有弹性能力的 Provider
func NewResilientProvider(provider Provider, logger *zap.Logger, opts ...ResilientOption) *ResilientProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	rp := &ResilientProvider{
		provider: provider,
		logger:   logger.With(zap.String("component", "resilient_provider"), zap.String("provider", provider.Name())),
	}
	for _, opt := range opts {
		opt(rp)
	}
	return rp
}

// Completion 实现 Provider.Completion
func (rp *ResilientProvider) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	cacheKey := ""
	if rp.cache != nil && IsCacheable(req) {
		cacheKey = GenerateKey(req)
		if entry, err := rp.cache.Get(ctx, cacheKey); err == nil && entry.Response != nil {
			rp.recordCache(true)
			resp := *entry.Response
			resp.Cached = true
			return &resp, nil
		}
		rp.recordCache(false)
	}

	if rp.limiter != nil {
		if err := rp.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, types.NewError(types.ErrRateLimited, "local rate limit exceeded").
				WithCause(err).WithProvider(rp.provider.Name())
		}
	}

	start := time.Now()
	var resp *ChatResponse
	call := func() error {
		var err error
		resp, err = rp.provider.Completion(ctx, req)
		return err
	}

	var err error
	if rp.retryer != nil {
		err = rp.retryer.Do(ctx, call)
	} else {
		err = call()
	}
	rp.recordRequest(req, resp, err, time.Since(start))
	if err != nil {
		return nil, err
	}

	if cacheKey != "" {
		if cacheErr := rp.cache.Set(ctx, cacheKey, &CacheEntry{Response: resp}); cacheErr != nil {
			rp.logger.Warn("缓存响应失败", zap.String("key", cacheKey), zap.Error(cacheErr))
		}
	}
	return resp, nil
}

// Name 实现 Provider.Name
func (rp *ResilientProvider) Name() string {
	return rp.provider.Name()
}

// HealthCheck 委托给底层 Provider（若支持）
func (rp *ResilientProvider) HealthCheck(ctx context.Context) error {
	if hc, ok := rp.provider.(HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

func (rp *ResilientProvider) recordCache(hit bool) {
	if rp.metrics == nil {
		return
	}
	if hit {
		rp.metrics.RecordCacheHit("llm")
	} else {
		rp.metrics.RecordCacheMiss("llm")
	}
}

func (rp *ResilientProvider) recordRequest(req *ChatRequest, resp *ChatResponse, err error, elapsed time.Duration) {
	status := "success"
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = "cancelled"
	default:
		status = "error"
		if code := types.GetErrorCode(err); code != "" {
			status = string(code)
		}
		rp.logger.Warn("LLM 调用失败", zap.String("model", req.Model), zap.Duration("duration", elapsed), zap.Error(err))
	}
	if rp.metrics == nil {
		return
	}
	var prompt, completion int
	model := req.Model
	if resp != nil {
		prompt, completion = resp.Usage.PromptTokens, resp.Usage.CompletionTokens
		if resp.Model != "" {
			model = resp.Model
		}
	}
	rp.metrics.RecordLLMRequest(rp.provider.Name(), model, status, elapsed, prompt, completion)
}
