// Package retry 提供带指数退避与抖动的重试器，只重试被标记为可重试的错误。
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/consultflow/types"
)

const (
	defaultInitialDelay = 500 * time.Millisecond
	defaultMaxDelay     = 10 * time.Second
	defaultMultiplier   = 2.0
	jitterFraction      = 0.25
)

// Policy 退避参数。MaxRetries 不含首次调用
type Policy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool // 在计算值上下浮动 25%

	// OnRetry 在每次等待前调用，attempt 从 1 开始
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultPolicy 面向 LLM 接口：两次重试，0.5s 起步
func DefaultPolicy() *Policy {
	return &Policy{
		MaxRetries:   2,
		InitialDelay: defaultInitialDelay,
		MaxDelay:     defaultMaxDelay,
		Multiplier:   defaultMultiplier,
		Jitter:       true,
	}
}

// normalized 返回补齐非法值后的副本
func (p Policy) normalized() Policy {
	p.MaxRetries = max(p.MaxRetries, 0)
	if p.InitialDelay <= 0 {
		p.InitialDelay = defaultInitialDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = defaultMaxDelay
	}
	if p.Multiplier < 1 {
		p.Multiplier = defaultMultiplier
	}
	return p
}

type Retryer interface {
	Do(ctx context.Context, fn func() error) error
}

type backoffRetryer struct {
	policy Policy
	logger *zap.Logger
}

// NewBackoffRetryer policy 为 nil 时使用 DefaultPolicy
func NewBackoffRetryer(policy *Policy, logger *zap.Logger) Retryer {
	if policy == nil {
		policy = DefaultPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &backoffRetryer{
		policy: policy.normalized(),
		logger: logger.Named("retry"),
	}
}

func (r *backoffRetryer) Do(ctx context.Context, fn func() error) error {
	err := fn()
	for attempt := 1; err != nil && Retryable(err); attempt++ {
		if attempt > r.policy.MaxRetries {
			r.logger.Warn("retries exhausted", zap.Int("attempts", attempt), zap.Error(err))
			return err
		}
		delay := r.calculateDelay(attempt)
		if r.policy.OnRetry != nil {
			r.policy.OnRetry(attempt, err, delay)
		}
		r.logger.Debug("backing off",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if werr := wait(ctx, delay); werr != nil {
			return fmt.Errorf("retry aborted after %d attempts: %w", attempt, werr)
		}
		if err = fn(); err == nil {
			r.logger.Debug("retry succeeded", zap.Int("attempt", attempt))
		}
	}
	return err
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// calculateDelay 第 attempt 次重试前的等待：InitialDelay * Multiplier^(attempt-1)，
// 封顶 MaxDelay，抖动后不低于 InitialDelay
func (r *backoffRetryer) calculateDelay(attempt int) time.Duration {
	p := r.policy
	d := float64(p.InitialDelay)
	for i := 1; i < attempt && d < float64(p.MaxDelay); i++ {
		d *= p.Multiplier
	}
	d = min(d, float64(p.MaxDelay))
	if p.Jitter {
		d += d * jitterFraction * (2*rand.Float64() - 1)
	}
	return max(time.Duration(d), p.InitialDelay)
}

// Retryable 上下文错误永不重试；types.Error 看其 Retryable 字段；
// 其他错误必须经 WrapRetryable 标记
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	}
	if e, ok := types.AsError(err); ok {
		return e.Retryable
	}
	var re *RetryableError
	return errors.As(err, &re)
}

// RetryableError 把普通错误标记为可重试
type RetryableError struct{ Err error }

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

func WrapRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}
