package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BaSui01/consultflow/types"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func fastPolicy(maxRetries int) *Policy {
	return &Policy{
		MaxRetries:   maxRetries,
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     20 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestBackoffRetryer_Success(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(3), zap.NewNop())

	callCount := 0
	err := retryer.Do(context.Background(), func() error {
		callCount++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, callCount, "应该只调用一次")
}

func TestBackoffRetryer_RetryAndSuccess(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(3), zap.NewNop())

	callCount := 0
	err := retryer.Do(context.Background(), func() error {
		callCount++
		if callCount < 3 {
			return types.NewError(types.ErrUpstreamTimeout, "slow").WithRetryable(true)
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, callCount, "应该调用三次")
}

func TestBackoffRetryer_MaxRetriesExceeded(t *testing.T) {
	var retries []int
	policy := fastPolicy(2)
	policy.OnRetry = func(attempt int, _ error, _ time.Duration) { retries = append(retries, attempt) }
	retryer := NewBackoffRetryer(policy, zap.NewNop())

	callCount := 0
	testErr := WrapRetryable(errors.New("persistent error"))
	err := retryer.Do(context.Background(), func() error {
		callCount++
		return testErr
	})

	assert.ErrorIs(t, err, testErr)
	assert.Equal(t, 3, callCount, "初始调用 + 2 次重试")
	assert.Equal(t, []int{1, 2}, retries)
}

func TestBackoffRetryer_NonRetryableStopsImmediately(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(3), zap.NewNop())

	tests := []struct {
		name string
		err  error
	}{
		{"plain error", errors.New("boom")},
		{"non retryable code", types.NewError(types.ErrAuthentication, "bad key")},
		{"context cancelled", WrapRetryable(context.Canceled)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			callCount := 0
			err := retryer.Do(context.Background(), func() error {
				callCount++
				return tt.err
			})
			assert.Error(t, err)
			assert.Equal(t, 1, callCount)
		})
	}
}

func TestBackoffRetryer_ContextCancelledDuringBackoff(t *testing.T) {
	policy := fastPolicy(5)
	policy.InitialDelay = time.Second
	policy.MaxDelay = time.Second
	retryer := NewBackoffRetryer(policy, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := retryer.Do(ctx, func() error {
		return types.NewError(types.ErrRateLimited, "slow down").WithRetryable(true)
	})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestBackoffRetryer_CalculateDelay(t *testing.T) {
	r := NewBackoffRetryer(&Policy{
		MaxRetries:   5,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     300 * time.Millisecond,
		Multiplier:   2.0,
	}, nil).(*backoffRetryer)

	assert.Equal(t, 100*time.Millisecond, r.calculateDelay(1))
	assert.Equal(t, 200*time.Millisecond, r.calculateDelay(2))
	assert.Equal(t, 300*time.Millisecond, r.calculateDelay(3), "受 MaxDelay 限制")

	r.policy.Jitter = true
	for i := 0; i < 20; i++ {
		d := r.calculateDelay(2)
		assert.GreaterOrEqual(t, d, 150*time.Millisecond)
		assert.LessOrEqual(t, d, 250*time.Millisecond)
	}
}

func TestPolicy_Normalized(t *testing.T) {
	p := Policy{MaxRetries: -3, Multiplier: 0.5}.normalized()

	assert.Equal(t, 0, p.MaxRetries)
	assert.Equal(t, defaultInitialDelay, p.InitialDelay)
	assert.Equal(t, defaultMaxDelay, p.MaxDelay)
	assert.InDelta(t, defaultMultiplier, p.Multiplier, 0.001)
}

func TestBackoffRetryer_PolicyIsCopied(t *testing.T) {
	policy := fastPolicy(1)
	r := NewBackoffRetryer(policy, nil).(*backoffRetryer)
	policy.MaxRetries = 9

	assert.Equal(t, 1, r.policy.MaxRetries)
}

func TestRetryable(t *testing.T) {
	assert.False(t, Retryable(nil))
	assert.False(t, Retryable(errors.New("plain")))
	assert.True(t, Retryable(WrapRetryable(errors.New("flaky"))))
	assert.False(t, Retryable(WrapRetryable(context.DeadlineExceeded)))
	assert.True(t, Retryable(types.NewError(types.ErrUpstreamError, "502").WithRetryable(true)))
	assert.False(t, Retryable(types.NewError(types.ErrUpstreamError, "400")))
	assert.Nil(t, WrapRetryable(nil))
}
