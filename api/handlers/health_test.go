package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/consultflow/testutil/mocks"
)

// staticCheck 不带 Critical 方法，按关键项处理
type staticCheck struct {
	name string
	err  error
}

func (c staticCheck) Name() string                { return c.name }
func (c staticCheck) Check(context.Context) error { return c.err }

type checkedProvider struct {
	*mocks.MockProvider
	err error
}

func (p *checkedProvider) HealthCheck(context.Context) error { return p.err }

func ready(t *testing.T, h *HealthHandler) (int, HealthStatus) {
	t.Helper()
	w := httptest.NewRecorder()
	h.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	var st HealthStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&st))
	return w.Code, st
}

func TestHealthHandler_Liveness(t *testing.T) {
	h := NewHealthHandler(zap.NewNop())
	h.RegisterCheck(staticCheck{name: "db", err: errors.New("down")})

	for _, handle := range []http.HandlerFunc{h.HandleHealth, h.HandleHealthz} {
		w := httptest.NewRecorder()
		handle(w, httptest.NewRequest(http.MethodGet, "/health", nil))

		// 存活探针不执行就绪检查
		assert.Equal(t, http.StatusOK, w.Code)
		var st HealthStatus
		require.NoError(t, json.NewDecoder(w.Body).Decode(&st))
		assert.Equal(t, StatusHealthy, st.Status)
		assert.NotEmpty(t, st.Uptime)
		assert.Empty(t, st.Checks)
	}
}

func TestHealthHandler_Ready(t *testing.T) {
	boom := errors.New("connection refused")
	tests := []struct {
		name     string
		checks   []HealthCheck
		wantCode int
		want     string
		results  map[string]string
	}{
		{
			name:     "no checks",
			wantCode: http.StatusOK,
			want:     StatusHealthy,
			results:  map[string]string{},
		},
		{
			name:     "all pass",
			checks:   []HealthCheck{NewDatabaseHealthCheck("postgres", func(context.Context) error { return nil }), staticCheck{name: "static"}},
			wantCode: http.StatusOK,
			want:     StatusHealthy,
			results:  map[string]string{"postgres": "pass", "static": "pass"},
		},
		{
			name: "optional failure degrades",
			checks: []HealthCheck{
				NewRedisHealthCheck("redis", func(context.Context) error { return nil }),
				NewCheck("llm:openai", func(context.Context) error { return boom }, false),
			},
			wantCode: http.StatusOK,
			want:     StatusDegraded,
			results:  map[string]string{"redis": "pass", "llm:openai": "warn"},
		},
		{
			name: "critical failure wins",
			checks: []HealthCheck{
				NewCheck("llm:openai", func(context.Context) error { return boom }, false),
				staticCheck{name: "sqlite", err: boom},
			},
			wantCode: http.StatusServiceUnavailable,
			want:     StatusUnhealthy,
			results:  map[string]string{"llm:openai": "warn", "sqlite": "fail"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(nil)
			for _, c := range tt.checks {
				h.RegisterCheck(c)
			}
			code, st := ready(t, h)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.want, st.Status)
			got := map[string]string{}
			for name, r := range st.Checks {
				got[name] = r.Status
				if r.Status != "pass" {
					assert.Equal(t, boom.Error(), r.Message)
				}
			}
			assert.Equal(t, tt.results, got)
		})
	}
}

func TestHealthHandler_ReadyRunsChecksConcurrently(t *testing.T) {
	h := NewHealthHandler(nil)
	var started sync.WaitGroup
	started.Add(3)
	gate := make(chan struct{})
	for _, name := range []string{"a", "b", "c"} {
		h.RegisterCheck(NewCheck(name, func(ctx context.Context) error {
			started.Done()
			select {
			case <-gate:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}, true))
	}

	go func() {
		started.Wait()
		close(gate)
	}()
	code, st := ready(t, h)
	assert.Equal(t, http.StatusOK, code)
	assert.Len(t, st.Checks, 3)
}

func TestHealthHandler_ReadyTimesOutSlowCheck(t *testing.T) {
	h := NewHealthHandler(nil)
	h.timeout = 20 * time.Millisecond
	h.RegisterCheck(NewCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, true))

	code, st := ready(t, h)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, context.DeadlineExceeded.Error(), st.Checks["slow"].Message)
}

func TestHealthHandler_Version(t *testing.T) {
	h := NewHealthHandler(nil)
	w := httptest.NewRecorder()
	h.HandleVersion("1.2.0", "2026-01-01T00:00:00Z", "abc123")(w, httptest.NewRequest(http.MethodGet, "/version", nil))

	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "1.2.0", data["version"])
	assert.Equal(t, "abc123", data["git_commit"])
	assert.NotEmpty(t, data["go_version"])
}

func TestProviderHealthCheck(t *testing.T) {
	plain := NewProviderHealthCheck(mocks.NewMockProvider())
	assert.Equal(t, "llm:mock", plain.Name())
	assert.False(t, plain.Critical())
	assert.NoError(t, plain.Check(context.Background()))

	down := NewProviderHealthCheck(&checkedProvider{MockProvider: mocks.NewMockProvider(), err: errors.New("upstream down")})
	assert.EqualError(t, down.Check(context.Background()), "upstream down")

	h := NewHealthHandler(nil)
	h.RegisterCheck(down)
	code, st := ready(t, h)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusDegraded, st.Status)
}
