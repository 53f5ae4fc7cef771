package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/BaSui01/consultflow/internal/metrics"
)

func TestInstrument(t *testing.T) {
	spans := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	core, logs := observer.New(zap.InfoLevel)
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollectorWith(reg, "instrument_test", nil)

	handler := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/workflow/runs/42" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("pong"))
	}), RequestID(), Instrument(zap.New(core), collector))

	for _, path := range []string{"/healthz", "/api/v1/workflow/runs/42"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	ended := spans.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, "GET /healthz", ended[0].Name())
	assert.Equal(t, codes.Unset, ended[0].Status().Code)
	assert.Equal(t, "GET /api/v1/workflow/runs/:id", ended[1].Name())
	assert.Equal(t, codes.Error, ended[1].Status().Code)

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 2)
	ctx := entries[0].ContextMap()
	assert.EqualValues(t, http.StatusOK, ctx["status"])
	assert.EqualValues(t, 4, ctx["bytes"])
	assert.NotEmpty(t, ctx["request_id"])

	n, err := promtest.GatherAndCount(reg, "instrument_test_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "one series per route and status class")
}

func TestInstrument_NilCollector(t *testing.T) {
	handler := Instrument(zap.NewNop(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	w := httptest.NewRecorder()
	assert.NotPanics(t, func() { handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/version", nil)) })
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/health", "/health"},
		{"/api/v1/workflow/run", "/api/v1/workflow/run"},
		{"/api/v1/workflow/runs", "/api/v1/workflow/runs"},
		{"/api/v1/workflow/runs/" + uuid.NewString(), "/api/v1/workflow/runs/:id"},
		{"/api/v1/workflow/runs/12345", "/api/v1/workflow/runs/:id"},
		{"/api/v1/workflow/runs/deadbeefcafe", "/api/v1/workflow/runs/:id"},
		{"/unknown/path", "/unknown/path"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizePath(tt.path))
		})
	}
}
