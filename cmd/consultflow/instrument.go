package main

import (
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/consultflow/api/handlers"
	"github.com/BaSui01/consultflow/internal/ctxkeys"
	"github.com/BaSui01/consultflow/internal/metrics"
)

const httpTracerName = "consultflow/http"

// Instrument 为每个请求开一个服务端 span，结束后写访问日志并记录
// Prometheus 指标。collector 为 nil 时跳过指标。
func Instrument(logger *zap.Logger, collector *metrics.Collector) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			route := normalizePath(r.URL.Path)

			ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := otel.Tracer(httpTracerName).Start(ctx, r.Method+" "+route,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.URLPath(r.URL.Path),
					semconv.HTTPRoute(route),
				),
			)
			defer span.End()

			rw := handlers.NewResponseWriter(w)
			next.ServeHTTP(rw, r.WithContext(ctx))
			elapsed := time.Since(start)

			span.SetAttributes(semconv.HTTPResponseStatusCode(rw.StatusCode))
			if rw.StatusCode >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(rw.StatusCode))
			}

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rw.StatusCode),
				zap.Int64("bytes", rw.Bytes),
				zap.Duration("duration", elapsed),
				zap.String("remote_addr", r.RemoteAddr),
			}
			if id, ok := ctxkeys.RequestID(ctx); ok {
				fields = append(fields, zap.String("request_id", id))
				span.SetAttributes(attribute.String("request.id", id))
			}
			logger.Info("request", fields...)

			if collector != nil {
				collector.RecordHTTPRequest(r.Method, route, rw.StatusCode, elapsed, max(r.ContentLength, 0), rw.Bytes)
			}
		})
	}
}

// 固定路由不做改写
var staticRoutes = map[string]bool{
	"/health": true, "/healthz": true, "/ready": true, "/readyz": true,
	"/version": true, "/metrics": true,
	"/api/v1/workflow/run": true, "/api/v1/workflow/stream": true,
	"/api/v1/workflow/ws": true, "/api/v1/workflow/runs": true,
	"/api/v1/workflow/modes": true,
}

// UUID、8 位以上十六进制串或纯数字
var idSegment = regexp.MustCompile(`^(?:[0-9a-fA-F]{8,}(?:-[0-9a-fA-F]{4,}){0,4}|[0-9]+)$`)

// normalizePath 把路径中的 ID 段替换为 :id，控制指标标签基数
func normalizePath(path string) string {
	if staticRoutes[path] {
		return path
	}
	segs := strings.Split(path, "/")
	for i, s := range segs {
		if s != "" && idSegment.MatchString(s) {
			segs[i] = ":id"
		}
	}
	return strings.Join(segs, "/")
}
