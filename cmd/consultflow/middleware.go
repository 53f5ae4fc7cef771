package main

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/consultflow/api/handlers"
	"github.com/BaSui01/consultflow/internal/ctxkeys"
	"github.com/BaSui01/consultflow/types"
)

// Middleware 包装一个 http.Handler
type Middleware func(http.Handler) http.Handler

// Chain 按书写顺序由外到内套用中间件
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := range mws {
		h = mws[len(mws)-1-i](h)
	}
	return h
}

// Recovery 把 handler 中的 panic 转成 500；http.ErrAbortHandler 原样抛出
func Recovery(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if v == http.ErrAbortHandler {
					panic(v)
				}
				logger.Error("handler panic",
					zap.Any("panic", v),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Stack("stack"),
				)
				writeJSONError(w, http.StatusInternalServerError, types.ErrInternalError, "internal server error")
			}()
			next.ServeHTTP(w, r)
		})
	}
}

const maxRequestIDLen = 128

// RequestID 沿用客户端的 X-Request-ID（过长则重新生成），写回响应头，
// 并把请求 ID 与客户端地址放进 context。请求 ID 同时作为下游 LLM 调用的 trace ID。
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
			if id == "" || len(id) > maxRequestIDLen {
				id = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", id)

			ctx := ctxkeys.WithClientIP(ctxkeys.WithRequestID(r.Context(), id), remoteIP(r))
			if _, ok := types.TraceID(ctx); !ok {
				ctx = types.WithTraceID(ctx, id)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

var securityHeaders = [][2]string{
	{"X-Frame-Options", "DENY"},
	{"X-Content-Type-Options", "nosniff"},
	{"Referrer-Policy", "strict-origin-when-cross-origin"},
	{"X-XSS-Protection", "1; mode=block"},
	{"Content-Security-Policy", "default-src 'self'"},
}

func SecurityHeaders() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for _, kv := range securityHeaders {
				h.Set(kv[0], kv[1])
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CORS 只对白名单来源返回跨域头。未配置白名单时拒绝所有跨域预检。
func CORS(allowedOrigins []string) Middleware {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			preflight := r.Method == http.MethodOptions

			if len(allowed) == 0 {
				if preflight && origin != "" {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			if allowed[origin] {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
				h.Set("Access-Control-Max-Age", "86400")
				h.Add("Vary", "Origin")
			}
			if preflight {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func remoteIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// writeJSONError 以 handlers.Response 信封输出错误
func writeJSONError(w http.ResponseWriter, status int, code types.ErrorCode, message string) {
	handlers.WriteJSON(w, status, handlers.Response{
		Error:     &handlers.ErrorInfo{Code: string(code), Message: message},
		Timestamp: time.Now().UTC(),
		RequestID: w.Header().Get("X-Request-ID"),
	})
}
