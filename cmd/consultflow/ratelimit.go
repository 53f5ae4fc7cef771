package main

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/consultflow/internal/ctxkeys"
	"github.com/BaSui01/consultflow/types"
)

const (
	limiterSweepInterval = time.Minute
	limiterIdleTTL       = 3 * time.Minute
)

type clientLimit struct {
	lim  *rate.Limiter
	seen time.Time
}

// clientLimiters 每个调用方一个令牌桶，闲置超过 limiterIdleTTL 的被回收
type clientLimiters struct {
	rps   rate.Limit
	burst int

	mu      sync.Mutex
	clients map[string]*clientLimit
}

func newClientLimiters(rps float64, burst int) *clientLimiters {
	return &clientLimiters{
		rps:     rate.Limit(rps),
		burst:   max(burst, 1),
		clients: make(map[string]*clientLimit),
	}
}

func (c *clientLimiters) allow(key string, now time.Time) bool {
	c.mu.Lock()
	cl, ok := c.clients[key]
	if !ok {
		cl = &clientLimit{lim: rate.NewLimiter(c.rps, c.burst)}
		c.clients[key] = cl
	}
	cl.seen = now
	c.mu.Unlock()
	return cl.lim.AllowN(now, 1)
}

func (c *clientLimiters) sweep(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, cl := range c.clients {
		if now.Sub(cl.seen) > limiterIdleTTL {
			delete(c.clients, k)
		}
	}
}

func (c *clientLimiters) run(ctx context.Context) {
	t := time.NewTicker(limiterSweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			c.sweep(now)
		}
	}
}

// RateLimiter 按调用方限流：已鉴权请求按用户，其余按客户端 IP。
// ctx 结束时停止回收协程。
func RateLimiter(ctx context.Context, rps float64, burst int, logger *zap.Logger) Middleware {
	limiters := newClientLimiters(rps, burst)
	go limiters.run(ctx)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := rateLimitKey(r)
			if !limiters.allow(key, time.Now()) {
				logger.Debug("rate limited", zap.String("key", key))
				w.Header().Set("Retry-After", "1")
				writeJSONError(w, http.StatusTooManyRequests, types.ErrRateLimited, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func rateLimitKey(r *http.Request) string {
	ctx := r.Context()
	if user, ok := types.UserID(ctx); ok {
		return "user:" + user
	}
	if ip, ok := ctxkeys.ClientIP(ctx); ok {
		return "ip:" + ip
	}
	return "ip:" + remoteIP(r)
}
