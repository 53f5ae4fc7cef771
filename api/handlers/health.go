package handlers

import (
	"context"
	"net/http"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/consultflow/llm"
)

// 健康状态
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// defaultCheckTimeout 单个就绪检查的超时
const defaultCheckTimeout = 3 * time.Second

// HealthCheck 就绪检查项
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

// Check 基于探活函数的检查项。非关键项失败只会把整体状态降为 degraded。
type Check struct {
	name     string
	probe    func(ctx context.Context) error
	critical bool
}

// NewCheck 创建检查项
func NewCheck(name string, probe func(ctx context.Context) error, critical bool) *Check {
	return &Check{name: name, probe: probe, critical: critical}
}

func (c *Check) Name() string                    { return c.name }
func (c *Check) Check(ctx context.Context) error { return c.probe(ctx) }

// Critical 失败时是否摘除流量
func (c *Check) Critical() bool { return c.critical }

// NewDatabaseHealthCheck 数据库不可用时服务不可就绪
func NewDatabaseHealthCheck(name string, ping func(ctx context.Context) error) *Check {
	return NewCheck(name, ping, true)
}

// NewRedisHealthCheck Redis 承载运行历史，按关键项处理
func NewRedisHealthCheck(name string, ping func(ctx context.Context) error) *Check {
	return NewCheck(name, ping, true)
}

// NewProviderHealthCheck 模型服务探活。智能体失败会降级为错误响应，
// 因此 Provider 不可用只标记 degraded。未实现 llm.HealthChecker 的视为健康。
func NewProviderHealthCheck(p llm.Provider) *Check {
	return NewCheck("llm:"+p.Name(), func(ctx context.Context) error {
		if hc, ok := p.(llm.HealthChecker); ok {
			return hc.HealthCheck(ctx)
		}
		return nil
	}, false)
}

func isCritical(c HealthCheck) bool {
	if cc, ok := c.(interface{ Critical() bool }); ok {
		return cc.Critical()
	}
	return true
}

// HealthStatus 健康接口响应体
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Uptime    string                 `json:"uptime,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult 单项检查结果
type CheckResult struct {
	Status   string `json:"status"` // pass, warn, fail
	Message  string `json:"message,omitempty"`
	Latency  string `json:"latency"`
	Critical bool   `json:"critical"`
}

// HealthHandler 存活与就绪探针
type HealthHandler struct {
	logger  *zap.Logger
	started time.Time
	timeout time.Duration

	mu     sync.RWMutex
	checks []HealthCheck
}

// NewHealthHandler 创建探针处理器
func NewHealthHandler(logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{
		logger:  logger.With(zap.String("component", "health")),
		started: time.Now(),
		timeout: defaultCheckTimeout,
	}
}

// RegisterCheck 追加就绪检查项
func (h *HealthHandler) RegisterCheck(c HealthCheck) {
	h.mu.Lock()
	h.checks = append(h.checks, c)
	h.mu.Unlock()
}

// HandleHealth 存活探针，只要进程能响应即为 healthy
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, HealthStatus{
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(h.started).Truncate(time.Second).String(),
	})
}

// HandleHealthz Kubernetes 风格的存活探针
func (h *HealthHandler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	h.HandleHealth(w, r)
}

// HandleReady 并发执行全部检查项。关键项失败返回 503，
// 仅非关键项失败返回 200 与 degraded。
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	checks := append([]HealthCheck(nil), h.checks...)
	h.mu.RUnlock()

	results := make([]CheckResult, len(checks))
	var wg sync.WaitGroup
	for i, c := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = h.run(r.Context(), c)
		}()
	}
	wg.Wait()

	status := HealthStatus{
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC(),
		Checks:    make(map[string]CheckResult, len(checks)),
	}
	for i, c := range checks {
		res := results[i]
		status.Checks[c.Name()] = res
		switch {
		case res.Status == "fail":
			status.Status = StatusUnhealthy
		case res.Status == "warn" && status.Status == StatusHealthy:
			status.Status = StatusDegraded
		}
	}

	code := http.StatusOK
	if status.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	WriteJSON(w, code, status)
}

func (h *HealthHandler) run(ctx context.Context, c HealthCheck) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	start := time.Now()
	err := c.Check(ctx)
	res := CheckResult{
		Status:   "pass",
		Latency:  time.Since(start).String(),
		Critical: isCritical(c),
	}
	if err == nil {
		return res
	}

	res.Message = err.Error()
	res.Status = "warn"
	if res.Critical {
		res.Status = "fail"
	}
	h.logger.Warn("readiness check failed",
		zap.String("check", c.Name()),
		zap.Bool("critical", res.Critical),
		zap.Error(err),
	)
	return res
}

// HandleVersion 返回构建信息
func (h *HealthHandler) HandleVersion(version, buildTime, gitCommit string) http.HandlerFunc {
	info := map[string]string{
		"version":    version,
		"build_time": buildTime,
		"git_commit": gitCommit,
		"go_version": runtime.Version(),
	}
	return func(w http.ResponseWriter, _ *http.Request) {
		WriteSuccess(w, info)
	}
}
