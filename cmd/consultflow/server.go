package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/consultflow/api/handlers"
	"github.com/BaSui01/consultflow/config"
	"github.com/BaSui01/consultflow/internal/metrics"
	"github.com/BaSui01/consultflow/internal/server"
	"github.com/BaSui01/consultflow/internal/telemetry"
	"github.com/BaSui01/consultflow/orchestrator"
)

// 无需鉴权的探活与运维端点
var publicPaths = []string{"/health", "/healthz", "/ready", "/readyz", "/version", "/metrics"}

// Server 组合 API 与 metrics 两个监听端口，以及它们共享的运行时
type Server struct {
	cfg    *config.Config
	logger *zap.Logger
	otel   *telemetry.Providers

	collector *metrics.Collector
	stack     *stack
	health    *handlers.HealthHandler
	workflow  *handlers.WorkflowHandler

	api         *server.Manager
	metrics     *server.Manager
	stopLimiter context.CancelFunc
}

func NewServer(cfg *config.Config, logger *zap.Logger, otel *telemetry.Providers) *Server {
	return &Server{cfg: cfg, logger: logger, otel: otel}
}

// Start 装配运行时后启动监听，均为非阻塞
func (s *Server) Start() error {
	if err := s.prepare(metrics.NewCollector("consultflow", s.logger)); err != nil {
		return err
	}

	limiterCtx, cancel := context.WithCancel(context.Background())
	s.stopLimiter = cancel
	s.api = server.NewManager(s.apiHandler(limiterCtx), server.FromServerConfig(s.cfg.Server), s.logger)
	if err := s.api.Start(); err != nil {
		return fmt.Errorf("start api listener: %w", err)
	}

	if s.cfg.Server.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", promhttp.Handler())
		s.metrics = server.NewManager(mux, server.MetricsConfig(s.cfg.Server), s.logger)
		if err := s.metrics.Start(); err != nil {
			return fmt.Errorf("start metrics listener: %w", err)
		}
	}

	s.logger.Info("consultflow serving",
		zap.String("api_addr", s.api.Addr()),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.String("llm_provider", s.cfg.LLM.Provider),
		zap.String("history_backend", s.cfg.Workflow.HistoryBackend),
	)
	return nil
}

// prepare 构建编排器、存储与 handler；collector 可为 nil
func (s *Server) prepare(collector *metrics.Collector) error {
	st, err := buildStack(s.cfg, s.logger, collector)
	if err != nil {
		return fmt.Errorf("build runtime: %w", err)
	}
	s.collector, s.stack = collector, st

	s.health = handlers.NewHealthHandler(s.logger)
	for _, c := range st.checks {
		s.health.RegisterCheck(c)
	}

	var opts []handlers.WorkflowHandlerOption
	if m, err := orchestrator.ParseMode(s.cfg.Workflow.DefaultMode); err == nil {
		opts = append(opts, handlers.WithDefaultMode(m))
	}
	if origins := websocketOrigins(s.cfg.Server.CORSAllowedOrigins); len(origins) > 0 {
		opts = append(opts, handlers.WithWebSocketOrigins(origins...))
	}
	s.workflow = handlers.NewWorkflowHandler(st.orchestrator, s.logger, opts...)
	return nil
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.health.HandleHealth)
	mux.HandleFunc("GET /healthz", s.health.HandleHealthz)
	mux.HandleFunc("GET /ready", s.health.HandleReady)
	mux.HandleFunc("GET /readyz", s.health.HandleReady)
	mux.HandleFunc("GET /version", s.health.HandleVersion(Version, BuildTime, GitCommit))

	mux.HandleFunc("POST /api/v1/workflow/run", s.workflow.HandleRun)
	mux.HandleFunc("POST /api/v1/workflow/stream", s.workflow.HandleStream)
	mux.HandleFunc("GET /api/v1/workflow/ws", s.workflow.HandleWebSocket)
	mux.HandleFunc("GET /api/v1/workflow/runs", s.workflow.HandleListRuns)
	mux.HandleFunc("GET /api/v1/workflow/runs/{id}", s.workflow.HandleGetRun)
	mux.HandleFunc("GET /api/v1/workflow/modes", s.workflow.HandleModes)
	return mux
}

// apiHandler 路由外套中间件。限流在鉴权之后，已登录用户按用户计数。
func (s *Server) apiHandler(limiterCtx context.Context) http.Handler {
	mws := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		Instrument(s.logger, s.collector),
		CORS(s.cfg.Server.CORSAllowedOrigins),
	}
	if s.cfg.JWT.Enabled {
		mws = append(mws, JWTAuth(s.cfg.JWT, publicPaths, s.logger))
	}
	mws = append(mws, RateLimiter(limiterCtx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger))
	return Chain(s.routes(), mws...)
}

// websocketOrigins 去掉 scheme，得到 websocket.AcceptOptions 的 host 模式
func websocketOrigins(allowed []string) []string {
	out := make([]string, 0, len(allowed))
	for _, o := range allowed {
		o = strings.TrimPrefix(strings.TrimPrefix(o, "https://"), "http://")
		if o != "" {
			out = append(out, o)
		}
	}
	return out
}

// WaitForShutdown 阻塞到收到信号或 API 监听出错，然后关闭
func (s *Server) WaitForShutdown() {
	if s.api != nil {
		s.api.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown 先停监听再释放存储，最后刷新遥测；可在启动失败后调用
func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), server.FromServerConfig(s.cfg.Server).ShutdownTimeout)
	defer cancel()

	if s.stopLimiter != nil {
		s.stopLimiter()
	}

	var errs []error
	for _, m := range []*server.Manager{s.api, s.metrics} {
		if m != nil {
			errs = append(errs, m.Shutdown(ctx))
		}
	}
	if s.stack != nil {
		errs = append(errs, s.stack.close())
	}
	if s.otel != nil {
		errs = append(errs, s.otel.Shutdown(ctx))
	}

	if err := errors.Join(errs...); err != nil {
		s.logger.Error("shutdown finished with errors", zap.Error(err))
		return
	}
	s.logger.Info("shutdown complete")
}
