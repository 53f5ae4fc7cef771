package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/consultflow/config"
	"github.com/BaSui01/consultflow/internal/tlsutil"
)

// 生命周期状态
const (
	stateIdle int32 = iota
	stateServing
	stateStopped
)

// ErrStopped 对已停止的 Manager 再次启动时返回
var ErrStopped = errors.New("server: manager stopped")

// Config 监听器配置
type Config struct {
	Addr string

	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	// 流式接口会自行清除写超时
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int

	ShutdownTimeout time.Duration

	// 同时设置时以 HTTPS 监听
	CertFile string
	KeyFile  string
}

// DefaultConfig 返回 API 监听器的默认配置
func DefaultConfig() Config {
	return Config{
		Addr:              ":8080",
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      3 * time.Minute,
		IdleTimeout:       2 * time.Minute,
		MaxHeaderBytes:    1 << 20,
		ShutdownTimeout:   15 * time.Second,
	}
}

// FromServerConfig 从应用配置生成 API 监听器配置
func FromServerConfig(sc config.ServerConfig) Config {
	c := DefaultConfig()
	c.Addr = fmt.Sprintf(":%d", sc.HTTPPort)
	if sc.ReadTimeout > 0 {
		c.ReadTimeout = sc.ReadTimeout
		if c.ReadHeaderTimeout > sc.ReadTimeout {
			c.ReadHeaderTimeout = sc.ReadTimeout
		}
	}
	if sc.WriteTimeout > 0 {
		c.WriteTimeout = sc.WriteTimeout
	}
	if sc.ShutdownTimeout > 0 {
		c.ShutdownTimeout = sc.ShutdownTimeout
	}
	return c
}

// MetricsConfig 生成 Prometheus 抓取端口的配置，超时比 API 更短
func MetricsConfig(sc config.ServerConfig) Config {
	c := FromServerConfig(sc)
	c.Addr = fmt.Sprintf(":%d", sc.MetricsPort)
	c.WriteTimeout = 30 * time.Second
	c.IdleTimeout = time.Minute
	return c
}

func (c Config) tlsEnabled() bool {
	return c.CertFile != "" && c.KeyFile != ""
}

// Manager 管理单个 http.Server 的启动、关闭与异步错误
type Manager struct {
	cfg    Config
	srv    *http.Server
	logger *zap.Logger

	state atomic.Int32
	ln    net.Listener
	lnMu  sync.RWMutex

	errs chan error
	done chan struct{}
}

// NewManager 创建 Manager，logger 为 nil 时静默
func NewManager(handler http.Handler, cfg Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "http_server"), zap.String("addr", cfg.Addr))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
		ErrorLog:          zap.NewStdLog(logger.WithOptions(zap.IncreaseLevel(zap.WarnLevel))),
	}
	if cfg.tlsEnabled() {
		srv.TLSConfig = tlsutil.ServerTLSConfig()
	}

	return &Manager{
		cfg:    cfg,
		srv:    srv,
		logger: logger,
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
	}
}

// Start 绑定端口后在后台处理请求，立即返回。
// 端口占用等错误同步返回，运行期错误经 Errors 发出。
func (m *Manager) Start() error {
	if !m.state.CompareAndSwap(stateIdle, stateServing) {
		if m.state.Load() == stateStopped {
			return ErrStopped
		}
		return errors.New("server: already serving")
	}

	ln, err := net.Listen("tcp", m.cfg.Addr)
	if err != nil {
		m.state.Store(stateIdle)
		return fmt.Errorf("listen %s: %w", m.cfg.Addr, err)
	}
	m.lnMu.Lock()
	m.ln = ln
	m.lnMu.Unlock()

	go m.serve(ln)

	m.logger.Info("listening", zap.String("bound", ln.Addr().String()), zap.Bool("tls", m.cfg.tlsEnabled()))
	return nil
}

// StartTLS 以给定证书启动 HTTPS 监听
func (m *Manager) StartTLS(certFile, keyFile string) error {
	if certFile == "" || keyFile == "" {
		return errors.New("server: cert and key files are required")
	}
	m.cfg.CertFile, m.cfg.KeyFile = certFile, keyFile
	if m.srv.TLSConfig == nil {
		m.srv.TLSConfig = tlsutil.ServerTLSConfig()
	}
	return m.Start()
}

func (m *Manager) serve(ln net.Listener) {
	defer close(m.done)

	var err error
	if m.cfg.tlsEnabled() {
		err = m.srv.ServeTLS(ln, m.cfg.CertFile, m.cfg.KeyFile)
	} else {
		err = m.srv.Serve(ln)
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return
	}

	m.logger.Error("serve failed", zap.Error(err))
	select {
	case m.errs <- err:
	default:
	}
}

// Shutdown 停止接收新连接并等待进行中的请求，可重复调用。
// ctx 没有截止时间时使用 Config.ShutdownTimeout。
func (m *Manager) Shutdown(ctx context.Context) error {
	prev := m.state.Swap(stateStopped)
	if prev != stateServing {
		return nil
	}

	if _, ok := ctx.Deadline(); !ok && m.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.ShutdownTimeout)
		defer cancel()
	}

	m.logger.Info("draining connections")
	if err := m.srv.Shutdown(ctx); err != nil {
		// 排空超时，强制断开剩余连接
		m.logger.Warn("drain incomplete, closing", zap.Error(err))
		_ = m.srv.Close()
		return fmt.Errorf("shutdown %s: %w", m.cfg.Addr, err)
	}
	<-m.done
	m.logger.Info("stopped")
	return nil
}

// Run 启动并阻塞到 ctx 结束或服务出错，返回前完成优雅关闭
func (m *Manager) Run(ctx context.Context) error {
	if err := m.Start(); err != nil {
		return err
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-m.errs:
	}

	stopCtx := context.Background()
	if m.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		stopCtx, cancel = context.WithTimeout(stopCtx, m.cfg.ShutdownTimeout)
		defer cancel()
	}
	return errors.Join(serveErr, m.Shutdown(stopCtx))
}

// WaitForShutdown 阻塞到收到 SIGINT/SIGTERM 或服务出错，不执行关闭
func (m *Manager) WaitForShutdown() {
	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-sigCtx.Done():
		m.logger.Info("shutdown signal received")
	case err := <-m.errs:
		m.logger.Error("server error, shutting down", zap.Error(err))
	}
}

// Errors 返回运行期错误通道，最多缓冲一个错误
func (m *Manager) Errors() <-chan error { return m.errs }

// Addr 启动后返回实际绑定地址，否则返回配置地址
func (m *Manager) Addr() string {
	m.lnMu.RLock()
	defer m.lnMu.RUnlock()
	if m.ln != nil {
		return m.ln.Addr().String()
	}
	return m.cfg.Addr
}

// IsRunning 是否正在处理请求
func (m *Manager) IsRunning() bool {
	return m.state.Load() == stateServing
}
