package cache

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/consultflow/config"
	"github.com/BaSui01/consultflow/internal/tlsutil"
)

// ErrClosed Close 之后的调用返回该错误
var ErrClosed = errors.New("cache: manager closed")

// Config Redis 连接参数
type Config struct {
	Addr         string        `yaml:"addr" json:"addr"`
	Password     string        `yaml:"password" json:"-"`
	DB           int           `yaml:"db" json:"db"`
	PoolSize     int           `yaml:"pool_size" json:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns" json:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout" json:"dial_timeout"`
	// 读写超时同时作用于单条命令
	IOTimeout time.Duration `yaml:"io_timeout" json:"io_timeout"`
	// 超过该耗时的命令记 Warn 日志，0 表示不记录
	SlowThreshold time.Duration `yaml:"slow_threshold" json:"slow_threshold"`
	TLSEnabled    bool          `yaml:"tls_enabled" json:"tls_enabled"`
}

// DefaultConfig 本地单机 Redis
func DefaultConfig() Config {
	return Config{
		Addr:          "localhost:6379",
		PoolSize:      10,
		MinIdleConns:  2,
		DialTimeout:   5 * time.Second,
		IOTimeout:     3 * time.Second,
		SlowThreshold: 100 * time.Millisecond,
	}
}

// FromConfig 把应用配置转换为连接参数，零值沿用默认
func FromConfig(rc config.RedisConfig) Config {
	c := DefaultConfig()
	if rc.Addr != "" {
		c.Addr = rc.Addr
	}
	c.Password = rc.Password
	c.DB = rc.DB
	if rc.PoolSize > 0 {
		c.PoolSize = rc.PoolSize
	}
	if rc.MinIdleConns > 0 {
		c.MinIdleConns = rc.MinIdleConns
	}
	c.TLSEnabled = rc.TLSEnabled
	return c
}

func (c Config) options() *redis.Options {
	opts := &redis.Options{
		Addr:         c.Addr,
		Password:     c.Password,
		DB:           c.DB,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.IOTimeout,
		WriteTimeout: c.IOTimeout,
	}
	if c.TLSEnabled {
		opts.TLSConfig = tlsutil.DefaultTLSConfig()
	}
	return opts
}

// Manager 持有共享的 Redis 客户端。LLM 响应缓存与运行历史复用同一连接池。
type Manager struct {
	client *redis.Client
	addr   string
	logger *zap.Logger
	closed atomic.Bool
}

// NewManager 建立连接并立即 Ping，失败时释放客户端
func NewManager(cfg Config, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "redis"), zap.String("addr", cfg.Addr))

	client := redis.NewClient(cfg.options())
	if cfg.SlowThreshold > 0 {
		client.AddHook(slowLogHook{threshold: cfg.SlowThreshold, logger: logger})
	}

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.Addr, err)
	}

	logger.Info("redis connected", zap.Int("db", cfg.DB), zap.Int("pool_size", cfg.PoolSize))
	return &Manager{client: client, addr: cfg.Addr, logger: logger}, nil
}

// Client 返回底层客户端
func (m *Manager) Client() *redis.Client { return m.client }

// Ping 探活，供就绪检查使用
func (m *Manager) Ping(ctx context.Context) error {
	if m.closed.Load() {
		return ErrClosed
	}
	return m.client.Ping(ctx).Err()
}

// Stats 键数量与连接池快照
type Stats struct {
	Keys       int64  `json:"keys"`
	TotalConns uint32 `json:"total_conns"`
	IdleConns  uint32 `json:"idle_conns"`
	Timeouts   uint32 `json:"timeouts"`
}

// Stats 返回当前库的键数量与连接池统计
func (m *Manager) Stats(ctx context.Context) (Stats, error) {
	if m.closed.Load() {
		return Stats{}, ErrClosed
	}
	n, err := m.client.DBSize(ctx).Result()
	if err != nil {
		return Stats{}, fmt.Errorf("redis dbsize: %w", err)
	}
	ps := m.client.PoolStats()
	return Stats{Keys: n, TotalConns: ps.TotalConns, IdleConns: ps.IdleConns, Timeouts: ps.Timeouts}, nil
}

// Close 释放连接池，可重复调用
func (m *Manager) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	m.logger.Info("redis connection closed")
	return m.client.Close()
}

// slowLogHook 记录超过阈值的命令与流水线
type slowLogHook struct {
	threshold time.Duration
	logger    *zap.Logger
}

func (h slowLogHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := next(ctx, network, addr)
		if err != nil {
			h.logger.Warn("redis dial failed", zap.Error(err))
		}
		return conn, err
	}
}

func (h slowLogHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)
		if d := time.Since(start); d >= h.threshold {
			h.logger.Warn("slow redis command", zap.String("cmd", cmd.Name()), zap.Duration("elapsed", d))
		}
		return err
	}
}

func (h slowLogHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmds)
		if d := time.Since(start); d >= h.threshold {
			h.logger.Warn("slow redis pipeline", zap.Int("commands", len(cmds)), zap.Duration("elapsed", d))
		}
		return err
	}
}
