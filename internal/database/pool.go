package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrPoolClosed 连接池关闭后的所有操作返回该错误
var ErrPoolClosed = errors.New("database: pool closed")

// PoolConfig database/sql 连接池参数
type PoolConfig struct {
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`
}

// DefaultPoolConfig 网络数据库的默认参数
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}
}

// Validate 校验连接数与时长
func (c PoolConfig) Validate() error {
	switch {
	case c.MaxOpenConns <= 0:
		return errors.New("max_open_conns must be positive")
	case c.MaxIdleConns <= 0:
		return errors.New("max_idle_conns must be positive")
	case c.MaxIdleConns > c.MaxOpenConns:
		return fmt.Errorf("max_idle_conns %d exceeds max_open_conns %d", c.MaxIdleConns, c.MaxOpenConns)
	case c.ConnMaxLifetime < 0, c.ConnMaxIdleTime < 0:
		return errors.New("connection lifetimes must not be negative")
	}
	return nil
}

func (c PoolConfig) apply(db *sql.DB) {
	db.SetMaxOpenConns(c.MaxOpenConns)
	db.SetMaxIdleConns(c.MaxIdleConns)
	db.SetConnMaxLifetime(c.ConnMaxLifetime)
	db.SetConnMaxIdleTime(c.ConnMaxIdleTime)
}

// PoolStats 连接池快照
type PoolStats struct {
	MaxOpenConnections int           `json:"max_open_connections"`
	OpenConnections    int           `json:"open_connections"`
	InUse              int           `json:"in_use"`
	Idle               int           `json:"idle"`
	WaitCount          int64         `json:"wait_count"`
	WaitDuration       time.Duration `json:"wait_duration"`
}

// PoolManager 持有 GORM 实例与底层 sql.DB，负责事务与关闭
type PoolManager struct {
	db     *gorm.DB
	sqlDB  *sql.DB
	config PoolConfig
	logger *zap.Logger

	closed atomic.Bool
	stop   chan struct{}
	wg     sync.WaitGroup
}

// NewPoolManager 把连接池参数应用到 db 上
func NewPoolManager(db *gorm.DB, cfg PoolConfig, logger *zap.Logger) (*PoolManager, error) {
	if db == nil {
		return nil, errors.New("database: nil gorm.DB")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database: underlying sql.DB: %w", err)
	}
	cfg.apply(sqlDB)

	return &PoolManager{
		db:     db,
		sqlDB:  sqlDB,
		config: cfg,
		logger: logger.With(zap.String("component", "db_pool")),
		stop:   make(chan struct{}),
	}, nil
}

// DB 返回 GORM 实例
func (pm *PoolManager) DB() *gorm.DB { return pm.db }

// Ping 探活，关闭后返回 ErrPoolClosed
func (pm *PoolManager) Ping(ctx context.Context) error {
	if pm.closed.Load() {
		return ErrPoolClosed
	}
	return pm.sqlDB.PingContext(ctx)
}

// Stats 返回连接池快照
func (pm *PoolManager) Stats() PoolStats {
	s := pm.sqlDB.Stats()
	return PoolStats{
		MaxOpenConnections: s.MaxOpenConnections,
		OpenConnections:    s.OpenConnections,
		InUse:              s.InUse,
		Idle:               s.Idle,
		WaitCount:          s.WaitCount,
		WaitDuration:       s.WaitDuration,
	}
}

// Monitor 按间隔探活并把快照交给 observe，Close 时退出。
// 探活失败只记录日志，不调用 observe。
func (pm *PoolManager) Monitor(interval time.Duration, observe func(PoolStats)) {
	if interval <= 0 || pm.closed.Load() {
		return
	}
	pm.wg.Add(1)
	go func() {
		defer pm.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-pm.stop:
				return
			case <-ticker.C:
			}
			ctx, cancel := context.WithTimeout(context.Background(), interval/2)
			err := pm.Ping(ctx)
			cancel()
			if err != nil {
				pm.logger.Warn("database ping failed", zap.Error(err))
				continue
			}
			if observe != nil {
				observe(pm.Stats())
			}
		}
	}()
}

// Close 停止监控并关闭连接，可重复调用
func (pm *PoolManager) Close() error {
	if !pm.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(pm.stop)
	pm.wg.Wait()
	pm.logger.Info("database pool closed")
	return pm.sqlDB.Close()
}
