package database

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BaSui01/consultflow/config"
)

// Dialector 按驱动名选择 GORM 方言，sqlite 使用纯 Go 实现
func Dialector(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	dsn := cfg.DSN()
	switch cfg.Driver {
	case "postgres":
		return postgres.New(postgres.Config{DSN: dsn}), nil
	case "mysql":
		return mysql.New(mysql.Config{DSN: dsn, DefaultStringSize: 256}), nil
	case "sqlite":
		if dsn == "" {
			return nil, fmt.Errorf("sqlite requires a database name")
		}
		return sqlite.Open(dsn), nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
}

// poolConfigFor 以驱动默认值为底，叠加配置中的非零项。
// sqlite 只有一个写者，固定为单连接。
func poolConfigFor(cfg config.DatabaseConfig) PoolConfig {
	if cfg.Driver == "sqlite" {
		return PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1}
	}
	pc := DefaultPoolConfig()
	if cfg.MaxOpenConns > 0 {
		pc.MaxOpenConns = cfg.MaxOpenConns
	}
	if cfg.MaxIdleConns > 0 {
		pc.MaxIdleConns = cfg.MaxIdleConns
	}
	if pc.MaxIdleConns > pc.MaxOpenConns {
		pc.MaxIdleConns = pc.MaxOpenConns
	}
	if cfg.ConnMaxLifetime > 0 {
		pc.ConnMaxLifetime = cfg.ConnMaxLifetime
	}
	return pc
}

// Open 建立连接并返回配置好连接池的 PoolManager
func Open(cfg config.DatabaseConfig, log *zap.Logger) (*PoolManager, error) {
	if log == nil {
		log = zap.NewNop()
	}
	dialector, err := Dialector(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 gormlogger.Discard,
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Driver, err)
	}

	pc := poolConfigFor(cfg)
	pm, err := NewPoolManager(db, pc, log)
	if err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
		return nil, err
	}
	log.Info("database opened",
		zap.String("driver", cfg.Driver),
		zap.Int("max_open_conns", pc.MaxOpenConns),
	)
	return pm, nil
}
