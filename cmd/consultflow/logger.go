package main

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/consultflow/config"
)

// newLogger 按配置构建 zap logger。无法识别的级别按 info 处理，
// 构建失败（如输出路径不可写）时退回写 stderr 的生产配置。
func newLogger(cfg config.LogConfig) *zap.Logger {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	console := cfg.Format == "console"
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.Sampling = nil
	zc.EncoderConfig.TimeKey = "timestamp"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if console {
		zc.Encoding = "console"
		zc.Development = true
		zc.EncoderConfig = zap.NewDevelopmentEncoderConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	if len(cfg.OutputPaths) > 0 {
		zc.OutputPaths = cfg.OutputPaths
	}
	zc.DisableCaller = !cfg.EnableCaller
	zc.DisableStacktrace = !cfg.EnableStacktrace

	logger, err := zc.Build()
	if err != nil {
		fallback := zap.NewProductionConfig()
		fallback.OutputPaths = []string{"stderr"}
		logger, _ = fallback.Build()
		logger.Warn("log config rejected, using defaults", zap.Error(err))
	}
	return logger
}
