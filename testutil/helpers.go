package testutil

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// DefaultTimeout 单个测试的默认上下文超时
const DefaultTimeout = 30 * time.Second

// TestContext 返回随测试结束取消的上下文，可选覆盖超时
func TestContext(t testing.TB, timeout ...time.Duration) context.Context {
	t.Helper()
	d := DefaultTimeout
	if len(timeout) > 0 && timeout[0] > 0 {
		d = timeout[0]
	}
	ctx, cancel := context.WithTimeout(context.Background(), d)
	t.Cleanup(cancel)
	return ctx
}

// Logger 输出到 t.Log 的 logger，只在失败或 -v 时可见
func Logger(t testing.TB) *zap.Logger {
	return zaptest.NewLogger(t, zaptest.Level(zap.WarnLevel))
}

// Drain 读到通道关闭为止；超时返回已读部分
func Drain[T any](ch <-chan T, timeout time.Duration) []T {
	deadline := time.After(timeout)
	var got []T
	for {
		select {
		case v, ok := <-ch:
			if !ok {
				return got
			}
			got = append(got, v)
		case <-deadline:
			return got
		}
	}
}
