package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/BaSui01/consultflow/config"
)

func newTestManager(t *testing.T) (*miniredis.Miniredis, *Manager) {
	t.Helper()
	mr := miniredis.RunT(t)
	cfg := DefaultConfig()
	cfg.Addr = mr.Addr()
	m, err := NewManager(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return mr, m
}

func TestFromConfig(t *testing.T) {
	rc := config.DefaultConfig().Redis
	rc.Addr = "redis.internal:6380"
	rc.DB = 3
	rc.PoolSize = 0
	rc.TLSEnabled = true

	c := FromConfig(rc)
	assert.Equal(t, "redis.internal:6380", c.Addr)
	assert.Equal(t, 3, c.DB)
	assert.Equal(t, DefaultConfig().PoolSize, c.PoolSize)
	assert.True(t, c.TLSEnabled)

	opts := c.options()
	assert.NotNil(t, opts.TLSConfig)
	assert.Equal(t, c.IOTimeout, opts.ReadTimeout)
}

func TestNewManager_Connects(t *testing.T) {
	mr, m := newTestManager(t)

	require.NoError(t, m.Ping(context.Background()))
	require.NoError(t, m.Client().Set(context.Background(), "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestNewManager_Unreachable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:1"
	cfg.DialTimeout = 200 * time.Millisecond

	_, err := NewManager(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "127.0.0.1:1")
}

func TestManager_PingAfterServerStops(t *testing.T) {
	mr, m := newTestManager(t)
	mr.Close()
	assert.Error(t, m.Ping(context.Background()))
}

func TestManager_Stats(t *testing.T) {
	mr, m := newTestManager(t)
	require.NoError(t, mr.Set("a", "1"))
	require.NoError(t, mr.Set("b", "2"))

	st, err := m.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.Keys)
	assert.GreaterOrEqual(t, st.TotalConns, uint32(1))
}

func TestManager_CloseIsFinal(t *testing.T) {
	_, m := newTestManager(t)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	assert.ErrorIs(t, m.Ping(context.Background()), ErrClosed)
	_, err := m.Stats(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSlowLogHook(t *testing.T) {
	mr := miniredis.RunT(t)
	core, logs := observer.New(zapcore.WarnLevel)

	cfg := DefaultConfig()
	cfg.Addr = mr.Addr()
	// 任何命令都超过阈值
	cfg.SlowThreshold = time.Nanosecond
	m, err := NewManager(cfg, zap.New(core))
	require.NoError(t, err)
	defer m.Close()

	ctx := context.Background()
	require.NoError(t, m.Client().Set(ctx, "k", "v", 0).Err())
	_, err = m.Client().Pipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, "n")
		p.Incr(ctx, "n")
		return nil
	})
	require.NoError(t, err)

	assert.NotZero(t, logs.FilterMessage("slow redis command").Len())
	pipes := logs.FilterMessage("slow redis pipeline").All()
	require.NotEmpty(t, pipes)
	assert.Equal(t, int64(2), pipes[len(pipes)-1].ContextMap()["commands"])
}
