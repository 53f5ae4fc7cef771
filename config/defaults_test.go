package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_IsValidAndOffline(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "offline", cfg.LLM.Provider)
	assert.Empty(t, cfg.LLM.APIKey)
	assert.Equal(t, "memory", cfg.Retrieval.Backend)
	assert.Equal(t, "memory", cfg.Workflow.HistoryBackend)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.False(t, cfg.JWT.Enabled)
	assert.False(t, cfg.LLM.CacheEnabled)
}

func TestDefaultConfig_Values(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 9091, cfg.Server.MetricsPort)
	assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 200, cfg.Server.RateLimitBurst)

	assert.Equal(t, "standard", cfg.Workflow.DefaultMode)
	assert.Equal(t, 3, cfg.Workflow.MaxIterations)
	assert.Equal(t, 200, cfg.Workflow.RefinementMinLength)
	require.Len(t, cfg.Workflow.ParallelBranches, 2)
	assert.Equal(t, BranchConfig{Tag: "business", Roles: []string{"market_analysis", "client_communication"}}, cfg.Workflow.ParallelBranches[1])

	assert.Equal(t, time.Minute, cfg.LLM.Timeout)
	assert.Equal(t, "consultflow.db", cfg.Database.DSN())
	assert.Equal(t, []string{"stdout"}, cfg.Log.OutputPaths)
	assert.InDelta(t, 0.1, cfg.Telemetry.SampleRate, 0.001)
}

func TestDefaultConfig_ReturnsFreshCopies(t *testing.T) {
	a, b := DefaultConfig(), DefaultConfig()
	a.Workflow.ParallelBranches[0].Roles[0] = "changed"
	a.Log.OutputPaths[0] = "stderr"

	assert.Equal(t, "solution_architect", b.Workflow.ParallelBranches[0].Roles[0])
	assert.Equal(t, "stdout", b.Log.OutputPaths[0])
}
