package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/consultflow/config"
	"github.com/BaSui01/consultflow/internal/metrics"
	"github.com/BaSui01/consultflow/orchestrator"
	"github.com/BaSui01/consultflow/testutil/fixtures"
	"github.com/BaSui01/consultflow/workflow"
)

const seedYAML = `documents:
  - id: doc-erp
    title: ERP cloud migration playbook
    content: Migrating an on-premise ERP to the cloud starts with a security risk assessment.
    source: playbooks/erp.md
  - id: doc-remote
    title: Remote work policy
    content: Employees may work remotely up to three days per week.
`

func writeSeed(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0o600))
	return path
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Retrieval.SeedPath = writeSeed(t)
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestBuildStack_OfflineMemory(t *testing.T) {
	cfg := testConfig(t)

	st, err := buildStack(cfg, zap.NewNop(), nil)
	require.NoError(t, err)
	defer st.close()

	assert.Nil(t, st.db)
	assert.Nil(t, st.redis)
	require.Len(t, st.checks, 1)
	assert.Equal(t, "llm:offline", st.checks[0].Name())
	assert.NoError(t, st.checks[0].Check(context.Background()))

	res, err := st.orchestrator.RunWorkflow(context.Background(), fixtures.QueryCloudMigration, nil, orchestrator.ModeStandard)
	require.NoError(t, err)
	assert.Equal(t, workflow.RunTerminated, res.Status)
	assert.NotEmpty(t, res.FinalResponse)
	assert.Equal(t, "en", res.Language)
	require.NotEmpty(t, res.ContextDocuments)
	assert.Equal(t, "doc-erp", res.ContextDocuments[0].ID)

	runs, err := st.orchestrator.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, res.RunID, runs[0].ID)
}

func TestBuildStack_RetrievalDisabled(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Retrieval.Backend = "none"

	st, err := buildStack(cfg, zap.NewNop(), nil)
	require.NoError(t, err)
	defer st.close()

	res, err := st.orchestrator.RunWorkflow(context.Background(), fixtures.QueryCloudMigration, nil, orchestrator.ModeParallel)
	require.NoError(t, err)
	assert.Equal(t, workflow.RunTerminated, res.Status)
	assert.Empty(t, res.ContextDocuments)
}

func TestBuildStack_Database(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Driver = "sqlite"
	cfg.Database.Name = filepath.Join(t.TempDir(), "consultflow.db")
	cfg.Retrieval.Backend = "database"
	cfg.Workflow.HistoryBackend = "database"

	collector := metrics.NewCollector("bootstrap_test_database", zap.NewNop())
	st, err := buildStack(cfg, zap.NewNop(), collector)
	require.NoError(t, err)
	defer st.close()

	require.NotNil(t, st.db)
	names := make([]string, 0, len(st.checks))
	for _, c := range st.checks {
		names = append(names, c.Name())
		assert.NoError(t, c.Check(context.Background()), c.Name())
	}
	assert.ElementsMatch(t, []string{"sqlite", "llm:offline"}, names)

	res, err := st.orchestrator.RunWorkflow(context.Background(), fixtures.QueryCloudMigration, nil, orchestrator.ModeObservable)
	require.NoError(t, err)
	require.NotEmpty(t, res.ContextDocuments)
	assert.Equal(t, "doc-erp", res.ContextDocuments[0].ID)
	assert.NotEmpty(t, res.Events)

	run, err := st.orchestrator.GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, workflow.RunTerminated, run.State)

	_, err = st.orchestrator.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, workflow.ErrRunNotFound)
}

func TestBuildStack_RedisHistoryAndCache(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := testConfig(t)
	cfg.Redis.Addr = mr.Addr()
	cfg.Workflow.HistoryBackend = "redis"
	cfg.Workflow.HistoryTTL = time.Hour
	cfg.LLM.CacheEnabled = true

	st, err := buildStack(cfg, zap.NewNop(), nil)
	require.NoError(t, err)
	defer st.close()

	require.NotNil(t, st.redis)

	first, err := st.orchestrator.RunWorkflow(context.Background(), fixtures.QueryRemoteWork, nil, orchestrator.ModeStandard)
	require.NoError(t, err)
	second, err := st.orchestrator.RunWorkflow(context.Background(), fixtures.QueryRemoteWork, nil, orchestrator.ModeStandard)
	require.NoError(t, err)
	assert.Equal(t, first.FinalResponse, second.FinalResponse)

	runs, err := st.orchestrator.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	got, err := st.orchestrator.GetRun(context.Background(), first.RunID)
	require.NoError(t, err)
	assert.Equal(t, first.RunID, got.ID)
}

func TestBuildStack_RedisRequiredForHistory(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Redis.Addr = "127.0.0.1:1"
	cfg.Workflow.HistoryBackend = "redis"

	_, err := buildStack(cfg, zap.NewNop(), nil)
	assert.Error(t, err)
}

func TestBuildStack_MissingSeedFile(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Retrieval.SeedPath = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := buildStack(cfg, zap.NewNop(), nil)
	assert.Error(t, err)
}

func TestOrchestratorConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Retrieval.TopK = 3
	cfg.Workflow.MaxIterations = 5
	cfg.Workflow.RefinementMinLength = 50
	cfg.Workflow.ParallelBranches = []config.BranchConfig{
		{Tag: "only", Roles: []string{"solution_architect"}},
	}

	oc := orchestratorConfig(cfg)
	assert.Equal(t, 3, oc.RetrievalTopK)
	assert.Equal(t, 5, oc.RefinementMaxIterations)
	assert.Equal(t, 50, oc.RefinementMinLength)
	assert.Equal(t, cfg.Workflow.RunTimeout, oc.RunTimeout)
	assert.Equal(t, []orchestrator.BranchConfig{{Tag: "only", Roles: []string{"solution_architect"}}}, oc.ParallelBranches)
	assert.NoError(t, oc.Validate())
}

func TestRunOnce(t *testing.T) {
	var out bytes.Buffer
	err := runOnce(context.Background(), []string{"--query", fixtures.QueryProjectPlan, "--mode", "parallel"}, &out)
	require.NoError(t, err)

	var res struct {
		RunID         string `json:"run_id"`
		Mode          string `json:"mode"`
		Status        string `json:"status"`
		FinalResponse string `json:"final_response"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, "parallel", res.Mode)
	assert.Equal(t, "terminated", res.Status)
	assert.NotEmpty(t, res.FinalResponse)
}

func TestRunOnce_Errors(t *testing.T) {
	var out bytes.Buffer
	assert.Error(t, runOnce(context.Background(), nil, &out))
	assert.Error(t, runOnce(context.Background(), []string{"--query", "hi", "--mode", "sideways"}, &out))
}

func TestRunMigrate(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "migrate.db")
	dbFlags := []string{"--db-type", "sqlite", "--db-url", "file:" + dbPath + "?_pragma=foreign_keys(1)"}
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, runMigrate(ctx, append([]string{"up"}, dbFlags...), &out))
	require.NoError(t, runMigrate(ctx, append([]string{"status"}, dbFlags...), &out))
	require.NoError(t, runMigrate(ctx, append([]string{"steps", "-1"}, dbFlags...), &out))
	require.NoError(t, runMigrate(ctx, append([]string{"down", "--all"}, dbFlags...), &out))
	assert.NotEmpty(t, out.String())
}

func TestRunMigrate_Usage(t *testing.T) {
	var out bytes.Buffer
	ctx := context.Background()

	assert.NoError(t, runMigrate(ctx, []string{"help"}, &out))
	assert.Contains(t, out.String(), "consultflow migrate")

	assert.Error(t, runMigrate(ctx, nil, &out))
	assert.Error(t, runMigrate(ctx, []string{"sideways"}, &out))
	assert.Error(t, runMigrate(ctx, []string{"goto"}, &out))
	assert.Error(t, runMigrate(ctx, []string{"goto", "x", "--db-type", "sqlite", "--db-url", "file:" + filepath.Join(t.TempDir(), "x.db")}, &out))
}

func TestWebsocketOrigins(t *testing.T) {
	got := websocketOrigins([]string{"https://app.example.com", "http://localhost:3000", ""})
	assert.Equal(t, []string{"app.example.com", "localhost:3000"}, got)
}
