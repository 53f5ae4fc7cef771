package cache

import (
	"context"
	"testing"
	"time"

	"github.com/BaSui01/consultflow/types"
	"github.com/BaSui01/consultflow/workflow"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupRunStore(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, *RunStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, NewRunStore(rdb, ttl, zap.NewNop())
}

func sampleRun(id string, start time.Time) *workflow.Run {
	return &workflow.Run{
		ID:         id,
		Graph:      "consultation_standard",
		Query:      "What is our remote work policy?",
		State:      workflow.RunTerminated,
		StartTime:  start,
		EndTime:    start.Add(time.Second),
		Duration:   time.Second,
		NodeStates: map[string]workflow.NodeState{"solution_architect": workflow.NodeCompleted, "code_review": workflow.NodeSkipped},
		Outputs: map[string]types.AgentResponse{
			"solution_architect": types.NewAgentResponse("solution_architect", "design", "doc-1"),
		},
		LoopCounters:  map[string]int{"refinement_loop": 2},
		FinalResponse: "design",
		Sources:       []string{"doc-1"},
		Language:      "en",
	}
}

func TestRunStore_SaveAndGet(t *testing.T) {
	_, store := setupRunStore(t, time.Hour)
	ctx := context.Background()

	run := sampleRun("run-1", time.Now())
	require.NoError(t, store.Save(ctx, run))

	got, err := store.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, workflow.RunTerminated, got.State)
	assert.Equal(t, workflow.NodeSkipped, got.NodeState("code_review"))
	assert.Equal(t, "design", got.Outputs["solution_architect"].Content)
	assert.Equal(t, 2, got.LoopCounters["refinement_loop"])
	assert.Equal(t, []string{"doc-1"}, got.Sources)
}

func TestRunStore_GetMissing(t *testing.T) {
	_, store := setupRunStore(t, time.Hour)

	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, workflow.ErrRunNotFound)
}

func TestRunStore_ListNewestFirst(t *testing.T) {
	_, store := setupRunStore(t, time.Hour)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Save(ctx, sampleRun("old", now.Add(-2*time.Minute))))
	require.NoError(t, store.Save(ctx, sampleRun("mid", now.Add(-time.Minute))))
	require.NoError(t, store.Save(ctx, sampleRun("new", now)))

	runs, err := store.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "new", runs[0].ID)
	assert.Equal(t, "mid", runs[1].ID)

	all, err := store.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestRunStore_ExpiredRunsDisappear(t *testing.T) {
	mr, store := setupRunStore(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleRun("short-lived", time.Now())))
	mr.FastForward(2 * time.Minute)

	_, err := store.Get(ctx, "short-lived")
	assert.ErrorIs(t, err, workflow.ErrRunNotFound)

	runs, err := store.List(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestRunStore_SaveFailsWhenRedisDown(t *testing.T) {
	mr, store := setupRunStore(t, time.Hour)
	mr.Close()

	err := store.Save(context.Background(), sampleRun("r", time.Now()))
	assert.Error(t, err)
}

func TestRunStore_ImplementsWorkflowRunStore(t *testing.T) {
	var _ workflow.RunStore = (*RunStore)(nil)
}
