package types

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	_, ok := RunID(ctx)
	assert.False(t, ok)

	ctx = WithTraceID(ctx, "tr-1")
	ctx = WithUserID(ctx, "alice")
	ctx = WithRunID(ctx, "run-9")
	ctx = WithNode(ctx, "technical_research")

	v, ok := TraceID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "tr-1", v)
	v, _ = UserID(ctx)
	assert.Equal(t, "alice", v)
	v, _ = RunID(ctx)
	assert.Equal(t, "run-9", v)
	v, _ = Node(ctx)
	assert.Equal(t, "technical_research", v)
}

func TestContextValues_EmptyIsAbsent(t *testing.T) {
	ctx := WithRunID(context.Background(), "")
	_, ok := RunID(ctx)
	assert.False(t, ok)

	// a plain string key with the same name is a different key
	ctx = context.WithValue(context.Background(), "run_id", "x")
	_, ok = RunID(ctx)
	assert.False(t, ok)
}

func TestLogFields(t *testing.T) {
	assert.Empty(t, LogFields(context.Background()))

	ctx := WithNode(WithRunID(context.Background(), "run-1"), "router")
	fields := LogFields(ctx)
	keys := make([]string, 0, len(fields))
	for _, f := range fields {
		keys = append(keys, f.Key)
	}
	assert.Equal(t, []string{"run_id", "node"}, keys)
}
