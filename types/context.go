package types

import (
	"context"

	"go.uber.org/zap"
)

// ctxKey identifies a request-scoped value. Each value gets its own
// unexported key so other packages cannot collide with them.
type ctxKey uint8

const (
	traceIDKey ctxKey = iota + 1
	userIDKey
	runIDKey
	nodeKey
)

func withString(ctx context.Context, k ctxKey, v string) context.Context {
	return context.WithValue(ctx, k, v)
}

func stringValue(ctx context.Context, k ctxKey) (string, bool) {
	v, _ := ctx.Value(k).(string)
	return v, v != ""
}

// WithTraceID tags ctx with the HTTP request trace ID.
func WithTraceID(ctx context.Context, id string) context.Context {
	return withString(ctx, traceIDKey, id)
}

// TraceID returns the trace ID; false when absent or empty.
func TraceID(ctx context.Context) (string, bool) { return stringValue(ctx, traceIDKey) }

// WithUserID tags ctx with the authenticated subject.
func WithUserID(ctx context.Context, id string) context.Context {
	return withString(ctx, userIDKey, id)
}

// UserID returns the authenticated subject.
func UserID(ctx context.Context) (string, bool) { return stringValue(ctx, userIDKey) }

// WithRunID tags ctx with the workflow run being executed.
func WithRunID(ctx context.Context, id string) context.Context {
	return withString(ctx, runIDKey, id)
}

// RunID returns the workflow run ID.
func RunID(ctx context.Context) (string, bool) { return stringValue(ctx, runIDKey) }

// WithNode tags ctx with the graph node currently executing.
func WithNode(ctx context.Context, node string) context.Context {
	return withString(ctx, nodeKey, node)
}

// Node returns the executing graph node.
func Node(ctx context.Context) (string, bool) { return stringValue(ctx, nodeKey) }

// LogFields returns zap fields for every identifier present in ctx.
func LogFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 4)
	for _, f := range []struct {
		key  ctxKey
		name string
	}{
		{traceIDKey, "trace_id"},
		{userIDKey, "user_id"},
		{runIDKey, "run_id"},
		{nodeKey, "node"},
	} {
		if v, ok := stringValue(ctx, f.key); ok {
			fields = append(fields, zap.String(f.name, v))
		}
	}
	return fields
}
