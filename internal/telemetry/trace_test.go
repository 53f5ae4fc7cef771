package telemetry

import (
	"context"
	"testing"

	"github.com/BaSui01/consultflow/types"
	"github.com/BaSui01/consultflow/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric/noop"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
)

func newRecordingSink(t *testing.T) (*TraceSink, *tracetest.SpanRecorder) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return NewTraceSinkWith(tp, noop.NewMeterProvider()), sr
}

func TestTraceSink_RunAndNodeSpans(t *testing.T) {
	sink, sr := newRecordingSink(t)

	g, err := workflow.NewBuilder("traced").
		AddAgent("solution_architect", workflow.NewUnit("solution_architect",
			func(context.Context, *workflow.State) (types.AgentResponse, error) {
				return types.NewAgentResponse("solution_architect", "design"), nil
			})).Fixed().Done().
		AddTerminal("end").Done().
		AddEdge("solution_architect", "end").
		SetEntry("solution_architect").
		Build()
	require.NoError(t, err)

	exec := workflow.NewExecutor(zap.NewNop(), workflow.WithObserver(workflow.NewObserver(zap.NewNop(), sink)))
	run, err := exec.Execute(context.Background(), g, workflow.NewState("q", nil))
	require.NoError(t, err)

	spans := sr.Ended()
	byName := map[string]sdktrace.ReadOnlySpan{}
	for _, s := range spans {
		byName[s.Name()] = s
	}
	require.Contains(t, byName, "workflow.run")
	require.Contains(t, byName, "workflow.node solution_architect")
	require.Contains(t, byName, "workflow.node end")

	root := byName["workflow.run"]
	node := byName["workflow.node solution_architect"]
	assert.Equal(t, root.SpanContext().SpanID(), node.Parent().SpanID())
	assert.Equal(t, root.SpanContext().TraceID(), node.SpanContext().TraceID())

	var runID string
	for _, kv := range root.Attributes() {
		if kv.Key == "workflow.run_id" {
			runID = kv.Value.AsString()
		}
	}
	assert.Equal(t, run.ID, runID)
	assert.Empty(t, sink.spans, "all spans are closed after the run")
}

func TestTraceSink_FailedRunMarksError(t *testing.T) {
	sink, sr := newRecordingSink(t)
	ctx := context.Background()

	require.NoError(t, sink.OnTransition(ctx, workflow.Event{RunID: "r1", Graph: "g", Phase: workflow.PhaseRunStarted}))
	require.NoError(t, sink.OnTransition(ctx, workflow.Event{RunID: "r1", Graph: "g", Phase: workflow.PhaseNodeStarted, Node: "classify_query"}))
	require.NoError(t, sink.OnTransition(ctx, workflow.Event{RunID: "r1", Graph: "g", Phase: workflow.PhaseRunFailed, Error: "boom"}))

	spans := sr.Ended()
	require.Len(t, spans, 2)
	for _, s := range spans {
		assert.Equal(t, codes.Error, s.Status().Code, s.Name())
	}
	assert.Empty(t, sink.spans)
}

func TestTraceSink_UnknownSpansIgnored(t *testing.T) {
	sink, sr := newRecordingSink(t)
	ctx := context.Background()

	assert.NoError(t, sink.OnTransition(ctx, workflow.Event{RunID: "nope", Phase: workflow.PhaseNodeCompleted, Node: "x"}))
	assert.NoError(t, sink.OnTransition(ctx, workflow.Event{RunID: "nope", Phase: workflow.PhaseRunCompleted}))
	assert.NoError(t, sink.OnTransition(ctx, workflow.Event{RunID: "nope", Phase: workflow.PhaseLoopIteration}))
	assert.Empty(t, sr.Ended())
}
