package telemetry

import (
	"context"
	"fmt"
	"sync"

	"github.com/BaSui01/consultflow/workflow"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/BaSui01/consultflow/workflow"

// TraceSink turns executor events into spans: one span per run with a
// child span per node execution. Loop re-entries and branch merges are
// recorded as span events on the run span.
type TraceSink struct {
	tracer trace.Tracer
	runs   metric.Int64Counter
	nodes  metric.Int64Counter

	mu    sync.Mutex
	spans map[string]trace.Span
}

// NewTraceSink creates a sink from the global providers, which are noop
// until Init enables telemetry.
func NewTraceSink() *TraceSink {
	return NewTraceSinkWith(otel.GetTracerProvider(), otel.GetMeterProvider())
}

// NewTraceSinkWith creates a sink from explicit providers.
func NewTraceSinkWith(tp trace.TracerProvider, mp metric.MeterProvider) *TraceSink {
	meter := mp.Meter(instrumentationName)
	runs, _ := meter.Int64Counter("consultflow.workflow.runs",
		metric.WithDescription("Finished workflow runs"))
	nodes, _ := meter.Int64Counter("consultflow.workflow.node_executions",
		metric.WithDescription("Finished node executions"))
	return &TraceSink{
		tracer: tp.Tracer(instrumentationName),
		runs:   runs,
		nodes:  nodes,
		spans:  make(map[string]trace.Span),
	}
}

// OnTransition implements workflow.Sink.
func (s *TraceSink) OnTransition(ctx context.Context, ev workflow.Event) error {
	switch ev.Phase {
	case workflow.PhaseRunStarted:
		_, span := s.tracer.Start(ctx, "workflow.run",
			trace.WithAttributes(
				attribute.String("workflow.run_id", ev.RunID),
				attribute.String("workflow.graph", ev.Graph),
			))
		s.put(ev.RunID, span)

	case workflow.PhaseNodeStarted:
		parent := ctx
		if run, ok := s.get(ev.RunID); ok {
			parent = trace.ContextWithSpan(ctx, run)
		}
		_, span := s.tracer.Start(parent, "workflow.node "+ev.Node,
			trace.WithAttributes(
				attribute.String("workflow.node", ev.Node),
				attribute.String("workflow.node_kind", string(ev.Kind)),
				attribute.String("workflow.branch", ev.Branch),
				attribute.Int("workflow.iteration", ev.Iteration),
			))
		s.put(nodeKey(ev), span)

	case workflow.PhaseNodeCompleted, workflow.PhaseNodeErrored:
		span, ok := s.take(nodeKey(ev))
		if !ok {
			return nil
		}
		if ev.Status != "" {
			span.SetAttributes(attribute.String("agent.status", ev.Status))
		}
		if ev.Phase == workflow.PhaseNodeErrored {
			span.SetStatus(codes.Error, ev.Error)
		}
		span.End()
		s.nodes.Add(ctx, 1, metric.WithAttributes(
			attribute.String("workflow.graph", ev.Graph),
			attribute.String("workflow.node", ev.Node),
			attribute.String("workflow.phase", string(ev.Phase)),
		))

	case workflow.PhaseLoopIteration, workflow.PhaseLoopExit, workflow.PhaseBranchesMerged:
		if run, ok := s.get(ev.RunID); ok {
			run.AddEvent(string(ev.Phase), trace.WithAttributes(
				attribute.String("workflow.node", ev.Node),
				attribute.Int("workflow.iteration", ev.Iteration),
			))
		}

	case workflow.PhaseRunCompleted, workflow.PhaseRunCancelled, workflow.PhaseRunFailed:
		s.closeNodes(ev.RunID)
		span, ok := s.take(ev.RunID)
		if !ok {
			return nil
		}
		span.SetAttributes(attribute.String("workflow.outcome", string(ev.Phase)))
		if ev.Phase != workflow.PhaseRunCompleted {
			span.SetStatus(codes.Error, ev.Error)
		}
		span.End()
		s.runs.Add(ctx, 1, metric.WithAttributes(
			attribute.String("workflow.graph", ev.Graph),
			attribute.String("workflow.outcome", string(ev.Phase)),
		))
	}
	return nil
}

// closeNodes ends node spans left open by an aborted run.
func (s *TraceSink) closeNodes(runID string) {
	prefix := runID + "/"
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, span := range s.spans {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			span.SetStatus(codes.Error, "run ended before node finished")
			span.End()
			delete(s.spans, k)
		}
	}
}

func (s *TraceSink) put(key string, span trace.Span) {
	s.mu.Lock()
	s.spans[key] = span
	s.mu.Unlock()
}

func (s *TraceSink) get(key string) (trace.Span, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	span, ok := s.spans[key]
	return span, ok
}

func (s *TraceSink) take(key string) (trace.Span, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	span, ok := s.spans[key]
	delete(s.spans, key)
	return span, ok
}

func nodeKey(ev workflow.Event) string {
	return fmt.Sprintf("%s/%s/%s/%d", ev.RunID, ev.Node, ev.Branch, ev.Iteration)
}
