package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Phase names a lifecycle transition reported to sinks.
type Phase string

const (
	PhaseRunStarted     Phase = "run_started"
	PhaseNodeStarted    Phase = "node_started"
	PhaseNodeCompleted  Phase = "node_completed"
	PhaseNodeErrored    Phase = "node_errored"
	PhaseNodeSkipped    Phase = "node_skipped"
	PhaseBranchesMerged Phase = "branches_merged"
	PhaseLoopIteration  Phase = "loop_iteration"
	PhaseLoopExit       Phase = "loop_exit"
	PhaseRunCompleted   Phase = "run_completed"
	PhaseRunCancelled   Phase = "run_cancelled"
	PhaseRunFailed      Phase = "run_failed"
)

// IsTerminal reports whether the phase ends a run.
func (p Phase) IsTerminal() bool {
	return p == PhaseRunCompleted || p == PhaseRunCancelled || p == PhaseRunFailed
}

// Event describes one executor transition.
type Event struct {
	RunID     string        `json:"run_id"`
	Graph     string        `json:"graph"`
	Phase     Phase         `json:"phase"`
	Node      string        `json:"node,omitempty"`
	Kind      NodeKind      `json:"kind,omitempty"`
	Branch    string        `json:"branch,omitempty"`
	Iteration int           `json:"iteration,omitempty"`
	Status    string        `json:"status,omitempty"`
	Snippet   string        `json:"snippet,omitempty"`
	Error     string        `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Elapsed   time.Duration `json:"elapsed_ns"`
	Snapshot  *Snapshot     `json:"snapshot,omitempty"`
}

// Sink receives transition events. Errors and panics are contained by the
// Observer and never reach the executor.
type Sink interface {
	OnTransition(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev Event) error

// OnTransition implements Sink.
func (f SinkFunc) OnTransition(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Observer fans events out to registered sinks in registration order.
// Delivery to sinks is serialized.
type Observer struct {
	mu     sync.Mutex
	sinks  []Sink
	logger *zap.Logger
}

// NewObserver creates an observer with the given sinks.
func NewObserver(logger *zap.Logger, sinks ...Sink) *Observer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Observer{
		sinks:  append([]Sink(nil), sinks...),
		logger: logger.With(zap.String("component", "execution_observer")),
	}
}

// Register appends a sink.
func (o *Observer) Register(s Sink) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sinks = append(o.sinks, s)
}

// With returns a new observer with extra sinks appended after the existing ones.
func (o *Observer) With(sinks ...Sink) *Observer {
	if o == nil {
		return NewObserver(nil, sinks...)
	}
	o.mu.Lock()
	combined := append(append([]Sink(nil), o.sinks...), sinks...)
	o.mu.Unlock()
	return &Observer{sinks: combined, logger: o.logger}
}

// Emit delivers ev to every sink. A nil observer drops events.
func (o *Observer) Emit(ctx context.Context, ev Event) {
	if o == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, s := range o.sinks {
		if err := o.deliver(ctx, s, ev); err != nil {
			o.logger.Warn("sink failed",
				zap.Int("sink", i),
				zap.String("run_id", ev.RunID),
				zap.String("phase", string(ev.Phase)),
				zap.Error(err))
		}
	}
}

func (o *Observer) deliver(ctx context.Context, s Sink, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panic: %v", r)
		}
	}()
	return s.OnTransition(ctx, ev)
}

// LogSink writes events to a zap logger.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a sink that logs node events at debug and run events at info.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.With(zap.String("component", "workflow_trace"))}
}

// OnTransition implements Sink.
func (l *LogSink) OnTransition(_ context.Context, ev Event) error {
	fields := []zap.Field{
		zap.String("run_id", ev.RunID),
		zap.String("graph", ev.Graph),
		zap.String("phase", string(ev.Phase)),
	}
	if ev.Node != "" {
		fields = append(fields, zap.String("node", ev.Node))
	}
	if ev.Branch != "" {
		fields = append(fields, zap.String("branch", ev.Branch))
	}
	if ev.Iteration > 0 {
		fields = append(fields, zap.Int("iteration", ev.Iteration))
	}
	if ev.Status != "" {
		fields = append(fields, zap.String("status", ev.Status))
	}
	if ev.Elapsed > 0 {
		fields = append(fields, zap.Duration("elapsed", ev.Elapsed))
	}
	if ev.Error != "" {
		fields = append(fields, zap.String("error", ev.Error))
	}
	switch {
	case ev.Phase == PhaseRunFailed:
		l.logger.Error("workflow transition", fields...)
	case ev.Node == "" || ev.Phase.IsTerminal():
		l.logger.Info("workflow transition", fields...)
	default:
		l.logger.Debug("workflow transition", fields...)
	}
	return nil
}

// ChannelSink forwards events to a channel, for streaming runs.
type ChannelSink struct {
	ch chan<- Event
}

// NewChannelSink creates a sink writing to ch.
func NewChannelSink(ch chan<- Event) *ChannelSink {
	return &ChannelSink{ch: ch}
}

// OnTransition implements Sink. It blocks until the event is accepted or
// ctx is done.
func (c *ChannelSink) OnTransition(ctx context.Context, ev Event) error {
	select {
	case c.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder { return &Recorder{} }

// OnTransition implements Sink.
func (r *Recorder) OnTransition(_ context.Context, ev Event) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	return nil
}

// Events returns the recorded events in order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
