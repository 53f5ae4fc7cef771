package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/consultflow/agent"
	"github.com/BaSui01/consultflow/retrieval"
	"github.com/BaSui01/consultflow/types"
	"github.com/BaSui01/consultflow/workflow"
	"go.uber.org/zap"
)

// Orchestrator selects a graph per run, executes it and records the run.
// It is safe for concurrent use.
type Orchestrator struct {
	registry  *agent.Registry
	retriever retrieval.Retriever
	detector  agent.LanguageDetector
	store     workflow.RunStore
	sinks     []workflow.Sink
	execOpts  []workflow.ExecutorOption
	executor  *workflow.Executor
	graphs    map[Mode]*workflow.Graph
	cfg       Config
	logger    *zap.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithConfig replaces the default configuration.
func WithConfig(cfg Config) Option {
	return func(o *Orchestrator) { o.cfg = cfg }
}

// WithRetriever sets the context document source. Without one, retrieval
// is skipped.
func WithRetriever(r retrieval.Retriever) Option {
	return func(o *Orchestrator) { o.retriever = r }
}

// WithLanguageDetector sets the detector used at graph entry.
func WithLanguageDetector(d agent.LanguageDetector) Option {
	return func(o *Orchestrator) { o.detector = d }
}

// WithRunStore sets where finished runs are recorded.
func WithRunStore(s workflow.RunStore) Option {
	return func(o *Orchestrator) { o.store = s }
}

// WithSinks adds sinks that observe every run, such as metrics and tracing.
func WithSinks(sinks ...workflow.Sink) Option {
	return func(o *Orchestrator) { o.sinks = append(o.sinks, sinks...) }
}

// WithExecutorOptions passes options to the graph executor.
func WithExecutorOptions(opts ...workflow.ExecutorOption) Option {
	return func(o *Orchestrator) { o.execOpts = append(o.execOpts, opts...) }
}

// New builds every graph variant up front; configuration errors surface
// here, before any run.
func New(registry *agent.Registry, logger *zap.Logger, opts ...Option) (*Orchestrator, error) {
	if registry == nil {
		return nil, types.NewError(types.ErrWorkflowConfig, "agent registry is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{
		registry: registry,
		cfg:      DefaultConfig(),
		graphs:   make(map[Mode]*workflow.Graph),
		logger:   logger.With(zap.String("component", "orchestrator")),
	}
	for _, opt := range opts {
		opt(o)
	}
	if err := o.cfg.Validate(); err != nil {
		return nil, types.NewError(types.ErrWorkflowConfig, "invalid orchestrator config").WithCause(err)
	}
	if o.store == nil {
		o.store = workflow.NewMemoryRunStore(0)
	}

	execOpts := append([]workflow.ExecutorOption{
		workflow.WithObserver(workflow.NewObserver(logger, o.sinks...)),
	}, o.execOpts...)
	o.executor = workflow.NewExecutor(logger, execOpts...)

	if err := o.buildGraphs(); err != nil {
		return nil, err
	}
	return o, nil
}

// Graph returns the graph a mode runs.
func (o *Orchestrator) Graph(mode Mode) (*workflow.Graph, error) {
	g, ok := o.graphs[mode]
	if !ok {
		return nil, types.NewError(types.ErrInvalidRequest, fmt.Sprintf("unknown workflow mode %q", mode))
	}
	return g, nil
}

// Result is the caller-visible outcome of a run.
type Result struct {
	RunID            string                         `json:"run_id"`
	Mode             Mode                           `json:"mode"`
	Status           workflow.RunState              `json:"status"`
	FinalResponse    string                         `json:"final_response,omitempty"`
	Language         string                         `json:"language,omitempty"`
	Agents           map[string]types.AgentResponse `json:"agents,omitempty"`
	AgentStatus      map[string]types.AgentStatus   `json:"agent_status,omitempty"`
	ContextDocuments []types.ContextDocument        `json:"context_documents,omitempty"`
	Sources          []string                       `json:"sources,omitempty"`
	Iterations       []workflow.IterationRecord     `json:"iterations,omitempty"`
	LoopCounters     map[string]int                 `json:"loop_counters,omitempty"`
	Events           []workflow.Event               `json:"events,omitempty"`
	Duration         time.Duration                  `json:"duration_ns"`
	Error            string                         `json:"error,omitempty"`
}

// RunWorkflow answers one user turn. A cancelled run returns a Result with
// status cancelled and no agent responses, together with a
// WORKFLOW_CANCELLED error.
func (o *Orchestrator) RunWorkflow(ctx context.Context, query string, history []types.Turn, mode Mode) (*Result, error) {
	return o.run(ctx, query, history, mode)
}

func (o *Orchestrator) run(ctx context.Context, query string, history []types.Turn, mode Mode, sinks ...workflow.Sink) (*Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "query is required")
	}
	if mode == "" {
		mode = ModeStandard
	}
	g, err := o.Graph(mode)
	if err != nil {
		return nil, err
	}
	if o.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.RunTimeout)
		defer cancel()
	}

	var recorder *workflow.Recorder
	if mode == ModeObservable {
		recorder = workflow.NewRecorder()
		sinks = append(sinks, recorder, workflow.NewLogSink(o.logger))
	}

	st := workflow.NewState(query, history)
	run, execErr := o.executor.Execute(ctx, g, st, workflow.WithSinks(sinks...))
	if run == nil {
		return nil, execErr
	}

	if err := o.store.Save(context.WithoutCancel(ctx), run); err != nil {
		o.logger.Warn("failed to record run", zap.String("run_id", run.ID), zap.Error(err))
	}

	res := buildResult(run, g, mode)
	if recorder != nil {
		res.Events = recorder.Events()
	}
	o.logger.Info("consultation finished",
		zap.String("run_id", run.ID),
		zap.String("mode", string(mode)),
		zap.String("status", string(run.State)),
		zap.Duration("duration", run.Duration))
	return res, execErr
}

// GetRun returns a recorded run.
func (o *Orchestrator) GetRun(ctx context.Context, id string) (*workflow.Run, error) {
	return o.store.Get(ctx, id)
}

// ListRuns returns recent runs, newest first.
func (o *Orchestrator) ListRuns(ctx context.Context, limit int) ([]*workflow.Run, error) {
	return o.store.List(ctx, limit)
}

func buildResult(run *workflow.Run, g *workflow.Graph, mode Mode) *Result {
	res := &Result{
		RunID:    run.ID,
		Mode:     mode,
		Status:   run.State,
		Duration: run.Duration,
		Error:    run.Error,
	}
	if run.State != workflow.RunTerminated {
		return res
	}

	res.FinalResponse = run.FinalResponse
	res.Language = run.Language
	res.ContextDocuments = run.ContextDocuments
	res.Sources = run.Sources
	res.Iterations = run.Iterations
	res.LoopCounters = run.LoopCounters
	// Every agent in the graph is reported; agents that never ran appear
	// with a pending placeholder.
	res.Agents = make(map[string]types.AgentResponse, len(run.Outputs))
	for k, v := range run.Outputs {
		res.Agents[k] = v
	}
	res.AgentStatus = make(map[string]types.AgentStatus)
	for _, n := range g.Nodes() {
		if n.Kind != workflow.NodeAgent {
			continue
		}
		key := n.OutputKey
		if key == "" {
			key = n.Name
		}
		resp, ok := res.Agents[key]
		if !ok {
			resp = types.AgentResponse{AgentName: key, Status: types.AgentStatusPending}
			res.Agents[key] = resp
		}
		res.AgentStatus[key] = resp.Status
	}
	return res
}
