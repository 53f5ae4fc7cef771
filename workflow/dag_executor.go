package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/BaSui01/consultflow/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Executor runs validated graphs. One Executor can serve concurrent runs;
// per-run bookkeeping lives in an execution value.
type Executor struct {
	compiler *Compiler
	observer *Observer
	logger   *zap.Logger
	newID    func() string
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithCompiler sets the response compiler used by terminal nodes.
func WithCompiler(c *Compiler) ExecutorOption {
	return func(e *Executor) { e.compiler = c }
}

// WithObserver sets the observer that receives every transition.
func WithObserver(o *Observer) ExecutorOption {
	return func(e *Executor) { e.observer = o }
}

// WithIDGenerator overrides run id generation.
func WithIDGenerator(fn func() string) ExecutorOption {
	return func(e *Executor) { e.newID = fn }
}

// NewExecutor creates a graph executor.
func NewExecutor(logger *zap.Logger, opts ...ExecutorOption) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Executor{
		logger: logger.With(zap.String("component", "graph_executor")),
		newID:  func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.compiler == nil {
		e.compiler = NewCompiler()
	}
	if e.observer == nil {
		e.observer = NewObserver(logger)
	}
	return e
}

// Compiler returns the executor's response compiler.
func (e *Executor) Compiler() *Compiler { return e.compiler }

// RunOption configures a single run.
type RunOption func(*runConfig)

type runConfig struct {
	runID string
	sinks []Sink
}

// WithRunID fixes the id of the run.
func WithRunID(id string) RunOption {
	return func(c *runConfig) { c.runID = id }
}

// WithSinks adds sinks for this run only, after the executor's sinks.
func WithSinks(sinks ...Sink) RunOption {
	return func(c *runConfig) { c.sinks = append(c.sinks, sinks...) }
}

// Execute runs g over st until a terminal node, cancellation, or a fatal
// error. The returned Run is non-nil whenever g is non-nil, so callers can
// persist failed and cancelled runs too. Agent failures never fail the run
// unless the node is critical.
func (e *Executor) Execute(ctx context.Context, g *Graph, st *State, opts ...RunOption) (*Run, error) {
	if g == nil {
		return nil, types.NewError(types.ErrWorkflowConfig, "graph cannot be nil")
	}
	if st == nil {
		return nil, types.NewError(types.ErrWorkflowConfig, "state cannot be nil")
	}
	cfg := runConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.runID == "" {
		cfg.runID = e.newID()
	}

	x := &execution{
		exec:   e,
		graph:  g,
		run:    newRun(cfg.runID, g, st.Query()),
		obs:    e.observer.With(cfg.sinks...),
		logger: e.logger.With(zap.String("run_id", cfg.runID), zap.String("graph", g.Name())),
		active: make(map[string]bool),
	}
	ctx = types.WithRunID(ctx, cfg.runID)

	x.logger.Info("starting workflow run", zap.String("entry_node", g.Entry()))
	x.emit(ctx, Event{Phase: PhaseRunStarted}, st)
	x.run.setState(RunExecuting)

	if err := x.guard(func() error { return x.walk(ctx, st, g.Entry(), "", "") }); err != nil {
		return x.abort(ctx, err)
	}
	x.finish(ctx, st)
	return x.run, nil
}

type execution struct {
	exec   *Executor
	graph  *Graph
	run    *Run
	obs    *Observer
	logger *zap.Logger

	// Loop bookkeeping belongs to the main lineage; branches only read it.
	active    map[string]bool
	loopStack []string
}

func (x *execution) guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = types.NewError(types.ErrOrchestrationFatal, fmt.Sprintf("executor panic: %v", r))
		}
	}()
	return fn()
}

// walk follows one lineage from node from until a terminal node or stopAt.
func (x *execution) walk(ctx context.Context, st *State, from, stopAt, branch string) error {
	current := from
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if current == stopAt {
			return nil
		}
		node := x.graph.nodes[current]

		if branch == "" {
			x.leaveBypassedLoops(ctx, st, current)
			if name, ok := x.graph.loopStart[current]; ok && !x.active[name] {
				x.active[name] = true
				x.loopStack = append(x.loopStack, name)
				st.enterLoop(name)
			}
		}

		var err error
		switch node.Kind {
		case NodeTerminal:
			return x.runTerminal(ctx, st, node)
		case NodeFanOut:
			err = x.runFanOut(ctx, st, node)
		default:
			err = x.runNode(ctx, st, node, branch)
		}
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		// A loop may end at the fan-out itself or at its join.
		ended := node.Name
		if node.Kind == NodeFanOut {
			if _, ok := x.graph.loopEnd[ended]; !ok {
				ended = node.Join
			}
			node = x.graph.nodes[node.Join]
		}
		if name, ok := x.graph.loopEnd[ended]; ok && branch == "" && x.active[name] {
			again, err := x.loopBack(ctx, st, name)
			if err != nil {
				return err
			}
			if again {
				current = x.graph.loops[name].Start
				continue
			}
		}

		next, err := x.route(st, node)
		if err != nil {
			return err
		}
		current = next
	}
}

func (x *execution) runNode(ctx context.Context, st *State, node *Node, branch string) error {
	loop, iter := x.iteration(st)
	if node.Kind == NodeAgent && node.Specialist && !st.Selected(node.Name) {
		x.run.markSkipped(node.Name)
		x.emit(ctx, Event{
			Phase:     PhaseNodeSkipped,
			Node:      node.Name,
			Kind:      node.Kind,
			Branch:    branch,
			Iteration: iter,
			Status:    string(types.AgentStatusPending),
		}, st)
		return nil
	}

	ctx = types.WithNode(ctx, node.Name)
	ne := x.run.recordNodeStart(node, branch, iter)
	x.emit(ctx, Event{Phase: PhaseNodeStarted, Node: node.Name, Kind: node.Kind, Branch: branch, Iteration: iter}, st)
	start := time.Now()

	switch node.Kind {
	case NodeAgent:
		return x.runAgent(ctx, st, node, ne, start, loop)
	case NodeTask:
		return x.runTask(ctx, st, node, ne, start)
	default:
		x.run.recordNodeEnd(ne, NodeCompleted, nil)
		x.emit(ctx, Event{
			Phase:     PhaseNodeCompleted,
			Node:      node.Name,
			Kind:      node.Kind,
			Branch:    branch,
			Iteration: iter,
			Elapsed:   time.Since(start),
		}, st)
		return nil
	}
}

func (x *execution) runAgent(ctx context.Context, st *State, node *Node, ne *NodeExecution, start time.Time, loop string) error {
	resp, err := x.invoke(ctx, node, st)
	if ctxErr := ctx.Err(); ctxErr != nil {
		x.run.recordNodeEnd(ne, NodeErrored, ctxErr)
		return ctxErr
	}

	key := node.outputKey()
	if err != nil {
		if node.Critical {
			return x.failNode(ctx, st, node, ne, start,
				types.NewError(types.ErrOrchestrationFatal, fmt.Sprintf("critical agent %q failed", node.Name)).WithCause(err))
		}
		x.logger.Warn("agent failed",
			zap.String("node", node.Name),
			zap.Error(err))
		resp = types.NewAgentError(key, fmt.Sprintf("%s unavailable: %v", key, err))
	}
	if resp.AgentName == "" {
		resp.AgentName = key
	}
	if resp.Status == "" {
		resp.Status = types.AgentStatusCompleted
	}
	resp.Sources = types.DedupSources(resp.Sources)
	if resp.Status == types.AgentStatusError && node.Critical {
		return x.failNode(ctx, st, node, ne, start,
			types.NewError(types.ErrOrchestrationFatal, fmt.Sprintf("critical agent %q returned error: %s", node.Name, resp.Content)))
	}

	st.putOutput(key, resp)
	nodeState, phase := NodeCompleted, PhaseNodeCompleted
	if resp.Status == types.AgentStatusError {
		nodeState, phase = NodeErrored, PhaseNodeErrored
	}
	x.run.recordNodeEnd(ne, nodeState, err)
	if loop != "" {
		x.run.recordIteration(IterationRecord{
			Loop:      loop,
			Iteration: st.LoopCounter(loop),
			Node:      node.Name,
			Response:  resp.Clone(),
		})
	}
	x.emit(ctx, Event{
		Phase:     phase,
		Node:      node.Name,
		Kind:      node.Kind,
		Branch:    ne.Branch,
		Iteration: ne.Iteration,
		Status:    string(resp.Status),
		Snippet:   snippet(resp.Content),
		Elapsed:   time.Since(start),
	}, st)
	x.logger.Debug("node completed",
		zap.String("node", node.Name),
		zap.String("status", string(resp.Status)),
		zap.Duration("duration", time.Since(start)))
	return nil
}

func (x *execution) runTask(ctx context.Context, st *State, node *Node, ne *NodeExecution, start time.Time) error {
	upd, err := x.call(ctx, node, st)
	if ctxErr := ctx.Err(); ctxErr != nil {
		x.run.recordNodeEnd(ne, NodeErrored, ctxErr)
		return ctxErr
	}
	if err != nil {
		return x.failNode(ctx, st, node, ne, start,
			types.NewError(types.ErrOrchestrationFatal, fmt.Sprintf("task %q failed", node.Name)).WithCause(err))
	}
	if err := st.apply(upd); err != nil {
		return x.failNode(ctx, st, node, ne, start,
			types.NewError(types.ErrOrchestrationFatal, fmt.Sprintf("task %q produced an invalid update", node.Name)).WithCause(err))
	}
	x.run.recordNodeEnd(ne, NodeCompleted, nil)
	x.emit(ctx, Event{
		Phase:     PhaseNodeCompleted,
		Node:      node.Name,
		Kind:      node.Kind,
		Branch:    ne.Branch,
		Iteration: ne.Iteration,
		Elapsed:   time.Since(start),
	}, st)
	return nil
}

func (x *execution) failNode(ctx context.Context, st *State, node *Node, ne *NodeExecution, start time.Time, err error) error {
	x.run.recordNodeEnd(ne, NodeErrored, err)
	x.emit(ctx, Event{
		Phase:   PhaseNodeErrored,
		Node:    node.Name,
		Kind:    node.Kind,
		Branch:  ne.Branch,
		Error:   err.Error(),
		Elapsed: time.Since(start),
	}, st)
	return err
}

func (x *execution) invoke(ctx context.Context, node *Node, st *State) (resp types.AgentResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("agent %s panicked: %v", node.Name, r)
		}
	}()
	return node.Unit.Invoke(ctx, st)
}

func (x *execution) call(ctx context.Context, node *Node, st *State) (upd Update, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", node.Name, r)
		}
	}()
	return node.Task(ctx, st)
}

func (x *execution) runTerminal(ctx context.Context, st *State, node *Node) error {
	ne := x.run.recordNodeStart(node, "", 0)
	x.emit(ctx, Event{Phase: PhaseNodeStarted, Node: node.Name, Kind: node.Kind}, st)
	start := time.Now()
	if _, ok := st.FinalResponse(); !ok {
		if err := st.setFinalResponse(x.exec.compiler.Compile(st)); err != nil {
			return x.failNode(ctx, st, node, ne, start,
				types.NewError(types.ErrOrchestrationFatal, "compile final response").WithCause(err))
		}
	}
	x.run.recordNodeEnd(ne, NodeCompleted, nil)
	x.emit(ctx, Event{Phase: PhaseNodeCompleted, Node: node.Name, Kind: node.Kind, Elapsed: time.Since(start)}, st)
	return nil
}

// runFanOut runs every branch on its own state clone and merges the results
// into st once all branches reach the join.
func (x *execution) runFanOut(ctx context.Context, st *State, node *Node) error {
	_, iter := x.iteration(st)
	ne := x.run.recordNodeStart(node, "", iter)
	x.emit(ctx, Event{Phase: PhaseNodeStarted, Node: node.Name, Kind: node.Kind, Iteration: iter}, st)
	start := time.Now()

	tags := make([]string, len(node.Branches))
	for i, br := range node.Branches {
		tags[i] = br.Tag
	}
	st.addBranches(tags...)

	results := make([]*State, len(node.Branches))
	g, gctx := errgroup.WithContext(ctx)
	for i, br := range node.Branches {
		i, br := i, br
		bst := st.fork(br.Tag)
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = types.NewError(types.ErrOrchestrationFatal, fmt.Sprintf("branch %q panicked: %v", br.Tag, r))
				}
			}()
			if err := x.walk(gctx, bst, br.Entry, node.Join, br.Tag); err != nil {
				return err
			}
			results[i] = bst
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		x.run.recordNodeEnd(ne, NodeErrored, err)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	if err := ctx.Err(); err != nil {
		x.run.recordNodeEnd(ne, NodeErrored, err)
		return err
	}

	x.run.setState(RunMerging)
	join := x.graph.nodes[node.Join]
	jne := x.run.recordNodeStart(join, "", iter)
	if err := mergeBranches(st, node.Branches, results); err != nil {
		x.run.recordNodeEnd(jne, NodeErrored, err)
		x.run.recordNodeEnd(ne, NodeErrored, err)
		return err
	}
	st.removeBranches(tags...)
	x.run.recordNodeEnd(jne, NodeCompleted, nil)
	x.run.recordNodeEnd(ne, NodeCompleted, nil)
	x.run.setState(RunExecuting)

	x.emit(ctx, Event{
		Phase:     PhaseBranchesMerged,
		Node:      join.Name,
		Kind:      join.Kind,
		Iteration: iter,
		Elapsed:   time.Since(start),
	}, st)
	x.logger.Debug("branches merged",
		zap.String("fan_out", node.Name),
		zap.Int("branches", len(node.Branches)),
		zap.Duration("duration", time.Since(start)))
	return nil
}

// loopBack consults the loop policy after the end node and reports whether
// to jump back to the start node. The ceiling always wins over the policy.
func (x *execution) loopBack(ctx context.Context, st *State, name string) (bool, error) {
	loop := x.graph.loops[name]
	iter := st.LoopCounter(name)

	cont, err := evalPolicy(loop.Policy, st, iter)
	if err != nil {
		return false, types.NewError(types.ErrOrchestrationFatal, fmt.Sprintf("loop %q policy failed", name)).WithCause(err)
	}
	if cont && iter < loop.MaxIterations {
		next := st.incrementLoop(name)
		x.emit(ctx, Event{Phase: PhaseLoopIteration, Node: loop.Start, Iteration: next}, st)
		x.logger.Debug("loop iteration",
			zap.String("loop", name),
			zap.Int("iteration", next))
		return true, nil
	}

	reason := "policy"
	if cont {
		reason = "max_iterations"
		x.logger.Info("loop iteration ceiling reached",
			zap.String("loop", name),
			zap.Int("max_iterations", loop.MaxIterations))
	}
	x.exitLoop(ctx, st, name, reason)
	return false, nil
}

func (x *execution) exitLoop(ctx context.Context, st *State, name, reason string) {
	x.active[name] = false
	for i := len(x.loopStack) - 1; i >= 0; i-- {
		if x.loopStack[i] == name {
			x.loopStack = append(x.loopStack[:i], x.loopStack[i+1:]...)
			break
		}
	}
	loop := x.graph.loops[name]
	x.emit(ctx, Event{Phase: PhaseLoopExit, Node: loop.End, Iteration: st.LoopCounter(name), Status: reason}, st)
}

// leaveBypassedLoops exits every active loop whose body does not contain
// node, which happens when routing skips the loop's end node.
func (x *execution) leaveBypassedLoops(ctx context.Context, st *State, node string) {
	for i := len(x.loopStack) - 1; i >= 0; i-- {
		name := x.loopStack[i]
		if x.graph.loopBody[name][node] {
			continue
		}
		x.logger.Debug("loop bypassed",
			zap.String("loop", name),
			zap.String("node", node))
		x.exitLoop(ctx, st, name, "bypassed")
	}
}

// iteration returns the innermost active loop and its counter.
func (x *execution) iteration(st *State) (string, int) {
	if len(x.loopStack) == 0 {
		return "", 0
	}
	name := x.loopStack[len(x.loopStack)-1]
	return name, st.LoopCounter(name)
}

// route picks the next node: the first matching conditional edge in
// declaration order, else the default edge.
func (x *execution) route(st *State, node *Node) (string, error) {
	fallback := ""
	for _, e := range x.graph.edges[node.Name] {
		if e.IsDefault() {
			if fallback == "" {
				fallback = e.To
			}
			continue
		}
		ok, err := evalPredicate(e.When, st)
		if err != nil {
			return "", types.NewError(types.ErrOrchestrationFatal,
				fmt.Sprintf("routing from %q to %q failed", node.Name, e.To)).WithCause(err)
		}
		if ok {
			return e.To, nil
		}
	}
	if fallback == "" {
		return "", types.NewError(types.ErrWorkflowConfig, fmt.Sprintf("no route from node %q", node.Name))
	}
	return fallback, nil
}

// finish marks unvisited nodes skipped and fills the run record.
func (x *execution) finish(ctx context.Context, st *State) {
	for _, name := range x.graph.order {
		if x.run.NodeState(name) != NodeNotStarted {
			continue
		}
		x.run.markSkipped(name)
		n := x.graph.nodes[name]
		ev := Event{Phase: PhaseNodeSkipped, Node: name, Kind: n.Kind}
		if n.Kind == NodeAgent {
			ev.Status = string(types.AgentStatusPending)
		}
		x.emit(ctx, ev, nil)
	}

	final, _ := st.FinalResponse()
	x.run.mu.Lock()
	x.run.state = st
	x.run.Outputs = st.Outputs()
	x.run.ContextDocuments = st.ContextDocuments()
	x.run.LoopCounters = st.LoopCounters()
	x.run.FinalResponse = final
	x.run.Sources = x.exec.compiler.Sources(st)
	x.run.Language = st.Language()
	x.run.mu.Unlock()
	x.run.complete(RunTerminated, nil)

	x.emit(ctx, Event{Phase: PhaseRunCompleted, Elapsed: x.run.Duration}, st)
	x.logger.Info("workflow run completed",
		zap.Int("nodes_executed", len(x.run.GetNodes())),
		zap.Duration("duration", x.run.Duration))
}

// abort classifies err as cancellation or fatal failure and records it.
// Cancelled runs discard every collected output.
func (x *execution) abort(ctx context.Context, err error) (*Run, error) {
	emitCtx := context.WithoutCancel(ctx)
	if ctxErr := ctx.Err(); ctxErr != nil {
		cerr := types.NewError(types.ErrWorkflowCancelled, "workflow run cancelled").WithCause(ctxErr)
		x.run.mu.Lock()
		x.run.Outputs = nil
		x.run.Iterations = nil
		x.run.mu.Unlock()
		x.run.complete(RunCancelled, cerr)
		x.emit(emitCtx, Event{Phase: PhaseRunCancelled, Error: cerr.Error(), Elapsed: x.run.Duration}, nil)
		x.logger.Info("workflow run cancelled", zap.Error(ctxErr))
		return x.run, cerr
	}

	if _, ok := types.AsError(err); !ok {
		err = types.NewError(types.ErrOrchestrationFatal, "workflow run failed").WithCause(err)
	}
	x.run.complete(RunFailed, err)
	x.emit(emitCtx, Event{Phase: PhaseRunFailed, Error: err.Error(), Elapsed: x.run.Duration}, nil)
	x.logger.Error("workflow run failed", zap.Error(err))
	return x.run, err
}

func (x *execution) emit(ctx context.Context, ev Event, st *State) {
	ev.RunID = x.run.ID
	ev.Graph = x.graph.name
	ev.Timestamp = time.Now()
	if st != nil {
		snap := st.Snapshot()
		ev.Snapshot = &snap
	}
	x.obs.Emit(ctx, ev)
}

func snippet(s string) string {
	const limit = 160
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}
