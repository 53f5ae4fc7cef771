package workflow

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/BaSui01/consultflow/types"
)

// RunState is the lifecycle state of a graph run.
type RunState string

const (
	RunBuilding   RunState = "building"
	RunExecuting  RunState = "executing"
	RunMerging    RunState = "merging"
	RunTerminated RunState = "terminated"
	RunCancelled  RunState = "cancelled"
	RunFailed     RunState = "failed"
)

// Finished reports whether the run reached a final state.
func (s RunState) Finished() bool {
	return s == RunTerminated || s == RunCancelled || s == RunFailed
}

// NodeState is the lifecycle state of a node within a run.
type NodeState string

const (
	NodeNotStarted NodeState = "not_started"
	NodeRunning    NodeState = "running"
	NodeCompleted  NodeState = "completed"
	NodeSkipped    NodeState = "skipped"
	NodeErrored    NodeState = "errored"
)

// NodeExecution records one visit of a node.
type NodeExecution struct {
	Node      string        `json:"node"`
	Kind      NodeKind      `json:"kind"`
	Branch    string        `json:"branch,omitempty"`
	Iteration int           `json:"iteration,omitempty"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	State     NodeState     `json:"state"`
	Error     string        `json:"error,omitempty"`
}

// IterationRecord keeps the output of one agent in one loop iteration.
// Loop re-entry overwrites agent_outputs; this log keeps every iteration.
type IterationRecord struct {
	Loop      string              `json:"loop"`
	Iteration int                 `json:"iteration"`
	Node      string              `json:"node"`
	Response  types.AgentResponse `json:"response"`
}

// Run is the history record of one graph execution.
type Run struct {
	ID               string                         `json:"id"`
	Graph            string                         `json:"graph"`
	Query            string                         `json:"query"`
	State            RunState                       `json:"state"`
	StartTime        time.Time                      `json:"start_time"`
	EndTime          time.Time                      `json:"end_time"`
	Duration         time.Duration                  `json:"duration"`
	Nodes            []*NodeExecution               `json:"nodes"`
	NodeStates       map[string]NodeState           `json:"node_states"`
	Iterations       []IterationRecord              `json:"iterations,omitempty"`
	LoopCounters     map[string]int                 `json:"loop_counters,omitempty"`
	Outputs          map[string]types.AgentResponse `json:"outputs,omitempty"`
	ContextDocuments []types.ContextDocument        `json:"context_documents,omitempty"`
	FinalResponse    string                         `json:"final_response,omitempty"`
	Sources          []string                       `json:"sources,omitempty"`
	Language         string                         `json:"language,omitempty"`
	Error            string                         `json:"error,omitempty"`

	mu    sync.Mutex
	state *State
}

func newRun(id string, g *Graph, query string) *Run {
	r := &Run{
		ID:         id,
		Graph:      g.Name(),
		Query:      query,
		State:      RunBuilding,
		StartTime:  time.Now(),
		NodeStates: make(map[string]NodeState, len(g.nodes)),
	}
	for name := range g.nodes {
		r.NodeStates[name] = NodeNotStarted
	}
	return r
}

// FinalState returns the state the run terminated with. It is nil for
// cancelled and failed runs.
func (r *Run) FinalState() *State { return r.state }

// NodeState returns the last recorded state of a node.
func (r *Run) NodeState(name string) NodeState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.NodeStates[name]
}

// GetNodes returns a copy of the node visits in start order.
func (r *Run) GetNodes() []*NodeExecution {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*NodeExecution, len(r.Nodes))
	copy(out, r.Nodes)
	return out
}

// IterationsFor returns the side log of one loop in order.
func (r *Run) IterationsFor(loop string) []IterationRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []IterationRecord
	for _, it := range r.Iterations {
		if it.Loop == loop {
			out = append(out, it)
		}
	}
	return out
}

func (r *Run) setState(s RunState) {
	r.mu.Lock()
	r.State = s
	r.mu.Unlock()
}

func (r *Run) recordNodeStart(node *Node, branch string, iteration int) *NodeExecution {
	r.mu.Lock()
	defer r.mu.Unlock()
	ne := &NodeExecution{
		Node:      node.Name,
		Kind:      node.Kind,
		Branch:    branch,
		Iteration: iteration,
		StartTime: time.Now(),
		State:     NodeRunning,
	}
	r.Nodes = append(r.Nodes, ne)
	r.NodeStates[node.Name] = NodeRunning
	return ne
}

func (r *Run) recordNodeEnd(ne *NodeExecution, state NodeState, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ne.EndTime = time.Now()
	ne.Duration = ne.EndTime.Sub(ne.StartTime)
	ne.State = state
	if err != nil {
		ne.Error = err.Error()
	}
	r.NodeStates[ne.Node] = state
}

func (r *Run) markSkipped(name string) {
	r.mu.Lock()
	r.NodeStates[name] = NodeSkipped
	r.mu.Unlock()
}

func (r *Run) recordIteration(rec IterationRecord) {
	r.mu.Lock()
	r.Iterations = append(r.Iterations, rec)
	r.mu.Unlock()
}

// complete stamps the end time and the outcome.
func (r *Run) complete(state RunState, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime)
	r.State = state
	if err != nil {
		r.Error = err.Error()
	}
}

// ErrRunNotFound is returned by RunStore.Get for unknown ids.
var ErrRunNotFound = errors.New("workflow run not found")

// RunStore persists run records.
type RunStore interface {
	Save(ctx context.Context, run *Run) error
	Get(ctx context.Context, id string) (*Run, error)
	List(ctx context.Context, limit int) ([]*Run, error)
}

// MemoryRunStore keeps the most recent runs in memory.
type MemoryRunStore struct {
	mu       sync.RWMutex
	runs     map[string]*Run
	order    []string
	capacity int
}

// NewMemoryRunStore creates a store holding at most capacity runs; older
// runs are evicted first. A non-positive capacity defaults to 1000.
func NewMemoryRunStore(capacity int) *MemoryRunStore {
	if capacity <= 0 {
		capacity = 1000
	}
	return &MemoryRunStore{
		runs:     make(map[string]*Run),
		capacity: capacity,
	}
}

// Save implements RunStore.
func (s *MemoryRunStore) Save(_ context.Context, run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; !exists {
		s.order = append(s.order, run.ID)
	}
	s.runs[run.ID] = run
	for len(s.order) > s.capacity {
		delete(s.runs, s.order[0])
		s.order = s.order[1:]
	}
	return nil
}

// Get implements RunStore.
func (s *MemoryRunStore) Get(_ context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	return run, nil
}

// List implements RunStore, newest first.
func (s *MemoryRunStore) List(_ context.Context, limit int) ([]*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Run, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartTime.After(out[j].StartTime)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
