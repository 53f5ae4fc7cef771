package workflow

import (
	"context"

	"github.com/BaSui01/consultflow/types"
)

// NodeKind classifies what a graph node does when it is visited.
type NodeKind string

const (
	// NodeAgent invokes an AgentUnit and stores its response.
	NodeAgent NodeKind = "agent"
	// NodeTask runs deterministic work that updates state (retrieval,
	// classification, language detection). Task failures are fatal.
	NodeTask NodeKind = "task"
	// NodeDecision does no work; its outgoing edges route the run.
	NodeDecision NodeKind = "decision"
	// NodeFanOut starts parallel branches that converge on a merge node.
	NodeFanOut NodeKind = "fan_out"
	// NodeMerge is the join point of a fan-out.
	NodeMerge NodeKind = "merge"
	// NodeTerminal compiles the final response and ends the run.
	NodeTerminal NodeKind = "terminal"
)

// AgentUnit is a single specialist that reads state and returns a response.
// A unit never writes state directly; the executor stores its result.
type AgentUnit interface {
	Name() string
	Invoke(ctx context.Context, s *State) (types.AgentResponse, error)
}

// UnitFunc adapts a function to AgentUnit.
type UnitFunc struct {
	name string
	fn   func(ctx context.Context, s *State) (types.AgentResponse, error)
}

// NewUnit wraps fn as an AgentUnit named name.
func NewUnit(name string, fn func(ctx context.Context, s *State) (types.AgentResponse, error)) *UnitFunc {
	return &UnitFunc{name: name, fn: fn}
}

// Name implements AgentUnit.
func (u *UnitFunc) Name() string { return u.name }

// Invoke implements AgentUnit.
func (u *UnitFunc) Invoke(ctx context.Context, s *State) (types.AgentResponse, error) {
	return u.fn(ctx, s)
}

// TaskFunc is the body of a task node.
type TaskFunc func(ctx context.Context, s *State) (Update, error)

// Predicate is a pure routing condition over state.
type Predicate func(s *State) bool

// LoopPolicy decides whether a loop runs another iteration after its end
// node completes. iteration is the 1-based count of the iteration that just
// finished.
type LoopPolicy interface {
	Continue(s *State, iteration int) bool
}

// LoopPolicyFunc adapts a function to LoopPolicy.
type LoopPolicyFunc func(s *State, iteration int) bool

// Continue implements LoopPolicy.
func (f LoopPolicyFunc) Continue(s *State, iteration int) bool { return f(s, iteration) }

// Branch is one arm of a fan-out.
type Branch struct {
	Tag   string `json:"tag" yaml:"tag"`
	Entry string `json:"entry" yaml:"entry"`
}

// Node is a vertex in the workflow graph.
type Node struct {
	Name string
	Kind NodeKind

	// Agent nodes.
	Unit      AgentUnit
	OutputKey string
	// Specialist nodes are subject to dynamic selection; an unselected
	// specialist is skipped and reported as pending.
	Specialist bool
	// Critical agent failures abort the run instead of being recorded.
	Critical bool

	// Task nodes. SetsContext tasks write the context documents, which may
	// happen once per run, so they cannot sit inside a loop.
	Task        TaskFunc
	SetsContext bool

	// Fan-out nodes.
	Branches []Branch
	Join     string

	Metadata map[string]string
}

// outputKey returns the agent_outputs key the node writes.
func (n *Node) outputKey() string {
	if n.OutputKey != "" {
		return n.OutputKey
	}
	return n.Name
}

// Edge connects two nodes. An edge without a predicate is the default edge.
type Edge struct {
	From  string
	To    string
	When  Predicate
	Label string
}

// IsDefault reports whether the edge is unconditional.
func (e Edge) IsDefault() bool { return e.When == nil }

// Loop declares a bounded back edge from End to Start.
type Loop struct {
	Name          string
	Start         string
	End           string
	Policy        LoopPolicy
	MaxIterations int
}

// Graph is a validated, immutable workflow definition. Build one with
// Builder; a Graph is safe to execute concurrently.
type Graph struct {
	name      string
	nodes     map[string]*Node
	order     []string
	edges     map[string][]Edge
	loops     map[string]Loop
	loopStart map[string]string
	loopEnd   map[string]string
	// loopBody maps a loop name to the nodes on some path from its start
	// to its end, both included.
	loopBody map[string]map[string]bool
	entry    string
	// branchOf maps nodes inside a fan-out branch to their branch tag.
	branchOf map[string]string
}

// Name returns the graph name.
func (g *Graph) Name() string { return g.name }

// Entry returns the entry node name.
func (g *Graph) Entry() string { return g.entry }

// Node returns a node by name.
func (g *Graph) Node(name string) (*Node, bool) {
	n, ok := g.nodes[name]
	return n, ok
}

// Nodes returns nodes in declaration order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.order))
	for _, name := range g.order {
		out = append(out, g.nodes[name])
	}
	return out
}

// Edges returns the outgoing edges of a node in declaration order.
func (g *Graph) Edges(from string) []Edge {
	out := make([]Edge, len(g.edges[from]))
	copy(out, g.edges[from])
	return out
}

// Loops returns the declared loops sorted by name.
func (g *Graph) Loops() []Loop {
	out := make([]Loop, 0, len(g.loops))
	for _, name := range sortedKeys(g.loops) {
		out = append(out, g.loops[name])
	}
	return out
}

// Specialists returns the names of specialist agent nodes in declaration order.
func (g *Graph) Specialists() []string {
	var out []string
	for _, name := range g.order {
		n := g.nodes[name]
		if n.Kind == NodeAgent && n.Specialist {
			out = append(out, name)
		}
	}
	return out
}

// successors returns every node reachable in one step, including implicit
// fan-out edges to branch entries and the join.
func (g *Graph) successors(name string) []string {
	n := g.nodes[name]
	var out []string
	if n != nil && n.Kind == NodeFanOut {
		for _, b := range n.Branches {
			out = append(out, b.Entry)
		}
		out = append(out, n.Join)
	}
	for _, e := range g.edges[name] {
		out = append(out, e.To)
	}
	return out
}
