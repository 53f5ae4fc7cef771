package workflow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BaSui01/consultflow/types"
	"go.uber.org/zap"
)

// Builder provides a fluent API for constructing workflow graphs.
// Structural mistakes are collected and reported by Build, so a chain of
// calls never panics.
type Builder struct {
	graph  *Graph
	errors []error
	logger *zap.Logger
}

// NewBuilder creates a builder for a graph with the given name.
func NewBuilder(name string) *Builder {
	return &Builder{
		graph: &Graph{
			name:      name,
			nodes:     make(map[string]*Node),
			edges:     make(map[string][]Edge),
			loops:     make(map[string]Loop),
			loopStart: make(map[string]string),
			loopEnd:   make(map[string]string),
			loopBody:  make(map[string]map[string]bool),
			branchOf:  make(map[string]string),
		},
		logger: zap.NewNop(),
	}
}

// WithLogger sets the logger used for build diagnostics.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// NodeBuilder configures a node after it has been added.
type NodeBuilder struct {
	node    *Node
	builder *Builder
}

func (b *Builder) addNode(name string, kind NodeKind) *NodeBuilder {
	node := &Node{Name: name, Kind: kind}
	if name == "" {
		b.errors = append(b.errors, fmt.Errorf("node name is empty"))
	} else if _, exists := b.graph.nodes[name]; exists {
		b.errors = append(b.errors, fmt.Errorf("duplicate node %q", name))
	} else {
		b.graph.nodes[name] = node
		b.graph.order = append(b.graph.order, name)
	}
	return &NodeBuilder{node: node, builder: b}
}

// AddAgent adds a specialist agent node. The node name is also its output key
// unless overridden.
func (b *Builder) AddAgent(name string, unit AgentUnit) *NodeBuilder {
	nb := b.addNode(name, NodeAgent)
	nb.node.Unit = unit
	nb.node.Specialist = true
	return nb
}

// AddTask adds a task node.
func (b *Builder) AddTask(name string, fn TaskFunc) *NodeBuilder {
	nb := b.addNode(name, NodeTask)
	nb.node.Task = fn
	return nb
}

// AddDecision adds a routing-only node.
func (b *Builder) AddDecision(name string) *NodeBuilder {
	return b.addNode(name, NodeDecision)
}

// AddFanOut adds a node that runs branches in parallel and continues at join.
func (b *Builder) AddFanOut(name, join string, branches ...Branch) *NodeBuilder {
	nb := b.addNode(name, NodeFanOut)
	nb.node.Join = join
	nb.node.Branches = append([]Branch(nil), branches...)
	return nb
}

// AddMerge adds a join node.
func (b *Builder) AddMerge(name string) *NodeBuilder {
	return b.addNode(name, NodeMerge)
}

// AddTerminal adds a node that compiles the final response.
func (b *Builder) AddTerminal(name string) *NodeBuilder {
	return b.addNode(name, NodeTerminal)
}

// OutputKey overrides the agent_outputs key.
func (nb *NodeBuilder) OutputKey(key string) *NodeBuilder {
	nb.node.OutputKey = key
	return nb
}

// Critical marks an agent whose failure aborts the run.
func (nb *NodeBuilder) Critical() *NodeBuilder {
	nb.node.Critical = true
	return nb
}

// SetsContext marks a task that writes the context documents.
func (nb *NodeBuilder) SetsContext() *NodeBuilder {
	nb.node.SetsContext = true
	return nb
}

// Fixed exempts an agent from dynamic specialist selection.
func (nb *NodeBuilder) Fixed() *NodeBuilder {
	nb.node.Specialist = false
	return nb
}

// WithMetadata attaches a metadata value to the node.
func (nb *NodeBuilder) WithMetadata(key, value string) *NodeBuilder {
	if nb.node.Metadata == nil {
		nb.node.Metadata = make(map[string]string)
	}
	nb.node.Metadata[key] = value
	return nb
}

// Done returns to the parent builder.
func (nb *NodeBuilder) Done() *Builder {
	return nb.builder
}

// AddEdge adds the default edge from one node to another.
func (b *Builder) AddEdge(from, to string) *Builder {
	b.graph.edges[from] = append(b.graph.edges[from], Edge{From: from, To: to})
	return b
}

// AddConditionalEdge adds an edge taken when pred holds. Conditional edges
// are evaluated in declaration order; the first match wins.
func (b *Builder) AddConditionalEdge(from, to string, pred Predicate) *Builder {
	if pred == nil {
		b.errors = append(b.errors, fmt.Errorf("conditional edge %s -> %s has nil predicate", from, to))
		return b
	}
	b.graph.edges[from] = append(b.graph.edges[from], Edge{From: from, To: to, When: pred})
	return b
}

// AddLabeledEdge adds a conditional edge with a label for diagnostics.
func (b *Builder) AddLabeledEdge(from, to, label string, pred Predicate) *Builder {
	b.AddConditionalEdge(from, to, pred)
	if pred != nil {
		edges := b.graph.edges[from]
		edges[len(edges)-1].Label = label
	}
	return b
}

// AddLoop declares a bounded loop from loop.End back to loop.Start.
func (b *Builder) AddLoop(loop Loop) *Builder {
	if loop.Name == "" {
		b.errors = append(b.errors, fmt.Errorf("loop name is empty"))
		return b
	}
	if _, exists := b.graph.loops[loop.Name]; exists {
		b.errors = append(b.errors, fmt.Errorf("duplicate loop %q", loop.Name))
		return b
	}
	b.graph.loops[loop.Name] = loop
	return b
}

// SetEntry sets the first node of the graph.
func (b *Builder) SetEntry(name string) *Builder {
	b.graph.entry = name
	return b
}

// Build validates the graph and returns it.
func (b *Builder) Build() (*Graph, error) {
	if err := b.validate(); err != nil {
		b.logger.Debug("graph validation failed",
			zap.String("graph", b.graph.name),
			zap.Error(err))
		return nil, types.NewError(types.ErrWorkflowConfig,
			fmt.Sprintf("graph %q validation failed", b.graph.name)).WithCause(err)
	}
	b.logger.Debug("graph built",
		zap.String("graph", b.graph.name),
		zap.Int("nodes", len(b.graph.nodes)),
		zap.Int("loops", len(b.graph.loops)))
	return b.graph, nil
}

func (b *Builder) validate() error {
	if len(b.errors) > 0 {
		return errors.Join(b.errors...)
	}
	g := b.graph
	if len(g.nodes) == 0 {
		return fmt.Errorf("graph has no nodes")
	}
	if g.entry == "" {
		return fmt.Errorf("entry node not set")
	}
	if _, ok := g.nodes[g.entry]; !ok {
		return fmt.Errorf("entry node %q does not exist", g.entry)
	}

	var errs []error
	for from, edges := range g.edges {
		if _, ok := g.nodes[from]; !ok {
			errs = append(errs, fmt.Errorf("edge references non-existent source node %q", from))
		}
		for _, e := range edges {
			if _, ok := g.nodes[e.To]; !ok {
				errs = append(errs, fmt.Errorf("edge %s -> %s references non-existent target node", e.From, e.To))
			}
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	hasTerminal := false
	for _, name := range g.order {
		n := g.nodes[name]
		if n.Kind == NodeTerminal {
			hasTerminal = true
		}
		if err := b.validateNode(n); err != nil {
			errs = append(errs, err)
		}
	}
	if !hasTerminal {
		errs = append(errs, fmt.Errorf("graph has no terminal node"))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	if cycle := b.detectCycle(); cycle != "" {
		return fmt.Errorf("cycle detected in static edges at node %q; declare loops with AddLoop", cycle)
	}

	reachable := make(map[string]bool)
	b.markReachable(g.entry, reachable)
	var orphans []string
	for _, name := range g.order {
		if !reachable[name] {
			orphans = append(orphans, name)
		}
	}
	if len(orphans) > 0 {
		return fmt.Errorf("unreachable nodes: %s", strings.Join(orphans, ", "))
	}

	if err := b.validateBranches(); err != nil {
		return err
	}
	if err := b.validateOutputKeys(); err != nil {
		return err
	}
	return b.validateLoops()
}

// validateNode checks per-kind requirements and outgoing edge rules.
func (b *Builder) validateNode(n *Node) error {
	edges := b.graph.edges[n.Name]
	switch n.Kind {
	case NodeAgent:
		if n.Unit == nil {
			return fmt.Errorf("agent node %q has no unit", n.Name)
		}
	case NodeTask:
		if n.Task == nil {
			return fmt.Errorf("task node %q has no function", n.Name)
		}
	case NodeTerminal:
		if len(edges) > 0 {
			return fmt.Errorf("terminal node %q has outgoing edges", n.Name)
		}
		return nil
	case NodeFanOut:
		if len(edges) > 0 {
			return fmt.Errorf("fan-out node %q has explicit edges; continue from join %q", n.Name, n.Join)
		}
		if len(n.Branches) == 0 {
			return fmt.Errorf("fan-out node %q has no branches", n.Name)
		}
		join, ok := b.graph.nodes[n.Join]
		if !ok || join.Kind != NodeMerge {
			return fmt.Errorf("fan-out node %q join %q is not a merge node", n.Name, n.Join)
		}
		tags := make(map[string]bool)
		for _, br := range n.Branches {
			if br.Tag == "" || tags[br.Tag] {
				return fmt.Errorf("fan-out node %q has empty or duplicate branch tag %q", n.Name, br.Tag)
			}
			tags[br.Tag] = true
			if _, ok := b.graph.nodes[br.Entry]; !ok {
				return fmt.Errorf("branch %q of %q enters non-existent node %q", br.Tag, n.Name, br.Entry)
			}
		}
		return nil
	case NodeDecision, NodeMerge:
	default:
		return fmt.Errorf("node %q has unknown kind %q", n.Name, n.Kind)
	}

	if len(edges) == 0 {
		return fmt.Errorf("node %q has no outgoing edges", n.Name)
	}
	defaults := 0
	for _, e := range edges {
		if e.IsDefault() {
			defaults++
		}
	}
	if defaults == 0 {
		return fmt.Errorf("node %q has conditional edges but no default edge", n.Name)
	}
	if defaults > 1 {
		return fmt.Errorf("node %q has %d default edges", n.Name, defaults)
	}
	return nil
}

// detectCycle returns a node on a cycle, or "" when the static graph is acyclic.
func (b *Builder) detectCycle() string {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)
	for _, name := range b.graph.order {
		if !visited[name] {
			if at := b.hasCycleDFS(name, visited, recStack); at != "" {
				return at
			}
		}
	}
	return ""
}

func (b *Builder) hasCycleDFS(name string, visited, recStack map[string]bool) string {
	visited[name] = true
	recStack[name] = true
	for _, next := range b.graph.successors(name) {
		if !visited[next] {
			if at := b.hasCycleDFS(next, visited, recStack); at != "" {
				return at
			}
		} else if recStack[next] {
			return next
		}
	}
	recStack[name] = false
	return ""
}

func (b *Builder) markReachable(name string, reachable map[string]bool) {
	if reachable[name] {
		return
	}
	reachable[name] = true
	for _, next := range b.graph.successors(name) {
		b.markReachable(next, reachable)
	}
}

// branchNodes collects the nodes a branch can visit before its join.
func (b *Builder) branchNodes(entry, join string) map[string]bool {
	seen := make(map[string]bool)
	var walk func(string)
	walk = func(name string) {
		if name == join || seen[name] {
			return
		}
		seen[name] = true
		for _, next := range b.graph.successors(name) {
			walk(next)
		}
	}
	walk(entry)
	return seen
}

// validateBranches checks that every branch converges on its join and that
// branches never share nodes or output keys.
func (b *Builder) validateBranches() error {
	g := b.graph
	for _, name := range g.order {
		fan := g.nodes[name]
		if fan.Kind != NodeFanOut {
			continue
		}
		owner := make(map[string]string)
		keys := make(map[string]string)
		for _, br := range fan.Branches {
			for member := range b.branchNodes(br.Entry, fan.Join) {
				n := g.nodes[member]
				switch n.Kind {
				case NodeTerminal:
					return fmt.Errorf("branch %q of %q reaches terminal %q before join %q", br.Tag, fan.Name, member, fan.Join)
				case NodeFanOut:
					return fmt.Errorf("branch %q of %q contains nested fan-out %q", br.Tag, fan.Name, member)
				}
				if other, ok := owner[member]; ok && other != br.Tag {
					return fmt.Errorf("node %q is shared by branches %q and %q of %q", member, other, br.Tag, fan.Name)
				}
				owner[member] = br.Tag
				g.branchOf[member] = br.Tag
				if n.Kind == NodeAgent {
					key := n.outputKey()
					if other, ok := keys[key]; ok && other != br.Tag {
						return fmt.Errorf("output key %q written by branches %q and %q of %q", key, other, br.Tag, fan.Name)
					}
					keys[key] = br.Tag
				}
			}
		}
	}
	return nil
}

func (b *Builder) validateOutputKeys() error {
	seen := make(map[string]string)
	for _, name := range b.graph.order {
		n := b.graph.nodes[name]
		if n.Kind != NodeAgent {
			continue
		}
		key := n.outputKey()
		if other, ok := seen[key]; ok {
			return fmt.Errorf("output key %q written by nodes %q and %q", key, other, name)
		}
		seen[key] = name
	}
	return nil
}

func (b *Builder) validateLoops() error {
	g := b.graph
	for _, name := range sortedKeys(g.loops) {
		loop := g.loops[name]
		start, ok := g.nodes[loop.Start]
		if !ok {
			return fmt.Errorf("loop %q start node %q does not exist", name, loop.Start)
		}
		end, ok := g.nodes[loop.End]
		if !ok {
			return fmt.Errorf("loop %q end node %q does not exist", name, loop.End)
		}
		if loop.MaxIterations < 1 {
			return fmt.Errorf("loop %q max iterations must be at least 1", name)
		}
		if loop.Policy == nil {
			return fmt.Errorf("loop %q has no policy", name)
		}
		if end.Kind == NodeTerminal || start.Kind == NodeTerminal {
			return fmt.Errorf("loop %q cannot start or end at a terminal node", name)
		}
		if _, inBranch := g.branchOf[loop.Start]; inBranch {
			return fmt.Errorf("loop %q starts inside a parallel branch", name)
		}
		if _, inBranch := g.branchOf[loop.End]; inBranch {
			return fmt.Errorf("loop %q ends inside a parallel branch", name)
		}
		if other, ok := g.loopStart[loop.Start]; ok {
			return fmt.Errorf("loops %q and %q share start node %q", other, name, loop.Start)
		}
		if other, ok := g.loopEnd[loop.End]; ok {
			return fmt.Errorf("loops %q and %q share end node %q", other, name, loop.End)
		}
		within := make(map[string]bool)
		b.markReachable(loop.Start, within)
		if !within[loop.End] {
			return fmt.Errorf("loop %q end %q is not reachable from start %q", name, loop.End, loop.Start)
		}
		body := make(map[string]bool)
		for n := range b.reaching(loop.End) {
			if within[n] {
				body[n] = true
			}
		}
		for _, n := range g.order {
			if body[n] && g.nodes[n].SetsContext {
				return fmt.Errorf("loop %q repeats context task %q; start the loop after it", name, n)
			}
		}
		g.loopStart[loop.Start] = name
		g.loopEnd[loop.End] = name
		g.loopBody[name] = body
	}
	return nil
}

// reaching returns every node with a path to target, target included.
func (b *Builder) reaching(target string) map[string]bool {
	preds := make(map[string][]string)
	for _, name := range b.graph.order {
		for _, next := range b.graph.successors(name) {
			preds[next] = append(preds[next], name)
		}
	}
	seen := map[string]bool{target: true}
	queue := []string{target}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, p := range preds[n] {
			if !seen[p] {
				seen[p] = true
				queue = append(queue, p)
			}
		}
	}
	return seen
}
