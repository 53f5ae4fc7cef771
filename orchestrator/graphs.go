package orchestrator

import (
	"fmt"

	"github.com/BaSui01/consultflow/agent"
	"github.com/BaSui01/consultflow/types"
	"github.com/BaSui01/consultflow/workflow"
	"go.uber.org/zap"
)

// Node and loop names shared by every variant.
const (
	NodeCompile        = "compile_response"
	NodeParallelAgents = "parallel_agents"
	NodeMergeBranches  = "merge_branches"
	LoopRefinement     = "refinement_loop"
	PolicyRefinement   = "refinement"
)

// Graph names.
const (
	GraphStandard     = "consultation_standard"
	GraphParallel     = "consultation_parallel"
	GraphFeedbackLoop = "consultation_feedback_loop"
	GraphObservable   = "consultation_observable"
)

// StandardDefinition describes the sequential consultation: language
// detection, classification, a greeting short-circuit to compilation,
// retrieval, then every specialist in priority order. Unselected
// specialists are skipped by the executor.
func StandardDefinition(name string) *workflow.Definition {
	def := &workflow.Definition{
		Name:        name,
		Description: "sequential consultation",
		Entry:       agent.NodeDetectLanguage,
		Nodes: []workflow.NodeDefinition{
			{Name: agent.NodeDetectLanguage, Kind: string(workflow.NodeTask)},
			{Name: agent.NodeClassify, Kind: string(workflow.NodeTask)},
			{Name: agent.NodeRetrieveContext, Kind: string(workflow.NodeTask)},
		},
		Edges: []workflow.EdgeDefinition{
			{From: agent.NodeDetectLanguage, To: agent.NodeClassify},
			{From: agent.NodeClassify, To: NodeCompile, When: "has_final_response", Label: "greeting"},
			{From: agent.NodeClassify, To: agent.NodeRetrieveContext},
		},
	}
	prev := agent.NodeRetrieveContext
	for _, r := range types.Roles() {
		def.Nodes = append(def.Nodes, workflow.NodeDefinition{Name: string(r), Kind: string(workflow.NodeAgent)})
		def.Edges = append(def.Edges, workflow.EdgeDefinition{From: prev, To: string(r)})
		prev = string(r)
	}
	def.Nodes = append(def.Nodes, workflow.NodeDefinition{Name: NodeCompile, Kind: string(workflow.NodeTerminal)})
	def.Edges = append(def.Edges, workflow.EdgeDefinition{From: prev, To: NodeCompile})
	return def
}

// FeedbackLoopDefinition is the standard definition with a refinement loop
// from solution architecture back from technical research.
func FeedbackLoopDefinition(maxIterations int) *workflow.Definition {
	def := StandardDefinition(GraphFeedbackLoop)
	def.Description = "sequential consultation with refinement loop"
	def.Loops = []workflow.LoopDefinition{{
		Name:          LoopRefinement,
		Start:         string(types.RoleSolutionArchitect),
		End:           string(types.RoleTechnicalResearch),
		Policy:        PolicyRefinement,
		MaxIterations: maxIterations,
	}}
	return def
}

// catalog resolves definition references against the registry and tasks.
func (o *Orchestrator) catalog() (*workflow.Catalog, error) {
	cat := workflow.NewCatalog()
	for _, r := range types.Roles() {
		unit, err := o.registry.Create(string(r))
		if err != nil {
			return nil, err
		}
		cat.RegisterUnit(unit)
	}
	cat.RegisterTask(agent.NodeDetectLanguage, agent.LanguageTask(o.detector, o.logger))
	cat.RegisterTask(agent.NodeClassify, agent.ClassifyTask())
	cat.RegisterContextTask(agent.NodeRetrieveContext, agent.ContextRetrievalTask(o.retriever, o.cfg.RetrievalTopK, o.logger))
	cat.RegisterPolicy(PolicyRefinement, agent.DefaultRefinementPolicy(o.cfg.RefinementMinLength))
	return cat, nil
}

// buildGraphs constructs every variant once. Graphs are immutable, so runs
// only select among them.
func (o *Orchestrator) buildGraphs() error {
	cat, err := o.catalog()
	if err != nil {
		return err
	}

	standard := StandardDefinition(GraphStandard)
	if o.cfg.DefinitionPath != "" {
		standard, err = workflow.LoadDefinition(o.cfg.DefinitionPath)
		if err != nil {
			return types.NewError(types.ErrWorkflowConfig, "load workflow definition").WithCause(err)
		}
		o.logger.Info("standard graph loaded from definition",
			zap.String("path", o.cfg.DefinitionPath),
			zap.String("graph", standard.Name))
	}

	observable := *standard
	observable.Name = GraphObservable

	defs := map[Mode]*workflow.Definition{
		ModeStandard:     standard,
		ModeObservable:   &observable,
		ModeFeedbackLoop: FeedbackLoopDefinition(o.cfg.RefinementMaxIterations),
	}
	for _, mode := range []Mode{ModeStandard, ModeObservable, ModeFeedbackLoop} {
		g, err := defs[mode].Build(cat, o.logger)
		if err != nil {
			return fmt.Errorf("build %s graph: %w", mode, err)
		}
		o.graphs[mode] = g
	}

	g, err := o.parallelGraph(cat)
	if err != nil {
		return fmt.Errorf("build %s graph: %w", ModeParallel, err)
	}
	o.graphs[ModeParallel] = g
	return nil
}

// parallelGraph fans out the configured branches after retrieval. Branch
// agents are exempt from dynamic selection: the configuration decides who
// runs.
func (o *Orchestrator) parallelGraph(cat *workflow.Catalog) (*workflow.Graph, error) {
	b := workflow.NewBuilder(GraphParallel).WithLogger(o.logger)
	b.AddTask(agent.NodeDetectLanguage, cat.Tasks[agent.NodeDetectLanguage])
	b.AddTask(agent.NodeClassify, cat.Tasks[agent.NodeClassify])
	b.AddTask(agent.NodeRetrieveContext, cat.Tasks[agent.NodeRetrieveContext]).SetsContext()

	branches := make([]workflow.Branch, 0, len(o.cfg.ParallelBranches))
	for _, bc := range o.cfg.ParallelBranches {
		var prev string
		for _, name := range bc.Roles {
			role, ok := types.ResolveRole(name)
			if !ok {
				return nil, types.NewError(types.ErrWorkflowConfig, fmt.Sprintf("branch %s: unknown role %q", bc.Tag, name))
			}
			unit, ok := cat.Units[string(role)]
			if !ok {
				return nil, types.NewError(types.ErrWorkflowConfig, fmt.Sprintf("branch %s: no unit for role %q", bc.Tag, role))
			}
			b.AddAgent(string(role), unit).Fixed().WithMetadata("branch", bc.Tag)
			if prev == "" {
				branches = append(branches, workflow.Branch{Tag: bc.Tag, Entry: string(role)})
			} else {
				b.AddEdge(prev, string(role))
			}
			prev = string(role)
		}
		if prev != "" {
			b.AddEdge(prev, NodeMergeBranches)
		}
	}

	b.AddFanOut(NodeParallelAgents, NodeMergeBranches, branches...)
	b.AddMerge(NodeMergeBranches)
	b.AddTerminal(NodeCompile)

	b.AddEdge(agent.NodeDetectLanguage, agent.NodeClassify)
	b.AddLabeledEdge(agent.NodeClassify, NodeCompile, "greeting", workflow.HasFinalResponse())
	b.AddEdge(agent.NodeClassify, agent.NodeRetrieveContext)
	b.AddEdge(agent.NodeRetrieveContext, NodeParallelAgents)
	b.AddEdge(NodeMergeBranches, NodeCompile)

	return b.SetEntry(agent.NodeDetectLanguage).Build()
}
