package workflow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BaSui01/consultflow/types"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Definition is the serializable shape of a graph. Runtime behaviour
// (units, tasks, predicates, policies) is referenced by name and resolved
// against a Catalog when the definition is built.
type Definition struct {
	Name        string            `json:"name" yaml:"name"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Entry       string            `json:"entry" yaml:"entry"`
	Nodes       []NodeDefinition  `json:"nodes" yaml:"nodes"`
	Edges       []EdgeDefinition  `json:"edges" yaml:"edges"`
	Loops       []LoopDefinition  `json:"loops,omitempty" yaml:"loops,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// NodeDefinition describes one node.
type NodeDefinition struct {
	Name      string            `json:"name" yaml:"name"`
	Kind      string            `json:"kind" yaml:"kind"`
	Ref       string            `json:"ref,omitempty" yaml:"ref,omitempty"`
	OutputKey string            `json:"output_key,omitempty" yaml:"output_key,omitempty"`
	Critical  bool              `json:"critical,omitempty" yaml:"critical,omitempty"`
	Fixed     bool              `json:"fixed,omitempty" yaml:"fixed,omitempty"`
	Join      string            `json:"join,omitempty" yaml:"join,omitempty"`
	Branches  []Branch          `json:"branches,omitempty" yaml:"branches,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// EdgeDefinition describes one edge. When names a predicate; empty means
// the default edge.
type EdgeDefinition struct {
	From  string `json:"from" yaml:"from"`
	To    string `json:"to" yaml:"to"`
	When  string `json:"when,omitempty" yaml:"when,omitempty"`
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
}

// LoopDefinition describes one bounded loop.
type LoopDefinition struct {
	Name          string `json:"name" yaml:"name"`
	Start         string `json:"start" yaml:"start"`
	End           string `json:"end" yaml:"end"`
	Policy        string `json:"policy" yaml:"policy"`
	MaxIterations int    `json:"max_iterations" yaml:"max_iterations"`
}

// Catalog resolves names used in definitions.
type Catalog struct {
	Units      map[string]AgentUnit
	Tasks      map[string]TaskFunc
	Predicates map[string]Predicate
	Policies   map[string]LoopPolicy
	// ContextTasks names the tasks that write context documents.
	ContextTasks map[string]bool
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		Units:      make(map[string]AgentUnit),
		Tasks:      make(map[string]TaskFunc),
		Predicates: make(map[string]Predicate),
		Policies:   make(map[string]LoopPolicy),

		ContextTasks: make(map[string]bool),
	}
}

// RegisterUnit adds an agent unit under its own name.
func (c *Catalog) RegisterUnit(u AgentUnit) *Catalog {
	c.Units[u.Name()] = u
	return c
}

// RegisterTask adds a task function.
func (c *Catalog) RegisterTask(name string, fn TaskFunc) *Catalog {
	c.Tasks[name] = fn
	return c
}

// RegisterContextTask adds a task that writes the context documents.
func (c *Catalog) RegisterContextTask(name string, fn TaskFunc) *Catalog {
	c.Tasks[name] = fn
	c.ContextTasks[name] = true
	return c
}

// RegisterPredicate adds a named predicate.
func (c *Catalog) RegisterPredicate(name string, p Predicate) *Catalog {
	c.Predicates[name] = p
	return c
}

// RegisterPolicy adds a named loop policy.
func (c *Catalog) RegisterPolicy(name string, p LoopPolicy) *Catalog {
	c.Policies[name] = p
	return c
}

// predicate resolves a predicate expression. Besides registered names it
// understands "not:<expr>", "has_final_response", "selected:<node>",
// "metadata:<key>=<value>" and "status:<agent>=<status>".
func (c *Catalog) predicate(expr string) (Predicate, error) {
	expr = strings.TrimSpace(expr)
	if rest, ok := strings.CutPrefix(expr, "not:"); ok {
		inner, err := c.predicate(rest)
		if err != nil {
			return nil, err
		}
		return Not(inner), nil
	}
	if p, ok := c.Predicates[expr]; ok {
		return p, nil
	}
	switch {
	case expr == "has_final_response":
		return HasFinalResponse(), nil
	case strings.HasPrefix(expr, "selected:"):
		return IsSelected(strings.TrimPrefix(expr, "selected:")), nil
	case strings.HasPrefix(expr, "metadata:"):
		k, v, ok := strings.Cut(strings.TrimPrefix(expr, "metadata:"), "=")
		if !ok {
			return nil, fmt.Errorf("malformed metadata predicate %q", expr)
		}
		return MetadataEquals(k, v), nil
	case strings.HasPrefix(expr, "status:"):
		name, status, ok := strings.Cut(strings.TrimPrefix(expr, "status:"), "=")
		if !ok {
			return nil, fmt.Errorf("malformed status predicate %q", expr)
		}
		return OutputStatus(name, types.AgentStatus(status)), nil
	}
	return nil, fmt.Errorf("unknown predicate %q", expr)
}

// Build resolves every reference and returns a validated graph.
func (d *Definition) Build(cat *Catalog, logger *zap.Logger) (*Graph, error) {
	if err := ValidateDefinition(d); err != nil {
		return nil, types.NewError(types.ErrWorkflowConfig, "invalid workflow definition").WithCause(err)
	}
	if cat == nil {
		cat = NewCatalog()
	}
	b := NewBuilder(d.Name).WithLogger(logger)
	for _, nd := range d.Nodes {
		ref := nd.Ref
		if ref == "" {
			ref = nd.Name
		}
		var nb *NodeBuilder
		switch NodeKind(nd.Kind) {
		case NodeAgent:
			unit, ok := cat.Units[ref]
			if !ok {
				return nil, types.NewError(types.ErrWorkflowConfig, fmt.Sprintf("node %s: unknown agent unit %q", nd.Name, ref))
			}
			nb = b.AddAgent(nd.Name, unit)
			if nd.OutputKey != "" {
				nb.OutputKey(nd.OutputKey)
			}
			if nd.Critical {
				nb.Critical()
			}
			if nd.Fixed {
				nb.Fixed()
			}
		case NodeTask:
			fn, ok := cat.Tasks[ref]
			if !ok {
				return nil, types.NewError(types.ErrWorkflowConfig, fmt.Sprintf("node %s: unknown task %q", nd.Name, ref))
			}
			nb = b.AddTask(nd.Name, fn)
			if cat.ContextTasks[ref] {
				nb.SetsContext()
			}
		case NodeDecision:
			nb = b.AddDecision(nd.Name)
		case NodeFanOut:
			nb = b.AddFanOut(nd.Name, nd.Join, nd.Branches...)
		case NodeMerge:
			nb = b.AddMerge(nd.Name)
		case NodeTerminal:
			nb = b.AddTerminal(nd.Name)
		}
		for k, v := range nd.Metadata {
			nb.WithMetadata(k, v)
		}
	}
	for _, ed := range d.Edges {
		if ed.When == "" {
			b.AddEdge(ed.From, ed.To)
			continue
		}
		pred, err := cat.predicate(ed.When)
		if err != nil {
			return nil, types.NewError(types.ErrWorkflowConfig, fmt.Sprintf("edge %s -> %s", ed.From, ed.To)).WithCause(err)
		}
		b.AddLabeledEdge(ed.From, ed.To, ed.Label, pred)
	}
	for _, ld := range d.Loops {
		policy, ok := cat.Policies[ld.Policy]
		if !ok {
			pred, err := cat.predicate(ld.Policy)
			if err != nil {
				return nil, types.NewError(types.ErrWorkflowConfig, fmt.Sprintf("loop %s: unknown policy %q", ld.Name, ld.Policy))
			}
			policy = ContinueWhile(pred)
		}
		b.AddLoop(Loop{
			Name:          ld.Name,
			Start:         ld.Start,
			End:           ld.End,
			Policy:        policy,
			MaxIterations: ld.MaxIterations,
		})
	}
	return b.SetEntry(d.Entry).Build()
}

// ValidateDefinition checks structural requirements that do not need a catalog.
func ValidateDefinition(def *Definition) error {
	if def == nil {
		return fmt.Errorf("definition is nil")
	}
	if def.Name == "" {
		return fmt.Errorf("workflow name is required")
	}
	if len(def.Nodes) == 0 {
		return fmt.Errorf("workflow must have at least one node")
	}
	if def.Entry == "" {
		return fmt.Errorf("entry node is required")
	}
	names := make(map[string]bool, len(def.Nodes))
	for _, n := range def.Nodes {
		if n.Name == "" {
			return fmt.Errorf("node name is required")
		}
		if names[n.Name] {
			return fmt.Errorf("duplicate node name: %s", n.Name)
		}
		names[n.Name] = true
		switch NodeKind(n.Kind) {
		case NodeAgent, NodeTask, NodeDecision, NodeMerge, NodeTerminal:
		case NodeFanOut:
			if n.Join == "" {
				return fmt.Errorf("node %s: fan_out requires join", n.Name)
			}
			if len(n.Branches) == 0 {
				return fmt.Errorf("node %s: fan_out requires branches", n.Name)
			}
		case "":
			return fmt.Errorf("node %s: kind is required", n.Name)
		default:
			return fmt.Errorf("node %s: invalid node kind: %s", n.Name, n.Kind)
		}
	}
	if !names[def.Entry] {
		return fmt.Errorf("entry node %s does not exist", def.Entry)
	}
	for _, e := range def.Edges {
		if !names[e.From] || !names[e.To] {
			return fmt.Errorf("edge %s -> %s references unknown node", e.From, e.To)
		}
	}
	for _, l := range def.Loops {
		if l.Name == "" || l.Policy == "" {
			return fmt.Errorf("loop requires name and policy")
		}
		if l.MaxIterations <= 0 {
			return fmt.Errorf("loop %s: requires positive max_iterations", l.Name)
		}
	}
	return nil
}

// ToJSON converts a Definition to an indented JSON string.
func (d *Definition) ToJSON() (string, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal to JSON: %w", err)
	}
	return string(data), nil
}

// ToYAML converts a Definition to a YAML string.
func (d *Definition) ToYAML() (string, error) {
	data, err := yaml.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("failed to marshal to YAML: %w", err)
	}
	return string(data), nil
}

// DefinitionFromJSON parses a JSON definition.
func DefinitionFromJSON(data []byte) (*Definition, error) {
	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to unmarshal from JSON: %w", err)
	}
	return &def, nil
}

// DefinitionFromYAML parses a YAML definition.
func DefinitionFromYAML(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to unmarshal from YAML: %w", err)
	}
	return &def, nil
}

// LoadDefinition reads a definition file, choosing the format by extension.
func LoadDefinition(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return DefinitionFromJSON(data)
	default:
		return DefinitionFromYAML(data)
	}
}
