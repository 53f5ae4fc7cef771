package workflow

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/BaSui01/consultflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const definitionYAML = `
name: yaml-flow
entry: greeting
nodes:
  - name: greeting
    kind: task
    ref: detect_greeting
  - name: solution_architect
    kind: agent
    critical: false
  - name: technical_research
    kind: agent
  - name: compile
    kind: terminal
edges:
  - from: greeting
    to: compile
    when: has_final_response
  - from: greeting
    to: solution_architect
  - from: solution_architect
    to: technical_research
  - from: technical_research
    to: compile
loops:
  - name: refinement_loop
    start: solution_architect
    end: technical_research
    policy: not:status:technical_research=completed
    max_iterations: 2
`

func testCatalog() *Catalog {
	return NewCatalog().
		RegisterUnit(newMockUnit("solution_architect", "Architecture.")).
		RegisterUnit(newMockUnit("technical_research", "Research.")).
		RegisterTask("detect_greeting", func(_ context.Context, s *State) (Update, error) {
			if s.Query() == "hi" {
				return Update{}.WithFinalResponse("Hello!"), nil
			}
			return Update{}, nil
		})
}

func TestDefinition_YAMLBuildAndRun(t *testing.T) {
	def, err := DefinitionFromYAML([]byte(definitionYAML))
	require.NoError(t, err)
	assert.Equal(t, "yaml-flow", def.Name)
	require.Len(t, def.Loops, 1)

	g, err := def.Build(testCatalog(), zap.NewNop())
	require.NoError(t, err)

	run, err := newTestExecutor().Execute(context.Background(), g, NewState("design a system", nil))
	require.NoError(t, err)
	assert.Equal(t, "Architecture.\n\nResearch.", run.FinalResponse)
	assert.Equal(t, 1, run.LoopCounters["refinement_loop"])

	greet, err := newTestExecutor().Execute(context.Background(), g, NewState("hi", nil))
	require.NoError(t, err)
	assert.Equal(t, "Hello!", greet.FinalResponse)
}

func TestDefinition_RoundTripJSONFile(t *testing.T) {
	def, err := DefinitionFromYAML([]byte(definitionYAML))
	require.NoError(t, err)

	js, err := def.ToJSON()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "flow.json")
	require.NoError(t, os.WriteFile(path, []byte(js), 0o600))

	loaded, err := LoadDefinition(path)
	require.NoError(t, err)
	assert.Equal(t, def.Edges, loaded.Edges)
	assert.Equal(t, def.Loops, loaded.Loops)

	y, err := loaded.ToYAML()
	require.NoError(t, err)
	assert.Contains(t, y, "max_iterations: 2")
}

func TestDefinition_Errors(t *testing.T) {
	tests := []struct {
		name    string
		def     *Definition
		catalog *Catalog
		message string
	}{
		{
			name:    "missing name",
			def:     &Definition{Entry: "a", Nodes: []NodeDefinition{{Name: "a", Kind: "terminal"}}},
			message: "workflow name is required",
		},
		{
			name:    "invalid kind",
			def:     &Definition{Name: "d", Entry: "a", Nodes: []NodeDefinition{{Name: "a", Kind: "loop"}}},
			message: "invalid node kind",
		},
		{
			name: "unknown unit",
			def: &Definition{Name: "d", Entry: "a", Nodes: []NodeDefinition{
				{Name: "a", Kind: "agent"}, {Name: "end", Kind: "terminal"},
			}, Edges: []EdgeDefinition{{From: "a", To: "end"}}},
			catalog: NewCatalog(),
			message: "unknown agent unit",
		},
		{
			name: "unknown predicate",
			def: &Definition{Name: "d", Entry: "a", Nodes: []NodeDefinition{
				{Name: "a", Kind: "decision"}, {Name: "end", Kind: "terminal"},
			}, Edges: []EdgeDefinition{{From: "a", To: "end", When: "bogus"}, {From: "a", To: "end"}}},
			catalog: NewCatalog(),
			message: "unknown predicate",
		},
		{
			name: "loop over context task",
			def: &Definition{Name: "d", Entry: "fetch", Nodes: []NodeDefinition{
				{Name: "fetch", Kind: "task"}, {Name: "end", Kind: "terminal"},
			}, Edges: []EdgeDefinition{{From: "fetch", To: "end"}},
				Loops: []LoopDefinition{{Name: "l", Start: "fetch", End: "fetch", Policy: "again", MaxIterations: 2}}},
			catalog: NewCatalog().
				RegisterContextTask("fetch", retrieveTask()).
				RegisterPolicy("again", Never()),
			message: "repeats context task",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.def.Build(tt.catalog, nil)
			require.Error(t, err)
			assert.True(t, types.IsErrorCode(err, types.ErrWorkflowConfig))
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}
