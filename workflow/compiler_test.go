package workflow

import (
	"testing"

	"github.com/BaSui01/consultflow/types"
	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestCompiler_PriorityOrder(t *testing.T) {
	st := NewState("q", nil)
	st.putOutput("client_communication", types.NewAgentResponse("client_communication", "Summary.", "doc-3"))
	st.putOutput("market_analysis", types.NewAgentResponse("market_analysis", "Market.", "doc-2"))
	st.putOutput("solution_architect", types.NewAgentResponse("solution_architect", "Architecture.", "doc-1", "doc-2"))
	st.putOutput("custom_agent", types.NewAgentResponse("custom_agent", "Custom."))
	st.putOutput("code_review", types.NewAgentError("code_review", "code_review unavailable"))

	c := NewCompiler()
	assert.Equal(t, "Architecture.\n\nMarket.\n\nSummary.\n\nCustom.", c.Compile(st))
	assert.Equal(t, []string{"doc-1", "doc-2", "doc-3"}, c.Sources(st))
}

func TestCompiler_PresetFinalResponseIsVerbatim(t *testing.T) {
	st := NewState("hi", nil)
	st.putOutput("solution_architect", types.NewAgentResponse("solution_architect", "ignored"))
	_ = st.setFinalResponse("  Hello there!  ")

	assert.Equal(t, "  Hello there!  ", NewCompiler().Compile(st))
}

func TestCompiler_Options(t *testing.T) {
	st := NewState("q", nil)
	st.putOutput("b", types.NewAgentResponse("b", "B"))
	st.putOutput("a", types.NewAgentResponse("a", "A"))

	c := NewCompiler(WithPriority("b", "a"), WithSeparator(" | "), WithFallback("none"))
	assert.Equal(t, "B | A", c.Compile(st))
	assert.Equal(t, "none", c.Compile(NewState("q", nil)))
}

func TestCompiler_IdempotentAndDeduplicated(t *testing.T) {
	names := []string{"solution_architect", "technical_research", "code_review", "market_analysis", "client_communication", "extra"}
	rapid.Check(t, func(t *rapid.T) {
		st := NewState("q", nil)
		for _, name := range names {
			if !rapid.Bool().Draw(t, name+"_present") {
				continue
			}
			content := rapid.StringMatching(`[a-z ]{0,20}`).Draw(t, name+"_content")
			sources := rapid.SliceOfN(rapid.SampledFrom([]string{"d1", "d2", "d3", ""}), 0, 5).Draw(t, name+"_sources")
			resp := types.AgentResponse{Content: content, Sources: sources, AgentName: name, Status: types.AgentStatusCompleted}
			if rapid.Bool().Draw(t, name+"_failed") {
				resp.Status = types.AgentStatusError
			}
			st.putOutput(name, resp)
		}

		c := NewCompiler()
		first := c.Compile(st)
		if second := c.Compile(st); first != second {
			t.Fatalf("compile not idempotent: %q vs %q", first, second)
		}
		if first == "" {
			t.Fatalf("compile returned empty response")
		}

		seen := map[string]bool{}
		for _, id := range c.Sources(st) {
			if id == "" || seen[id] {
				t.Fatalf("sources not deduplicated: %v", c.Sources(st))
			}
			seen[id] = true
		}

		// A compiled response stored as final is returned unchanged.
		_ = st.setFinalResponse(first)
		if got := c.Compile(st); got != first {
			t.Fatalf("preset response changed: %q vs %q", got, first)
		}
	})
}
