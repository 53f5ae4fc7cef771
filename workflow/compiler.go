package workflow

import (
	"sort"
	"strings"

	"github.com/BaSui01/consultflow/types"
)

// DefaultFallbackResponse is returned when no agent produced usable content.
const DefaultFallbackResponse = "I'm sorry, I couldn't generate a complete response. Could you please rephrase your question?"

// Compiler turns agent outputs into the final response text.
// Compile is a pure function of state and therefore idempotent.
type Compiler struct {
	order     []string
	fallback  string
	separator string
}

// CompilerOption configures a Compiler.
type CompilerOption func(*Compiler)

// WithPriority replaces the output key priority order.
func WithPriority(keys ...string) CompilerOption {
	return func(c *Compiler) { c.order = append([]string(nil), keys...) }
}

// WithFallback sets the text returned when nothing completed.
func WithFallback(text string) CompilerOption {
	return func(c *Compiler) { c.fallback = text }
}

// WithSeparator sets the text placed between sections.
func WithSeparator(sep string) CompilerOption {
	return func(c *Compiler) { c.separator = sep }
}

// NewCompiler creates a compiler ordered by role priority.
func NewCompiler(opts ...CompilerOption) *Compiler {
	c := &Compiler{
		fallback:  DefaultFallbackResponse,
		separator: "\n\n",
	}
	for _, r := range types.Roles() {
		c.order = append(c.order, r.String())
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile returns the preset final response verbatim when one exists;
// otherwise it concatenates completed outputs in priority order.
func (c *Compiler) Compile(s *State) string {
	if fr, ok := s.FinalResponse(); ok {
		return fr
	}
	var sections []string
	for _, resp := range c.Contributors(s) {
		if text := strings.TrimSpace(resp.Content); text != "" {
			sections = append(sections, text)
		}
	}
	if len(sections) == 0 {
		return c.fallback
	}
	return strings.Join(sections, c.separator)
}

// Sources returns the deduplicated sources of contributing outputs in
// first-seen order.
func (c *Compiler) Sources(s *State) []string {
	var all []string
	for _, resp := range c.Contributors(s) {
		all = append(all, resp.Sources...)
	}
	return types.DedupSources(all)
}

// Contributors returns completed outputs: priority keys first, then any
// other keys alphabetically.
func (c *Compiler) Contributors(s *State) []types.AgentResponse {
	outputs := s.Outputs()
	ranked := make(map[string]bool, len(c.order))
	var out []types.AgentResponse
	for _, key := range c.order {
		ranked[key] = true
		if resp, ok := outputs[key]; ok && resp.Completed() {
			out = append(out, resp)
		}
	}
	var rest []string
	for key, resp := range outputs {
		if !ranked[key] && resp.Completed() {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	for _, key := range rest {
		out = append(out, outputs[key])
	}
	return out
}
