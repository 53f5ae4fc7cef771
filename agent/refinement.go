package agent

import (
	"strings"
	"unicode/utf8"

	"github.com/BaSui01/consultflow/types"
	"github.com/BaSui01/consultflow/workflow"
)

// RefinementPolicy decides whether a refinement loop runs again. It asks
// for another pass while the watched agent's output is missing, errored, or
// shorter than MinContentLength runes. The executor enforces the iteration
// ceiling independently.
type RefinementPolicy struct {
	Watch            types.Role
	MinContentLength int
}

// DefaultRefinementPolicy watches technical research.
func DefaultRefinementPolicy(minContentLength int) RefinementPolicy {
	return RefinementPolicy{Watch: types.RoleTechnicalResearch, MinContentLength: minContentLength}
}

// Continue implements workflow.LoopPolicy.
func (p RefinementPolicy) Continue(st *workflow.State, _ int) bool {
	resp, ok := st.Output(string(p.Watch))
	if !ok || !resp.Completed() {
		return true
	}
	return utf8.RuneCountInString(strings.TrimSpace(resp.Content)) < p.MinContentLength
}
