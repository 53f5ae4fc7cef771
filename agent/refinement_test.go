package agent

import (
	"strings"
	"testing"

	"github.com/BaSui01/consultflow/types"
	"github.com/BaSui01/consultflow/workflow"
	"github.com/stretchr/testify/assert"
)

func TestRefinementPolicy(t *testing.T) {
	policy := DefaultRefinementPolicy(40)
	assert.Equal(t, types.RoleTechnicalResearch, policy.Watch)

	empty := workflow.NewState("q", nil)
	assert.True(t, policy.Continue(empty, 1), "missing output asks for another pass")

	short := stateAfter(t, workflow.NewState("q", nil), nil,
		staticUnit(types.RoleTechnicalResearch, "Too short."))
	assert.True(t, policy.Continue(short, 1))

	failed := stateAfter(t, workflow.NewState("q", nil), nil,
		failedUnit(types.RoleTechnicalResearch, "technical_research unavailable"))
	assert.True(t, policy.Continue(failed, 1))

	long := stateAfter(t, workflow.NewState("q", nil), nil,
		staticUnit(types.RoleTechnicalResearch, strings.Repeat("detail ", 10)))
	assert.False(t, policy.Continue(long, 1))
}
