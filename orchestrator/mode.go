package orchestrator

import (
	"fmt"
	"strings"

	"github.com/BaSui01/consultflow/types"
)

// Mode selects the graph variant a run executes.
type Mode string

const (
	// ModeStandard runs the selected specialists one after another.
	ModeStandard Mode = "standard"
	// ModeParallel runs the configured branches concurrently.
	ModeParallel Mode = "parallel"
	// ModeFeedbackLoop repeats architecture and research until the
	// refinement policy is satisfied or the ceiling is reached.
	ModeFeedbackLoop Mode = "feedback_loop"
	// ModeObservable is the standard graph with every transition recorded
	// and returned with the result.
	ModeObservable Mode = "observable"
)

// Modes returns every supported mode.
func Modes() []Mode {
	return []Mode{ModeStandard, ModeParallel, ModeFeedbackLoop, ModeObservable}
}

// ParseMode resolves a mode name. The empty string means standard.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeStandard, nil
	case ModeStandard, ModeParallel, ModeFeedbackLoop, ModeObservable:
		return m, nil
	case "feedback", "loop":
		return ModeFeedbackLoop, nil
	}
	return "", types.NewError(types.ErrInvalidRequest, fmt.Sprintf("unknown workflow mode %q", s))
}
