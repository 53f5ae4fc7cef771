package agent

import (
	"context"
	"fmt"
	"testing"

	"github.com/BaSui01/consultflow/types"
	"github.com/BaSui01/consultflow/workflow"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stateAfter runs tasks then units in sequence and returns the final state.
func stateAfter(t *testing.T, st *workflow.State, tasks []workflow.TaskFunc, units ...workflow.AgentUnit) *workflow.State {
	t.Helper()
	b := workflow.NewBuilder("agent_test")
	var names []string
	for i, fn := range tasks {
		name := fmt.Sprintf("task_%d", i)
		b.AddTask(name, fn)
		names = append(names, name)
	}
	for _, u := range units {
		b.AddAgent(u.Name(), u).Fixed()
		names = append(names, u.Name())
	}
	b.AddTerminal("end")
	names = append(names, "end")
	for i := 0; i < len(names)-1; i++ {
		b.AddEdge(names[i], names[i+1])
	}
	g, err := b.SetEntry(names[0]).Build()
	require.NoError(t, err)

	run, err := workflow.NewExecutor(zap.NewNop()).Execute(context.Background(), g, st)
	require.NoError(t, err)
	return run.FinalState()
}

func staticUnit(role types.Role, content string) workflow.AgentUnit {
	return workflow.NewUnit(string(role), func(context.Context, *workflow.State) (types.AgentResponse, error) {
		return types.NewAgentResponse(string(role), content), nil
	})
}

func failedUnit(role types.Role, diag string) workflow.AgentUnit {
	return workflow.NewUnit(string(role), func(context.Context, *workflow.State) (types.AgentResponse, error) {
		return types.NewAgentError(string(role), diag), nil
	})
}

func languageTask(lang string) workflow.TaskFunc {
	return func(context.Context, *workflow.State) (workflow.Update, error) {
		return workflow.Update{}.WithLanguage(lang), nil
	}
}

func contextTask(docs ...types.ContextDocument) workflow.TaskFunc {
	return func(context.Context, *workflow.State) (workflow.Update, error) {
		return workflow.Update{}.WithContext(docs), nil
	}
}
