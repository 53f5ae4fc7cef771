package agent

import (
	"fmt"
	"sort"
	"sync"

	"github.com/BaSui01/consultflow/llm"
	"github.com/BaSui01/consultflow/types"
	"github.com/BaSui01/consultflow/workflow"
	"go.uber.org/zap"
)

// Dependencies are shared by every agent a registry creates.
type Dependencies struct {
	Generator llm.Generator
	Prompts   *PromptBuilder
	Options   llm.Options
	Logger    *zap.Logger
}

// Factory creates the agent unit for a role.
type Factory func(role types.Role, deps Dependencies) (workflow.AgentUnit, error)

// Registry manages role registration and agent creation. Role names are
// resolved through types.ResolveRole once, here.
type Registry struct {
	mu        sync.RWMutex
	factories map[types.Role]Factory
	deps      Dependencies
	logger    *zap.Logger
}

// NewRegistry creates a registry with a specialist factory for every role.
func NewRegistry(deps Dependencies) *Registry {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	r := &Registry{
		factories: make(map[types.Role]Factory),
		deps:      deps,
		logger:    deps.Logger.With(zap.String("component", "agent_registry")),
	}
	r.registerBuiltinRoles()
	return r
}

func (r *Registry) registerBuiltinRoles() {
	for _, role := range types.Roles() {
		if role == types.RoleClientCommunication {
			continue
		}
		r.factories[role] = specialistFactory
	}
	r.factories[types.RoleClientCommunication] = func(_ types.Role, d Dependencies) (workflow.AgentUnit, error) {
		return NewCommunicationAgent(d.Generator, d.Logger, WithPromptBuilder(d.Prompts), WithGenerateOptions(d.Options)), nil
	}
}

func specialistFactory(role types.Role, d Dependencies) (workflow.AgentUnit, error) {
	return NewSpecialist(role, d.Generator, d.Logger, WithPromptBuilder(d.Prompts), WithGenerateOptions(d.Options)), nil
}

// Register replaces the factory for a role.
func (r *Registry) Register(role types.Role, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[role] = factory
	r.logger.Debug("agent role registered", zap.String("role", string(role)))
}

// Create builds the unit for a role name or alias.
func (r *Registry) Create(name string) (workflow.AgentUnit, error) {
	role, ok := types.ResolveRole(name)
	if !ok {
		return nil, types.NewError(types.ErrWorkflowConfig, fmt.Sprintf("unknown agent role %q", name))
	}
	r.mu.RLock()
	factory, exists := r.factories[role]
	r.mu.RUnlock()
	if !exists {
		return nil, types.NewError(types.ErrWorkflowConfig, fmt.Sprintf("agent role %q not registered", role))
	}
	if r.deps.Generator == nil {
		return nil, types.NewError(types.ErrWorkflowConfig, "agent registry has no generator")
	}

	unit, err := factory(role, r.deps)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent %q: %w", role, err)
	}
	return unit, nil
}

// MustCreate is Create for built-in roles; it panics on error.
func (r *Registry) MustCreate(role types.Role) workflow.AgentUnit {
	u, err := r.Create(string(role))
	if err != nil {
		panic(err)
	}
	return u
}

// IsRegistered checks if a role has a factory.
func (r *Registry) IsRegistered(role types.Role) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[role]
	return ok
}

// ListRoles returns registered roles in priority order.
func (r *Registry) ListRoles() []types.Role {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.Role, 0, len(r.factories))
	for role := range r.factories {
		out = append(out, role)
	}
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := out[i].Priority(), out[j].Priority()
		if pi < 0 || pj < 0 {
			if pi == pj {
				return out[i] < out[j]
			}
			return pj < 0
		}
		return pi < pj
	})
	return out
}
