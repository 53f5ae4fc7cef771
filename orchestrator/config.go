package orchestrator

import (
	"fmt"
	"time"

	"github.com/BaSui01/consultflow/types"
)

// BranchConfig names one parallel branch and the roles it runs in order.
type BranchConfig struct {
	Tag   string   `yaml:"tag" json:"tag"`
	Roles []string `yaml:"roles" json:"roles"`
}

// Config tunes graph construction and run limits.
type Config struct {
	RetrievalTopK           int
	ParallelBranches        []BranchConfig
	RefinementMaxIterations int
	RefinementMinLength     int
	RunTimeout              time.Duration
	// DefinitionPath optionally replaces the standard graph with a YAML or
	// JSON definition.
	DefinitionPath string
}

// DefaultParallelBranches is the technical/business split.
func DefaultParallelBranches() []BranchConfig {
	return []BranchConfig{
		{Tag: "technical", Roles: []string{string(types.RoleSolutionArchitect), string(types.RoleTechnicalResearch)}},
		{Tag: "business", Roles: []string{string(types.RoleMarketAnalysis), string(types.RoleClientCommunication)}},
	}
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		RetrievalTopK:           5,
		ParallelBranches:        DefaultParallelBranches(),
		RefinementMaxIterations: 3,
		RefinementMinLength:     200,
		RunTimeout:              2 * time.Minute,
	}
}

// Validate reports the first configuration problem.
func (c Config) Validate() error {
	if c.RetrievalTopK < 0 {
		return fmt.Errorf("retrieval top k must not be negative")
	}
	if c.RefinementMaxIterations < 1 {
		return fmt.Errorf("refinement max iterations must be at least 1")
	}
	if len(c.ParallelBranches) == 0 {
		return fmt.Errorf("at least one parallel branch is required")
	}
	seen := make(map[types.Role]string)
	for _, br := range c.ParallelBranches {
		if br.Tag == "" {
			return fmt.Errorf("parallel branch tag is required")
		}
		if len(br.Roles) == 0 {
			return fmt.Errorf("parallel branch %q has no roles", br.Tag)
		}
		for _, name := range br.Roles {
			role, ok := types.ResolveRole(name)
			if !ok {
				return fmt.Errorf("parallel branch %q: unknown role %q", br.Tag, name)
			}
			if other, dup := seen[role]; dup {
				return fmt.Errorf("role %q appears in branches %q and %q", role, other, br.Tag)
			}
			seen[role] = br.Tag
		}
	}
	return nil
}
