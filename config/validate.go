package config

import (
	"errors"
	"fmt"
	"slices"
)

var (
	workflowModes   = []string{"", "standard", "parallel", "feedback_loop", "observable"}
	historyBackends = []string{"", "memory", "redis", "database"}
	retrievalKinds  = []string{"none", "memory", "database"}
)

// Validate 一次返回全部问题
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if p := c.Server.HTTPPort; p < 1 || p > 65535 {
		fail("invalid HTTP port %d", p)
	}
	if p := c.Server.MetricsPort; p < 0 || p > 65535 {
		fail("invalid metrics port %d", p)
	}

	w := c.Workflow
	if !slices.Contains(workflowModes, w.DefaultMode) {
		fail("unknown workflow mode %q", w.DefaultMode)
	}
	if w.MaxIterations < 1 {
		fail("workflow.max_iterations must be at least 1, got %d", w.MaxIterations)
	}
	if w.RefinementMinLength < 0 {
		fail("workflow.refinement_min_length must not be negative")
	}
	if !slices.Contains(historyBackends, w.HistoryBackend) {
		fail("unknown history backend %q", w.HistoryBackend)
	}

	switch c.LLM.Provider {
	case "offline":
	case "openai":
		if c.LLM.APIKey == "" {
			fail("llm.api_key is required for the openai provider")
		}
	default:
		fail("unknown llm provider %q", c.LLM.Provider)
	}
	if t := c.LLM.Temperature; t < 0 || t > 2 {
		fail("llm.temperature %.2f outside [0, 2]", t)
	}

	if !slices.Contains(retrievalKinds, c.Retrieval.Backend) {
		fail("unknown retrieval backend %q", c.Retrieval.Backend)
	}
	if c.Retrieval.TopK < 0 {
		fail("retrieval.top_k must not be negative")
	}

	if c.JWT.Enabled && c.JWT.Secret == "" && c.JWT.PublicKey == "" {
		fail("jwt.secret or jwt.public_key is required when jwt is enabled")
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("invalid config: %w", errors.Join(errs...))
}

// DSN 按驱动拼接连接串，未知驱动返回空串
func (d DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true", d.User, d.Password, d.Host, d.Port, d.Name)
	case "sqlite":
		return d.Name
	}
	return ""
}
