package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/consultflow/llm"
	"github.com/BaSui01/consultflow/types"
	"github.com/BaSui01/consultflow/workflow"
	"go.uber.org/zap"
)

// Specialist is a language-model backed agent unit for one role. It never
// writes to state; the executor stores its response.
type Specialist struct {
	role     types.Role
	gen      llm.Generator
	prompts  *PromptBuilder
	opts     llm.Options
	insights bool
	logger   *zap.Logger
}

// SpecialistOption configures a Specialist.
type SpecialistOption func(*Specialist)

// WithPromptBuilder overrides the default prompt builder.
func WithPromptBuilder(b *PromptBuilder) SpecialistOption {
	return func(s *Specialist) { s.prompts = b }
}

// WithGenerateOptions sets model parameters for every call.
func WithGenerateOptions(o llm.Options) SpecialistOption {
	return func(s *Specialist) { s.opts = o }
}

// WithInsights feeds the other agents' outputs into the prompt.
func WithInsights() SpecialistOption {
	return func(s *Specialist) { s.insights = true }
}

// NewSpecialist creates the agent unit for role.
func NewSpecialist(role types.Role, gen llm.Generator, logger *zap.Logger, opts ...SpecialistOption) *Specialist {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Specialist{
		role:   role,
		gen:    gen,
		logger: logger.With(zap.String("component", "agent"), zap.String("role", string(role))),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.prompts == nil {
		s.prompts = NewPromptBuilder(nil)
	}
	return s
}

// NewCommunicationAgent creates the client communication unit, which writes
// the final prose from the other agents' insights.
func NewCommunicationAgent(gen llm.Generator, logger *zap.Logger, opts ...SpecialistOption) *Specialist {
	return NewSpecialist(types.RoleClientCommunication, gen, logger, append(opts, WithInsights())...)
}

// Name implements workflow.AgentUnit.
func (s *Specialist) Name() string { return string(s.role) }

// Role returns the specialization.
func (s *Specialist) Role() types.Role { return s.role }

// Invoke implements workflow.AgentUnit. Model failures become an error
// response with a short diagnostic; only cancellation is returned as error.
func (s *Specialist) Invoke(ctx context.Context, st *workflow.State) (types.AgentResponse, error) {
	start := time.Now()
	prompt := s.prompts.Build(s.role, st, s.insights)

	opts := s.opts
	if opts.TraceID == "" {
		opts.TraceID, _ = types.RunID(ctx)
	}
	opts.Agent = s.Name()
	text, err := s.gen.Generate(ctx, prompt, opts)
	if err != nil {
		if ctx.Err() != nil {
			return types.AgentResponse{}, ctx.Err()
		}
		s.logger.Warn("agent invocation failed", append(types.LogFields(ctx),
			zap.Duration("duration", time.Since(start)), zap.Error(err))...)
		return types.NewAgentError(s.Name(), fmt.Sprintf("%s unavailable: %s", s.role, diagnose(err))), nil
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return types.NewAgentError(s.Name(), fmt.Sprintf("%s unavailable: empty response", s.role)), nil
	}

	s.logger.Debug("agent completed", zap.Duration("duration", time.Since(start)), zap.Int("chars", len(text)))
	return types.NewAgentResponse(s.Name(), text, documentIDs(st.ContextDocuments())...), nil
}

// diagnose turns an invocation error into a short user-safe reason.
func diagnose(err error) string {
	switch types.GetErrorCode(err) {
	case types.ErrUpstreamTimeout:
		return "the language model timed out"
	case types.ErrQuotaExceeded:
		return "the language model quota is exhausted"
	case types.ErrRateLimited:
		return "the language model is rate limited"
	case types.ErrAuthentication:
		return "the language model rejected the credentials"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "the language model timed out"
	}
	return "the language model request failed"
}

func documentIDs(docs []types.ContextDocument) []string {
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	return ids
}
