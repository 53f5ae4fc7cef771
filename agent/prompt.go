package agent

import (
	"fmt"
	"strings"

	"github.com/BaSui01/consultflow/llm"
	"github.com/BaSui01/consultflow/llm/tokenizer"
	"github.com/BaSui01/consultflow/types"
	"github.com/BaSui01/consultflow/workflow"
)

// InsightsDocumentID names the synthetic document that carries other
// agents' outputs into the communication prompt.
const InsightsDocumentID = "agent_insights"

var rolePrompts = map[types.Role]string{
	types.RoleSolutionArchitect: "You are a Solution Architect. Assess the technical requirements and propose an architectural approach, " +
		"covering scalability, integration with existing systems, and constraints.",
	types.RoleTechnicalResearch: "You are a Technical Researcher. Investigate the technologies relevant to the query and compare the viable options with their trade-offs.",
	types.RoleCodeReview:        "You are a Code Reviewer. Analyze the code or engineering practice in question and suggest concrete improvements.",
	types.RoleProjectManagement: "You are a Project Manager. Outline phases, an effort estimate, team composition and the main delivery risks.",
	types.RoleMarketAnalysis:    "You are a Market Analyst. Describe relevant market trends, competitors and adoption signals.",
	types.RoleDataAnalysis:      "You are a Data Analyst. Explain which data and metrics matter and how to analyze them.",
	types.RoleCloudArchitecture: "You are a Cloud Architect. Recommend cloud services, deployment topology and migration steps.",
	types.RoleCyberSecurity:     "You are a Cybersecurity Specialist. Identify threats and vulnerabilities and recommend security controls.",
	types.RoleSystemsIntegration: "You are a Systems Integration Specialist. Explain how to connect the systems involved, " +
		"including APIs, middleware and data contracts.",
	types.RoleDigitalTransformation: "You are a Digital Transformation Consultant. Evaluate digital maturity and recommend a transformation path.",
	types.RoleAgileMethodologies:    "You are an Agile Coach. Recommend agile practices and ceremonies suited to the team and project.",
	types.RoleClientCommunication: "You are a Client Communication Specialist. Write the final answer for the client in clear, non-technical prose, " +
		"drawing on the insights of the other consultants.",
}

// SystemPrompt returns the instruction text for a role.
func SystemPrompt(role types.Role) string {
	if p, ok := rolePrompts[role]; ok {
		return p
	}
	return "You are a technology consultant. Please help with the following query."
}

// PromptBuilder renders agent prompts from workflow state within a token
// budget.
type PromptBuilder struct {
	tok           tokenizer.Tokenizer
	contextBudget int
	historyTurns  int
}

// PromptOption configures a PromptBuilder.
type PromptOption func(*PromptBuilder)

// WithContextBudget caps the tokens spent on documents and insights.
func WithContextBudget(tokens int) PromptOption {
	return func(b *PromptBuilder) { b.contextBudget = tokens }
}

// WithHistoryTurns caps how many recent turns are included.
func WithHistoryTurns(n int) PromptOption {
	return func(b *PromptBuilder) { b.historyTurns = n }
}

// NewPromptBuilder creates a builder; a nil tokenizer uses the estimator.
func NewPromptBuilder(tok tokenizer.Tokenizer, opts ...PromptOption) *PromptBuilder {
	if tok == nil {
		tok = tokenizer.NewEstimatorTokenizer("", 0)
	}
	b := &PromptBuilder{tok: tok, contextBudget: 2000, historyTurns: 10}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build renders the prompt for role. With insights set, completed outputs of
// the other agents are appended as an extra context section.
func (b *PromptBuilder) Build(role types.Role, st *workflow.State, insights bool) llm.Prompt {
	lang := st.Language()
	if lang == "" {
		lang = DefaultLanguage
	}
	system := SystemPrompt(role) + fmt.Sprintf(
		"\nRespond in %s (%s), the language used by the user.", LanguageName(lang), lang)

	history := st.History()
	if b.historyTurns > 0 && len(history) > b.historyTurns {
		history = history[len(history)-b.historyTurns:]
	}

	var sb strings.Builder
	sb.WriteString("Conversation so far:\n")
	sb.WriteString(formatHistory(history))
	sb.WriteString("\n\nContext documents:\n")
	sb.WriteString(b.fit(formatDocuments(st.ContextDocuments())))
	if insights {
		if text := formatInsights(st, role); text != "" {
			sb.WriteString("\n\nAgent insights (" + InsightsDocumentID + "):\n")
			sb.WriteString(b.fit(text))
		}
	}
	sb.WriteString("\n\nQuery: ")
	sb.WriteString(st.Query())

	return llm.Prompt{System: system, User: sb.String()}
}

func (b *PromptBuilder) fit(text string) string {
	if b.contextBudget <= 0 {
		return text
	}
	out, err := b.tok.Truncate(text, b.contextBudget)
	if err != nil {
		return text
	}
	return out
}

func formatHistory(turns []types.Turn) string {
	if len(turns) == 0 {
		return "No previous conversation."
	}
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		speaker := "User"
		switch t.Role {
		case types.SpeakerAssistant:
			speaker = "Assistant"
		case types.SpeakerSystem:
			speaker = "System"
		}
		lines = append(lines, speaker+": "+t.Text)
	}
	return strings.Join(lines, "\n")
}

func formatDocuments(docs []types.ContextDocument) string {
	if len(docs) == 0 {
		return "No additional context available."
	}
	parts := make([]string, 0, len(docs))
	for i, d := range docs {
		parts = append(parts, fmt.Sprintf("Document %d: %s [%s]\n%s", i+1, d.Title, d.ID, d.Snippet))
	}
	return strings.Join(parts, "\n\n")
}

// formatInsights lists completed outputs other than self in priority order.
func formatInsights(st *workflow.State, self types.Role) string {
	outputs := st.Outputs()
	var parts []string
	for _, r := range types.Roles() {
		if r == self {
			continue
		}
		if resp, ok := outputs[string(r)]; ok && resp.Completed() && strings.TrimSpace(resp.Content) != "" {
			parts = append(parts, fmt.Sprintf("--- %s ---\n%s", r.Title(), strings.TrimSpace(resp.Content)))
		}
	}
	return strings.Join(parts, "\n\n")
}
