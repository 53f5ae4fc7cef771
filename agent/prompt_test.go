package agent

import (
	"strings"
	"testing"

	"github.com/BaSui01/consultflow/testutil/fixtures"
	"github.com/BaSui01/consultflow/types"
	"github.com/BaSui01/consultflow/workflow"
	"github.com/stretchr/testify/assert"
)

func TestSystemPrompt(t *testing.T) {
	for _, r := range types.Roles() {
		assert.NotEqual(t, SystemPrompt("unknown"), SystemPrompt(r), "role %s needs a prompt", r)
	}
	assert.Contains(t, SystemPrompt("unknown"), "technology consultant")
}

func TestPromptBuilder_EmptyState(t *testing.T) {
	st := workflow.NewState(fixtures.QueryRemoteWork, nil)
	p := NewPromptBuilder(nil).Build(types.RoleSolutionArchitect, st, false)

	assert.Contains(t, p.System, "Solution Architect")
	assert.Contains(t, p.System, "Respond in English (en)")
	assert.Contains(t, p.User, "Conversation so far:\nNo previous conversation.")
	assert.Contains(t, p.User, "Context documents:\nNo additional context available.")
	assert.NotContains(t, p.User, InsightsDocumentID)
	assert.True(t, strings.HasSuffix(p.User, "Query: "+fixtures.QueryRemoteWork))
}

func TestPromptBuilder_HistoryDocumentsLanguage(t *testing.T) {
	st := workflow.NewState(fixtures.QuerySpanish, fixtures.ConversationHistory())
	st = stateAfter(t, st, []workflow.TaskFunc{
		languageTask("es"),
		contextTask(fixtures.ConsultingDocuments()...),
	})

	p := NewPromptBuilder(nil).Build(types.RoleCloudArchitecture, st, false)
	assert.Contains(t, p.System, "Respond in Spanish (es)")
	assert.Contains(t, p.User, "User: We are a 200 person logistics company.")
	assert.Contains(t, p.User, "Assistant: Thanks, that helps me tailor the recommendations.")
	assert.Contains(t, p.User, "Document 1: Remote Work Policy [doc-remote-work]")
	assert.Contains(t, p.User, "Document 3: Security Baseline [doc-security-baseline]")
}

func TestPromptBuilder_HistoryLimit(t *testing.T) {
	st := workflow.NewState("Summarize our options", fixtures.LongHistory(5))
	p := NewPromptBuilder(nil, WithHistoryTurns(2)).Build(types.RoleTechnicalResearch, st, false)

	assert.Equal(t, 2, strings.Count(p.User, " message"))
	assert.Contains(t, p.User, "Assistant: assistant message\nUser: user message")
}

func TestPromptBuilder_ContextBudget(t *testing.T) {
	doc := types.ContextDocument{
		ID:      "doc-long",
		Title:   "Long Document",
		Snippet: strings.Repeat("lorem ipsum ", 100) + "TAILMARKER",
	}
	st := stateAfter(t, workflow.NewState("q", nil), []workflow.TaskFunc{contextTask(doc)})

	p := NewPromptBuilder(nil, WithContextBudget(20)).Build(types.RoleTechnicalResearch, st, false)
	assert.Contains(t, p.User, "Document 1: Long Document")
	assert.NotContains(t, p.User, "TAILMARKER")

	p = NewPromptBuilder(nil, WithContextBudget(0)).Build(types.RoleTechnicalResearch, st, false)
	assert.Contains(t, p.User, "TAILMARKER", "zero budget disables truncation")
}

func TestPromptBuilder_Insights(t *testing.T) {
	st := stateAfter(t, workflow.NewState(fixtures.QueryCloudMigration, nil), nil,
		staticUnit(types.RoleCloudArchitecture, "Use a landing zone."),
		staticUnit(types.RoleSolutionArchitect, "Use a modular monolith."),
		failedUnit(types.RoleTechnicalResearch, "technical_research unavailable"),
		staticUnit(types.RoleClientCommunication, "previous draft"),
	)

	p := NewPromptBuilder(nil).Build(types.RoleClientCommunication, st, true)
	assert.Contains(t, p.User, "Agent insights ("+InsightsDocumentID+"):")
	assert.Contains(t, p.User, "--- Solution Architect ---\nUse a modular monolith.")
	assert.NotContains(t, p.User, "technical_research unavailable")
	assert.NotContains(t, p.User, "previous draft")

	arch := strings.Index(p.User, "Solution Architect")
	cloud := strings.Index(p.User, "Cloud Architecture")
	assert.Less(t, arch, cloud, "insights follow role priority")
}
