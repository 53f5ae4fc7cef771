// =============================================================================
// 📦 测试数据工厂 - 咨询场景
// =============================================================================
// 提供知识库文档、典型查询与对话历史，用于工作流与 API 测试
// =============================================================================
package fixtures

import (
	"github.com/BaSui01/consultflow/types"
)

// 典型查询
const (
	QueryRemoteWork     = "What is our remote work policy?"
	QueryCloudMigration = "How should we migrate our on-premise ERP to the cloud and what are the security risks?"
	QueryCodeReview     = "Can you review this function? def total(xs): return sum(xs)"
	QueryProjectPlan    = "We need a project plan and timeline for a new mobile app"
	QueryGreeting       = "Hello!"
	QueryGreetingES     = "Hola, buenos días"
	QuerySpanish        = "¿Cuál es la mejor estrategia para migrar nuestros datos a la nube?"
)

// ConsultingDocuments 返回检索用的示例文档
func ConsultingDocuments() []types.ContextDocument {
	return []types.ContextDocument{
		{
			ID:      "doc-remote-work",
			Title:   "Remote Work Policy",
			Snippet: "Employees may work remotely up to three days per week with manager approval.",
			Score:   0.92,
		},
		{
			ID:      "doc-cloud-playbook",
			Title:   "Cloud Migration Playbook",
			Snippet: "Assess workloads, pick a landing zone and migrate in waves with rollback plans.",
			Score:   0.81,
		},
		{
			ID:      "doc-security-baseline",
			Title:   "Security Baseline",
			Snippet: "Enable MFA, rotate credentials and encrypt data at rest and in transit.",
			Score:   0.64,
		},
	}
}

// ConversationHistory 返回两轮历史对话
func ConversationHistory() []types.Turn {
	return []types.Turn{
		types.NewUserTurn("We are a 200 person logistics company."),
		types.NewAssistantTurn("Thanks, that helps me tailor the recommendations."),
	}
}

// LongHistory 返回 n 轮交替的历史对话
func LongHistory(n int) []types.Turn {
	out := make([]types.Turn, 0, n)
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			out = append(out, types.NewUserTurn("user message"))
		} else {
			out = append(out, types.NewAssistantTurn("assistant message"))
		}
	}
	return out
}
