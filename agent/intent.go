package agent

import (
	"strings"
	"unicode"

	"github.com/BaSui01/consultflow/types"
)

// Intent is a coarse topic detected in a query.
type Intent string

const (
	IntentGreeting              Intent = "greeting"
	IntentCodeReview            Intent = "code_review"
	IntentProjectManagement     Intent = "project_management"
	IntentMarketAnalysis        Intent = "market_analysis"
	IntentDataAnalysis          Intent = "data_analysis"
	IntentCloudArchitecture     Intent = "cloud_architecture"
	IntentCyberSecurity         Intent = "cyber_security"
	IntentSystemsIntegration    Intent = "systems_integration"
	IntentDigitalTransformation Intent = "digital_transformation"
	IntentAgileMethodologies    Intent = "agile_methodologies"
)

var greetingPhrases = []string{
	"hello", "hi", "hey", "howdy", "greetings", "good morning", "good afternoon",
	"good evening", "hola", "buenos días", "buenos dias", "buenas tardes", "buenas noches",
	"how are you", "how's it going", "what's up", "cómo estás", "como estas", "qué tal", "que tal",
	"thank you", "thanks", "gracias", "goodbye", "bye", "adiós", "adios", "chao",
}

var questionWords = []string{
	"what", "how", "why", "when", "where", "who", "which",
	"qué", "cómo", "por qué", "cuándo", "dónde", "quién", "cuál",
}

// intentRule matches whole words or phrases; symbols and patterns match as
// raw substrings of the original query.
type intentRule struct {
	intent   Intent
	words    []string
	symbols  []string
	patterns []string
}

var intentRules = []intentRule{
	{
		intent: IntentCodeReview,
		words: []string{
			"code", "review", "bug", "bugs", "refactor", "function", "class", "variable",
			"algorithm", "programming", "developer", "debugging", "debug", "test", "tests",
			"python", "javascript", "java", "c++", "html", "css", "json", "frontend", "backend",
			"desarrollador", "código", "codigo", "función", "funcion",
		},
		symbols:  []string{"()", "{}", "[]", ";"},
		patterns: []string{"```", "def ", "function(", "import ", "var ", "let ", "const ", "for(", "while(", "if(", "else{", "return ", "public ", "private "},
	},
	{
		intent: IntentProjectManagement,
		words:  []string{"timeline", "estimate", "estimation", "project plan", "schedule", "roadmap", "milestone", "milestones", "staffing", "cronograma"},
	},
	{
		intent: IntentMarketAnalysis,
		words:  []string{"market", "markets", "competitor", "competitors", "trend", "trends", "industry", "adoption", "mercado", "competencia"},
	},
	{
		intent: IntentDataAnalysis,
		words:  []string{"data", "analytics", "metrics", "statistics", "dashboard", "dashboards", "kpi", "kpis", "datos"},
	},
	{
		intent: IntentCloudArchitecture,
		words:  []string{"cloud", "aws", "azure", "gcp", "kubernetes", "serverless", "nube"},
	},
	{
		intent: IntentCyberSecurity,
		words:  []string{"security", "vulnerability", "vulnerabilities", "threat", "threats", "seguridad", "ciberseguridad"},
	},
	{
		intent: IntentSystemsIntegration,
		words:  []string{"integration", "integrate", "middleware", "integración", "integracion"},
	},
	{
		intent: IntentDigitalTransformation,
		words:  []string{"digital transformation", "digital maturity", "digital strategy", "transformación digital", "madurez digital", "digitalización"},
	},
	{
		intent: IntentAgileMethodologies,
		words:  []string{"agile", "scrum", "kanban", "sprint", "ágil", "metodología"},
	},
}

// intentRoles maps each intent to the specialist it activates.
var intentRoles = map[Intent]types.Role{
	IntentCodeReview:            types.RoleCodeReview,
	IntentProjectManagement:     types.RoleProjectManagement,
	IntentMarketAnalysis:        types.RoleMarketAnalysis,
	IntentDataAnalysis:          types.RoleDataAnalysis,
	IntentCloudArchitecture:     types.RoleCloudArchitecture,
	IntentCyberSecurity:         types.RoleCyberSecurity,
	IntentSystemsIntegration:    types.RoleSystemsIntegration,
	IntentDigitalTransformation: types.RoleDigitalTransformation,
	IntentAgileMethodologies:    types.RoleAgileMethodologies,
}

// BaselineRoles always run for a non-greeting query.
var BaselineRoles = []types.Role{
	types.RoleSolutionArchitect,
	types.RoleTechnicalResearch,
	types.RoleClientCommunication,
}

// IsGreeting reports whether the query is small talk: a known greeting
// phrase, or at most two words without a question word.
func IsGreeting(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return false
	}
	trimmed := strings.TrimRightFunc(q, func(r rune) bool { return unicode.IsPunct(r) })
	for _, g := range greetingPhrases {
		if trimmed == g || strings.HasPrefix(q, g+" ") || strings.HasPrefix(q, g+",") || strings.HasPrefix(q, g+"!") {
			return true
		}
	}
	if len(strings.Fields(q)) > 2 {
		return false
	}
	for _, w := range questionWords {
		if strings.Contains(q, w) {
			return false
		}
	}
	return true
}

// DetectIntents returns the topic intents of a query in rule order,
// without duplicates. Greetings are reported alone.
func DetectIntents(query string) []Intent {
	if IsGreeting(query) {
		return []Intent{IntentGreeting}
	}
	lower := strings.ToLower(query)
	words := tokenize(lower)

	var out []Intent
	for _, rule := range intentRules {
		if matchRule(rule, query, lower, words) {
			out = append(out, rule.intent)
		}
	}
	return out
}

// SelectRoles maps intents onto the specialists to activate: the baseline
// roles plus one role per topic intent, in priority order.
func SelectRoles(intents []Intent) []types.Role {
	active := make(map[types.Role]bool)
	for _, in := range intents {
		if in == IntentGreeting {
			return nil
		}
		if r, ok := intentRoles[in]; ok {
			active[r] = true
		}
	}
	for _, r := range BaselineRoles {
		active[r] = true
	}
	out := make([]types.Role, 0, len(active))
	for _, r := range types.Roles() {
		if active[r] {
			out = append(out, r)
		}
	}
	return out
}

func matchRule(rule intentRule, original, lower string, words map[string]bool) bool {
	for _, w := range rule.words {
		if strings.Contains(w, " ") {
			if strings.Contains(lower, w) {
				return true
			}
			continue
		}
		if words[w] {
			return true
		}
	}
	for _, s := range rule.symbols {
		if strings.Contains(original, s) {
			return true
		}
	}
	for _, p := range rule.patterns {
		if strings.Contains(original, p) {
			return true
		}
	}
	return false
}

// tokenize splits on anything that is not a letter, digit or '+', so that
// "c++" survives as a word.
func tokenize(s string) map[string]bool {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '+'
	})
	out := make(map[string]bool, len(fields))
	for _, f := range fields {
		out[f] = true
	}
	return out
}
