package types

import "strings"

// Role identifies a consulting specialization. Role values double as the
// node names and agent_outputs keys used by the workflow engine.
type Role string

// Core specializations.
const (
	RoleSolutionArchitect   Role = "solution_architect"
	RoleTechnicalResearch   Role = "technical_research"
	RoleCodeReview          Role = "code_review"
	RoleProjectManagement   Role = "project_management"
	RoleMarketAnalysis      Role = "market_analysis"
	RoleDataAnalysis        Role = "data_analysis"
	RoleClientCommunication Role = "client_communication"
)

// Extended specializations, activated by intent keywords.
const (
	RoleCloudArchitecture     Role = "cloud_architecture"
	RoleCyberSecurity         Role = "cyber_security"
	RoleSystemsIntegration    Role = "systems_integration"
	RoleDigitalTransformation Role = "digital_transformation"
	RoleAgileMethodologies    Role = "agile_methodologies"
)

// allRoles lists every role in compilation priority order: architecture,
// research, code review, other technical roles, business roles, and
// communication last.
var allRoles = []Role{
	RoleSolutionArchitect,
	RoleTechnicalResearch,
	RoleCodeReview,
	RoleCloudArchitecture,
	RoleCyberSecurity,
	RoleSystemsIntegration,
	RoleProjectManagement,
	RoleMarketAnalysis,
	RoleDataAnalysis,
	RoleDigitalTransformation,
	RoleAgileMethodologies,
	RoleClientCommunication,
}

// roleAliases maps legacy and shorthand names onto canonical roles.
var roleAliases = map[string]Role{
	"architect":             RoleSolutionArchitect,
	"architecture":          RoleSolutionArchitect,
	"solution_architecture": RoleSolutionArchitect,
	"research":              RoleTechnicalResearch,
	"researcher":            RoleTechnicalResearch,
	"technical_researcher":  RoleTechnicalResearch,
	"code":                  RoleCodeReview,
	"code_reviewer":         RoleCodeReview,
	"review":                RoleCodeReview,
	"project":               RoleProjectManagement,
	"project_manager":       RoleProjectManagement,
	"pm":                    RoleProjectManagement,
	"market":                RoleMarketAnalysis,
	"market_analyst":        RoleMarketAnalysis,
	"data":                  RoleDataAnalysis,
	"data_analyst":          RoleDataAnalysis,
	"analytics":             RoleDataAnalysis,
	"communication":         RoleClientCommunication,
	"client":                RoleClientCommunication,
	"communicator":          RoleClientCommunication,
	"cloud":                 RoleCloudArchitecture,
	"cloud_architect":       RoleCloudArchitecture,
	"security":              RoleCyberSecurity,
	"cybersecurity":         RoleCyberSecurity,
	"integration":           RoleSystemsIntegration,
	"systems_integrator":    RoleSystemsIntegration,
	"transformation":        RoleDigitalTransformation,
	"digital":               RoleDigitalTransformation,
	"agile":                 RoleAgileMethodologies,
	"scrum":                 RoleAgileMethodologies,
	"agile_coach":           RoleAgileMethodologies,
}

// ResolveRole maps a canonical name or a known alias to its Role.
// Matching ignores case, surrounding spaces, and '-' versus '_' versus ' '.
func ResolveRole(name string) (Role, bool) {
	key := normalizeRoleName(name)
	if key == "" {
		return "", false
	}
	for _, r := range allRoles {
		if string(r) == key {
			return r, true
		}
	}
	r, ok := roleAliases[key]
	return r, ok
}

// MustResolveRole is ResolveRole for static configuration; it panics on
// unknown names.
func MustResolveRole(name string) Role {
	r, ok := ResolveRole(name)
	if !ok {
		panic("unknown agent role: " + name)
	}
	return r
}

// Roles returns every known role in compilation priority order.
func Roles() []Role {
	out := make([]Role, len(allRoles))
	copy(out, allRoles)
	return out
}

// CoreRoles returns the seven core specializations in priority order.
func CoreRoles() []Role {
	return []Role{
		RoleSolutionArchitect,
		RoleTechnicalResearch,
		RoleCodeReview,
		RoleProjectManagement,
		RoleMarketAnalysis,
		RoleDataAnalysis,
		RoleClientCommunication,
	}
}

// Priority returns the role's position in compilation order, or -1.
func (r Role) Priority() int {
	for i, candidate := range allRoles {
		if candidate == r {
			return i
		}
	}
	return -1
}

// Title returns a human readable heading for the role.
func (r Role) Title() string {
	parts := strings.Split(string(r), "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}

func (r Role) String() string { return string(r) }

func normalizeRoleName(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
	return key
}
