package types

// AgentStatus is the lifecycle status of one agent's response.
type AgentStatus string

const (
	AgentStatusPending    AgentStatus = "pending"
	AgentStatusProcessing AgentStatus = "processing"
	AgentStatusCompleted  AgentStatus = "completed"
	AgentStatusError      AgentStatus = "error"
)

// AgentResponse is the typed output of one Agent Unit invocation.
// Values are treated as immutable once stored in workflow state.
type AgentResponse struct {
	Content   string      `json:"content"`
	Sources   []string    `json:"sources,omitempty"`
	AgentName string      `json:"agent_name"`
	Status    AgentStatus `json:"status"`
}

// NewAgentResponse builds a completed response with deduplicated sources.
func NewAgentResponse(agentName, content string, sources ...string) AgentResponse {
	return AgentResponse{
		Content:   content,
		Sources:   DedupSources(sources),
		AgentName: agentName,
		Status:    AgentStatusCompleted,
	}
}

// NewAgentError builds an error response carrying a short diagnostic.
func NewAgentError(agentName, diagnostic string) AgentResponse {
	return AgentResponse{
		Content:   diagnostic,
		AgentName: agentName,
		Status:    AgentStatusError,
	}
}

// Clone returns a copy that shares no slices with r.
func (r AgentResponse) Clone() AgentResponse {
	if r.Sources != nil {
		r.Sources = append([]string(nil), r.Sources...)
	}
	return r
}

// Completed reports whether the response finished successfully.
func (r AgentResponse) Completed() bool {
	return r.Status == AgentStatusCompleted
}

// DedupSources removes empty and repeated ids, keeping first-seen order.
func DedupSources(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
