package domain

import (
	"time"
)

// Agent is a configured assistant: system instructions plus the set of tools
// it may call. The configuration is snapshotted into a session at bind time
// and never mutated for the session's lifetime.
type Agent struct {
	AgentID      string    `json:"agent_id"`
	Name         string    `json:"name"`
	SystemPrompt string    `json:"system_prompt"`
	Tools        []string  `json:"tools,omitempty"`
	OwnerID      string    `json:"owner_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// HasTool reports whether the named tool is enabled for this agent.
func (a *Agent) HasTool(name string) bool {
	for _, t := range a.Tools {
		if t == name {
			return true
		}
	}
	return false
}
