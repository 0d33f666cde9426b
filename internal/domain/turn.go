package domain

import (
	"time"
)

// TurnRole identifies who authored a turn.
type TurnRole string

const (
	// TurnRoleUser is a message sent by the user.
	TurnRoleUser TurnRole = "user"
	// TurnRoleAssistant is a message generated by the agent.
	TurnRoleAssistant TurnRole = "assistant"
)

// ToolCallStatus is the outcome of a single tool invocation.
type ToolCallStatus string

const (
	// ToolCallSuccess means the tool returned a result.
	ToolCallSuccess ToolCallStatus = "success"
	// ToolCallError means the tool failed or was unknown; the record carries
	// the error text instead of a result.
	ToolCallError ToolCallStatus = "error"
)

// ToolCallRecord captures one tool invocation made during a generation.
// Records are embedded in the assistant Turn they occurred within and are
// never persisted independently.
type ToolCallRecord struct {
	Name   string         `json:"name"`
	Args   map[string]any `json:"args,omitempty"`
	Status ToolCallStatus `json:"status"`
	Result string         `json:"result,omitempty"`
}

// Turn is one persisted chat message, user or assistant. Turns are immutable
// once saved; history replay orders them by creation timestamp ascending.
type Turn struct {
	TurnID  string   `json:"turn_id"`
	AgentID string   `json:"agent_id"`
	UserID  string   `json:"user_id"`
	Role    TurnRole `json:"role"`
	Content string   `json:"content"`

	// Elapsed is how long the generation took. Zero for user turns.
	Elapsed time.Duration `json:"elapsed_ms,omitempty"`

	// ToolCalls lists tool invocations in dispatch order. Nil for user turns.
	ToolCalls []ToolCallRecord `json:"tool_calls,omitempty"`

	// TokenCount is a word-split approximation of the response size. It is an
	// estimate for display, not a billing-accurate measurement.
	TokenCount int `json:"token_count,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// EstimateTokens approximates a token count by splitting on whitespace.
func EstimateTokens(text string) int {
	n := 0
	inWord := false
	for _, r := range text {
		switch r {
		case ' ', '\t', '\n', '\r':
			inWord = false
		default:
			if !inWord {
				n++
				inWord = true
			}
		}
	}
	return n
}
