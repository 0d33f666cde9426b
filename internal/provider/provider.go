// Package provider abstracts language-model backends behind a single
// streaming generation interface.
package provider

import (
	"context"
	"encoding/json"
	"iter"
)

// Message is one prior conversation turn passed to the model.
type Message struct {
	// Role is "user" or "assistant".
	Role    string
	Content string
}

// ToolDefinition describes a tool the model may request during generation.
type ToolDefinition struct {
	Name        string
	Description string
	// Parameters is a JSON Schema for the tool's arguments.
	Parameters json.RawMessage
}

// ToolCall is a tool invocation requested by the model mid-generation.
type ToolCall struct {
	Name string
	Args map[string]any
}

// Fragment is one incremental unit of model output: either a text chunk or
// a tool-call request, never both.
type Fragment struct {
	Text     string
	ToolCall *ToolCall
}

// IsToolCall reports whether the fragment carries a tool-call request.
func (f Fragment) IsToolCall() bool {
	return f.ToolCall != nil
}

// Request carries everything the model needs for one generation attempt.
type Request struct {
	SystemPrompt string
	Tools        []ToolDefinition
	History      []Message
	UserText     string
}

// Provider produces a lazy, finite sequence of output fragments for a
// request. The sequence is not restartable and may fail mid-stream, in
// which case the iterator yields a non-nil error and stops. Implementations
// must observe ctx and terminate promptly when it is cancelled.
type Provider interface {
	Generate(ctx context.Context, req Request) iter.Seq2[Fragment, error]
}
