// Package tools implements the external tool integrations an agent may call
// mid-generation, behind a uniform dispatch contract.
package tools

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/ashureev/agentdesk/internal/domain"
	"github.com/ashureev/agentdesk/internal/provider"
)

// Tool is one external capability (web search, SMS send, ...).
type Tool interface {
	// Name is the identifier the model uses to request this tool.
	Name() string

	// Description tells the model what the tool does.
	Description() string

	// Parameters is a JSON Schema for the tool's arguments.
	Parameters() json.RawMessage

	// Invoke executes the tool and returns a textual result.
	Invoke(ctx context.Context, args map[string]any) (string, error)
}

// Dispatcher routes tool-call requests to registered tool implementations.
// Failures never propagate past the dispatcher boundary: unknown tools and
// invocation errors both produce error-status records, so one misbehaving
// tool call cannot abort the generation it occurred within.
type Dispatcher struct {
	tools map[string]Tool
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{tools: make(map[string]Tool)}
}

// Register adds a tool. Later registrations replace earlier ones of the
// same name.
func (d *Dispatcher) Register(t Tool) {
	d.tools[t.Name()] = t
}

// Definitions returns provider tool definitions for the named tools,
// skipping names with no registered implementation.
func (d *Dispatcher) Definitions(names []string) []provider.ToolDefinition {
	var defs []provider.ToolDefinition
	for _, name := range names {
		t, ok := d.tools[name]
		if !ok {
			slog.Warn("agent references unregistered tool", "tool", name)
			continue
		}
		defs = append(defs, provider.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return defs
}

// Invoke executes the named tool and captures the outcome into a record.
func (d *Dispatcher) Invoke(ctx context.Context, name string, args map[string]any) domain.ToolCallRecord {
	record := domain.ToolCallRecord{Name: name, Args: args}

	t, ok := d.tools[name]
	if !ok {
		slog.Warn("tool call for unknown tool", "tool", name)
		record.Status = domain.ToolCallError
		record.Result = "unknown tool: " + name
		return record
	}

	result, err := t.Invoke(ctx, args)
	if err != nil {
		slog.Warn("tool invocation failed", "tool", name, "error", err)
		record.Status = domain.ToolCallError
		record.Result = err.Error()
		return record
	}

	record.Status = domain.ToolCallSuccess
	record.Result = result
	return record
}
