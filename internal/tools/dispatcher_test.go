package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/ashureev/agentdesk/internal/domain"
)

type stubTool struct {
	name   string
	result string
	err    error
}

func (s *stubTool) Name() string                { return s.name }
func (s *stubTool) Description() string         { return "stub" }
func (s *stubTool) Parameters() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }

func (s *stubTool) Invoke(context.Context, map[string]any) (string, error) {
	return s.result, s.err
}

func TestInvokeRecordsSuccess(t *testing.T) {
	t.Parallel()

	d := NewDispatcher()
	d.Register(&stubTool{name: "echo", result: "done"})

	rec := d.Invoke(context.Background(), "echo", map[string]any{"x": "y"})
	if rec.Status != domain.ToolCallSuccess || rec.Result != "done" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.Name != "echo" || rec.Args["x"] != "y" {
		t.Fatalf("record must carry name and args: %+v", rec)
	}
}

func TestInvokeRecordsToolError(t *testing.T) {
	t.Parallel()

	d := NewDispatcher()
	d.Register(&stubTool{name: "flaky", err: errors.New("upstream 500")})

	rec := d.Invoke(context.Background(), "flaky", nil)
	if rec.Status != domain.ToolCallError || rec.Result != "upstream 500" {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestInvokeUnknownTool(t *testing.T) {
	t.Parallel()

	d := NewDispatcher()
	rec := d.Invoke(context.Background(), "nope", nil)
	if rec.Status != domain.ToolCallError {
		t.Fatalf("unknown tool must produce an error record: %+v", rec)
	}
	if rec.Result != "unknown tool: nope" {
		t.Fatalf("unexpected result: %q", rec.Result)
	}
}

func TestDefinitionsSkipsUnregisteredNames(t *testing.T) {
	t.Parallel()

	d := NewDispatcher()
	d.Register(&stubTool{name: "echo"})

	defs := d.Definitions([]string{"echo", "ghost"})
	if len(defs) != 1 || defs[0].Name != "echo" {
		t.Fatalf("unexpected definitions: %+v", defs)
	}
}
