package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSearchToolReturnsTopResults(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req tavilyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if req.APIKey != "tvly-test" || req.Query != "go releases" {
			t.Errorf("unexpected request: %+v", req)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]string{
				{"url": "https://a.example", "content": "first"},
				{"url": "https://b.example", "content": "second"},
				{"url": "https://c.example", "content": "third"},
				{"url": "https://d.example", "content": "fourth"},
			},
		})
	}))
	defer srv.Close()

	tool := NewSearchTool("tvly-test")
	tool.endpoint = srv.URL

	out, err := tool.Invoke(context.Background(), map[string]any{"query": "go releases"})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if !strings.Contains(out, "Source: https://a.example") || !strings.Contains(out, "Content: first") {
		t.Fatalf("unexpected output: %q", out)
	}
	if strings.Contains(out, "fourth") {
		t.Fatalf("output should be capped at three results: %q", out)
	}
}

func TestSearchToolEmptyResults(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"results": []any{}})
	}))
	defer srv.Close()

	tool := NewSearchTool("tvly-test")
	tool.endpoint = srv.URL

	out, err := tool.Invoke(context.Background(), map[string]any{"query": "nothing"})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if out != "No results found." {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestSearchToolValidation(t *testing.T) {
	t.Parallel()

	tool := NewSearchTool("tvly-test")
	if _, err := tool.Invoke(context.Background(), map[string]any{"query": "  "}); err == nil {
		t.Fatal("expected error for blank query")
	}

	unconfigured := NewSearchTool("")
	if _, err := unconfigured.Invoke(context.Background(), map[string]any{"query": "x"}); err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestSearchToolUpstreamError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	tool := NewSearchTool("tvly-test")
	tool.endpoint = srv.URL

	if _, err := tool.Invoke(context.Background(), map[string]any{"query": "x"}); err == nil {
		t.Fatal("expected error for upstream failure")
	}
}
