package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const tavilyEndpoint = "https://api.tavily.com/search"

// SearchTool finds real-time information on the internet via the Tavily
// search API.
type SearchTool struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

// NewSearchTool creates a Tavily-backed web search tool.
func NewSearchTool(apiKey string) *SearchTool {
	return &SearchTool{
		apiKey:   apiKey,
		endpoint: tavilyEndpoint,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

// Name implements Tool.
func (t *SearchTool) Name() string { return "tavily_search" }

// Description implements Tool.
func (t *SearchTool) Description() string {
	return "Finds real-time information on the internet."
}

// Parameters implements Tool.
func (t *SearchTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string", "description": "The search query."}
		},
		"required": ["query"]
	}`)
}

type tavilyRequest struct {
	APIKey      string `json:"api_key"`
	Query       string `json:"query"`
	SearchDepth string `json:"search_depth"`
}

type tavilyResponse struct {
	Results []struct {
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// Invoke implements Tool. It returns the top results as "Source/Content"
// blocks, matching what the agents' prompts expect to read.
func (t *SearchTool) Invoke(ctx context.Context, args map[string]any) (string, error) {
	query, _ := args["query"].(string)
	if strings.TrimSpace(query) == "" {
		return "", fmt.Errorf("search requires a non-empty query")
	}
	if t.apiKey == "" {
		return "", fmt.Errorf("search is not configured (missing API key)")
	}

	body, err := json.Marshal(tavilyRequest{
		APIKey:      t.apiKey,
		Query:       query,
		SearchDepth: "basic",
	})
	if err != nil {
		return "", fmt.Errorf("encode search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("search request returned status %d", resp.StatusCode)
	}

	var parsed tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode search response: %w", err)
	}

	if len(parsed.Results) == 0 {
		return "No results found.", nil
	}

	var out strings.Builder
	for i, r := range parsed.Results {
		if i >= 3 {
			break
		}
		if i > 0 {
			out.WriteString("\n")
		}
		fmt.Fprintf(&out, "Source: %s\nContent: %s", r.URL, r.Content)
	}
	return out.String(), nil
}
