package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"
)

var errMissingAPIKey = errors.New("openai api key not configured")

// OpenAIProvider implements Provider against an OpenAI-compatible chat
// completion endpoint using streaming responses.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// OpenAIConfig configures the OpenAI provider.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string // empty = api.openai.com
	Model   string
}

// NewOpenAIProvider creates a streaming provider for OpenAI-compatible APIs.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, errMissingAPIKey
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
	}, nil
}

// Generate streams completion fragments for the request.
//
// Text deltas are yielded as they arrive. Tool calls stream incrementally
// (name first, then argument JSON in pieces) and are accumulated per index,
// yielded once the model marks them complete.
func (p *OpenAIProvider) Generate(ctx context.Context, req Request) iter.Seq2[Fragment, error] {
	return func(yield func(Fragment, error) bool) {
		chatReq := openai.ChatCompletionRequest{
			Model:    p.model,
			Messages: buildMessages(req),
			Stream:   true,
		}
		if len(req.Tools) > 0 {
			chatReq.Tools = convertTools(req.Tools)
		}

		stream, err := p.client.CreateChatCompletionStream(ctx, chatReq)
		if err != nil {
			yield(Fragment{}, fmt.Errorf("open completion stream: %w", err))
			return
		}
		defer func() {
			if closeErr := stream.Close(); closeErr != nil {
				slog.Debug("failed to close completion stream", "error", closeErr)
			}
		}()

		// Tool calls arrive as deltas across chunks, keyed by index.
		pending := make(map[int]*openai.ToolCall)
		order := []int{}

		flushToolCalls := func() bool {
			for _, idx := range order {
				tc := pending[idx]
				if tc == nil || tc.Function.Name == "" {
					continue
				}
				call, err := parseToolCall(tc)
				if err != nil {
					if !yield(Fragment{}, err) {
						return false
					}
					continue
				}
				if !yield(Fragment{ToolCall: call}, nil) {
					return false
				}
			}
			pending = make(map[int]*openai.ToolCall)
			order = order[:0]
			return true
		}

		for {
			if ctx.Err() != nil {
				yield(Fragment{}, ctx.Err())
				return
			}

			response, err := stream.Recv()
			if err != nil {
				if errors.Is(err, io.EOF) {
					flushToolCalls()
					return
				}
				yield(Fragment{}, fmt.Errorf("completion stream: %w", err))
				return
			}
			if len(response.Choices) == 0 {
				continue
			}

			choice := response.Choices[0]
			if choice.Delta.Content != "" {
				if !yield(Fragment{Text: choice.Delta.Content}, nil) {
					return
				}
			}

			for _, tc := range choice.Delta.ToolCalls {
				idx := 0
				if tc.Index != nil {
					idx = *tc.Index
				}
				acc, ok := pending[idx]
				if !ok {
					acc = &openai.ToolCall{}
					pending[idx] = acc
					order = append(order, idx)
				}
				if tc.ID != "" {
					acc.ID = tc.ID
				}
				if tc.Function.Name != "" {
					acc.Function.Name = tc.Function.Name
				}
				acc.Function.Arguments += tc.Function.Arguments
			}

			if choice.FinishReason == openai.FinishReasonToolCalls {
				if !flushToolCalls() {
					return
				}
			}
		}
	}
}

func buildMessages(req Request) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	for _, m := range req.History {
		role := openai.ChatMessageRoleUser
		if m.Role == "assistant" {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: m.Content,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.UserText,
	})
	return messages
}

func convertTools(tools []ToolDefinition) []openai.Tool {
	converted := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		params := t.Parameters
		if len(params) == 0 {
			params = json.RawMessage(`{"type":"object","properties":{}}`)
		}
		converted = append(converted, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return converted
}

func parseToolCall(tc *openai.ToolCall) (*ToolCall, error) {
	args := map[string]any{}
	if tc.Function.Arguments != "" {
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
			return nil, fmt.Errorf("parse tool call args for %s: %w", tc.Function.Name, err)
		}
	}
	return &ToolCall{Name: tc.Function.Name, Args: args}, nil
}
