// Package adapters provides concrete implementations of the harness ports.
package adapters

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	ports "github.com/hpolasek/tabletalk/tabletalk/harness/ports"
)

// OpenAIEngine adapts the OpenAI chat-completions API to the Engine port.
type OpenAIEngine struct {
	client *openai.Client
	model  string
}

// NewOpenAIEngine builds an engine client for one resolved credential.
func NewOpenAIEngine(apiKey, model, baseURL string) *OpenAIEngine {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIEngine{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// Factory returns an EngineFactory closing over model and base URL, so the
// session facade can construct a fresh client per response cycle from the
// resolved credential.
func Factory(model, baseURL string) ports.EngineFactory {
	return func(apiKey string) ports.Engine {
		return NewOpenAIEngine(apiKey, model, baseURL)
	}
}

// Complete performs one round against the engine.
func (e *OpenAIEngine) Complete(ctx context.Context, messages []ports.Message, tools []ports.ToolSpec, toolChoice string) (ports.Completion, error) {
	req := openai.ChatCompletionRequest{
		Model:    e.model,
		Messages: toOpenAIMessages(messages),
	}
	if len(tools) > 0 {
		req.Tools = toOpenAITools(tools)
		req.ToolChoice = toolChoice
	}

	resp, err := e.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return ports.Completion{}, fmt.Errorf("engine call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return ports.Completion{}, fmt.Errorf("engine returned no choices")
	}

	msg := resp.Choices[0].Message
	completion := ports.Completion{Text: msg.Content}
	for _, call := range msg.ToolCalls {
		completion.ToolCalls = append(completion.ToolCalls, ports.ToolCall{
			ID:   call.ID,
			Name: call.Function.Name,
			Args: call.Function.Arguments,
		})
	}
	return completion, nil
}

func toOpenAIMessages(messages []ports.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msg := openai.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		}
		for _, call := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   call.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      call.Name,
					Arguments: call.Args,
				},
			})
		}
		out = append(out, msg)
	}
	return out
}

func toOpenAITools(specs []ports.ToolSpec) []openai.Tool {
	out := make([]openai.Tool, 0, len(specs))
	for _, spec := range specs {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  json.RawMessage(spec.Schema),
			},
		})
	}
	return out
}

var _ ports.Engine = (*OpenAIEngine)(nil)
