package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/sashabaranov/go-openai"
)

// continuationToolName is the function the model calls to attach a
// structured continuation signal to its response. The call is consumed
// here and surfaced as Response.Continuation rather than as a tool call.
const continuationToolName = "signal_continuation"

var continuationToolParams = json.RawMessage(`{
	"type": "object",
	"properties": {
		"status": {"type": "string", "enum": ["CONTINUE", "TERMINATE"]},
		"reason": {"type": "string"},
		"progress": {
			"type": "object",
			"properties": {
				"current_step": {"type": "integer"},
				"total_steps": {"type": "integer"},
				"completion_percentage": {"type": "number"}
			}
		}
	},
	"required": ["status", "reason"]
}`)

func init() {
	RegisterFactory("openai", func(cfg Config) (Collaborator, error) {
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY not set")
		}
		return NewOpenAICollaborator(cfg, openai.NewClient(apiKey)), nil
	})
}

// OpenAIClient is the subset of the OpenAI SDK the collaborator needs.
// Narrowed for testability.
type OpenAIClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAICollaborator implements Collaborator on the OpenAI chat API.
type OpenAICollaborator struct {
	client      OpenAIClient
	model       string
	temperature float32
	maxTokens   int
}

// NewOpenAICollaborator creates an OpenAI collaborator with a custom
// client (useful for testing).
func NewOpenAICollaborator(cfg Config, client OpenAIClient) *OpenAICollaborator {
	model := cfg.Model
	if model == "" {
		model = openai.GPT4o
	}
	return &OpenAICollaborator{
		client:      client,
		model:       model,
		temperature: float32(cfg.Temperature),
		maxTokens:   cfg.MaxTokens,
	}
}

// Model returns the target model identifier.
func (c *OpenAICollaborator) Model() string { return c.model }

// Invoke sends the conversation context and returns the structured
// response.
func (c *OpenAICollaborator) Invoke(ctx context.Context, turns []TurnMessage) (*Response, error) {
	messages := make([]openai.ChatCompletionMessage, len(turns))
	for i, t := range turns {
		messages[i] = openai.ChatCompletionMessage{
			Role:       t.Role,
			Content:    t.Content,
			ToolCallID: t.ToolCallID,
		}
	}

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		Tools: []openai.Tool{{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        continuationToolName,
				Description: "Report whether the current task needs another iteration.",
				Parameters:  continuationToolParams,
			},
		}},
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, NewCollaboratorError("openai", err)
	}
	if len(resp.Choices) == 0 {
		return nil, NewCollaboratorError("openai", fmt.Errorf("no choices in response"))
	}

	choice := resp.Choices[0].Message
	out := &Response{
		Text: choice.Content,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}

	for _, call := range choice.ToolCalls {
		if call.Function.Name == continuationToolName {
			out.Continuation = json.RawMessage(call.Function.Arguments)
			continue
		}
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: json.RawMessage(call.Function.Arguments),
		})
	}

	return out, nil
}
