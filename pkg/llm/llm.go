// Package llm defines the AI collaborator contract the agent runtime
// drives, plus the factory registry that builds a collaborator from an
// agent's configuration.
//
// A collaborator accepts conversation context and returns a structured
// response. The continuation signal, if any, is surfaced as a dedicated
// raw JSON field on the response; the runtime never scans free text for
// it.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
)

// Role values for turn messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// TurnMessage is one entry of the conversation context handed to a
// collaborator.
type TurnMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`

	// ToolCallID correlates a tool-result turn with the call that
	// produced it.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Usage carries token accounting from the underlying model call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the structured result of one collaborator invocation.
type Response struct {
	// Text is the raw model output, possibly containing channel markers.
	Text string `json:"text"`

	// ToolCalls requested by the model, in order.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// Continuation is the dedicated structured continuation field, or
	// nil when the model sent no signal. Its shape is validated by the
	// continuation evaluator, not here.
	Continuation json.RawMessage `json:"continuation,omitempty"`

	Usage Usage `json:"usage"`
}

// ToolNames returns the ordered tool names of the response's calls.
func (r *Response) ToolNames() []string {
	if len(r.ToolCalls) == 0 {
		return nil
	}
	names := make([]string, len(r.ToolCalls))
	for i, tc := range r.ToolCalls {
		names[i] = tc.Name
	}
	return names
}

// Collaborator is the external AI loop bound to one agent. Created once
// at agent creation and reused; implementations must be safe for use from
// the single runtime goroutine that owns the agent.
type Collaborator interface {
	// Invoke sends the conversation context and returns the structured
	// response. Transport or model failures are returned as
	// *CollaboratorError.
	Invoke(ctx context.Context, turns []TurnMessage) (*Response, error)

	// Model returns the model identifier this collaborator targets.
	Model() string
}

// Config describes how to build a collaborator for one agent.
type Config struct {
	// Provider selects the registered factory ("openai", "vertexai",
	// "mock").
	Provider string `yaml:"provider"`

	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`

	// APIKey overrides the provider's environment lookup.
	APIKey string `yaml:"api_key"`

	// Extra carries provider-specific options (project ids, endpoints).
	Extra map[string]any `yaml:"extra,omitempty"`
}

// CollaboratorError wraps any failure from the external model call.
// The runtime surfaces it as the task's result; it never retries here.
type CollaboratorError struct {
	Provider string
	Err      error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("ai collaborator %s: %v", e.Provider, e.Err)
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}

// NewCollaboratorError wraps err for the named provider.
func NewCollaboratorError(provider string, err error) *CollaboratorError {
	return &CollaboratorError{Provider: provider, Err: err}
}
