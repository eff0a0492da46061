package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"strings"
	"time"

	"google.golang.org/genai"
)

const (
	vertexMaxRetries     = 3
	vertexBaseRetryDelay = 1 * time.Second
	vertexMaxRetryDelay  = 30 * time.Second
)

func init() {
	RegisterFactory("vertexai", func(cfg Config) (Collaborator, error) {
		project := stringExtra(cfg, "project")
		if project == "" {
			project = os.Getenv("GOOGLE_CLOUD_PROJECT")
		}
		if project == "" {
			return nil, fmt.Errorf("vertexai project not set (extra.project or GOOGLE_CLOUD_PROJECT)")
		}
		location := stringExtra(cfg, "location")
		if location == "" {
			location = os.Getenv("GOOGLE_CLOUD_LOCATION")
		}
		if location == "" {
			location = "us-central1"
		}

		client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
			Project:  project,
			Location: location,
			Backend:  genai.BackendVertexAI,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create vertex ai client: %w", err)
		}
		return NewVertexAICollaborator(cfg, client), nil
	})
}

func stringExtra(cfg Config, key string) string {
	if v, ok := cfg.Extra[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// VertexAICollaborator implements Collaborator on Vertex AI Gemini models.
type VertexAICollaborator struct {
	client      *genai.Client
	model       string
	temperature float64
	maxTokens   int
}

// NewVertexAICollaborator creates a Vertex AI collaborator with an
// existing genai client.
func NewVertexAICollaborator(cfg Config, client *genai.Client) *VertexAICollaborator {
	model := cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &VertexAICollaborator{
		client:      client,
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
}

// Model returns the target model identifier.
func (c *VertexAICollaborator) Model() string { return c.model }

// Invoke sends the conversation context, retrying transient failures with
// exponential backoff.
func (c *VertexAICollaborator) Invoke(ctx context.Context, turns []TurnMessage) (*Response, error) {
	contents, system := buildVertexContents(turns)

	genCfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(c.temperature)),
	}
	if c.maxTokens > 0 {
		genCfg.MaxOutputTokens = int32(c.maxTokens)
	}
	if system != "" {
		genCfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}

	var lastErr error
	for attempt := 0; attempt <= vertexMaxRetries; attempt++ {
		if attempt > 0 {
			delay := vertexBackoff(attempt)
			select {
			case <-ctx.Done():
				return nil, NewCollaboratorError("vertexai", ctx.Err())
			case <-time.After(delay):
			}
		}

		resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, genCfg)
		if err != nil {
			lastErr = err
			if isRetryableVertexError(err) {
				continue
			}
			return nil, NewCollaboratorError("vertexai", err)
		}
		return parseVertexResponse(resp)
	}
	return nil, NewCollaboratorError("vertexai", fmt.Errorf("exhausted %d retries: %w", vertexMaxRetries, lastErr))
}

// buildVertexContents maps turns to genai contents. System turns are
// collected into a single system instruction; assistant turns use the
// "model" role.
func buildVertexContents(turns []TurnMessage) ([]*genai.Content, string) {
	var system strings.Builder
	contents := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case RoleSystem:
			if system.Len() > 0 {
				system.WriteString("\n")
			}
			system.WriteString(t.Content)
		case RoleAssistant:
			contents = append(contents, &genai.Content{
				Role:  "model",
				Parts: []*genai.Part{{Text: t.Content}},
			})
		default:
			contents = append(contents, &genai.Content{
				Role:  "user",
				Parts: []*genai.Part{{Text: t.Content}},
			})
		}
	}
	return contents, system.String()
}

func parseVertexResponse(resp *genai.GenerateContentResponse) (*Response, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, NewCollaboratorError("vertexai", fmt.Errorf("no candidates in response"))
	}

	out := &Response{}
	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			text.WriteString(part.Text)
		}
		if part.FunctionCall != nil {
			args, err := json.Marshal(part.FunctionCall.Args)
			if err != nil {
				return nil, NewCollaboratorError("vertexai", fmt.Errorf("encoding function call args: %w", err))
			}
			if part.FunctionCall.Name == continuationToolName {
				out.Continuation = args
				continue
			}
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:        part.FunctionCall.ID,
				Name:      part.FunctionCall.Name,
				Arguments: args,
			})
		}
	}
	out.Text = text.String()

	if resp.UsageMetadata != nil {
		out.Usage = Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	return out, nil
}

// vertexBackoff computes the delay before the given attempt: exponential
// growth with jitter, capped at vertexMaxRetryDelay.
func vertexBackoff(attempt int) time.Duration {
	delay := float64(vertexBaseRetryDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(vertexMaxRetryDelay) {
		delay = float64(vertexMaxRetryDelay)
	}
	jitter := delay * 0.2 * (rand.Float64()*2 - 1)
	return time.Duration(delay + jitter)
}

func isRetryableVertexError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"429", "rate limit", "quota", "503", "unavailable", "timeout", "deadline"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
