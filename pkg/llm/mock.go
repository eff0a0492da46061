package llm

import (
	"context"
	"sync"
)

func init() {
	RegisterFactory("mock", func(cfg Config) (Collaborator, error) {
		model := cfg.Model
		if model == "" {
			model = "mock-model"
		}
		return NewMockCollaborator(model), nil
	})
}

// MockCollaborator replays scripted responses. Used by tests and by the
// repl when no provider credentials are configured.
type MockCollaborator struct {
	mu        sync.Mutex
	model     string
	responses []*Response
	errs      []error
	calls     [][]TurnMessage
}

// NewMockCollaborator creates a mock with no scripted responses; until
// scripted, every Invoke echoes the last user turn as a final message.
func NewMockCollaborator(model string) *MockCollaborator {
	return &MockCollaborator{model: model}
}

// Model returns the mock's model identifier.
func (m *MockCollaborator) Model() string { return m.model }

// Script appends a response to replay, in order.
func (m *MockCollaborator) Script(resp *Response) *MockCollaborator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, resp)
	m.errs = append(m.errs, nil)
	return m
}

// ScriptError appends an error to return in sequence with scripted
// responses.
func (m *MockCollaborator) ScriptError(err error) *MockCollaborator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, nil)
	m.errs = append(m.errs, err)
	return m
}

// Calls returns the conversation contexts seen so far.
func (m *MockCollaborator) Calls() [][]TurnMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]TurnMessage, len(m.calls))
	copy(out, m.calls)
	return out
}

// Invoke replays the next scripted response, or echoes the last user
// turn when the script is exhausted.
func (m *MockCollaborator) Invoke(ctx context.Context, turns []TurnMessage) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewCollaboratorError("mock", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	recorded := make([]TurnMessage, len(turns))
	copy(recorded, turns)
	m.calls = append(m.calls, recorded)

	idx := len(m.calls) - 1
	if idx < len(m.responses) {
		if err := m.errs[idx]; err != nil {
			return nil, NewCollaboratorError("mock", err)
		}
		return m.responses[idx], nil
	}

	echo := ""
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == RoleUser {
			echo = turns[i].Content
			break
		}
	}
	return &Response{Text: "<final>" + echo + "</final>"}, nil
}
