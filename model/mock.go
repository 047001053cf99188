package model

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/hupe1980/agentcore/core"
)

// Turn is one scripted MockModel response.
type Turn struct {
	Content      string
	ToolCalls    []core.ToolCall
	FinishReason core.FinishReason
	Usage        *core.Usage
	Err          error
}

// MockModel is a lightweight in-memory Backend useful for tests & examples.
// Scripted turns are consumed in order by every generation method; once the
// script is exhausted the mock echoes the last user message. It is safe for
// concurrent use.
type MockModel struct {
	info Info

	mu        sync.Mutex
	turns     []Turn
	responses map[string]string
	calls     [][]core.Message
	tools     [][]ToolDefinition
}

var (
	_ Backend             = (*MockModel)(nil)
	_ StreamingToolCaller = (*MockModel)(nil)
)

// NewMockModel constructs a MockModel with tool and streaming support enabled.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{
		info: Info{
			Name:              name,
			Provider:          provider,
			SupportsTools:     true,
			SupportsStreaming: true,
		},
		responses: make(map[string]string),
	}
}

// AddTurn appends scripted turns.
func (m *MockModel) AddTurn(turns ...Turn) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.turns = append(m.turns, turns...)

	return m
}

// AddResponse registers a canned completion for an exact user prompt. It is
// used once the turn script is exhausted.
func (m *MockModel) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.responses[prompt] = response
}

// Calls returns a copy of the prompts received so far.
func (m *MockModel) Calls() [][]core.Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([][]core.Message, len(m.calls))
	for i, c := range m.calls {
		out[i] = slices.Clone(c)
	}

	return out
}

// CallCount returns the number of generation requests received.
func (m *MockModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.calls)
}

// ToolsSeen returns the tool definitions advertised on each tool-calling request.
func (m *MockModel) ToolsSeen() [][]ToolDefinition {
	m.mu.Lock()
	defer m.mu.Unlock()

	return slices.Clone(m.tools)
}

func (m *MockModel) next(messages []core.Message, tools []ToolDefinition) Turn {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, slices.Clone(messages))
	if tools != nil {
		m.tools = append(m.tools, slices.Clone(tools))
	}

	if len(m.turns) > 0 {
		t := m.turns[0]
		m.turns = m.turns[1:]
		return t
	}

	var input string
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == core.RoleUser {
			input = messages[i].Content
			break
		}
	}

	full := m.responses[input]
	if full == "" {
		full = fmt.Sprintf("Mock response to: %s", input)
	}

	return Turn{Content: full, FinishReason: core.FinishCompleted}
}

// Generate implements Backend.
func (m *MockModel) Generate(ctx context.Context, messages []core.Message, _ GenerateOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	t := m.next(messages, nil)
	if t.Err != nil {
		return "", t.Err
	}

	return t.Content, nil
}

// Stream implements Backend; the content is emitted one rune at a time.
func (m *MockModel) Stream(ctx context.Context, messages []core.Message, _ GenerateOptions) (<-chan string, <-chan error) {
	textCh := make(chan string, 16)
	errCh := make(chan error, 1)

	t := m.next(messages, nil)

	go func() {
		defer close(textCh)
		defer close(errCh)

		if t.Err != nil {
			errCh <- t.Err
			return
		}

		for _, r := range t.Content {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case textCh <- string(r):
			}
		}
	}()

	return textCh, errCh
}

// GenerateWithToolCalls implements Backend.
func (m *MockModel) GenerateWithToolCalls(ctx context.Context, messages []core.Message, tools []ToolDefinition, _ GenerateOptions) (*core.InferenceResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t := m.next(messages, nonNil(tools))
	if t.Err != nil {
		return nil, t.Err
	}

	return t.response(), nil
}

// StreamWithToolCalls implements StreamingToolCaller.
func (m *MockModel) StreamWithToolCalls(ctx context.Context, messages []core.Message, tools []ToolDefinition, _ GenerateOptions) (<-chan StreamUpdate, <-chan error) {
	updCh := make(chan StreamUpdate, 16)
	errCh := make(chan error, 1)

	t := m.next(messages, nonNil(tools))

	go func() {
		defer close(updCh)
		defer close(errCh)

		if t.Err != nil {
			errCh <- t.Err
			return
		}

		resp := t.response()

		var updates []StreamUpdate
		for _, r := range resp.Content {
			updates = append(updates, OutputChunk{Text: string(r)})
		}
		for i, c := range resp.ToolCalls {
			updates = append(updates, ToolCallPartial{Index: i, ID: c.ID, Name: c.Name, Arguments: c.ArgumentsJSON()})
		}
		if len(resp.ToolCalls) > 0 {
			updates = append(updates, ToolCallsCompleted{Calls: resp.ToolCalls})
		}
		if resp.Usage != nil {
			updates = append(updates, UsageUpdate{Usage: *resp.Usage})
		}
		updates = append(updates, FinishUpdate{Reason: resp.FinishReason})

		for _, u := range updates {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case updCh <- u:
			}
		}
	}()

	return updCh, errCh
}

// Info implements Backend.
func (m *MockModel) Info() Info { return m.info }

func (t Turn) response() *core.InferenceResponse {
	reason := t.FinishReason
	if reason == "" {
		reason = core.FinishCompleted
		if len(t.ToolCalls) > 0 {
			reason = core.FinishToolCall
		}
	}

	return &core.InferenceResponse{
		Content:      t.Content,
		ToolCalls:    slices.Clone(t.ToolCalls),
		FinishReason: reason,
		Usage:        t.Usage,
	}
}

func nonNil(tools []ToolDefinition) []ToolDefinition {
	if tools == nil {
		return []ToolDefinition{}
	}
	return tools
}
