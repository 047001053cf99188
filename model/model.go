package model

import (
	"context"

	"github.com/hupe1980/agentcore/core"
)

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the model.
// Parameters is a JSON Schema object.
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// NewToolDefinition builds a function ToolDefinition.
func NewToolDefinition(name, description string, parameters map[string]any) ToolDefinition {
	if parameters == nil {
		parameters = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return ToolDefinition{
		Type: "function",
		Function: FunctionDefinition{
			Name:        name,
			Description: description,
			Parameters:  parameters,
		},
	}
}

// GenerateOptions tunes a single backend call. Zero values defer to the
// backend's defaults.
type GenerateOptions struct {
	Model       string
	Temperature *float64
	MaxTokens   int
	Stop        []string
}

// Info contains metadata about a backend implementation.
type Info struct {
	Name              string `json:"name"`
	Provider          string `json:"provider"` // "openai", "anthropic", "compat", ...
	SupportsTools     bool   `json:"supports_tools"`
	SupportsStreaming bool   `json:"supports_streaming"`
}

// Backend is the inference contract the agent loop drives. Messages are the
// full prompt: system instruction, prior turns and the latest user input.
type Backend interface {
	// Generate returns plain assistant text.
	Generate(ctx context.Context, messages []core.Message, opts GenerateOptions) (string, error)

	// Stream returns assistant text incrementally. The text channel is closed
	// when the stream ends; the error channel then yields at most one error.
	Stream(ctx context.Context, messages []core.Message, opts GenerateOptions) (<-chan string, <-chan error)

	// GenerateWithToolCalls advertises tools and returns a terminal turn that
	// either carries content or requests tool calls.
	GenerateWithToolCalls(ctx context.Context, messages []core.Message, tools []ToolDefinition, opts GenerateOptions) (*core.InferenceResponse, error)

	// Info returns information about the backend implementation.
	Info() Info
}

// StreamingToolCaller is implemented by backends that can stream a
// tool-calling turn.
type StreamingToolCaller interface {
	StreamWithToolCalls(ctx context.Context, messages []core.Message, tools []ToolDefinition, opts GenerateOptions) (<-chan StreamUpdate, <-chan error)
}

// StreamUpdate is one element of a streamed tool-calling turn. The concrete
// types are OutputChunk, ToolCallPartial, ToolCallsCompleted, UsageUpdate and
// FinishUpdate.
type StreamUpdate interface {
	isStreamUpdate()
}

// OutputChunk carries incremental assistant text.
type OutputChunk struct {
	Text string
}

// ToolCallPartial reports a tool call fragment as it arrives.
type ToolCallPartial struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

// ToolCallsCompleted carries the fully assembled tool calls of the turn.
type ToolCallsCompleted struct {
	Calls []core.ToolCall
}

// UsageUpdate carries token accounting.
type UsageUpdate struct {
	Usage core.Usage
}

// FinishUpdate carries the turn's finish reason.
type FinishUpdate struct {
	Reason core.FinishReason
}

func (OutputChunk) isStreamUpdate()        {}
func (ToolCallPartial) isStreamUpdate()    {}
func (ToolCallsCompleted) isStreamUpdate() {}
func (UsageUpdate) isStreamUpdate()        {}
func (FinishUpdate) isStreamUpdate()       {}
