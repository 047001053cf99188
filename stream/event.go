// Package stream decodes OpenAI-compatible server-sent event streams into
// typed events and reassembles tool calls whose arguments arrive in
// fragments across many chunks.
//
// Parser turns individual SSE lines into Events. Reader drives a Parser over
// an io.Reader. ToolCallAccumulator folds ToolCallDelta events back into
// complete core.ToolCall values.
package stream

import "github.com/hupe1980/agentcore/core"

// Event is a protocol-level streaming event. The concrete types are
// TextDelta, ToolCallDelta, FinishReason, Usage, Done and Error.
type Event interface {
	isEvent()
}

// TextDelta carries an incremental piece of assistant text.
type TextDelta struct {
	Text string
}

// ToolCallDelta carries a fragment of a tool call. ID and Name are usually
// only present on the first fragment for an index.
type ToolCallDelta struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

// FinishReason carries the provider's raw finish reason.
type FinishReason struct {
	Reason string
}

// Parsed maps the raw reason onto core.FinishReason.
func (f FinishReason) Parsed() core.FinishReason {
	r, _ := core.ParseFinishReason(f.Reason)
	return r
}

// Usage carries token accounting, typically sent in a trailing chunk.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Done marks the end of the stream.
type Done struct{}

// Error reports a chunk that could not be decoded. The stream itself remains
// usable.
type Error struct {
	Kind core.ErrorKind
	Err  error
	Raw  string
}

// AsError converts the event into a *core.Error.
func (e Error) AsError() *core.Error {
	return &core.Error{Kind: e.Kind, Op: core.OpStream, Err: e.Err}
}

func (TextDelta) isEvent()     {}
func (ToolCallDelta) isEvent() {}
func (FinishReason) isEvent()  {}
func (Usage) isEvent()         {}
func (Done) isEvent()          {}
func (Error) isEvent()         {}
