package core

import "strings"

// FinishReason explains why a model turn ended.
type FinishReason string

const (
	FinishCompleted     FinishReason = "completed"
	FinishToolCall      FinishReason = "tool_call"
	FinishMaxTokens     FinishReason = "max_tokens"
	FinishContentFilter FinishReason = "content_filter"
)

// ParseFinishReason maps provider specific finish strings onto FinishReason.
// Unknown non-empty values map to FinishCompleted; empty input reports false.
func ParseFinishReason(s string) (FinishReason, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", false
	case "stop", "end_turn", "stop_sequence", "completed":
		return FinishCompleted, true
	case "tool_calls", "tool_use", "function_call", "tool_call":
		return FinishToolCall, true
	case "length", "max_tokens":
		return FinishMaxTokens, true
	case "content_filter", "refusal":
		return FinishContentFilter, true
	default:
		return FinishCompleted, true
	}
}

// Usage reports token accounting for one or more model turns.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// TotalTokens returns input plus output tokens.
func (u Usage) TotalTokens() int { return u.InputTokens + u.OutputTokens }

// Add accumulates other into u. A nil other is ignored.
func (u *Usage) Add(other *Usage) {
	if other == nil {
		return
	}
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// InferenceResponse is the terminal result of one model turn. When ToolCalls
// is non-empty the turn requests tool execution.
type InferenceResponse struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason FinishReason
	Usage        *Usage
}

// HasToolCalls reports whether the turn requested any tool.
func (r *InferenceResponse) HasToolCalls() bool {
	return r != nil && len(r.ToolCalls) > 0
}
