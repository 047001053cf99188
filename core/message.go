package core

import "slices"

// Role tags the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one role-tagged conversation entry. Assistant messages may carry
// the tool calls the model requested; tool messages reference the call they
// answer through ToolCallID.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// SystemMessage returns a system message.
func SystemMessage(content string) Message { return Message{Role: RoleSystem, Content: content} }

// UserMessage returns a user message.
func UserMessage(content string) Message { return Message{Role: RoleUser, Content: content} }

// AssistantMessage returns an assistant message, optionally carrying tool calls.
func AssistantMessage(content string, calls ...ToolCall) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: slices.Clone(calls)}
}

// ToolResultMessage returns the tool message that answers a call.
func ToolResultMessage(r ToolExecutionResult) Message {
	return Message{Role: RoleTool, Content: r.OutputText(), ToolCallID: r.CallID, Name: r.ToolName}
}

// History is an append-only, ordered conversation. The zero value is ready
// to use. A History is owned by a single run and is not safe for concurrent
// mutation.
type History struct {
	msgs []Message
}

// NewHistory returns a history seeded with a copy of msgs.
func NewHistory(msgs ...Message) *History {
	return &History{msgs: slices.Clone(msgs)}
}

// Append adds messages to the end of the history.
func (h *History) Append(msgs ...Message) {
	h.msgs = append(h.msgs, msgs...)
}

// Messages returns a copy of all messages in order.
func (h *History) Messages() []Message {
	return slices.Clone(h.msgs)
}

// Len returns the number of messages.
func (h *History) Len() int { return len(h.msgs) }

// Recent returns a copy of the last n messages (all when n <= 0 or n exceeds
// the length).
func (h *History) Recent(n int) []Message {
	if n <= 0 || n >= len(h.msgs) {
		return h.Messages()
	}
	return slices.Clone(h.msgs[len(h.msgs)-n:])
}

// Last returns the final message and whether one exists.
func (h *History) Last() (Message, bool) {
	if len(h.msgs) == 0 {
		return Message{}, false
	}
	return h.msgs[len(h.msgs)-1], true
}

// RecentMessages trims msgs to its last n entries without copying (all when
// n <= 0).
func RecentMessages(msgs []Message, n int) []Message {
	if n <= 0 || n >= len(msgs) {
		return msgs
	}
	return msgs[len(msgs)-n:]
}
