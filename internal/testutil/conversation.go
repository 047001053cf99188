package testutil

import (
	"github.com/hupe1980/agentcore/core"
)

// ConversationBuilder provides a fluent helper for constructing message
// histories in tests:
//
//	msgs := NewConversation().System("be brief").User("hi").Assistant("hello").Build()
type ConversationBuilder struct {
	msgs []core.Message
}

// NewConversation creates an empty builder.
func NewConversation() *ConversationBuilder { return &ConversationBuilder{} }

// System appends a system message (chainable).
func (b *ConversationBuilder) System(t string) *ConversationBuilder {
	b.msgs = append(b.msgs, core.SystemMessage(t))
	return b
}

// User appends a user message (chainable).
func (b *ConversationBuilder) User(t string) *ConversationBuilder {
	b.msgs = append(b.msgs, core.UserMessage(t))
	return b
}

// Assistant appends an assistant message (chainable).
func (b *ConversationBuilder) Assistant(t string, calls ...core.ToolCall) *ConversationBuilder {
	b.msgs = append(b.msgs, core.AssistantMessage(t, calls...))
	return b
}

// ToolResult appends a tool result message (chainable).
func (b *ConversationBuilder) ToolResult(callID, name, output string) *ConversationBuilder {
	b.msgs = append(b.msgs, core.Message{Role: core.RoleTool, Content: output, ToolCallID: callID, Name: name})
	return b
}

// Build returns a copy of the accumulated messages.
func (b *ConversationBuilder) Build() []core.Message {
	return append([]core.Message(nil), b.msgs...)
}

// Roles extracts the role sequence of msgs.
func Roles(msgs []core.Message) []core.Role {
	out := make([]core.Role, len(msgs))
	for i, m := range msgs {
		out[i] = m.Role
	}
	return out
}
