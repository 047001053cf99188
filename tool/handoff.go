package tool

import (
	"strings"

	"github.com/hupe1980/agentcore/model"
)

// HandoffPrefix prefixes the pseudo-tool name advertised for each handoff
// target.
const HandoffPrefix = "transfer_to_"

// HandoffToolName returns the pseudo-tool name for a target agent.
func HandoffToolName(agentName string) string {
	return HandoffPrefix + sanitizeName(agentName)
}

// HandoffDefinition builds the definition advertised to the model for a
// handoff target. Calling it carries no arguments: the target agent
// receives the current input.
func HandoffDefinition(agentName, description string) model.ToolDefinition {
	if description == "" {
		description = "Transfer the conversation to the " + agentName + " agent."
	}

	return model.NewToolDefinition(HandoffToolName(agentName), description, map[string]any{
		"type": "object",
		"properties": map[string]any{
			"reason": map[string]any{"type": "string", "description": "Why the transfer is requested"},
		},
	})
}

func sanitizeName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
