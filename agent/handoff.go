package agent

import (
	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/model"
	"github.com/hupe1980/agentcore/tool"
)

// Handoff exposes another agent to the model as a pseudo-tool. When the
// model calls it, the current run ends and the target runs with the same
// input and prior history.
type Handoff struct {
	Agent *Agent
	// Description overrides the target's description in the advertised
	// tool definition.
	Description string
}

// NewHandoff returns a Handoff to target.
func NewHandoff(target *Agent) Handoff { return Handoff{Agent: target} }

// ToolName returns the pseudo-tool name the model calls.
func (h Handoff) ToolName() string { return tool.HandoffToolName(h.Agent.Name()) }

// Definition returns the tool definition advertised to the model.
func (h Handoff) Definition() model.ToolDefinition {
	desc := h.Description
	if desc == "" {
		desc = h.Agent.Description()
	}
	return tool.HandoffDefinition(h.Agent.Name(), desc)
}

// FindAgent performs a depth-first search over the handoff graph rooted at
// this agent (including itself) returning the first agent whose Name
// matches. Cycles are tolerated. Returns nil if no match is found.
func (a *Agent) FindAgent(name string) *Agent {
	return a.findAgent(name, map[*Agent]bool{})
}

func (a *Agent) findAgent(name string, seen map[*Agent]bool) *Agent {
	if seen[a] {
		return nil
	}
	seen[a] = true

	if a.name == name {
		return a
	}

	for _, h := range a.opts.Handoffs {
		if h.Agent == nil {
			continue
		}
		if found := h.Agent.findAgent(name, seen); found != nil {
			return found
		}
	}

	return nil
}

// handoffFor returns the first call in calls addressing a handoff target.
func (a *Agent) handoffFor(calls []core.ToolCall) (Handoff, core.ToolCall, bool) {
	for _, c := range calls {
		for _, h := range a.opts.Handoffs {
			if h.Agent != nil && h.ToolName() == c.Name {
				return h, c, true
			}
		}
	}
	return Handoff{}, core.ToolCall{}, false
}

// toolDefinitions returns the registry schemas followed by the handoff
// pseudo-tools.
func (a *Agent) toolDefinitions() []model.ToolDefinition {
	defs := a.opts.Tools.Definitions()

	for _, h := range a.opts.Handoffs {
		if h.Agent != nil {
			defs = append(defs, h.Definition())
		}
	}

	return defs
}
