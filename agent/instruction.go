package agent

import (
	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/internal/util"
)

// Provider supplies dynamic instruction text at runtime.
type Provider interface {
	Instruction(*core.RunContext) (string, error)
}

// Func is a functional adapter to allow ordinary functions to be used as Providers.
type Func func(*core.RunContext) (string, error)

// Instruction implements Provider.
func (f Func) Instruction(rc *core.RunContext) (string, error) { return f(rc) }

// Instruction represents either a static instruction string or a dynamic
// provider. The resolved text is rendered as a text/template against the run
// state, so "{{.agent}}" or "{{.input}}" may be used in either form.
type Instruction struct {
	text     string
	provider Provider
}

// NewInstructionFromText creates an Instruction from a static string.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewInstructionFromProvider creates an Instruction from a dynamic provider.
func NewInstructionFromProvider(p Provider) Instruction { return Instruction{provider: p} }

// NewInstructionFromFunc creates an Instruction from a function.
func NewInstructionFromFunc(f func(*core.RunContext) (string, error)) Instruction {
	return Instruction{provider: Func(f)}
}

// IsStatic returns true if the instruction is backed by a static string.
func (i Instruction) IsStatic() bool { return i.provider == nil }

// IsZero reports whether no instruction was configured.
func (i Instruction) IsZero() bool { return i.provider == nil && i.text == "" }

// Resolve returns the rendered instruction text, invoking the provider if
// needed.
func (i Instruction) Resolve(rc *core.RunContext, state map[string]any) (string, error) {
	text := i.text

	if i.provider != nil {
		t, err := i.provider.Instruction(rc)
		if err != nil {
			return "", err
		}
		text = t
	}

	return util.RenderTemplate(text, state)
}
