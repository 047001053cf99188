// Package guardrail defines the pass/tripwire contract for validators that
// run before and after agent turns and tool executions. The validation logic
// itself is supplied by callers; this package only runs it and maps a
// tripwire onto the error kind of the phase it occurred in.
package guardrail

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentcore/core"
)

// Phase identifies where a guardrail runs.
type Phase string

const (
	PhaseInput      Phase = "input"
	PhaseOutput     Phase = "output"
	PhaseToolInput  Phase = "tool_input"
	PhaseToolOutput Phase = "tool_output"
)

// Kind returns the tripwire error kind for the phase.
func (p Phase) Kind() core.ErrorKind {
	switch p {
	case PhaseInput:
		return core.KindInputTripwire
	case PhaseOutput:
		return core.KindOutputTripwire
	case PhaseToolInput:
		return core.KindToolInputTripwire
	case PhaseToolOutput:
		return core.KindToolOutputTripwire
	default:
		return core.KindInputTripwire
	}
}

// Result is the outcome of a single validation.
type Result struct {
	Passed   bool
	Message  string
	Metadata map[string]any
}

// Pass returns a passing result.
func Pass(metadata map[string]any) Result {
	return Result{Passed: true, Metadata: metadata}
}

// Tripwire returns a failing result.
func Tripwire(message string) Result {
	return Result{Message: message}
}

// Guardrail validates a payload. The payload is the user input or final
// output (string) for agent phases and the argument map or tool output for
// tool phases.
type Guardrail interface {
	Name() string
	Validate(ctx context.Context, payload any) (Result, error)
}

// Func adapts a function to the Guardrail interface.
type Func struct {
	name string
	fn   func(ctx context.Context, payload any) (Result, error)
}

// NewFunc creates a named guardrail from fn.
func NewFunc(name string, fn func(ctx context.Context, payload any) (Result, error)) *Func {
	return &Func{name: name, fn: fn}
}

// Name returns the guardrail name.
func (f *Func) Name() string { return f.name }

// Validate invokes the wrapped function.
func (f *Func) Validate(ctx context.Context, payload any) (Result, error) {
	return f.fn(ctx, payload)
}

// Run validates payload against guards in order and stops at the first
// tripwire. Errors returned by a guardrail are treated as tripwires.
// The returned error is a *core.Error of the phase's tripwire kind.
func Run(ctx context.Context, phase Phase, guards []Guardrail, payload any) error {
	for _, g := range guards {
		if g == nil {
			continue
		}

		res, err := g.Validate(ctx, payload)
		if err != nil {
			return &core.Error{
				Kind:    phase.Kind(),
				Op:      core.OpGuardrail,
				Message: fmt.Sprintf("guardrail %q", g.Name()),
				Err:     err,
			}
		}

		if !res.Passed {
			msg := res.Message
			if msg == "" {
				msg = "validation failed"
			}
			return &core.Error{
				Kind:    phase.Kind(),
				Op:      core.OpGuardrail,
				Message: fmt.Sprintf("guardrail %q: %s", g.Name(), msg),
			}
		}
	}

	return nil
}
