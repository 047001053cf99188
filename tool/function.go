package tool

import (
	"errors"
	"time"

	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/guardrail"
	"github.com/hupe1980/agentcore/internal/util"
)

// Func is the signature of a function exposed as a tool.
type Func func(toolCtx *core.ToolContext, args map[string]any) (any, error)

// FunctionTool is a generic adapter that exposes a plain Go function as a tool.
//
// Responsibilities:
//   - Holds the JSON schema of the accepted arguments (validated by the Registry)
//   - Invokes the wrapped function with a *core.ToolContext giving access to the
//     cancellation context, logging and the originating call
//   - Normalizes error handling so callers receive *Error with consistent codes:
//     EXECUTION_ERROR -> underlying function returned a plain error
//     (custom codes preserved if the function returns *Error directly)
//
// A FunctionTool has no internal mutable state after construction and is safe for
// concurrent use by multiple goroutines.
type FunctionTool struct {
	name        string
	description string
	parameters  map[string]any
	fn          Func
	inputGuards []guardrail.Guardrail
	outGuards   []guardrail.Guardrail
}

// FunctionOptions configures a FunctionTool.
type FunctionOptions struct {
	InputGuardrails  []guardrail.Guardrail
	OutputGuardrails []guardrail.Guardrail
}

// NewFunctionTool constructs a FunctionTool from explicit schema and function.
//
// Example:
//
//	sumTool := NewFunctionTool(
//	  "calculate_sum",
//	  "Calculate the sum of two numbers",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{
//	      "a": map[string]any{"type": "number"},
//	      "b": map[string]any{"type": "number"},
//	    },
//	    "required": []string{"a", "b"},
//	  },
//	  func(tc *core.ToolContext, args map[string]any) (any, error) {
//	    return args["a"].(float64) + args["b"].(float64), nil
//	  },
//	)
func NewFunctionTool(name, description string, parameters map[string]any, fn Func, optFns ...func(o *FunctionOptions)) *FunctionTool {
	opts := FunctionOptions{}
	for _, apply := range optFns {
		apply(&opts)
	}

	if parameters == nil {
		parameters = map[string]any{"type": "object", "properties": map[string]any{}}
	}

	return &FunctionTool{
		name:        name,
		description: description,
		parameters:  parameters,
		fn:          fn,
		inputGuards: opts.InputGuardrails,
		outGuards:   opts.OutputGuardrails,
	}
}

// NewFunctionToolFromStruct derives the parameter schema from a struct using reflection.
//
//	type SumArgs struct {
//	  A float64 `json:"a" description:"First addend"`
//	  B float64 `json:"b" description:"Second addend"`
//	}
func NewFunctionToolFromStruct(name, description string, structType any, fn Func, optFns ...func(o *FunctionOptions)) *FunctionTool {
	return NewFunctionTool(name, description, util.CreateSchema(structType), fn, optFns...)
}

// Name returns the unique tool name.
func (t *FunctionTool) Name() string { return t.name }

// Description returns the natural language description exposed to models.
func (t *FunctionTool) Description() string { return t.description }

// Parameters returns the JSON schema describing expected arguments.
func (t *FunctionTool) Parameters() map[string]any { return t.parameters }

// InputGuardrails returns guardrails applied to the arguments.
func (t *FunctionTool) InputGuardrails() []guardrail.Guardrail { return t.inputGuards }

// OutputGuardrails returns guardrails applied to the result.
func (t *FunctionTool) OutputGuardrails() []guardrail.Guardrail { return t.outGuards }

// Call invokes the underlying function.
//
// Error semantics:
//
//	*Error (returned directly) -> forwarded unchanged
//	other error                -> *Error{Code: "EXECUTION_ERROR"}
func (t *FunctionTool) Call(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	logger := toolCtx.Logger()
	start := time.Now()

	logger.Debug("tool.call.start", "tool", t.name, "call_id", toolCtx.CallID())

	result, err := t.fn(toolCtx, args)
	if err != nil {
		var toolErr *Error
		if errors.As(err, &toolErr) {
			logger.Warn("tool.call.error", "tool", t.name, "code", toolErr.Code, "error", toolErr.Message)
			return nil, toolErr
		}

		logger.Warn("tool.call.error", "tool", t.name, "error", err.Error())

		return nil, &Error{
			Tool:    t.name,
			Message: err.Error(),
			Code:    CodeExecution,
			Details: err,
		}
	}

	logger.Debug("tool.call.success", "tool", t.name, "duration_ms", time.Since(start).Milliseconds())

	return result, nil
}

// WithInputGuardrails attaches guardrails run before the tool body.
func WithInputGuardrails(g ...guardrail.Guardrail) func(o *FunctionOptions) {
	return func(o *FunctionOptions) { o.InputGuardrails = append(o.InputGuardrails, g...) }
}

// WithOutputGuardrails attaches guardrails run on the tool result.
func WithOutputGuardrails(g ...guardrail.Guardrail) func(o *FunctionOptions) {
	return func(o *FunctionOptions) { o.OutputGuardrails = append(o.OutputGuardrails, g...) }
}
