// Package tool implements the function / tool calling subsystem that lets agents
// invoke structured capabilities (APIs, computations, side-effects) with schema
// validated arguments, consistent error handling and rich metadata for model guidance.
package tool

import (
	"fmt"

	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/guardrail"
	"github.com/hupe1980/agentcore/internal/util"
)

// Tool defines the interface for extending agent capabilities with external functions.
//
// Tools are registered with a Registry, advertised to the model through their
// name, description and parameter schema, and executed when the model
// requests them. Implementations must be safe for concurrent use: the
// dispatcher runs calls in parallel.
type Tool interface {
	// Name returns the unique identifier for this tool (snake_case recommended).
	Name() string

	// Description returns a human-readable description of what this tool does.
	// It is provided to the model to help it decide when to use the tool.
	Description() string

	// Parameters returns a JSON schema describing the expected arguments.
	// The registry validates every call against it before execution.
	Parameters() map[string]any

	// Call executes the tool with decoded arguments. The context is cancelled
	// when the run is cancelled; long running tools should observe it.
	Call(toolCtx *core.ToolContext, args map[string]any) (any, error)
}

// GuardedTool is implemented by tools that carry their own guardrails.
// Input guardrails receive the argument map; output guardrails receive the
// tool's result.
type GuardedTool interface {
	Tool
	InputGuardrails() []guardrail.Guardrail
	OutputGuardrails() []guardrail.Guardrail
}

// ValidationError represents parameter validation errors.
type ValidationError = util.ValidationError

// Error codes attached to tool errors.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
	CodePanic      = "PANIC"
)

// Error represents errors that occur during tool execution. Tool
// implementations may return it directly to attach a custom code.
type Error struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *Error) Error() string {
	if e.Code != "" && e.Code != CodeExecution {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	return e.Message
}

// NewError creates a new Error with the specified details.
func NewError(tool, message, code string) *Error {
	return &Error{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}
