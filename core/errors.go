package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorKind classifies failures into the small set of categories callers
// branch on (retry decisions, UX, strict-mode handling).
type ErrorKind string

const (
	// KindInvalidInput indicates the caller supplied unusable input (e.g. an empty prompt).
	KindInvalidInput ErrorKind = "invalid_input"
	// KindProviderUnavailable indicates a transient backend failure (5xx, network).
	KindProviderUnavailable ErrorKind = "inference_provider_unavailable"
	// KindGenerationFailed indicates the backend failed to produce a turn.
	KindGenerationFailed ErrorKind = "generation_failed"
	// KindToolNotFound indicates a call referenced a tool absent from the registry.
	KindToolNotFound ErrorKind = "tool_not_found"
	// KindInvalidToolArguments indicates arguments failed to decode or validate.
	KindInvalidToolArguments ErrorKind = "invalid_tool_arguments"
	// KindToolExecutionFailed indicates the tool body returned an error or panicked.
	KindToolExecutionFailed ErrorKind = "tool_execution_failed"
	// KindMaxIterationsExceeded indicates the loop hit its iteration budget.
	KindMaxIterationsExceeded ErrorKind = "max_iterations_exceeded"
	// KindCancelled indicates cooperative cancellation.
	KindCancelled ErrorKind = "cancelled"
	// KindTimeout indicates a time budget elapsed.
	KindTimeout ErrorKind = "timeout"
	// KindRateLimitExceeded indicates provider throttling; RetryAfter may be set.
	KindRateLimitExceeded ErrorKind = "rate_limit_exceeded"
	// KindCircuitBreakerOpen indicates a call was rejected by an open breaker.
	KindCircuitBreakerOpen ErrorKind = "circuit_breaker_open"
	// KindInputTripwire indicates an agent input guardrail tripped.
	KindInputTripwire ErrorKind = "input_guardrail_tripwire"
	// KindOutputTripwire indicates an agent output guardrail tripped.
	KindOutputTripwire ErrorKind = "output_guardrail_tripwire"
	// KindToolInputTripwire indicates a tool input guardrail tripped.
	KindToolInputTripwire ErrorKind = "tool_input_guardrail_tripwire"
	// KindToolOutputTripwire indicates a tool output guardrail tripped.
	KindToolOutputTripwire ErrorKind = "tool_output_guardrail_tripwire"
	// KindDecodingError indicates a malformed streaming chunk.
	KindDecodingError ErrorKind = "decoding_error"
	// KindAuthenticationFailed indicates rejected credentials (HTTP 401).
	KindAuthenticationFailed ErrorKind = "authentication_failed"
	// KindModelNotFound indicates an unknown model or resource (HTTP 404).
	KindModelNotFound ErrorKind = "model_not_found"
)

var kindText = map[ErrorKind]string{
	KindInvalidInput:          "invalid input",
	KindProviderUnavailable:   "inference provider unavailable",
	KindGenerationFailed:      "generation failed",
	KindToolNotFound:          "tool not found",
	KindInvalidToolArguments:  "invalid tool arguments",
	KindToolExecutionFailed:   "tool execution failed",
	KindMaxIterationsExceeded: "max iterations exceeded",
	KindCancelled:             "cancelled",
	KindTimeout:               "timeout",
	KindRateLimitExceeded:     "rate limit exceeded",
	KindCircuitBreakerOpen:    "circuit breaker open",
	KindInputTripwire:         "input guardrail tripwire",
	KindOutputTripwire:        "output guardrail tripwire",
	KindToolInputTripwire:     "tool input guardrail tripwire",
	KindToolOutputTripwire:    "tool output guardrail tripwire",
	KindDecodingError:         "decoding error",
	KindAuthenticationFailed:  "authentication failed",
	KindModelNotFound:         "model not found",
}

// String returns the human readable form of the kind.
func (k ErrorKind) String() string {
	if s, ok := kindText[k]; ok {
		return s
	}
	return string(k)
}

// IsTripwire reports whether the kind is one of the guardrail tripwire variants.
func (k ErrorKind) IsTripwire() bool {
	switch k {
	case KindInputTripwire, KindOutputTripwire, KindToolInputTripwire, KindToolOutputTripwire:
		return true
	default:
		return false
	}
}

// Subsystem labels used in Error.Op.
const (
	OpGeneration = "generation"
	OpTool       = "tool"
	OpDispatch   = "dispatch"
	OpAgent      = "agent"
	OpStream     = "stream"
	OpResilience = "resilience"
	OpGuardrail  = "guardrail"
)

// Error is the single tagged error type surfaced by agentcore. It carries
// enough context (subsystem, tool name, iteration) for a caller to tell which
// part of the system failed without string matching.
//
// Error supports errors.Is against the sentinel values below: two errors match
// when their kinds are equal.
type Error struct {
	Kind       ErrorKind     // Failure category
	Op         string        // Subsystem that failed (generation, tool, dispatch, ...)
	Tool       string        // Tool name when the failure belongs to a tool
	Agent      string        // Agent name when known
	Iteration  int           // Loop iteration (1-based) when known
	RetryAfter time.Duration // Provider supplied retry hint for rate limits
	Message    string        // Optional human-readable detail
	Err        error         // Underlying cause
}

// Sentinel errors for errors.Is comparisons.
var (
	ErrInvalidInput          = &Error{Kind: KindInvalidInput}
	ErrProviderUnavailable   = &Error{Kind: KindProviderUnavailable}
	ErrGenerationFailed      = &Error{Kind: KindGenerationFailed}
	ErrToolNotFound          = &Error{Kind: KindToolNotFound}
	ErrInvalidToolArguments  = &Error{Kind: KindInvalidToolArguments}
	ErrToolExecutionFailed   = &Error{Kind: KindToolExecutionFailed}
	ErrMaxIterationsExceeded = &Error{Kind: KindMaxIterationsExceeded}
	ErrCancelled             = &Error{Kind: KindCancelled}
	ErrTimeout               = &Error{Kind: KindTimeout}
	ErrRateLimitExceeded     = &Error{Kind: KindRateLimitExceeded}
	ErrCircuitBreakerOpen    = &Error{Kind: KindCircuitBreakerOpen}
	ErrInputTripwire         = &Error{Kind: KindInputTripwire}
	ErrOutputTripwire        = &Error{Kind: KindOutputTripwire}
	ErrToolInputTripwire     = &Error{Kind: KindToolInputTripwire}
	ErrToolOutputTripwire    = &Error{Kind: KindToolOutputTripwire}
	ErrDecoding              = &Error{Kind: KindDecodingError}
	ErrAuthenticationFailed  = &Error{Kind: KindAuthenticationFailed}
	ErrModelNotFound         = &Error{Kind: KindModelNotFound}
)

// NewError constructs an Error of the given kind for a subsystem.
func NewError(kind ErrorKind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Errorf constructs an Error with a formatted message.
func Errorf(kind ErrorKind, op, format string, args ...any) *Error {
	return NewError(kind, op, fmt.Sprintf(format, args...))
}

// WrapError constructs an Error of the given kind wrapping cause.
func WrapError(kind ErrorKind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// ToolError constructs an Error attributed to a named tool.
func ToolError(kind ErrorKind, toolName string, cause error) *Error {
	return &Error{Kind: kind, Op: OpTool, Tool: toolName, Err: cause}
}

// Error implements the error interface.
//
// Format: "agentcore: <subsystem>: <kind>[: message][: cause]".
func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	var b strings.Builder

	b.WriteString("agentcore: ")

	if sub := e.subsystem(); sub != "" {
		b.WriteString(sub)
		b.WriteString(": ")
	}

	b.WriteString(e.Kind.String())

	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}

	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}

	if e.RetryAfter > 0 {
		fmt.Fprintf(&b, " (retry after %s)", e.RetryAfter)
	}

	return b.String()
}

func (e *Error) subsystem() string {
	var parts []string

	if e.Agent != "" {
		parts = append(parts, fmt.Sprintf("agent %q", e.Agent))
	}

	switch {
	case e.Tool != "":
		parts = append(parts, fmt.Sprintf("tool %q", e.Tool))
	case e.Op != "":
		parts = append(parts, e.Op)
	}

	s := strings.Join(parts, ": ")

	if e.Iteration > 0 {
		s = fmt.Sprintf("%s (iteration %d)", s, e.Iteration)
	}

	return strings.TrimSpace(s)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return t.Kind == e.Kind
}

// WithIteration returns a copy of e annotated with the loop iteration.
func (e *Error) WithIteration(n int) *Error {
	c := *e
	c.Iteration = n
	return &c
}

// WithAgent returns a copy of e annotated with the agent name.
func (e *Error) WithAgent(name string) *Error {
	c := *e
	c.Agent = name
	return &c
}

// AsError returns the first *Error in err's chain, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of the first *Error in err's chain or "" if none.
func KindOf(err error) ErrorKind {
	if e, ok := AsError(err); ok {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err's chain contains an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return errors.Is(err, &Error{Kind: kind})
}

// IsTerminal reports whether err is one of the loop-terminal kinds that must
// never be retried internally (max iterations, timeout, cancellation).
func IsTerminal(err error) bool {
	return errors.Is(err, ErrMaxIterationsExceeded) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrCancelled)
}
