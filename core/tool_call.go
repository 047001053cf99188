package core

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"
	"time"
)

// ToolCall is a model's request to invoke a named tool. A ToolCall is
// immutable once constructed: the argument map is copied on the way in and on
// the way out.
type ToolCall struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// RawArguments holds the original JSON argument text as produced by the
	// model. It is retained even when decoding succeeded.
	RawArguments string `json:"raw_arguments,omitempty"`

	args    map[string]any
	argsErr error
}

// NewToolCall creates a ToolCall with a private copy of args.
func NewToolCall(id, name string, args map[string]any) ToolCall {
	return ToolCall{ID: id, Name: name, args: cloneArgs(args)}
}

// ParseToolCall creates a ToolCall from raw JSON argument text. Empty or
// whitespace-only text decodes to an empty argument map. Decoding failures
// are retained on the call (see ArgumentsError) rather than returned, so a
// malformed call still reaches the dispatcher and is reported as
// invalidToolArguments for that single tool.
func ParseToolCall(id, name, raw string) ToolCall {
	tc := ToolCall{ID: id, Name: name, RawArguments: raw, args: map[string]any{}}

	if strings.TrimSpace(raw) == "" {
		return tc
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		tc.argsErr = fmt.Errorf("decode arguments: %w", err)
		return tc
	}

	if args != nil {
		tc.args = args
	}

	return tc
}

// Arguments returns a copy of the decoded argument map (never nil).
func (c ToolCall) Arguments() map[string]any {
	if c.args == nil {
		return map[string]any{}
	}
	return cloneArgs(c.args)
}

// ArgumentsError reports whether the raw arguments failed to decode.
func (c ToolCall) ArgumentsError() error { return c.argsErr }

// ArgumentsJSON returns the JSON encoding of the arguments, preferring the raw
// text the model produced.
func (c ToolCall) ArgumentsJSON() string {
	if c.RawArguments != "" {
		return c.RawArguments
	}

	b, err := json.Marshal(c.Arguments())
	if err != nil {
		return "{}"
	}

	return string(b)
}

// MarshalJSON encodes the call including its arguments.
func (c ToolCall) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID        string         `json:"id"`
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}{c.ID, c.Name, c.Arguments()})
}

func cloneArgs(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	maps.Copy(out, in)
	return out
}

// ToolErrorPrefix starts the history text of a failed tool call.
const ToolErrorPrefix = "[TOOL ERROR]"

// ToolExecutionResult is the outcome of one tool call. Exactly one of Output
// or Err is meaningful.
type ToolExecutionResult struct {
	ToolName  string
	CallID    string
	Arguments map[string]any
	Output    any
	Err       error
	Duration  time.Duration
	Timestamp time.Time
}

// IsSuccess reports whether the tool completed without error.
func (r ToolExecutionResult) IsSuccess() bool { return r.Err == nil }

// OutputText renders the result for inclusion in the conversation. Failures
// are rendered as "[TOOL ERROR] <tool>: <message>".
func (r ToolExecutionResult) OutputText() string {
	if r.Err != nil {
		return fmt.Sprintf("%s %s: %s", ToolErrorPrefix, r.ToolName, errorMessage(r.Err))
	}

	switch v := r.Output.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case fmt.Stringer:
		return v.String()
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

// errorMessage prefers the innermost cause for tool errors so the model sees
// the tool's own message rather than the taxonomy prefix.
func errorMessage(err error) string {
	if e, ok := AsError(err); ok {
		switch {
		case e.Err != nil && e.Message != "":
			return e.Message + ": " + e.Err.Error()
		case e.Err != nil:
			return e.Err.Error()
		case e.Message != "":
			return e.Message
		default:
			return e.Kind.String()
		}
	}
	return err.Error()
}
