package dispatch

import (
	"errors"
	"fmt"
	"strings"
)

// CallFailure describes one failed call in a batch.
type CallFailure struct {
	Index  int
	Tool   string
	CallID string
	Err    error
}

// BatchError is returned under CollectErrors and lists every failing call
// in call order.
type BatchError struct {
	Failures []CallFailure
}

func (e *BatchError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = fmt.Sprintf("[%d] %s: %v", f.Index, f.Tool, f.Err)
	}
	return fmt.Sprintf("agentcore: dispatch: %d tool call(s) failed: %s", len(e.Failures), strings.Join(parts, "; "))
}

// Unwrap exposes the individual failures to errors.Is and errors.As.
func (e *BatchError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}

// Tools returns the names of the failing tools.
func (e *BatchError) Tools() []string {
	names := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		names[i] = f.Tool
	}
	return names
}

// AsBatchError returns the *BatchError in err's chain, if any.
func AsBatchError(err error) (*BatchError, bool) {
	var be *BatchError
	ok := errors.As(err, &be)
	return be, ok
}
