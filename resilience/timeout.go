package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/agentcore/core"
)

// Timeout races an operation against a timer. The operation runs on its own
// goroutine with a derived context; when the timer wins that context is
// cancelled and a timeout error is returned.
type Timeout struct {
	d time.Duration
}

// NewTimeout creates a Timeout policy. A non-positive duration disables it.
func NewTimeout(d time.Duration) *Timeout {
	return &Timeout{d: d}
}

// Apply implements Policy.
func (t *Timeout) Apply(next Func) Func {
	return func(ctx context.Context) (any, error) {
		if t.d <= 0 {
			return next(ctx)
		}

		opCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		type outcome struct {
			v   any
			err error
		}

		done := make(chan outcome, 1)

		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- outcome{err: core.Errorf(core.KindGenerationFailed, core.OpResilience, "panic: %v", r)}
				}
			}()

			v, err := next(opCtx)
			done <- outcome{v: v, err: err}
		}()

		timer := time.NewTimer(t.d)
		defer timer.Stop()

		select {
		case o := <-done:
			return o.v, o.err
		case <-timer.C:
			return nil, &core.Error{
				Kind:    core.KindTimeout,
				Op:      core.OpResilience,
				Message: fmt.Sprintf("operation exceeded %s", t.d),
			}
		case <-ctx.Done():
			return nil, ctxError(ctx)
		}
	}
}

// WithTimeout runs op under a Timeout of d.
func WithTimeout[T any](ctx context.Context, d time.Duration, op Operation[T]) (T, error) {
	return Run(ctx, NewTimeout(d), op)
}
