package resilience

import (
	"context"
)

// Fallback returns an operation that runs primary and, when it fails, runs
// secondary. If secondary also fails the primary error is returned.
// Cancellation of ctx is not masked by the secondary.
func Fallback[T any](primary, secondary Operation[T]) Operation[T] {
	return func(ctx context.Context) (T, error) {
		v, err := primary(ctx)
		if err == nil {
			return v, nil
		}

		if ctx.Err() != nil {
			return v, err
		}

		fv, ferr := secondary(ctx)
		if ferr != nil {
			var zero T
			return zero, err
		}

		return fv, nil
	}
}

// FallbackTo is the Policy form of Fallback.
func FallbackTo(secondary Func) Policy {
	return PolicyFunc(func(next Func) Func {
		return func(ctx context.Context) (any, error) {
			v, err := next(ctx)
			if err == nil || ctx.Err() != nil {
				return v, err
			}

			fv, ferr := secondary(ctx)
			if ferr != nil {
				return nil, err
			}

			return fv, nil
		}
	})
}
