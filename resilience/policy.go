// Package resilience provides composable decorators for fallible operations:
// retry with fixed or exponential backoff, a circuit breaker, fallback,
// timeout and token-bucket rate limiting. The same policies can wrap a whole
// model.Backend through WrapBackend.
//
// Policies operate on type-erased functions so that one policy value can be
// shared across operations of different result types; Run and Wrap restore
// the static type at the edges:
//
//	p := resilience.Compose(
//		resilience.NewRetry(resilience.RetryPolicy{MaxAttempts: 3, Delay: resilience.Fixed(time.Second)}),
//		resilience.NewCircuitBreaker(5, 30*time.Second),
//		resilience.NewTimeout(20*time.Second),
//	)
//	out, err := resilience.Run(ctx, p, op)
package resilience

import (
	"context"
	"errors"

	"github.com/hupe1980/agentcore/core"
)

// Operation is a fallible, cancellable unit of work.
type Operation[T any] func(ctx context.Context) (T, error)

// Func is the type-erased form of an Operation.
type Func func(ctx context.Context) (any, error)

// Policy decorates a Func.
type Policy interface {
	Apply(next Func) Func
}

// PolicyFunc adapts a function to the Policy interface.
type PolicyFunc func(next Func) Func

// Apply implements Policy.
func (f PolicyFunc) Apply(next Func) Func { return f(next) }

// Compose chains policies. The first policy is the outermost: with
// Compose(retry, breaker) every retry attempt passes through the breaker.
func Compose(policies ...Policy) Policy {
	return PolicyFunc(func(next Func) Func {
		for i := len(policies) - 1; i >= 0; i-- {
			if policies[i] != nil {
				next = policies[i].Apply(next)
			}
		}
		return next
	})
}

// Wrap decorates op with policies and returns a typed Operation.
func Wrap[T any](op Operation[T], policies ...Policy) Operation[T] {
	f := Compose(policies...).Apply(erase(op))

	return func(ctx context.Context) (T, error) {
		v, err := f(ctx)
		if err != nil {
			var zero T
			return zero, err
		}

		t, _ := v.(T)

		return t, nil
	}
}

// Run executes op under policy p.
func Run[T any](ctx context.Context, p Policy, op Operation[T]) (T, error) {
	return Wrap(op, p)(ctx)
}

func erase[T any](op Operation[T]) Func {
	return func(ctx context.Context) (any, error) {
		return op(ctx)
	}
}

// ctxError maps a finished context onto the core taxonomy.
func ctxError(ctx context.Context) error {
	err := ctx.Err()
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return core.WrapError(core.KindTimeout, core.OpResilience, err)
	}

	return core.WrapError(core.KindCancelled, core.OpResilience, err)
}
