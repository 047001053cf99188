package resilience

import (
	"context"

	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/model"
)

// Compile-time checks.
var (
	_ model.Backend             = (*Backend)(nil)
	_ model.StreamingToolCaller = (*Backend)(nil)
)

// Backend applies a policy composition to every call of a model.Backend.
// Generate and GenerateWithToolCalls are covered end to end. For the
// streaming methods only opening the stream is covered: an attempt succeeds
// once the first element arrives, and later stream errors are passed
// through without retry.
type Backend struct {
	inner     model.Backend
	policy    Policy
	secondary model.Backend
}

// WrapBackend wraps b with policies; the first policy is the outermost.
func WrapBackend(b model.Backend, policies ...Policy) *Backend {
	return &Backend{inner: b, policy: Compose(policies...)}
}

// FallbackBackend routes every call to secondary when primary fails. If
// secondary also fails the primary error is returned.
func FallbackBackend(primary, secondary model.Backend, policies ...Policy) *Backend {
	return &Backend{inner: primary, secondary: secondary, policy: Compose(policies...)}
}

// Unwrap returns the primary backend.
func (b *Backend) Unwrap() model.Backend { return b.inner }

// Info implements model.Backend.
func (b *Backend) Info() model.Info { return b.inner.Info() }

// Generate implements model.Backend.
func (b *Backend) Generate(ctx context.Context, messages []core.Message, opts model.GenerateOptions) (string, error) {
	op := func(be model.Backend) Operation[string] {
		return func(ctx context.Context) (string, error) {
			return be.Generate(ctx, messages, opts)
		}
	}

	return Run(ctx, b.policy, withFallbackOp(b, op))
}

// GenerateWithToolCalls implements model.Backend.
func (b *Backend) GenerateWithToolCalls(ctx context.Context, messages []core.Message, tools []model.ToolDefinition, opts model.GenerateOptions) (*core.InferenceResponse, error) {
	op := func(be model.Backend) Operation[*core.InferenceResponse] {
		return func(ctx context.Context) (*core.InferenceResponse, error) {
			return be.GenerateWithToolCalls(ctx, messages, tools, opts)
		}
	}

	return Run(ctx, b.policy, withFallbackOp(b, op))
}

// Stream implements model.Backend.
func (b *Backend) Stream(ctx context.Context, messages []core.Message, opts model.GenerateOptions) (<-chan string, <-chan error) {
	open := func(be model.Backend) func(context.Context) (<-chan string, <-chan error) {
		return func(ctx context.Context) (<-chan string, <-chan error) {
			return be.Stream(ctx, messages, opts)
		}
	}

	return guardedStream(ctx, Compose(b.policy, b.fallbackStream(opener(ctx, open(b.secondary)))), open(b.inner))
}

// StreamWithToolCalls implements model.StreamingToolCaller. Backends without
// native support are served by GenerateWithToolCalls and replayed as updates.
func (b *Backend) StreamWithToolCalls(ctx context.Context, messages []core.Message, tools []model.ToolDefinition, opts model.GenerateOptions) (<-chan model.StreamUpdate, <-chan error) {
	open := func(be model.Backend) func(context.Context) (<-chan model.StreamUpdate, <-chan error) {
		return func(ctx context.Context) (<-chan model.StreamUpdate, <-chan error) {
			if sc, ok := be.(model.StreamingToolCaller); ok {
				return sc.StreamWithToolCalls(ctx, messages, tools, opts)
			}
			return replay(ctx, be, messages, tools, opts)
		}
	}

	return guardedStream(ctx, Compose(b.policy, b.fallbackStream(opener(ctx, open(b.secondary)))), open(b.inner))
}

// fallbackStream returns a FallbackTo policy for the secondary opener, or
// nil without a secondary backend.
func (b *Backend) fallbackStream(secondary Func) Policy {
	if b.secondary == nil {
		return nil
	}

	return FallbackTo(secondary)
}

func withFallbackOp[T any](b *Backend, op func(be model.Backend) Operation[T]) Operation[T] {
	if b.secondary == nil {
		return op(b.inner)
	}

	return Fallback(op(b.inner), op(b.secondary))
}

// openedStream is a stream whose first element has already been received.
type openedStream[T any] struct {
	first    T
	hasFirst bool
	ch       <-chan T
	errs     <-chan error
	cancel   context.CancelFunc
}

// opener turns a stream constructor into a Func that succeeds once the
// stream has produced its first element or ended cleanly. The stream lives
// on a context derived from parent so that it outlives the attempt.
func opener[T any](parent context.Context, open func(context.Context) (<-chan T, <-chan error)) Func {
	return func(attemptCtx context.Context) (any, error) {
		streamCtx, cancel := context.WithCancel(parent)

		ch, errs := open(streamCtx)

		select {
		case first, ok := <-ch:
			if !ok {
				err := <-errs
				cancel()

				if err != nil {
					return nil, err
				}

				return &openedStream[T]{cancel: cancel}, nil
			}

			return &openedStream[T]{first: first, hasFirst: true, ch: ch, errs: errs, cancel: cancel}, nil
		case <-attemptCtx.Done():
			cancel()
			return nil, ctxError(attemptCtx)
		}
	}
}

func guardedStream[T any](ctx context.Context, p Policy, open func(context.Context) (<-chan T, <-chan error)) (<-chan T, <-chan error) {
	out := make(chan T)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		v, err := p.Apply(opener(ctx, open))(ctx)
		if err != nil {
			errCh <- err
			return
		}

		s, _ := v.(*openedStream[T])
		if s == nil {
			return
		}
		defer s.cancel()

		if !s.hasFirst {
			return
		}

		send := func(item T) bool {
			select {
			case out <- item:
				return true
			case <-ctx.Done():
				errCh <- ctxError(ctx)
				return false
			}
		}

		if !send(s.first) {
			return
		}

		for item := range s.ch {
			if !send(item) {
				return
			}
		}

		if err := <-s.errs; err != nil {
			errCh <- err
		}
	}()

	return out, errCh
}

// replay serves a tool-calling turn through GenerateWithToolCalls and emits
// the response as stream updates.
func replay(ctx context.Context, be model.Backend, messages []core.Message, tools []model.ToolDefinition, opts model.GenerateOptions) (<-chan model.StreamUpdate, <-chan error) {
	out := make(chan model.StreamUpdate, 4)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		resp, err := be.GenerateWithToolCalls(ctx, messages, tools, opts)
		if err != nil {
			errCh <- err
			return
		}

		for _, u := range model.UpdatesFromResponse(resp) {
			select {
			case out <- u:
			case <-ctx.Done():
				errCh <- ctxError(ctx)
				return
			}
		}
	}()

	return out, errCh
}
