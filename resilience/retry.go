package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/logging"
	"github.com/hupe1980/agentcore/model"
)

// Delay computes the wait before retry attempt n (1-based: the wait after
// the first failure is Delay(1)).
type Delay interface {
	Delay(attempt int) time.Duration
}

// Fixed waits the same duration before every retry.
type Fixed time.Duration

// Delay implements Delay.
func (f Fixed) Delay(int) time.Duration { return time.Duration(f) }

// Exponential waits Base*Multiplier^(attempt-1), varied by up to ±Jitter (a
// fraction, 0.1 = 10%) and never longer than Max.
type Exponential struct {
	Base       time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64
}

// Delay implements Delay.
func (e Exponential) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	mult := e.Multiplier
	if mult <= 0 {
		mult = 2
	}

	backoff := float64(e.Base) * math.Pow(mult, float64(attempt-1))

	if e.Jitter > 0 && !math.IsInf(backoff, 0) {
		backoff += backoff * e.Jitter * (rand.Float64()*2 - 1) //nolint:gosec // jitter doesn't need crypto rand
	}

	if e.Max > 0 && backoff > float64(e.Max) {
		backoff = float64(e.Max)
	}

	if backoff < 0 {
		return 0
	}

	return time.Duration(backoff)
}

// RetryPolicy configures Retry.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts including the first.
	// Values below 1 are treated as 1.
	MaxAttempts int
	// Delay between attempts. Nil means no wait.
	Delay Delay
	// ShouldRetry decides whether an error is retried. Defaults to DefaultShouldRetry.
	ShouldRetry func(err error) bool
	// OnRetry observes each scheduled retry.
	OnRetry func(attempt int, err error, wait time.Duration)
	// Sleep waits between attempts. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
	// Logger receives retry logs.
	Logger logging.Logger
}

// DefaultRetryPolicy returns three attempts with exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Delay: Exponential{
			Base:       200 * time.Millisecond,
			Max:        10 * time.Second,
			Multiplier: 2,
			Jitter:     0.1,
		},
	}
}

// DefaultShouldRetry retries plain errors and retryable provider failures.
// Cancellation, timeouts, exhausted iteration budgets, context errors and
// non-retryable provider errors (auth, invalid input, not found) are never
// retried; neither are tool, guardrail and breaker rejections.
func DefaultShouldRetry(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	if core.IsTerminal(err) {
		return false
	}

	if e, ok := core.AsError(err); ok {
		return model.IsRetryableKind(e.Kind)
	}

	return true
}

// Retry re-runs failed operations according to a RetryPolicy.
type Retry struct {
	policy RetryPolicy
}

// NewRetry creates a Retry policy.
func NewRetry(p RetryPolicy) *Retry {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}

	if p.ShouldRetry == nil {
		p.ShouldRetry = DefaultShouldRetry
	}

	if p.Sleep == nil {
		p.Sleep = sleep
	}

	p.Logger = logging.OrNoOp(p.Logger)

	return &Retry{policy: p}
}

// Apply implements Policy. When every attempt fails, the last error is
// returned unchanged.
func (r *Retry) Apply(next Func) Func {
	return func(ctx context.Context) (any, error) {
		var lastErr error

		for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
			v, err := next(ctx)
			if err == nil {
				return v, nil
			}

			lastErr = err

			if attempt == r.policy.MaxAttempts || !r.policy.ShouldRetry(err) {
				break
			}

			wait := r.wait(attempt, err)

			r.policy.Logger.Debug("resilience.retry.scheduled", "attempt", attempt, "wait", wait, "error", err.Error())

			if r.policy.OnRetry != nil {
				r.policy.OnRetry(attempt, err, wait)
			}

			if err := r.policy.Sleep(ctx, wait); err != nil {
				return nil, err
			}
		}

		return nil, lastErr
	}
}

func (r *Retry) wait(attempt int, err error) time.Duration {
	if e, ok := core.AsError(err); ok && e.Kind == core.KindRateLimitExceeded && e.RetryAfter > 0 {
		return e.RetryAfter
	}

	if r.policy.Delay == nil {
		return 0
	}

	return r.policy.Delay.Delay(attempt)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctxError(ctx)
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctxError(ctx)
	case <-t.C:
		return nil
	}
}
