package resilience

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/time/rate"

	"github.com/hupe1980/agentcore/core"
)

// RateLimiter gates calls through a token bucket. In adaptive mode the
// rate is halved whenever the wrapped call reports rateLimitExceeded and
// recovers additively on every success, never leaving [min, max].
type RateLimiter struct {
	mu sync.Mutex

	limiter *rate.Limiter

	adaptive bool
	current  float64
	min      float64
	max      float64
	recovery float64
}

// NewRateLimiter allows rps calls per second with the given burst.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}

	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		current: rps,
		min:     rps,
		max:     rps,
	}
}

// NewAdaptiveRateLimiter starts at rps and adapts between rps/10 and maxRPS.
func NewAdaptiveRateLimiter(rps, maxRPS float64, burst int) *RateLimiter {
	l := NewRateLimiter(rps, burst)

	if maxRPS < rps {
		maxRPS = rps
	}

	l.adaptive = true
	l.max = maxRPS
	l.min = rps * 0.1
	l.recovery = rps * 0.05

	return l
}

// Limit returns the current rate in calls per second.
func (l *RateLimiter) Limit() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.current
}

// Apply implements Policy.
func (l *RateLimiter) Apply(next Func) Func {
	return func(ctx context.Context) (any, error) {
		if err := l.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, ctxError(ctx)
			}
			// Wait fails fast when the deadline is shorter than the required wait.
			return nil, core.WrapError(core.KindRateLimitExceeded, core.OpResilience, err)
		}

		v, err := next(ctx)

		l.observe(err)

		return v, err
	}
}

func (l *RateLimiter) observe(err error) {
	if !l.adaptive {
		return
	}

	switch {
	case err == nil:
		l.adjust(func(cur float64) float64 { return cur + l.recovery })
	case errors.Is(err, core.ErrRateLimitExceeded):
		l.adjust(func(cur float64) float64 { return cur * 0.5 })
	}
}

func (l *RateLimiter) adjust(fn func(cur float64) float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rps := fn(l.current)

	if rps < l.min {
		rps = l.min
	}

	if rps > l.max {
		rps = l.max
	}

	if rps == l.current {
		return
	}

	l.current = rps
	l.limiter.SetLimit(rate.Limit(rps))
}
