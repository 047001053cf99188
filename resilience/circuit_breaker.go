package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/logging"
)

// State is a circuit breaker state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// BreakerState is a snapshot of a CircuitBreaker.
type BreakerState struct {
	State               State
	ConsecutiveFailures int
	OpenedAt            time.Time
}

// BreakerOptions configures a CircuitBreaker.
type BreakerOptions struct {
	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
	// IsFailure decides whether an error counts against the breaker.
	// Defaults to every error except caller cancellation.
	IsFailure func(err error) bool
	// OnStateChange observes transitions. It runs after the breaker's lock
	// is released and may call back into the breaker.
	OnStateChange func(from, to State)
	Logger        logging.Logger
}

// CircuitBreaker stops calling a failing dependency. After Threshold
// consecutive failures it opens and rejects calls with circuitBreakerOpen.
// Once ResetTimeout has elapsed a single probe is let through: success
// closes the circuit, failure re-opens it.
type CircuitBreaker struct {
	threshold    int
	resetTimeout time.Duration
	opts         BreakerOptions

	mu            sync.Mutex
	state         State
	failures      int
	openedAt      time.Time
	probeInFlight bool
	pending       []stateChange
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(threshold int, resetTimeout time.Duration, optFns ...func(o *BreakerOptions)) *CircuitBreaker {
	opts := BreakerOptions{Now: time.Now, IsFailure: defaultIsFailure}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Now == nil {
		opts.Now = time.Now
	}

	if opts.IsFailure == nil {
		opts.IsFailure = defaultIsFailure
	}

	opts.Logger = logging.OrNoOp(opts.Logger)

	if threshold < 1 {
		threshold = 1
	}

	return &CircuitBreaker{
		threshold:    threshold,
		resetTimeout: resetTimeout,
		opts:         opts,
		state:        StateClosed,
	}
}

func defaultIsFailure(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, core.ErrCancelled)
}

// State returns a snapshot of the breaker.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return BreakerState{State: cb.state, ConsecutiveFailures: cb.failures, OpenedAt: cb.openedAt}
}

// Reset closes the breaker and clears the failure count.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.unlock()

	cb.failures = 0
	cb.openedAt = time.Time{}
	cb.probeInFlight = false
	cb.transition(StateClosed)
}

// Apply implements Policy.
func (cb *CircuitBreaker) Apply(next Func) Func {
	return func(ctx context.Context) (any, error) {
		probe, err := cb.acquire()
		if err != nil {
			return nil, err
		}

		v, err := next(ctx)

		cb.record(probe, err)

		return v, err
	}
}

// Execute runs fn through the breaker.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := cb.Apply(func(ctx context.Context) (any, error) {
		return nil, fn(ctx)
	})(ctx)
	return err
}

func (cb *CircuitBreaker) acquire() (probe bool, err error) {
	cb.mu.Lock()
	defer cb.unlock()

	switch cb.state {
	case StateClosed:
		return false, nil
	case StateOpen:
		if cb.opts.Now().Sub(cb.openedAt) < cb.resetTimeout {
			return false, cb.rejection()
		}
		cb.transition(StateHalfOpen)
		cb.probeInFlight = true
		return true, nil
	default: // half-open
		if cb.probeInFlight {
			return false, cb.rejection()
		}
		cb.probeInFlight = true
		return true, nil
	}
}

func (cb *CircuitBreaker) record(probe bool, err error) {
	cb.mu.Lock()
	defer cb.unlock()

	failed := err != nil && cb.opts.IsFailure(err)

	if probe && cb.state == StateHalfOpen {
		cb.probeInFlight = false

		switch {
		case failed:
			cb.failures++
			cb.openedAt = cb.opts.Now()
			cb.transition(StateOpen)
		case err == nil:
			cb.failures = 0
			cb.openedAt = time.Time{}
			cb.transition(StateClosed)
		}
		// a cancelled probe leaves the breaker half-open for the next caller

		return
	}

	// Calls admitted while closed may finish after the breaker tripped; only
	// the probe decides how an open or half-open breaker recovers.
	if cb.state != StateClosed {
		return
	}

	switch {
	case failed:
		cb.failures++
		if cb.failures >= cb.threshold {
			cb.openedAt = cb.opts.Now()
			cb.transition(StateOpen)
		}
	case err == nil:
		cb.failures = 0
	}
}

func (cb *CircuitBreaker) rejection() error {
	retryIn := cb.resetTimeout - cb.opts.Now().Sub(cb.openedAt)
	if retryIn < 0 {
		retryIn = 0
	}

	return &core.Error{
		Kind:       core.KindCircuitBreakerOpen,
		Op:         core.OpResilience,
		Message:    fmt.Sprintf("%d consecutive failures", cb.failures),
		RetryAfter: retryIn,
	}
}

type stateChange struct {
	from, to State
	failures int
}

// transition must be called with mu held. Observers are notified by unlock.
func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	if from == to {
		return
	}

	cb.state = to
	cb.pending = append(cb.pending, stateChange{from: from, to: to, failures: cb.failures})
}

// unlock releases mu and then reports queued transitions, so observers may
// call back into the breaker.
func (cb *CircuitBreaker) unlock() {
	changes := cb.pending
	cb.pending = nil
	cb.mu.Unlock()

	for _, c := range changes {
		cb.opts.Logger.Info("resilience.breaker.transition", "from", string(c.from), "to", string(c.to), "failures", c.failures)

		if cb.opts.OnStateChange != nil {
			cb.opts.OnStateChange(c.from, c.to)
		}
	}
}

// WithClock sets the breaker clock.
func WithClock(now func() time.Time) func(o *BreakerOptions) {
	return func(o *BreakerOptions) { o.Now = now }
}

// WithStateChange registers a transition observer.
func WithStateChange(fn func(from, to State)) func(o *BreakerOptions) {
	return func(o *BreakerOptions) { o.OnStateChange = fn }
}

// WithBreakerLogger sets the breaker logger.
func WithBreakerLogger(l logging.Logger) func(o *BreakerOptions) {
	return func(o *BreakerOptions) { o.Logger = l }
}
