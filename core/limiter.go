package core

import "sync"

// IterationLimiter enforces a maximum number of loop iterations per run.
type IterationLimiter struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewIterationLimiter creates a limiter allowing max iterations.
// If max == 0, unlimited iterations are allowed.
func NewIterationLimiter(max int) *IterationLimiter {
	return &IterationLimiter{max: max}
}

// Increment advances the counter. It returns a maxIterationsExceeded error
// once the counter passes the maximum.
func (il *IterationLimiter) Increment() error {
	il.mu.Lock()
	defer il.mu.Unlock()

	il.count++
	if il.max > 0 && il.count > il.max {
		e := Errorf(KindMaxIterationsExceeded, OpAgent, "limit %d", il.max)
		e.Iteration = il.count
		return e
	}

	return nil
}

// Count returns the number of iterations started.
func (il *IterationLimiter) Count() int {
	il.mu.Lock()
	defer il.mu.Unlock()

	return il.count
}

// Max returns the configured limit (0 means unlimited).
func (il *IterationLimiter) Max() int { return il.max }

// Remaining returns how many iterations are left before hitting the limit.
func (il *IterationLimiter) Remaining() int {
	il.mu.Lock()
	defer il.mu.Unlock()

	if il.max == 0 {
		return -1 // unlimited
	}

	return il.max - il.count
}
