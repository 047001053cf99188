package core

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/hupe1980/agentcore/logging"
)

// AgentInfo identifies the agent driving a run.
type AgentInfo struct {
	Name        string
	Description string
}

// RunContext carries the per-run execution scope of an agent loop:
//   - The ambient cancellation Context
//   - Identifiers (RunID, SessionID, Agent info)
//   - The user input and run start time
//   - The iteration limiter and the cooperative cancellation flag
//
// A RunContext is created by the agent for every Run and handed to hooks and,
// through ToolContext, to tools.
type RunContext struct {
	Context   context.Context
	RunID     string
	SessionID string
	Agent     AgentInfo
	Input     string
	Started   time.Time
	Limiter   *IterationLimiter

	cancelled atomic.Bool

	*scopedLogger
}

// NewRunContext constructs a RunContext starting now.
func NewRunContext(ctx context.Context, runID, sessionID string, agent AgentInfo, input string, maxIterations int, logger logging.Logger) *RunContext {
	return &RunContext{
		Context:      ctx,
		RunID:        runID,
		SessionID:    sessionID,
		Agent:        agent,
		Input:        input,
		Started:      time.Now(),
		Limiter:      NewIterationLimiter(maxIterations),
		scopedLogger: newScopedLogger(logger, "agent", agent.Name, "run", runID, "session", sessionID),
	}
}

// Done returns a channel closed when the underlying context is cancelled.
func (rc *RunContext) Done() <-chan struct{} { return rc.Context.Done() }

// Err returns the cancellation error (if any) from the underlying context.
func (rc *RunContext) Err() error { return rc.Context.Err() }

// Cancel raises the cooperative cancellation flag. The loop observes it at
// the start of the next iteration and before dispatching tools.
func (rc *RunContext) Cancel() { rc.cancelled.Store(true) }

// Cancelled reports whether Cancel was called or the context is done.
func (rc *RunContext) Cancelled() bool {
	return rc.cancelled.Load() || rc.Context.Err() != nil
}

// Elapsed returns the time since the run started.
func (rc *RunContext) Elapsed() time.Duration { return time.Since(rc.Started) }

// Iteration returns the current (1-based) iteration number.
func (rc *RunContext) Iteration() int { return rc.Limiter.Count() }

type runInfoKey struct{}

// RunInfo is the subset of run identity propagated through context.Context,
// so that nested calls (handoffs, tools, backends) can correlate logs.
type RunInfo struct {
	RunID     string
	SessionID string
	Agent     string
}

// WithRunInfo returns a derived context carrying info.
func WithRunInfo(ctx context.Context, info RunInfo) context.Context {
	return context.WithValue(ctx, runInfoKey{}, info)
}

// RunInfoFrom extracts run identity from ctx.
func RunInfoFrom(ctx context.Context) (RunInfo, bool) {
	if ctx == nil {
		return RunInfo{}, false
	}
	info, ok := ctx.Value(runInfoKey{}).(RunInfo)
	return info, ok
}
