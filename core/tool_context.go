package core

import (
	"context"

	"github.com/hupe1980/agentcore/logging"
)

// ToolContext provides a constrained surface for tool implementations. It
// exposes the cancellation context, the originating call and the identity of
// the run that requested it. Tools must treat it as read-only.
type ToolContext struct {
	ctx       context.Context
	call      ToolCall
	runID     string
	sessionID string
	agentName string

	*scopedLogger
}

// NewToolContext constructs a tool context for call. Run identity is taken
// from ctx when present (see WithRunInfo).
func NewToolContext(ctx context.Context, call ToolCall, logger logging.Logger) *ToolContext {
	if ctx == nil {
		ctx = context.Background()
	}

	tc := &ToolContext{ctx: ctx, call: call}

	if info, ok := RunInfoFrom(ctx); ok {
		tc.runID = info.RunID
		tc.sessionID = info.SessionID
		tc.agentName = info.Agent
	}

	tc.scopedLogger = newScopedLogger(logger, "tool", call.Name, "call_id", call.ID, "run", tc.runID)

	return tc
}

// Context returns the context associated with the tool invocation.
func (tc *ToolContext) Context() context.Context { return tc.ctx }

// Call returns the originating tool call.
func (tc *ToolContext) Call() ToolCall { return tc.call }

// CallID returns the id of the originating tool call.
func (tc *ToolContext) CallID() string { return tc.call.ID }

// ToolName returns the name of the invoked tool.
func (tc *ToolContext) ToolName() string { return tc.call.Name }

// RunID returns the run ID associated with the tool invocation.
func (tc *ToolContext) RunID() string { return tc.runID }

// SessionID returns the session ID associated with the tool invocation.
func (tc *ToolContext) SessionID() string { return tc.sessionID }

// AgentName returns the agent name associated with the tool invocation.
func (tc *ToolContext) AgentName() string { return tc.agentName }

// Logger returns the logger associated with the tool invocation.
func (tc *ToolContext) Logger() logging.Logger { return tc.scopedLogger.Logger() }
