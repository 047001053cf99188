package agent

import (
	"time"

	"github.com/hupe1980/agentcore/core"
)

// Hooks observes a run. Tool callbacks fire from dispatcher goroutines, so
// implementations must be safe for concurrent use. Hooks must not block.
type Hooks interface {
	OnRunStart(rc *core.RunContext)
	OnIterationStart(rc *core.RunContext, iteration int)
	OnModelResponse(rc *core.RunContext, resp *core.InferenceResponse, elapsed time.Duration, err error)
	OnToolCallStart(rc *core.RunContext, call core.ToolCall)
	OnToolCallEnd(rc *core.RunContext, result core.ToolExecutionResult)
	OnHandoff(rc *core.RunContext, target string)
	OnStreamDelta(rc *core.RunContext, delta string)
	OnRunEnd(rc *core.RunContext, result *Result, err error)
}

// NoopHooks implements Hooks with empty methods. Embed it to override only
// the callbacks of interest.
type NoopHooks struct{}

var _ Hooks = NoopHooks{}

func (NoopHooks) OnRunStart(*core.RunContext) {}
func (NoopHooks) OnIterationStart(*core.RunContext, int) {}
func (NoopHooks) OnModelResponse(*core.RunContext, *core.InferenceResponse, time.Duration, error) {}
func (NoopHooks) OnToolCallStart(*core.RunContext, core.ToolCall) {}
func (NoopHooks) OnToolCallEnd(*core.RunContext, core.ToolExecutionResult) {}
func (NoopHooks) OnHandoff(*core.RunContext, string) {}
func (NoopHooks) OnStreamDelta(*core.RunContext, string) {}
func (NoopHooks) OnRunEnd(*core.RunContext, *Result, error) {}

// MultiHooks fans every callback out to each element in order.
type MultiHooks []Hooks

var _ Hooks = MultiHooks(nil)

// CombineHooks returns a Hooks calling every non-nil h. It returns NoopHooks
// when none remain.
func CombineHooks(hs ...Hooks) Hooks {
	var out MultiHooks

	for _, h := range hs {
		switch v := h.(type) {
		case nil:
		case MultiHooks:
			out = append(out, v...)
		default:
			out = append(out, v)
		}
	}

	switch len(out) {
	case 0:
		return NoopHooks{}
	case 1:
		return out[0]
	default:
		return out
	}
}

func (m MultiHooks) OnRunStart(rc *core.RunContext) {
	for _, h := range m {
		h.OnRunStart(rc)
	}
}

func (m MultiHooks) OnIterationStart(rc *core.RunContext, iteration int) {
	for _, h := range m {
		h.OnIterationStart(rc, iteration)
	}
}

func (m MultiHooks) OnModelResponse(rc *core.RunContext, resp *core.InferenceResponse, elapsed time.Duration, err error) {
	for _, h := range m {
		h.OnModelResponse(rc, resp, elapsed, err)
	}
}

func (m MultiHooks) OnToolCallStart(rc *core.RunContext, call core.ToolCall) {
	for _, h := range m {
		h.OnToolCallStart(rc, call)
	}
}

func (m MultiHooks) OnToolCallEnd(rc *core.RunContext, result core.ToolExecutionResult) {
	for _, h := range m {
		h.OnToolCallEnd(rc, result)
	}
}

func (m MultiHooks) OnHandoff(rc *core.RunContext, target string) {
	for _, h := range m {
		h.OnHandoff(rc, target)
	}
}

func (m MultiHooks) OnStreamDelta(rc *core.RunContext, delta string) {
	for _, h := range m {
		h.OnStreamDelta(rc, delta)
	}
}

func (m MultiHooks) OnRunEnd(rc *core.RunContext, result *Result, err error) {
	for _, h := range m {
		h.OnRunEnd(rc, result, err)
	}
}
