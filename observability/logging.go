package observability

import (
	"time"

	"github.com/hupe1980/agentcore/agent"
	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/logging"
)

var _ agent.Hooks = (*LoggingHooks)(nil)

// LoggingHooks writes one structured record per model call, tool call and
// finished run.
type LoggingHooks struct {
	agent.NoopHooks

	logger *logging.StructuredLogger
	model  string
}

// NewLoggingHooks logs through l, labelling model calls with model (usually
// the backend's Info().Name).
func NewLoggingHooks(l *logging.StructuredLogger, model string) *LoggingHooks {
	return &LoggingHooks{logger: l, model: model}
}

func (h *LoggingHooks) OnModelResponse(_ *core.RunContext, resp *core.InferenceResponse, elapsed time.Duration, err error) {
	var tokens int
	if resp != nil && resp.Usage != nil {
		tokens = resp.Usage.TotalTokens()
	}

	h.logger.LogModelCall(h.model, tokens, elapsed, err)
}

func (h *LoggingHooks) OnToolCallEnd(_ *core.RunContext, res core.ToolExecutionResult) {
	h.logger.LogToolCall(res.ToolName, res.Duration, res.Err)
}

func (h *LoggingHooks) OnRunEnd(rc *core.RunContext, res *agent.Result, err error) {
	iterations := rc.Iteration()
	if res != nil {
		iterations = res.Iterations
	}

	h.logger.LogRun(rc.Agent.Name, iterations, rc.Elapsed(), err)
}
