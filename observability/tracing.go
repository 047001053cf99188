package observability

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/agentcore/agent"
	"github.com/hupe1980/agentcore/core"
)

const tracerName = "github.com/hupe1980/agentcore"

var _ agent.Hooks = (*TracingHooks)(nil)

// TracingHooks emits one "agent.run" span per run with child spans for every
// backend call ("agent.model") and tool execution ("agent.tool").
type TracingHooks struct {
	agent.NoopHooks

	tracer trace.Tracer

	mu    sync.Mutex
	runs  map[string]trace.Span
	tools map[toolKey]trace.Span
}

type toolKey struct {
	runID  string
	callID string
}

// NewTracingHooks creates tracing hooks using tp (the global provider when
// nil).
func NewTracingHooks(tp trace.TracerProvider) *TracingHooks {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	return &TracingHooks{
		tracer: tp.Tracer(tracerName),
		runs:   make(map[string]trace.Span),
		tools:  make(map[toolKey]trace.Span),
	}
}

func (h *TracingHooks) OnRunStart(rc *core.RunContext) {
	_, span := h.tracer.Start(rc.Context, "agent.run",
		trace.WithTimestamp(rc.Started),
		trace.WithAttributes(
			attribute.String("agent.name", rc.Agent.Name),
			attribute.String("agent.run_id", rc.RunID),
			attribute.String("agent.session_id", rc.SessionID),
		),
	)

	h.mu.Lock()
	h.runs[rc.RunID] = span
	h.mu.Unlock()
}

func (h *TracingHooks) OnIterationStart(rc *core.RunContext, iteration int) {
	if span := h.run(rc); span != nil {
		span.AddEvent("agent.iteration", trace.WithAttributes(attribute.Int("agent.iteration", iteration)))
	}
}

func (h *TracingHooks) OnModelResponse(rc *core.RunContext, resp *core.InferenceResponse, elapsed time.Duration, err error) {
	end := time.Now()

	_, span := h.tracer.Start(h.parent(rc), "agent.model",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithTimestamp(end.Add(-elapsed)),
		trace.WithAttributes(attribute.Int("agent.iteration", rc.Iteration())),
	)

	if resp != nil {
		span.SetAttributes(
			attribute.Int("model.tool_calls", len(resp.ToolCalls)),
			attribute.String("model.finish_reason", string(resp.FinishReason)),
		)

		if resp.Usage != nil {
			span.SetAttributes(
				attribute.Int("model.input_tokens", resp.Usage.InputTokens),
				attribute.Int("model.output_tokens", resp.Usage.OutputTokens),
			)
		}
	}

	fail(span, err, "model call failed")
	span.End(trace.WithTimestamp(end))
}

func (h *TracingHooks) OnToolCallStart(rc *core.RunContext, call core.ToolCall) {
	_, span := h.tracer.Start(h.parent(rc), "agent.tool",
		trace.WithAttributes(
			attribute.String("tool.name", call.Name),
			attribute.String("tool.call_id", call.ID),
		),
	)

	h.mu.Lock()
	h.tools[toolKey{rc.RunID, call.ID}] = span
	h.mu.Unlock()
}

func (h *TracingHooks) OnToolCallEnd(rc *core.RunContext, res core.ToolExecutionResult) {
	key := toolKey{rc.RunID, res.CallID}

	h.mu.Lock()
	span, ok := h.tools[key]
	delete(h.tools, key)
	h.mu.Unlock()

	if !ok {
		return
	}

	fail(span, res.Err, "tool call failed")
	span.End()
}

func (h *TracingHooks) OnHandoff(rc *core.RunContext, target string) {
	if span := h.run(rc); span != nil {
		span.AddEvent("agent.handoff", trace.WithAttributes(attribute.String("agent.target", target)))
	}
}

func (h *TracingHooks) OnRunEnd(rc *core.RunContext, res *agent.Result, err error) {
	h.mu.Lock()
	span, ok := h.runs[rc.RunID]
	delete(h.runs, rc.RunID)
	h.mu.Unlock()

	if !ok {
		return
	}

	if res != nil {
		span.SetAttributes(
			attribute.Int("agent.iterations", res.Iterations),
			attribute.Int("agent.tool_calls", len(res.ToolCalls)),
		)
		if res.HandoffTo != "" {
			span.SetAttributes(attribute.String("agent.handoff_to", res.HandoffTo))
		}
	}

	fail(span, err, "run failed")
	span.End()
}

func (h *TracingHooks) run(rc *core.RunContext) trace.Span {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.runs[rc.RunID]
}

// parent returns a context carrying the run span.
func (h *TracingHooks) parent(rc *core.RunContext) context.Context {
	if span := h.run(rc); span != nil {
		return trace.ContextWithSpan(rc.Context, span)
	}
	return rc.Context
}

func fail(span trace.Span, err error, msg string) {
	if err == nil {
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, msg)

	if k := core.KindOf(err); k != "" {
		span.SetAttributes(attribute.String("error.kind", string(k)))
	}
}
