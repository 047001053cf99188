package observability

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/hupe1980/agentcore/agent"
	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/logging"
	"github.com/hupe1980/agentcore/model"
	"github.com/hupe1980/agentcore/tool"
)

func echoTool() tool.Tool {
	return tool.NewFunctionTool("echo", "Echoes its input", nil, func(_ *core.ToolContext, args map[string]any) (any, error) {
		return args["text"], nil
	})
}

func failTool() tool.Tool {
	return tool.NewFunctionTool("fail", "Always fails", nil, func(*core.ToolContext, map[string]any) (any, error) {
		return nil, errors.New("boom")
	})
}

func scripted() *model.MockModel {
	return model.NewMockModel("mock", "test").AddTurn(
		model.Turn{
			ToolCalls: []core.ToolCall{
				core.NewToolCall("c1", "echo", map[string]any{"text": "hi"}),
				core.NewToolCall("c2", "fail", nil),
			},
			Usage: &core.Usage{InputTokens: 10, OutputTokens: 2},
		},
		model.Turn{Content: "done", Usage: &core.Usage{InputTokens: 14, OutputTokens: 3}},
	)
}

func TestMetricsHooks(t *testing.T) {
	reg := prometheus.NewRegistry()

	m, err := NewMetricsHooks(reg)
	require.NoError(t, err)

	a := agent.New("support", scripted(),
		agent.WithTools(echoTool(), failTool()),
		agent.WithAgentHooks(m),
	)

	res, err := a.Run(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "done", res.Output)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runsTotal.WithLabelValues("support", "ok")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.runsInFlight.WithLabelValues("support")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.modelCallsTotal.WithLabelValues("support", "ok")))
	assert.Equal(t, 24.0, testutil.ToFloat64(m.tokensTotal.WithLabelValues("support", "input")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.tokensTotal.WithLabelValues("support", "output")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.toolCallsTotal.WithLabelValues("echo", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.toolCallsTotal.WithLabelValues("fail", string(core.KindToolExecutionFailed))))
}

func TestMetricsHooks_FailedRunLabelsKind(t *testing.T) {
	reg := prometheus.NewRegistry()

	m, err := NewMetricsHooks(reg, WithNamespace("test"))
	require.NoError(t, err)

	backend := model.NewMockModel("mock", "test").AddTurn(model.Turn{Err: errors.New("offline")})

	_, err = agent.New("support", backend, agent.WithAgentHooks(m)).Run(context.Background(), "hello")
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runsTotal.WithLabelValues("support", string(core.KindGenerationFailed))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.modelCallsTotal.WithLabelValues("support", string(core.KindGenerationFailed))))
}

func TestMetricsHooks_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()

	_, err := NewMetricsHooks(reg)
	require.NoError(t, err)

	_, err = NewMetricsHooks(reg)
	assert.Error(t, err)
}

func TestMetricsHandler(t *testing.T) {
	reg := prometheus.NewRegistry()

	m, err := NewMetricsHooks(reg)
	require.NoError(t, err)

	_, err = agent.New("support", model.NewMockModel("mock", "test").AddTurn(model.Turn{Content: "ok"}),
		agent.WithAgentHooks(m),
	).Run(context.Background(), "hello")
	require.NoError(t, err)

	srv := httptest.NewServer(MetricsHandler(reg))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `agentcore_agent_runs_total{agent="support",status="ok"} 1`)
}

func TestTracingHooks(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	a := agent.New("support", scripted(),
		agent.WithTools(echoTool(), failTool()),
		agent.WithAgentHooks(NewTracingHooks(tp)),
	)

	_, err := a.Run(context.Background(), "hello")
	require.NoError(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 5, "run + 2 model + 2 tool spans")

	byName := map[string][]sdktrace.ReadOnlySpan{}
	for _, s := range spans {
		byName[s.Name()] = append(byName[s.Name()], s)
	}

	require.Len(t, byName["agent.run"], 1)
	assert.Len(t, byName["agent.model"], 2)
	assert.Len(t, byName["agent.tool"], 2)

	run := byName["agent.run"][0]
	assert.Equal(t, codes.Unset, run.Status().Code)

	for _, s := range append(byName["agent.model"], byName["agent.tool"]...) {
		assert.Equal(t, run.SpanContext().SpanID(), s.Parent().SpanID())
		assert.Equal(t, run.SpanContext().TraceID(), s.SpanContext().TraceID())
	}

	var failed int
	for _, s := range byName["agent.tool"] {
		if s.Status().Code == codes.Error {
			failed++
		}
	}
	assert.Equal(t, 1, failed)

	var iterations int
	for _, e := range run.Events() {
		if e.Name == "agent.iteration" {
			iterations++
		}
	}
	assert.Equal(t, 2, iterations)
}

func TestTracingHooks_RunError(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	backend := model.NewMockModel("mock", "test").AddTurn(model.Turn{Err: errors.New("offline")})

	_, err := agent.New("support", backend, agent.WithAgentHooks(NewTracingHooks(tp))).Run(context.Background(), "hello")
	require.Error(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 2)

	for _, s := range spans {
		assert.Equal(t, codes.Error, s.Status().Code, s.Name())
	}
}

func TestLoggingHooks(t *testing.T) {
	var buf bytes.Buffer

	cfg := logging.DefaultLoggerConfig()
	cfg.Output = &buf

	a := agent.New("support", scripted(),
		agent.WithTools(echoTool(), failTool()),
		agent.WithAgentHooks(NewLoggingHooks(logging.NewLogger(cfg), "gpt-test")),
	)

	_, err := a.Run(context.Background(), "hello")
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"msg":"model.call.completed"`)
	assert.Contains(t, out, `"model":"gpt-test"`)
	assert.Contains(t, out, `"token_count":12`)
	assert.Contains(t, out, `"msg":"tool.call.completed","tool_name":"echo"`)
	assert.Contains(t, out, `"msg":"tool.call.failed","tool_name":"fail"`)
	assert.Contains(t, out, `"msg":"agent.run.completed","agent":"support","iterations":2`)
}
