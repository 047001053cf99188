// Package observability provides agent.Hooks implementations exporting run,
// model and tool activity as Prometheus metrics, OpenTelemetry spans and
// structured log records.
//
//	metrics, _ := observability.NewMetricsHooks(prometheus.DefaultRegisterer)
//	tracing := observability.NewTracingHooks(nil)
//	a := agent.New("support", backend, agent.WithAgentHooks(agent.CombineHooks(metrics, tracing)))
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hupe1980/agentcore/agent"
	"github.com/hupe1980/agentcore/core"
)

var _ agent.Hooks = (*MetricsHooks)(nil)

// MetricsOptions configures MetricsHooks.
type MetricsOptions struct {
	Namespace string
	Buckets   []float64
}

// MetricsHooks records Prometheus metrics for every observed run.
type MetricsHooks struct {
	agent.NoopHooks

	runsTotal        *prometheus.CounterVec
	runDuration      *prometheus.HistogramVec
	runIterations    *prometheus.HistogramVec
	runsInFlight     *prometheus.GaugeVec
	modelCallsTotal  *prometheus.CounterVec
	modelDuration    *prometheus.HistogramVec
	tokensTotal      *prometheus.CounterVec
	toolCallsTotal   *prometheus.CounterVec
	toolDuration     *prometheus.HistogramVec
	handoffsTotal    *prometheus.CounterVec
	streamDeltaTotal *prometheus.CounterVec
}

// NewMetricsHooks creates the collectors and registers them with reg.
func NewMetricsHooks(reg prometheus.Registerer, optFns ...func(o *MetricsOptions)) (*MetricsHooks, error) {
	opts := MetricsOptions{
		Namespace: "agentcore",
		Buckets:   prometheus.DefBuckets,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	ns := opts.Namespace

	m := &MetricsHooks{
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "agent_runs_total",
				Help:      "Total agent runs by agent and status.",
			},
			[]string{"agent", "status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Name:      "agent_run_duration_seconds",
				Help:      "Agent run duration in seconds by agent.",
				Buckets:   opts.Buckets,
			},
			[]string{"agent"},
		),
		runIterations: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Name:      "agent_run_iterations",
				Help:      "Loop iterations per completed run by agent.",
				Buckets:   []float64{1, 2, 3, 5, 8, 13, 21},
			},
			[]string{"agent"},
		),
		runsInFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: ns,
				Name:      "agent_runs_in_flight",
				Help:      "Runs currently executing by agent.",
			},
			[]string{"agent"},
		),
		modelCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "model_calls_total",
				Help:      "Total backend calls by agent and status.",
			},
			[]string{"agent", "status"},
		),
		modelDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Name:      "model_call_duration_seconds",
				Help:      "Backend call duration in seconds by agent.",
				Buckets:   opts.Buckets,
			},
			[]string{"agent"},
		),
		tokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "model_tokens_total",
				Help:      "Total tokens by agent and direction (input, output).",
			},
			[]string{"agent", "direction"},
		),
		toolCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "tool_calls_total",
				Help:      "Total tool executions by tool and status.",
			},
			[]string{"tool", "status"},
		),
		toolDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Name:      "tool_call_duration_seconds",
				Help:      "Tool execution duration in seconds by tool.",
				Buckets:   opts.Buckets,
			},
			[]string{"tool"},
		),
		handoffsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "handoffs_total",
				Help:      "Total handoffs by source and target agent.",
			},
			[]string{"from", "to"},
		),
		streamDeltaTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "stream_deltas_total",
				Help:      "Total streamed text deltas by agent.",
			},
			[]string{"agent"},
		),
	}

	for _, c := range []prometheus.Collector{
		m.runsTotal,
		m.runDuration,
		m.runIterations,
		m.runsInFlight,
		m.modelCallsTotal,
		m.modelDuration,
		m.tokensTotal,
		m.toolCallsTotal,
		m.toolDuration,
		m.handoffsTotal,
		m.streamDeltaTotal,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// MetricsHandler exposes the metrics gathered by g over HTTP.
func MetricsHandler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *MetricsHooks) OnRunStart(rc *core.RunContext) {
	m.runsInFlight.WithLabelValues(rc.Agent.Name).Inc()
}

func (m *MetricsHooks) OnModelResponse(rc *core.RunContext, resp *core.InferenceResponse, elapsed time.Duration, err error) {
	name := rc.Agent.Name

	m.modelCallsTotal.WithLabelValues(name, status(err)).Inc()
	m.modelDuration.WithLabelValues(name).Observe(elapsed.Seconds())

	if resp != nil && resp.Usage != nil {
		m.tokensTotal.WithLabelValues(name, "input").Add(float64(resp.Usage.InputTokens))
		m.tokensTotal.WithLabelValues(name, "output").Add(float64(resp.Usage.OutputTokens))
	}
}

func (m *MetricsHooks) OnToolCallEnd(_ *core.RunContext, res core.ToolExecutionResult) {
	m.toolCallsTotal.WithLabelValues(res.ToolName, status(res.Err)).Inc()
	m.toolDuration.WithLabelValues(res.ToolName).Observe(res.Duration.Seconds())
}

func (m *MetricsHooks) OnHandoff(rc *core.RunContext, target string) {
	m.handoffsTotal.WithLabelValues(rc.Agent.Name, target).Inc()
}

func (m *MetricsHooks) OnStreamDelta(rc *core.RunContext, _ string) {
	m.streamDeltaTotal.WithLabelValues(rc.Agent.Name).Inc()
}

func (m *MetricsHooks) OnRunEnd(rc *core.RunContext, res *agent.Result, err error) {
	name := rc.Agent.Name

	m.runsInFlight.WithLabelValues(name).Dec()
	m.runsTotal.WithLabelValues(name, status(err)).Inc()
	m.runDuration.WithLabelValues(name).Observe(rc.Elapsed().Seconds())

	if res != nil {
		m.runIterations.WithLabelValues(name).Observe(float64(res.Iterations))
	}
}

// status labels an outcome: "ok", the error kind, or "error".
func status(err error) string {
	if err == nil {
		return "ok"
	}

	if k := core.KindOf(err); k != "" {
		return string(k)
	}

	return "error"
}

// WithNamespace sets the metric namespace (default "agentcore").
func WithNamespace(ns string) func(o *MetricsOptions) {
	return func(o *MetricsOptions) { o.Namespace = ns }
}

// WithBuckets sets the duration histogram buckets.
func WithBuckets(b []float64) func(o *MetricsOptions) {
	return func(o *MetricsOptions) { o.Buckets = b }
}
