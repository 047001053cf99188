package config

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentcore/agent"
	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/dispatch"
	"github.com/hupe1980/agentcore/logging"
	"github.com/hupe1980/agentcore/model"
	"github.com/hupe1980/agentcore/resilience"
)

const sample = `
agent:
  name: support
  instruction: "You are {{.agent}}."
  max_iterations: 4
  timeout: 90s
  streaming: true
  strict_tool_errors: true
dispatch:
  policy: collect_errors
  max_parallel: 2
resilience:
  retry:
    max_attempts: 2
    strategy: fixed
    base_delay: 1ms
  circuit_breaker:
    threshold: 3
  timeout: 10s
  rate_limit:
    rps: 5
    max_rps: 10
logging:
  level: debug
  format: json
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, "support", cfg.Agent.Name)
	assert.Equal(t, 4, cfg.Agent.MaxIterations)
	assert.Equal(t, 90*time.Second, cfg.Agent.Timeout)
	assert.Equal(t, 20, cfg.Agent.HistoryLimit, "default kept")
	assert.True(t, cfg.Agent.Streaming)
	assert.Equal(t, "collect_errors", cfg.Dispatch.Policy)

	require.NotNil(t, cfg.Resilience.Retry)
	assert.Equal(t, "fixed", cfg.Resilience.Retry.Strategy)
	assert.Equal(t, time.Millisecond, cfg.Resilience.Retry.BaseDelay)

	require.NotNil(t, cfg.Resilience.CircuitBreaker)
	assert.Equal(t, 30*time.Second, cfg.Resilience.CircuitBreaker.ResetTimeout, "default reset timeout")

	require.NotNil(t, cfg.Resilience.RateLimit)
	assert.Equal(t, 1, cfg.Resilience.RateLimit.Burst)
}

func TestParse_EmptyDocumentYieldsDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), *cfg)
}

func TestParse_RejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("agent:\n  nmae: typo\n"))
	require.Error(t, err)
}

func TestValidate_ReportsEverything(t *testing.T) {
	_, err := Parse([]byte(`
agent:
  name: " "
  max_iterations: -1
dispatch:
  policy: yolo
resilience:
  retry:
    strategy: linear
    jitter: 2
  circuit_breaker:
    threshold: 0
  rate_limit:
    rps: 0
logging:
  level: loud
  format: xml
`))
	require.Error(t, err)

	for _, want := range []string{
		"agent.name",
		"agent.max_iterations",
		"dispatch.policy",
		"resilience.retry.strategy",
		"resilience.retry.jitter",
		"resilience.circuit_breaker.threshold",
		"resilience.rate_limit.rps",
		"logging.level",
		"logging.format",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentcore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "support", cfg.Agent.Name)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestPolicies_Order(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	policies := cfg.Policies(nil)
	require.Len(t, policies, 4)
	assert.IsType(t, &resilience.Retry{}, policies[0])
	assert.IsType(t, &resilience.CircuitBreaker{}, policies[1])
	assert.IsType(t, &resilience.RateLimiter{}, policies[2])
	assert.IsType(t, &resilience.Timeout{}, policies[3])
}

func TestBuildBackend(t *testing.T) {
	m := model.NewMockModel("mock", "test")

	cfg := Default()
	assert.Same(t, m, cfg.BuildBackend(m, nil))

	parsed, err := Parse([]byte("resilience:\n  retry:\n    max_attempts: 2\n    strategy: fixed\n    base_delay: 1ms\n"))
	require.NoError(t, err)

	m.AddTurn(model.Turn{Err: errors.New("flaky")}, model.Turn{Content: "ok"})

	b := parsed.BuildBackend(m, nil)
	out, err := b.Generate(context.Background(), []core.Message{core.UserMessage("hi")}, model.GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 2, m.CallCount())
}

func TestApplyAgent(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	m := model.NewMockModel("mock", "test").AddTurn(model.Turn{Content: "hello"})

	a := agent.New(cfg.Agent.Name, m, cfg.ApplyAgent()...)

	res, err := a.Run(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "hello", res.Output)

	prompt := m.Calls()[0]
	assert.Equal(t, core.SystemMessage("You are support."), prompt[0])

	var opts agent.Options
	for _, fn := range cfg.ApplyAgent() {
		fn(&opts)
	}
	assert.Equal(t, dispatch.CollectErrors, opts.FailurePolicy)
	assert.Equal(t, 2, opts.MaxParallel)
	assert.True(t, opts.StrictToolErrors)
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer

	cfg := Default()
	cfg.Logging.Format = "zerolog"
	cfg.Logging.Level = "debug"

	l := cfg.Logger(&buf)
	assert.IsType(t, &logging.ZerologAdapter{}, l)

	l.Debug("config.test", "k", "v")
	assert.Contains(t, buf.String(), "config.test")

	buf.Reset()
	cfg.Logging.Format = "json"
	cfg.Logger(&buf).Info("config.json")
	assert.Contains(t, buf.String(), `"msg":"config.json"`)
}
