package agentcore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentcore/agent"
	"github.com/hupe1980/agentcore/config"
	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/model"
	"github.com/hupe1980/agentcore/tool"
)

func blockingTool(started chan<- struct{}) tool.Tool {
	return tool.NewFunctionTool("wait", "Blocks until cancelled", nil, func(tc *core.ToolContext, _ map[string]any) (any, error) {
		close(started)
		<-tc.Context().Done()
		return nil, tc.Context().Err()
	})
}

func waitCall() model.Turn {
	return model.Turn{ToolCalls: []core.ToolCall{core.NewToolCall("c1", "wait", nil)}}
}

func TestInvokeSync_PersistsSession(t *testing.T) {
	c := New()

	m := model.NewMockModel("mock", "test").AddTurn(
		model.Turn{Content: "first"},
		model.Turn{Content: "second"},
	)

	_, err := c.NewAgent("support", m)
	require.NoError(t, err)

	res, err := c.InvokeSync(context.Background(), "s1", "support", "hello")
	require.NoError(t, err)
	assert.Equal(t, "first", res.Output)

	res, err = c.InvokeSync(context.Background(), "s1", "support", "again")
	require.NoError(t, err)
	assert.Equal(t, "second", res.Output)

	prompt := m.Calls()[1]
	require.Len(t, prompt, 4, "system + prior user/assistant + new user")
	assert.Equal(t, core.UserMessage("hello"), prompt[1])
	assert.Equal(t, "first", prompt[2].Content)
	assert.Equal(t, core.UserMessage("again"), prompt[3])

	stored, err := c.SessionStore().Load(context.Background(), "s1")
	require.NoError(t, err)
	assert.Len(t, stored, 4)
}

func TestNewAgent_AppliesConfig(t *testing.T) {
	cfg, err := config.Parse([]byte(`
agent:
  name: support
  instruction: "You are {{.agent}}."
resilience:
  retry:
    max_attempts: 2
    strategy: fixed
    base_delay: 1ms
`))
	require.NoError(t, err)

	c := New(WithConfig(cfg))

	m := model.NewMockModel("mock", "test").AddTurn(
		model.Turn{Err: errors.New("flaky")},
		model.Turn{Content: "ok"},
	)

	a, err := c.NewAgent("", m)
	require.NoError(t, err)
	assert.Equal(t, "support", a.Name())
	assert.Equal(t, []string{"support"}, c.Agents())

	res, err := c.InvokeSync(context.Background(), "", "support", "hi")
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Output)
	assert.Equal(t, 2, m.CallCount())
	assert.Equal(t, core.SystemMessage("You are support."), m.Calls()[1][0])
}

func TestNewAgent_Fallback(t *testing.T) {
	primary := model.NewMockModel("primary", "test").AddTurn(model.Turn{Err: errors.New("down")})
	secondary := model.NewMockModel("secondary", "test").AddTurn(model.Turn{Content: "from fallback"})

	c := New(WithFallback(secondary))

	_, err := c.NewAgent("support", primary)
	require.NoError(t, err)

	res, err := c.InvokeSync(context.Background(), "", "support", "hi")
	require.NoError(t, err)
	assert.Equal(t, "from fallback", res.Output)
	assert.Equal(t, 1, primary.CallCount())
	assert.Equal(t, 1, secondary.CallCount())
}

func TestNewAgent_Errors(t *testing.T) {
	c := New()

	_, err := c.NewAgent("support", nil)
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = c.NewAgent("support", model.NewMockModel("mock", "test"))
	require.NoError(t, err)

	_, err = c.NewAgent("support", model.NewMockModel("mock", "test"))
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestInvoke_UnknownAgent(t *testing.T) {
	_, err := New().Invoke(context.Background(), "", "nobody", "hi")
	assert.ErrorIs(t, err, core.ErrInvalidInput)
	assert.Contains(t, err.Error(), `"nobody"`)
}

func TestInvoke_EmptyInputReleasesSlot(t *testing.T) {
	c := New(WithMaxConcurrentRuns(1))

	m := model.NewMockModel("mock", "test").AddTurn(model.Turn{Content: "ok"})

	_, err := c.NewAgent("support", m)
	require.NoError(t, err)

	_, err = c.Invoke(context.Background(), "", "support", "  ")
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	res, err := c.InvokeSync(context.Background(), "", "support", "hi")
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Output)
}

func TestCancel(t *testing.T) {
	c := New()
	started := make(chan struct{})

	m := model.NewMockModel("mock", "test").AddTurn(waitCall(), model.Turn{Content: "unreachable"})

	_, err := c.NewAgent("support", m, agent.WithTools(blockingTool(started)))
	require.NoError(t, err)

	h, err := c.Invoke(context.Background(), "", "support", "go")
	require.NoError(t, err)

	<-started
	assert.Equal(t, []string{h.RunID()}, c.ActiveRuns())

	require.NoError(t, c.Cancel(h.RunID()))

	_, err = h.Wait()
	assert.ErrorIs(t, err, core.ErrCancelled)

	assert.Eventually(t, func() bool { return len(c.ActiveRuns()) == 0 }, time.Second, 5*time.Millisecond)
	assert.Error(t, c.Cancel(h.RunID()))
}

func TestInvoke_ConcurrencyLimit(t *testing.T) {
	c := New(WithMaxConcurrentRuns(1))
	started := make(chan struct{})

	m := model.NewMockModel("mock", "test").AddTurn(waitCall(), model.Turn{Content: "unreachable"})

	_, err := c.NewAgent("support", m, agent.WithTools(blockingTool(started)))
	require.NoError(t, err)

	h, err := c.Invoke(context.Background(), "", "support", "first")
	require.NoError(t, err)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = c.Invoke(ctx, "", "support", "second")
	assert.ErrorIs(t, err, core.ErrCancelled)

	h.Cancel()
	_, _ = h.Wait()
}

func TestWithHooks(t *testing.T) {
	var ends int

	hooks := &endCounter{onEnd: func() { ends++ }}

	c := New(WithHooks(hooks))

	_, err := c.NewAgent("support", model.NewMockModel("mock", "test").AddTurn(model.Turn{Content: "ok"}))
	require.NoError(t, err)

	_, err = c.InvokeSync(context.Background(), "", "support", "hi")
	require.NoError(t, err)
	assert.Equal(t, 1, ends)
}

type endCounter struct {
	agent.NoopHooks
	onEnd func()
}

func (e *endCounter) OnRunEnd(*core.RunContext, *agent.Result, error) { e.onEnd() }

func TestFromConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentcore.yaml")
	require.NoError(t, os.WriteFile(path, []byte("agent:\n  name: support\nlogging:\n  level: error\n"), 0o600))

	c, err := FromConfigFile(path)
	require.NoError(t, err)

	a, err := c.NewAgent("", model.NewMockModel("mock", "test"))
	require.NoError(t, err)
	assert.Equal(t, "support", a.Name())

	_, err = FromConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
