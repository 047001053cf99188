package tool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/guardrail"
)

// -------------------- FunctionTool Tests --------------------

type sumArgs struct {
	A float64 `json:"a" description:"First addend"`
	B float64 `json:"b" description:"Second addend"`
}

func sumTool() *FunctionTool {
	return NewFunctionToolFromStruct("sum", "Add numbers", sumArgs{}, func(_ *core.ToolContext, args map[string]any) (any, error) {
		return args["a"].(float64) + args["b"].(float64), nil
	})
}

func toolCtx(name string) *core.ToolContext {
	return core.NewToolContext(context.Background(), core.NewToolCall("fc1", name, nil), nil)
}

func TestFunctionTool_Success(t *testing.T) {
	result, err := sumTool().Call(toolCtx("sum"), map[string]any{"a": 2.0, "b": 3.0})
	assert.NoError(t, err)
	assert.Equal(t, 5.0, result)
}

func TestFunctionTool_ExecutionError(t *testing.T) {
	execTool := NewFunctionTool("fail", "Fails", nil, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return nil, errors.New("boom")
	})

	_, err := execTool.Call(toolCtx("fail"), map[string]any{})
	require.Error(t, err)

	var toolErr *Error
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeExecution, toolErr.Code)
	assert.Equal(t, "boom", toolErr.Error())
}

func TestFunctionTool_CustomErrorForwarded(t *testing.T) {
	custom := NewError("quota", "quota exhausted", "QUOTA")
	tl := NewFunctionTool("quota", "Quota", nil, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return nil, custom
	})

	_, err := tl.Call(toolCtx("quota"), nil)
	assert.Same(t, custom, err)
	assert.Equal(t, "[QUOTA] quota exhausted", err.Error())
}

// -------------------- Registry Tests --------------------

func TestRegistry_RegisterRejectsDuplicatesAndEmptyNames(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(sumTool()))

	err := r.Register(sumTool())
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	err = r.Register(NewFunctionTool("", "nameless", nil, nil))
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	assert.Panics(t, func() { r.MustRegister(sumTool()) })
}

func TestRegistry_LookupNamesDefinitions(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(
		NewFunctionTool("zeta", "Z", nil, nil),
		sumTool(),
		NewFunctionTool("alpha", "A", nil, nil),
	)

	assert.Equal(t, []string{"alpha", "sum", "zeta"}, r.Names())
	assert.True(t, r.Has("sum"))
	assert.False(t, r.Has("missing"))

	tl, ok := r.Lookup("sum")
	require.True(t, ok)
	assert.Equal(t, "Add numbers", tl.Description())

	defs := r.Definitions()
	require.Len(t, defs, 3)
	assert.Equal(t, "alpha", defs[0].Function.Name)
	assert.Equal(t, "function", defs[0].Type)

	assert.True(t, r.Unregister("zeta"))
	assert.False(t, r.Unregister("zeta"))
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_Execute(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(sumTool())

	out, err := r.Execute(context.Background(), core.ParseToolCall("c1", "sum", `{"a":1,"b":2}`))
	require.NoError(t, err)
	assert.Equal(t, 3.0, out)
}

func TestRegistry_ExecuteErrorsCarryToolName(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(sumTool(), NewFunctionTool("fail", "Fails", nil, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return nil, errors.New("boom")
	}))

	ctx := context.Background()

	_, err := r.Execute(ctx, core.NewToolCall("c1", "missing", nil))
	assert.ErrorIs(t, err, core.ErrToolNotFound)

	_, err = r.Execute(ctx, core.NewToolCall("c2", "sum", map[string]any{"a": 1}))
	assert.ErrorIs(t, err, core.ErrInvalidToolArguments)

	_, err = r.Execute(ctx, core.ParseToolCall("c3", "sum", `{"a":`))
	assert.ErrorIs(t, err, core.ErrInvalidToolArguments)

	_, err = r.Execute(ctx, core.NewToolCall("c4", "fail", nil))
	require.ErrorIs(t, err, core.ErrToolExecutionFailed)
	assert.Equal(t, `agentcore: tool "fail": tool execution failed: boom`, err.Error())

	ce, ok := core.AsError(err)
	require.True(t, ok)
	assert.Equal(t, "fail", ce.Tool)
}

func TestRegistry_RecoversPanics(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(NewFunctionTool("panic", "Panics", nil, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		panic("kaboom")
	}))

	_, err := r.Execute(context.Background(), core.NewToolCall("c1", "panic", nil))
	require.ErrorIs(t, err, core.ErrToolExecutionFailed)

	var toolErr *Error
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodePanic, toolErr.Code)
}

func TestRegistry_Guardrails(t *testing.T) {
	var bodyCalls atomic.Int32

	blockDelete := guardrail.NewFunc("no_delete", func(_ context.Context, payload any) (guardrail.Result, error) {
		args, _ := payload.(map[string]any)
		if args["op"] == "delete" {
			return guardrail.Tripwire("delete not allowed"), nil
		}
		return guardrail.Pass(nil), nil
	})

	noSecrets := guardrail.NewFunc("no_secret", func(_ context.Context, payload any) (guardrail.Result, error) {
		if payload == "secret" {
			return guardrail.Tripwire("leak"), nil
		}
		return guardrail.Pass(nil), nil
	})

	r := NewRegistry()
	r.MustRegister(NewFunctionTool("db", "Database", nil, func(_ *core.ToolContext, args map[string]any) (any, error) {
		bodyCalls.Add(1)
		if args["op"] == "read" {
			return "secret", nil
		}
		return "ok", nil
	}, WithInputGuardrails(blockDelete), WithOutputGuardrails(noSecrets)))

	ctx := context.Background()

	_, err := r.Execute(ctx, core.NewToolCall("c1", "db", map[string]any{"op": "delete"}))
	assert.ErrorIs(t, err, core.ErrToolInputTripwire)
	assert.Zero(t, bodyCalls.Load())

	_, err = r.Execute(ctx, core.NewToolCall("c2", "db", map[string]any{"op": "read"}))
	require.ErrorIs(t, err, core.ErrToolOutputTripwire)
	ce, _ := core.AsError(err)
	assert.Equal(t, "db", ce.Tool)

	out, err := r.Execute(ctx, core.NewToolCall("c3", "db", map[string]any{"op": "write"}))
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(sumTool())

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = r.Execute(context.Background(), core.NewToolCall("c", "sum", map[string]any{"a": 1.0, "b": 1.0}))
			_ = r.Names()
		}()
	}
	wg.Wait()
}

func TestHandoffDefinition(t *testing.T) {
	def := HandoffDefinition("Billing Agent", "")
	assert.Equal(t, "transfer_to_billing_agent", def.Function.Name)
	assert.Contains(t, def.Function.Description, "Billing Agent")
}
