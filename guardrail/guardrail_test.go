package guardrail

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentcore/core"
)

func noSecrets() Guardrail {
	return NewFunc("no_secrets", func(_ context.Context, payload any) (Result, error) {
		s, _ := payload.(string)
		if strings.Contains(s, "password") {
			return Tripwire("contains secret"), nil
		}
		return Pass(nil), nil
	})
}

func TestRun_PassesAndTrips(t *testing.T) {
	ctx := context.Background()

	require.NoError(t, Run(ctx, PhaseInput, []Guardrail{noSecrets()}, "hello"))

	err := Run(ctx, PhaseInput, []Guardrail{noSecrets()}, "my password")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInputTripwire)
	assert.Contains(t, err.Error(), "contains secret")
}

func TestRun_PhaseKinds(t *testing.T) {
	ctx := context.Background()
	trip := NewFunc("always", func(context.Context, any) (Result, error) { return Tripwire(""), nil })

	cases := map[Phase]error{
		PhaseInput:      core.ErrInputTripwire,
		PhaseOutput:     core.ErrOutputTripwire,
		PhaseToolInput:  core.ErrToolInputTripwire,
		PhaseToolOutput: core.ErrToolOutputTripwire,
	}

	for phase, want := range cases {
		err := Run(ctx, phase, []Guardrail{trip}, nil)
		assert.ErrorIs(t, err, want, string(phase))
	}
}

func TestRun_GuardrailErrorIsTripwire(t *testing.T) {
	broken := NewFunc("broken", func(context.Context, any) (Result, error) {
		return Result{}, errors.New("classifier down")
	})

	err := Run(context.Background(), PhaseOutput, []Guardrail{broken}, "x")
	assert.ErrorIs(t, err, core.ErrOutputTripwire)
	assert.Contains(t, err.Error(), "classifier down")
}

func TestRun_StopsAtFirstTripwire(t *testing.T) {
	calls := 0
	counter := NewFunc("counter", func(context.Context, any) (Result, error) {
		calls++
		return Pass(nil), nil
	})

	err := Run(context.Background(), PhaseInput, []Guardrail{noSecrets(), counter}, "password")
	require.Error(t, err)
	assert.Zero(t, calls)
}
