package stream

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolCallAccumulator_FragmentsConcatenate(t *testing.T) {
	acc := NewToolCallAccumulator()
	acc.Accumulate(0, "c1", "search", `{"q":`)
	acc.Accumulate(0, "", "", `"x"}`)

	completed := acc.CompletedToolCalls()
	require.Len(t, completed, 1)
	assert.Equal(t, AccumulatedCall{Index: 0, ID: "c1", Name: "search", Arguments: `{"q":"x"}`}, completed[0])

	calls := acc.ToolCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "x", calls[0].Arguments()["q"])
}

func TestToolCallAccumulator_IncompleteExcluded(t *testing.T) {
	acc := NewToolCallAccumulator()
	acc.Accumulate(2, "c3", "", "{}")
	acc.Accumulate(1, "", "lookup", "{}")
	acc.Accumulate(0, "c1", "search", "{}")

	completed := acc.CompletedToolCalls()
	require.Len(t, completed, 1)
	assert.Equal(t, "c1", completed[0].ID)

	all := acc.AllToolCalls()
	require.Len(t, all, 3)
	assert.Equal(t, AccumulatedCall{Index: 1, ID: "", Name: "lookup", Arguments: "{}"}, all[1])
	assert.Equal(t, AccumulatedCall{Index: 2, ID: "c3", Name: "", Arguments: "{}"}, all[2])
}

func TestToolCallAccumulator_IDArrivesLate(t *testing.T) {
	acc := NewToolCallAccumulator()
	assert.True(t, acc.Apply(ToolCallDelta{Index: 0, Name: "search", Arguments: "{"}))
	assert.False(t, acc.Apply(TextDelta{Text: "ignored"}))
	assert.Empty(t, acc.CompletedToolCalls())

	acc.Apply(ToolCallDelta{Index: 0, ID: "late", Arguments: "}"})
	completed := acc.CompletedToolCalls()
	require.Len(t, completed, 1)
	assert.Equal(t, "late", completed[0].ID)
	assert.Equal(t, "{}", completed[0].Arguments)

	acc.Reset()
	assert.Zero(t, acc.Len())
}

func TestToolCallAccumulatorProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("arguments equal the in-order concatenation of fragments", prop.ForAll(
		func(fragments []string) bool {
			acc := NewToolCallAccumulator()
			acc.Accumulate(0, "c1", "tool", "")
			for _, f := range fragments {
				acc.Accumulate(0, "", "", f)
			}

			completed := acc.CompletedToolCalls()
			return len(completed) == 1 && completed[0].Arguments == strings.Join(fragments, "")
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.Property("completed calls are sorted by index", prop.ForAll(
		func(indexes []int) bool {
			acc := NewToolCallAccumulator()
			for _, idx := range indexes {
				acc.Accumulate(idx, "id", "name", "x")
			}

			completed := acc.CompletedToolCalls()
			for i := 1; i < len(completed); i++ {
				if completed[i-1].Index >= completed[i].Index {
					return false
				}
			}
			return len(completed) == acc.Len()
		},
		gen.SliceOf(gen.IntRange(0, 16)),
	))

	properties.TestingRun(t)
}
