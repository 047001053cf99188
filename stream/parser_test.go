package stream

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentcore/core"
)

func TestParser_TextThenDone(t *testing.T) {
	p := NewParser()

	events := p.ParseLines([]string{
		`data: {"choices":[{"delta":{"content":"Hi"}}]}`,
		"",
		": keep-alive",
		"data: [DONE]",
	})

	assert.Equal(t, []Event{TextDelta{Text: "Hi"}, Done{}}, events)
	assert.True(t, p.Done())
}

func TestParser_StopsAfterDone(t *testing.T) {
	p := NewParser()

	events := p.ParseLines([]string{
		"data: [DONE]",
		`data: {"choices":[{"delta":{"content":"late"}}]}`,
	})
	assert.Equal(t, []Event{Done{}}, events)

	assert.Nil(t, p.ParseLine(`data: {"choices":[{"delta":{"content":"x"}}]}`))

	p.Reset()
	assert.Equal(t, []Event{TextDelta{Text: "x"}}, p.ParseLine(`data: {"choices":[{"delta":{"content":"x"}}]}`))
}

func TestParser_IgnoresNonDataFields(t *testing.T) {
	p := NewParser()

	assert.Empty(t, p.ParseLine("event: message"))
	assert.Empty(t, p.ParseLine("id: 42"))
	assert.Empty(t, p.ParseLine(":comment"))
	assert.Empty(t, p.ParseLine("   "))
}

func TestParser_MalformedChunkYieldsSingleError(t *testing.T) {
	p := NewParser()

	events := p.ParseLine(`data: {"choices":[`)
	require.Len(t, events, 1)

	ev, ok := events[0].(Error)
	require.True(t, ok)
	assert.Equal(t, core.KindDecodingError, ev.Kind)
	assert.ErrorIs(t, ev.AsError(), core.ErrDecoding)

	// the stream stays usable
	assert.Equal(t, []Event{TextDelta{Text: "ok"}}, p.ParseLine(`data: {"choices":[{"delta":{"content":"ok"}}]}`))
}

func TestParseChunk_ToolCallsFinishAndUsage(t *testing.T) {
	payload := `{"choices":[{"delta":{"tool_calls":[` +
		`{"index":0,"id":"c1","function":{"name":"search","arguments":"{\"q\":"}},` +
		`{"index":1,"id":"c2","function":{"name":"add","arguments":""}}]},` +
		`"finish_reason":"tool_calls"}],"usage":{"prompt_tokens":7,"completion_tokens":3}}`

	events := ParseChunk([]byte(payload))

	assert.Equal(t, []Event{
		ToolCallDelta{Index: 0, ID: "c1", Name: "search", Arguments: `{"q":`},
		ToolCallDelta{Index: 1, ID: "c2", Name: "add"},
		FinishReason{Reason: "tool_calls"},
		Usage{PromptTokens: 7, CompletionTokens: 3},
	}, events)

	assert.Equal(t, core.FinishToolCall, events[2].(FinishReason).Parsed())
}

func TestParseChunk_UsageOnly(t *testing.T) {
	events := ParseChunk([]byte(`{"choices":[],"usage":{"prompt_tokens":1,"completion_tokens":2}}`))
	assert.Equal(t, []Event{Usage{PromptTokens: 1, CompletionTokens: 2}}, events)
}

func TestReader_Next(t *testing.T) {
	body := strings.Join([]string{
		": ping",
		`data: {"choices":[{"delta":{"content":"Hel"}}]}`,
		"",
		`data: {"choices":[{"delta":{"content":"lo"},"finish_reason":"stop"}]}`,
		"",
		"data: [DONE]",
		"",
		`data: {"choices":[{"delta":{"content":"ignored"}}]}`,
	}, "\n")

	r := NewReader(strings.NewReader(body))

	var events []Event
	for {
		ev, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		events = append(events, ev)
	}

	assert.Equal(t, []Event{
		TextDelta{Text: "Hel"},
		TextDelta{Text: "lo"},
		FinishReason{Reason: "stop"},
		Done{},
	}, events)
}

func TestReader_EOFWithoutDone(t *testing.T) {
	r := NewReader(strings.NewReader(`data: {"choices":[{"delta":{"content":"x"}}]}`))

	ev, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, TextDelta{Text: "x"}, ev)

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}
