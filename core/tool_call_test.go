package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewToolCall_CopiesArguments(t *testing.T) {
	args := map[string]any{"q": "go"}
	call := NewToolCall("c1", "search", args)

	args["q"] = "mutated"
	assert.Equal(t, "go", call.Arguments()["q"])

	out := call.Arguments()
	out["q"] = "again"
	assert.Equal(t, "go", call.Arguments()["q"])
}

func TestParseToolCall(t *testing.T) {
	call := ParseToolCall("c1", "add", `{"a":1,"b":2}`)
	require.NoError(t, call.ArgumentsError())
	assert.Equal(t, float64(1), call.Arguments()["a"])
	assert.Equal(t, `{"a":1,"b":2}`, call.ArgumentsJSON())

	empty := ParseToolCall("c2", "noop", "  ")
	require.NoError(t, empty.ArgumentsError())
	assert.Empty(t, empty.Arguments())

	bad := ParseToolCall("c3", "add", `{"a":`)
	assert.Error(t, bad.ArgumentsError())
	assert.NotNil(t, bad.Arguments())
}

func TestToolExecutionResult_OutputText(t *testing.T) {
	ok := ToolExecutionResult{ToolName: "add", Output: map[string]int{"sum": 3}}
	assert.True(t, ok.IsSuccess())
	assert.Equal(t, `{"sum":3}`, ok.OutputText())

	failed := ToolExecutionResult{ToolName: "add", Err: ToolError(KindToolExecutionFailed, "add", errors.New("overflow"))}
	assert.False(t, failed.IsSuccess())
	assert.Equal(t, "[TOOL ERROR] add: overflow", failed.OutputText())
}

func TestHistory_RecentAndAppend(t *testing.T) {
	h := NewHistory(SystemMessage("sys"))
	h.Append(UserMessage("u1"), AssistantMessage("a1"), UserMessage("u2"))

	assert.Equal(t, 4, h.Len())
	recent := h.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "a1", recent[0].Content)
	assert.Equal(t, "u2", recent[1].Content)
	assert.Len(t, h.Recent(0), 4)

	last, ok := h.Last()
	require.True(t, ok)
	assert.Equal(t, RoleUser, last.Role)

	msgs := h.Messages()
	msgs[0].Content = "changed"
	assert.Equal(t, "sys", h.Messages()[0].Content)
}

func TestParseFinishReason(t *testing.T) {
	cases := map[string]FinishReason{
		"stop":           FinishCompleted,
		"end_turn":       FinishCompleted,
		"tool_calls":     FinishToolCall,
		"tool_use":       FinishToolCall,
		"length":         FinishMaxTokens,
		"max_tokens":     FinishMaxTokens,
		"content_filter": FinishContentFilter,
	}
	for in, want := range cases {
		got, ok := ParseFinishReason(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	_, ok := ParseFinishReason("")
	assert.False(t, ok)
}

func TestToolContext_RunInfo(t *testing.T) {
	ctx := WithRunInfo(context.Background(), RunInfo{RunID: "r1", SessionID: "s1", Agent: "helper"})
	tc := NewToolContext(ctx, NewToolCall("c1", "search", nil), nil)

	assert.Equal(t, "r1", tc.RunID())
	assert.Equal(t, "s1", tc.SessionID())
	assert.Equal(t, "helper", tc.AgentName())
	assert.Equal(t, "c1", tc.CallID())
	assert.Equal(t, "search", tc.ToolName())
	assert.NotNil(t, tc.Logger())
}

func TestRunContext_Cancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rc := NewRunContext(ctx, "r1", "", AgentInfo{Name: "a"}, "hi", 3, nil)
	assert.False(t, rc.Cancelled())

	rc.Cancel()
	assert.True(t, rc.Cancelled())

	rc2 := NewRunContext(ctx, "r2", "", AgentInfo{Name: "a"}, "hi", 3, nil)
	cancel()
	assert.True(t, rc2.Cancelled())
}
