package compat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/model"
)

func sseServer(t *testing.T, lines []string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, true, req["stream"])

		w.Header().Set("Content-Type", "text/event-stream")
		for _, l := range lines {
			_, _ = fmt.Fprintln(w, l)
		}
	}))
	t.Cleanup(srv.Close)

	return srv
}

func TestStreamWithToolCalls_AssemblesFragments(t *testing.T) {
	srv := sseServer(t, []string{
		`: keep-alive`,
		`data: {"choices":[{"delta":{"content":"Let me "}}]}`,
		``,
		`data: {"choices":[{"delta":{"content":"check."}}]}`,
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"c1","function":{"name":"search","arguments":"{\"q\":"}}]}}]}`,
		`data: {not json`,
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"x\"}"}}]},"finish_reason":"tool_calls"}]}`,
		`data: {"choices":[],"usage":{"prompt_tokens":12,"completion_tokens":5}}`,
		`data: [DONE]`,
		`data: {"choices":[{"delta":{"content":"ignored"}}]}`,
	})

	m := NewModel(srv.URL, WithAPIKey("secret"), WithModel("local"))

	updates, errs := m.StreamWithToolCalls(context.Background(), []core.Message{core.UserMessage("hi")}, nil, model.GenerateOptions{})
	resp, err := model.CollectUpdates(context.Background(), updates, errs, nil)
	require.NoError(t, err)

	assert.Equal(t, "Let me check.", resp.Content)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "c1", resp.ToolCalls[0].ID)
	assert.Equal(t, "search", resp.ToolCalls[0].Name)
	assert.Equal(t, map[string]any{"q": "x"}, resp.ToolCalls[0].Arguments())
	assert.Equal(t, core.FinishToolCall, resp.FinishReason)
	require.NotNil(t, resp.Usage)
	assert.Equal(t, 17, resp.Usage.TotalTokens())
}

func TestGenerateWithToolCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req completionRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)
		if assert.Len(t, req.Tools, 1) {
			assert.Equal(t, "add", req.Tools[0].Function.Name)
		}

		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"","tool_calls":[{"id":"t1","type":"function","function":{"name":"add","arguments":"{\"a\":1}"}}]},"finish_reason":"tool_calls"}],"usage":{"prompt_tokens":3,"completion_tokens":4}}`))
	}))
	defer srv.Close()

	m := NewModel(srv.URL)

	tools := []model.ToolDefinition{model.NewToolDefinition("add", "adds", nil)}
	resp, err := m.GenerateWithToolCalls(context.Background(), []core.Message{core.UserMessage("1+1")}, tools, model.GenerateOptions{})
	require.NoError(t, err)
	require.True(t, resp.HasToolCalls())
	assert.Equal(t, "add", resp.ToolCalls[0].Name)
	assert.Equal(t, core.FinishToolCall, resp.FinishReason)
	assert.Equal(t, 7, resp.Usage.TotalTokens())
}

func TestHTTPErrorMapping(t *testing.T) {
	tests := []struct {
		status int
		kind   core.ErrorKind
	}{
		{http.StatusUnauthorized, core.KindAuthenticationFailed},
		{http.StatusTooManyRequests, core.KindRateLimitExceeded},
		{http.StatusBadRequest, core.KindInvalidInput},
		{http.StatusNotFound, core.KindModelNotFound},
		{http.StatusBadGateway, core.KindProviderUnavailable},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Retry-After", "3")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":"nope"}`))
			}))
			defer srv.Close()

			_, err := NewModel(srv.URL).Generate(context.Background(), []core.Message{core.UserMessage("x")}, model.GenerateOptions{})
			require.Error(t, err)
			assert.Equal(t, tt.kind, core.KindOf(err))

			if tt.kind == core.KindRateLimitExceeded {
				ce, _ := core.AsError(err)
				assert.Equal(t, 3*time.Second, ce.RetryAfter)
			}
		})
	}
}
