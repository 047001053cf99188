package core

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hupe1980/agentcore/logging"
)

func bufferLogger(buf *bytes.Buffer) logging.Logger {
	cfg := logging.DefaultLoggerConfig()
	cfg.Output = buf

	return logging.NewLogger(cfg)
}

func TestRunContext_LogsCarryRunIdentity(t *testing.T) {
	var buf bytes.Buffer

	rc := NewRunContext(context.Background(), "r1", "s1", AgentInfo{Name: "support"}, "hi", 3, bufferLogger(&buf))
	rc.LogInfo("agent.handoff", "target", "billing")

	assert.Contains(t, buf.String(), `"msg":"agent.handoff","agent":"support","run":"r1","session":"s1","target":"billing"`)
}

func TestRunContext_OmitsEmptySession(t *testing.T) {
	var buf bytes.Buffer

	rc := NewRunContext(context.Background(), "r1", "", AgentInfo{Name: "support"}, "hi", 3, bufferLogger(&buf))
	rc.LogWarn("agent.run.error")

	assert.Contains(t, buf.String(), `"agent":"support","run":"r1"}`)
	assert.NotContains(t, buf.String(), `"session"`)
}

func TestToolContext_LogsCarryCallIdentity(t *testing.T) {
	var buf bytes.Buffer

	ctx := WithRunInfo(context.Background(), RunInfo{RunID: "r1", Agent: "support"})
	tc := NewToolContext(ctx, NewToolCall("c1", "search", nil), bufferLogger(&buf))
	tc.LogInfo("search.query", "q", "go")

	assert.Contains(t, buf.String(), `"tool":"search","call_id":"c1","run":"r1","q":"go"`)
}

func TestRunContext_NilLogger(t *testing.T) {
	rc := NewRunContext(context.Background(), "r1", "s1", AgentInfo{Name: "support"}, "hi", 3, nil)

	assert.NotPanics(t, func() { rc.LogError("agent.run.error") })
	assert.NotNil(t, rc.Logger())
}
