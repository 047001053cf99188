package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStructuredLogger_AttachesContext(t *testing.T) {
	var buf bytes.Buffer

	l := NewLogger(&LoggerConfig{Level: LogLevelDebug, Format: "json", Output: &buf}).
		WithComponent("dispatch").
		WithRun("s1", "r1")

	l.Info("dispatch.batch.complete", "count", 2)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "dispatch.batch.complete", entry["msg"])
	assert.Equal(t, "dispatch", entry["component"])
	assert.Equal(t, "s1", entry["session_id"])
	assert.Equal(t, "r1", entry["run_id"])
	assert.Equal(t, float64(2), entry["count"])
}

func TestStructuredLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer

	l := NewLogger(&LoggerConfig{Level: LogLevelWarn, Output: &buf})
	l.Info("ignored")
	assert.Zero(t, buf.Len())

	l.LogToolCall("search", time.Millisecond, errors.New("boom"))
	assert.Contains(t, buf.String(), "tool.call.failed")
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, LogLevelDebug, lvl)

	_, err = ParseLevel("verbose")
	assert.Error(t, err)
}

func TestZerologAdapter(t *testing.T) {
	var buf bytes.Buffer

	z := NewZerologAdapter(zerolog.New(&buf))
	z.Info("agent.run.start", "agent", "helper", "iterations", 3, "err", errors.New("x"))

	line := strings.TrimSpace(buf.String())

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "agent.run.start", entry["message"])
	assert.Equal(t, "helper", entry["agent"])
	assert.Equal(t, float64(3), entry["iterations"])
	assert.Equal(t, "x", entry["err"])
}

func TestOrNoOp(t *testing.T) {
	assert.IsType(t, NoOpLogger{}, OrNoOp(nil))
}
