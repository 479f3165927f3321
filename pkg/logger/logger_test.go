package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestJSONLoggerWritesKeyValues(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithFormat("info", "json", &buf).With("component", "router")

	log.Debug("hidden")
	log.Info("delivered", "conversation_id", "c1", "sessions", 2)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "delivered", entry["msg"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "router", entry["component"])
	assert.Equal(t, "c1", entry["conversation_id"])
	assert.Equal(t, float64(2), entry["sessions"])
}

func TestConsoleLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithFormat("warn", "text", &buf)

	log.Info("quiet")
	log.Warn("slow consumer", "session_id", "s1")

	out := buf.String()
	assert.NotContains(t, out, "quiet")
	assert.Contains(t, out, "WARN")
	assert.Contains(t, out, "slow consumer")
	assert.True(t, strings.Contains(out, "session_id") && strings.Contains(out, "s1"), out)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("Warning"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("bogus"))
}

func TestNopLogger(t *testing.T) {
	log := NewNop().With("k", "v")
	log.Info("dropped", "n", 1)
}
