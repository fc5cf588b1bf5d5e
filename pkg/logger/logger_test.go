package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestLoggerWritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelDebug, Format: "json"})

	log.With(Component("notifier")).Info("message sent",
		ProjectID("p1"),
		Int("attempt", 2),
		Err(errors.New("boom")),
		Duration("took", 1500*time.Millisecond),
		Strings("to", []string{"a", "b"}),
	)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	e := lines[0]
	assert.Equal(t, "message sent", e["message"])
	assert.Equal(t, "info", e["level"])
	assert.Equal(t, "notifier", e["component"])
	assert.Equal(t, "p1", e["project_id"])
	assert.Equal(t, float64(2), e["attempt"])
	assert.Equal(t, "boom", e["error"])
	assert.Equal(t, []any{"a", "b"}, e["to"])
	assert.Contains(t, e, "timestamp")
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelWarn})

	log.Info("hidden")
	log.Warn("shown")
	log.WithLevel(LevelDebug).Debug("debug via override")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "shown", lines[0]["message"])
	assert.Equal(t, "debug via override", lines[1]["message"])

	buf.Reset()
	log.SetLevel(LevelError)
	log.Warn("now hidden")
	assert.Empty(t, buf.String())
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   LevelDebug,
		" INFO ":  LevelInfo,
		"warning": LevelWarn,
		"error":   LevelError,
		"fatal":   LevelFatal,
		"bogus":   LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestContextPropagation(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf}).WithRequestID("req-1")

	ctx := WithContext(context.Background(), log)
	FromContext(ctx).Info("hello")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "req-1", lines[0]["request_id"])
	assert.NotNil(t, FromContext(context.Background()))
}
