package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projectvision/vision/pkg/contextkeys"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	t.Run("debug not logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Debug("debug message")
		assert.Zero(t, buf.Len())
	})

	t.Run("info logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Info("info message")
		entry := decodeLine(t, &buf)
		assert.Equal(t, "INFO", entry["level"])
		assert.Equal(t, "info message", entry["msg"])
	})

	t.Run("formatted error", func(t *testing.T) {
		buf.Reset()
		logger.Errorf("failed %d times", 3)
		entry := decodeLine(t, &buf)
		assert.Equal(t, "ERROR", entry["level"])
		assert.Equal(t, "failed 3 times", entry["msg"])
	})
}

func TestLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(DebugLevel, &buf)

	logger.WithField("organization_id", "org-1").
		WithFields(map[string]interface{}{"count": 2}).
		WithError(errors.New("boom")).
		Warn("message")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "org-1", entry["organization_id"])
	assert.Equal(t, float64(2), entry["count"])
	assert.Equal(t, "boom", entry["error"])
}

func TestLogger_WithNilError(t *testing.T) {
	logger := NewLogger(InfoLevel, nil)
	assert.Same(t, logger, logger.WithError(nil))
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   DebugLevel,
		" INFO ":  InfoLevel,
		"warning": WarnLevel,
		"error":   ErrorLevel,
		"verbose": InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLogLevel(in), in)
	}
	assert.Equal(t, "WARN", WarnLevel.String())
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	ctx := WithLogger(context.Background(), logger)
	ctx = contextkeys.WithRequestID(ctx, "req-42")
	ctx = contextkeys.WithUserID(ctx, "user-7")

	FromContext(ctx).Info("handled")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "req-42", entry["request_id"])
	assert.Equal(t, "user-7", entry["actor_id"])
	assert.NotContains(t, entry, "trace_id")
}

func TestGetLogger_Default(t *testing.T) {
	assert.NotNil(t, GetLogger(context.Background()))
}

func TestLogger_RedactsCredentials(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(InfoLevel, &buf).
		WithField("Authorization", "Bearer abc").
		WithField("database_url", "postgres://u:p@db/vision").
		WithField("organization_id", "org-1").
		Info("configured")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "[REDACTED]", entry["Authorization"])
	assert.Equal(t, "[REDACTED]", entry["database_url"])
	assert.Equal(t, "org-1", entry["organization_id"])
}

func TestLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	NewLoggerWithFormat(InfoLevel, FormatText, &buf).
		WithResource("BOARD", "b1").
		WithActor("alice").
		Info("board member banned")

	out := buf.String()
	assert.Contains(t, out, `msg="board member banned"`)
	assert.Contains(t, out, "scope=BOARD")
	assert.Contains(t, out, "resource_id=b1")
	assert.Contains(t, out, "actor_id=alice")
}

func TestLogger_WithActorEmpty(t *testing.T) {
	logger := NewLogger(InfoLevel, nil)
	assert.Same(t, logger, logger.WithActor(""))
}
