package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJSONLogger(buf *bytes.Buffer, level Level) *Logger {
	logger := New()
	logger.SetLevel(level)
	logger.SetFormat(FormatJSON)
	logger.SetOutput(buf)
	return logger
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	line := strings.TrimSpace(buf.String())
	require.NotEmpty(t, line)
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	return entry
}

func TestLoggerLevels(t *testing.T) {
	tests := []struct {
		name      string
		minLevel  Level
		logLevel  Level
		shouldLog bool
	}{
		{"debug allowed at debug", LevelDebug, LevelDebug, true},
		{"info allowed at debug", LevelDebug, LevelInfo, true},
		{"error allowed at debug", LevelDebug, LevelError, true},
		{"debug blocked at info", LevelInfo, LevelDebug, false},
		{"info allowed at info", LevelInfo, LevelInfo, true},
		{"debug blocked at warn", LevelWarn, LevelDebug, false},
		{"info blocked at warn", LevelWarn, LevelInfo, false},
		{"warn allowed at warn", LevelWarn, LevelWarn, true},
		{"error allowed at warn", LevelWarn, LevelError, true},
		{"warn blocked at error", LevelError, LevelWarn, false},
		{"error allowed at error", LevelError, LevelError, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := newJSONLogger(&buf, tt.minLevel)

			switch tt.logLevel {
			case LevelDebug:
				logger.Debug("test message")
			case LevelInfo:
				logger.Info("test message")
			case LevelWarn:
				logger.Warn("test message")
			case LevelError:
				logger.Error("test message")
			}

			if tt.shouldLog {
				entry := decodeLine(t, &buf)
				assert.Equal(t, "test message", entry["message"])
				assert.Equal(t, tt.logLevel.String(), entry["level"])
			} else {
				assert.Empty(t, buf.String(), "expected no log output")
			}
		})
	}
}

func TestLoggerWith(t *testing.T) {
	var buf bytes.Buffer
	logger := newJSONLogger(&buf, LevelDebug)

	logger.With("session", "ses_abc123").Warn("something happened")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "something happened", entry["message"])
	assert.Equal(t, "ses_abc123", entry["session"])
}

func TestLoggerWithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := newJSONLogger(&buf, LevelDebug)

	logger.WithFields(map[string]interface{}{
		"session":   "ses_abc123",
		"iteration": 2,
	}).Error("error occurred")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "ses_abc123", entry["session"])
	assert.Equal(t, float64(2), entry["iteration"])
}

func TestLoggerInlineKeyVals(t *testing.T) {
	var buf bytes.Buffer
	logger := newJSONLogger(&buf, LevelDebug)

	logger.Warn("stream dropped", "error", errors.New("timeout"), "retry", 3)

	entry := decodeLine(t, &buf)
	assert.Equal(t, "timeout", entry["error"])
	assert.Equal(t, float64(3), entry["retry"])
}

func TestLoggerOriginalUnmodified(t *testing.T) {
	var buf bytes.Buffer
	logger := newJSONLogger(&buf, LevelDebug)

	_ = logger.With("session", "ses_abc123")
	logger.Info("original logger")

	entry := decodeLine(t, &buf)
	assert.NotContains(t, entry, "session")
}

func TestLoggerConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetLevel(LevelDebug)
	logger.SetOutput(&buf)

	logger.With("session", "ses_abc123").Warn("console line")

	out := buf.String()
	assert.Contains(t, out, "WRN")
	assert.Contains(t, out, "console line")
	assert.Contains(t, out, "session=ses_abc123")
}

func TestDefaultLogger(t *testing.T) {
	var buf bytes.Buffer
	SetFormat(FormatJSON)
	SetOutput(&buf)
	SetLevel(LevelWarn)

	Debug("debug message")
	assert.Empty(t, buf.String())

	Warn("warn message")
	assert.Contains(t, buf.String(), `"message":"warn message"`)

	buf.Reset()

	With("component", "test").Error("error message")
	assert.Contains(t, buf.String(), `"component":"test"`)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"warning", LevelWarn, false},
		{" error ", LevelError, false},
		{"loud", LevelWarn, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
