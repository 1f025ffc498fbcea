package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"DEBUG", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"", zapcore.InfoLevel},
		{"invalid", zapcore.InfoLevel},
		{"  debug  ", zapcore.DebugLevel},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.input))
		})
	}
}

func TestNewWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "carechat.log")
	logger, err := New(Config{Level: "info", Format: "json", Path: path})
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("turn complete", zap.String("session_id", "session_abc"))
	require.NoError(t, logger.Sync())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "turn complete", entry["msg"])
	assert.Equal(t, "session_abc", entry["session_id"])
	assert.Contains(t, entry, "time")
}

func TestNewConsoleFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "carechat.log")
	logger, err := New(Config{Level: "debug", Format: "console", Path: path})
	require.NoError(t, err)
	logger.Debug("visible")
	require.NoError(t, logger.Sync())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "visible")
	assert.False(t, json.Valid([]byte(strings.TrimSpace(string(raw)))))
}

func TestDefaultFilePath(t *testing.T) {
	path := DefaultFilePath()
	assert.Equal(t, "carechat.log", filepath.Base(path))
	assert.Equal(t, "carechat", filepath.Base(filepath.Dir(path)))
}
