// Package logging builds the zap logger shared by the client packages.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects level, encoding and destination.
//
//   - Level: debug, info, warn, error (default: info)
//   - Format: json, console (default: json)
//   - Path: a file path, "stderr" or "stdout" (default: stderr)
type Config struct {
	Level  string
	Format string
	Path   string
}

// ParseLevel converts a string to a zap level. Defaults to info.
func ParseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// New builds a logger from cfg. File destinations get their parent directory
// created. Callers should Sync the logger before exit.
func New(cfg Config) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(ParseLevel(cfg.Level))
	zc.Sampling = nil
	if strings.EqualFold(strings.TrimSpace(cfg.Format), "console") || strings.EqualFold(strings.TrimSpace(cfg.Format), "text") {
		zc.Encoding = "console"
		zc.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	zc.EncoderConfig.TimeKey = "time"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		path = "stderr"
	}
	if path != "stderr" && path != "stdout" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
	}
	zc.OutputPaths = []string{path}
	zc.ErrorOutputPaths = []string{path}

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

// DefaultFilePath is where the terminal UI logs when no path is configured,
// since stderr belongs to the UI.
func DefaultFilePath() string {
	dir, err := os.UserCacheDir()
	if err != nil || dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "carechat", "carechat.log")
}
