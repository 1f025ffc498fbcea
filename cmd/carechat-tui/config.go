package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"carechat/internal/protocol"
)

const (
	defaultTimeout = 30 * time.Second
	configEnvKey   = "CARECHAT_CONFIG"
)

var version = "dev"

type appConfig struct {
	baseURL    string
	timeout    time.Duration
	trace      bool
	markdown   bool
	altScreen  bool
	sessionID  string
	appVersion string
	logPath    string
	logLevel   string
	logFormat  string
	configPath string
}

// fileConfig is the YAML layout. Pointers mark keys that were actually set.
type fileConfig struct {
	BaseURL    string `yaml:"base_url"`
	Timeout    string `yaml:"timeout"`
	Trace      *bool  `yaml:"trace"`
	Markdown   *bool  `yaml:"markdown"`
	AltScreen  *bool  `yaml:"alt_screen"`
	SessionID  string `yaml:"session_id"`
	AppVersion string `yaml:"app_version"`
	Log        struct {
		Path   string `yaml:"path"`
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// flagValues receives the persistent flags before they are layered on top of
// the file and environment.
type flagValues struct {
	configPath string
	baseURL    string
	timeout    time.Duration
	trace      bool
	markdown   bool
	altScreen  bool
	sessionID  string
	appVersion string
	logPath    string
	logLevel   string
	logFormat  string
}

func defaultConfig() appConfig {
	return appConfig{
		baseURL:    protocol.DefaultBaseURL,
		timeout:    defaultTimeout,
		altScreen:  true,
		appVersion: version,
		logLevel:   "info",
		logFormat:  "json",
	}
}

func bindFlags(cmd *cobra.Command, f *flagValues) {
	flags := cmd.PersistentFlags()
	flags.StringVar(&f.configPath, "config", "", "YAML config file (default: $CARECHAT_CONFIG or <config dir>/carechat/config.yaml)")
	flags.StringVar(&f.baseURL, "base-url", protocol.DefaultBaseURL, "Appointment assistant base URL")
	flags.DurationVar(&f.timeout, "timeout", defaultTimeout, "Per-request HTTP timeout")
	flags.BoolVar(&f.trace, "trace", false, "Ask the server for a trace payload on every turn")
	flags.BoolVar(&f.markdown, "markdown", false, "Render assistant replies as markdown")
	flags.BoolVar(&f.altScreen, "alt-screen", true, "Use alternate screen buffer")
	flags.StringVar(&f.sessionID, "session-id", "", "Reuse an existing session identifier")
	flags.StringVar(&f.appVersion, "app-version", version, "Version reported in client_meta")
	flags.StringVar(&f.logPath, "log-path", "", "Log destination (file path, stderr or stdout)")
	flags.StringVar(&f.logLevel, "log-level", "info", "Log level (debug|info|warn|error)")
	flags.StringVar(&f.logFormat, "log-format", "json", "Log format (json|console)")
}

// resolveConfig layers defaults, the YAML file, CARECHAT_* variables and the
// flags the user actually set, in that order.
func resolveConfig(cmd *cobra.Command, f flagValues) (appConfig, error) {
	cfg := defaultConfig()

	path, explicit := configFilePath(f.configPath)
	if path != "" {
		err := loadConfigFile(path, &cfg)
		switch {
		case err == nil:
			cfg.configPath = path
		case !explicit && errors.Is(err, os.ErrNotExist):
		default:
			return appConfig{}, err
		}
	}

	applyEnv(&cfg)

	changed := func(name string) bool {
		flag := cmd.Flags().Lookup(name)
		return flag != nil && flag.Changed
	}
	if changed("base-url") {
		cfg.baseURL = f.baseURL
	}
	if changed("timeout") {
		cfg.timeout = f.timeout
	}
	if changed("trace") {
		cfg.trace = f.trace
	}
	if changed("markdown") {
		cfg.markdown = f.markdown
	}
	if changed("alt-screen") {
		cfg.altScreen = f.altScreen
	}
	if changed("session-id") {
		cfg.sessionID = f.sessionID
	}
	if changed("app-version") {
		cfg.appVersion = f.appVersion
	}
	if changed("log-path") {
		cfg.logPath = f.logPath
	}
	if changed("log-level") {
		cfg.logLevel = f.logLevel
	}
	if changed("log-format") {
		cfg.logFormat = f.logFormat
	}

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		cfg.baseURL = protocol.DefaultBaseURL
	}
	if cfg.timeout <= 0 {
		cfg.timeout = defaultTimeout
	}
	cfg.sessionID = strings.TrimSpace(cfg.sessionID)
	return cfg, nil
}

// configFilePath returns the file to read and whether the user named it.
func configFilePath(flagPath string) (string, bool) {
	if p := strings.TrimSpace(flagPath); p != "" {
		return p, true
	}
	if p := envOr(configEnvKey, ""); p != "" {
		return p, true
	}
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return "", false
	}
	return filepath.Join(dir, "carechat", "config.yaml"), false
}

func loadConfigFile(path string, cfg *appConfig) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	if strings.TrimSpace(fc.BaseURL) != "" {
		cfg.baseURL = fc.BaseURL
	}
	if strings.TrimSpace(fc.Timeout) != "" {
		d, err := time.ParseDuration(strings.TrimSpace(fc.Timeout))
		if err != nil {
			return fmt.Errorf("parse config %s: timeout: %w", path, err)
		}
		cfg.timeout = d
	}
	if fc.Trace != nil {
		cfg.trace = *fc.Trace
	}
	if fc.Markdown != nil {
		cfg.markdown = *fc.Markdown
	}
	if fc.AltScreen != nil {
		cfg.altScreen = *fc.AltScreen
	}
	cfg.sessionID = nullCoalesce(fc.SessionID, cfg.sessionID)
	cfg.appVersion = nullCoalesce(fc.AppVersion, cfg.appVersion)
	cfg.logPath = nullCoalesce(fc.Log.Path, cfg.logPath)
	cfg.logLevel = nullCoalesce(fc.Log.Level, cfg.logLevel)
	cfg.logFormat = nullCoalesce(fc.Log.Format, cfg.logFormat)
	return nil
}

func applyEnv(cfg *appConfig) {
	cfg.baseURL = envOr("CARECHAT_BASE_URL", cfg.baseURL)
	cfg.timeout = envOrDuration("CARECHAT_TIMEOUT", cfg.timeout)
	cfg.trace = envOrBool("CARECHAT_TRACE", cfg.trace)
	cfg.markdown = envOrBool("CARECHAT_MARKDOWN", cfg.markdown)
	cfg.altScreen = envOrBool("CARECHAT_ALT_SCREEN", cfg.altScreen)
	cfg.sessionID = envOr("CARECHAT_SESSION_ID", cfg.sessionID)
	cfg.appVersion = envOr("CARECHAT_APP_VERSION", cfg.appVersion)
	cfg.logPath = envOr("CARECHAT_LOG_PATH", cfg.logPath)
	cfg.logLevel = envOr("CARECHAT_LOG_LEVEL", cfg.logLevel)
	cfg.logFormat = envOr("CARECHAT_LOG_FORMAT", cfg.logFormat)
}

func envOr(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

// envOrDuration accepts Go durations ("45s") or a bare number of seconds.
func envOrDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	seconds, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

func envOrBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if value == "" {
		return fallback
	}
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
