package config

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

const (
	defaultListenAddr = ":8080"
	defaultDBPath     = "runbook.db"
	defaultScriptsDir = "runbooks"
	defaultTimeoutS   = 1800

	envListenAddr = "RUNBOOK_LISTEN_ADDR"
	envDBPath     = "RUNBOOK_DB_PATH"
	envLogLevel   = "RUNBOOK_LOG_LEVEL"
	envScriptsDir = "RUNBOOK_SCRIPTS_DIR"
	envTimeoutS   = "RUNBOOK_TIMEOUT_S"
	envShell      = "RUNBOOK_SHELL"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	ListenAddr string
	DBPath     string
	ScriptsDir string
	TimeoutS   int
	Shell      string
	LogLevel   slog.Level
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	cfg := Config{
		ListenAddr: defaultListenAddr,
		DBPath:     defaultDBPath,
		ScriptsDir: defaultScriptsDir,
		TimeoutS:   defaultTimeoutS,
		LogLevel:   slog.LevelInfo,
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(envScriptsDir); v != "" {
		cfg.ScriptsDir = v
	}
	if v := os.Getenv(envTimeoutS); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			cfg.TimeoutS = n
		}
	}
	if v := os.Getenv(envShell); v != "" {
		cfg.Shell = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}

	return cfg
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
