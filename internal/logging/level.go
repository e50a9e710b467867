package logging

import (
	"log/slog"
	"os"
	"strings"

	"golang.org/x/text/cases"
)

const (
	// EnvLevel names the environment variable read by Open.
	EnvLevel = "ICXPD_LOG_LEVEL"
	// LevelTrace sits below slog's debug level.
	LevelTrace = slog.Level(-8)
	// DefaultLevel applies when neither the environment nor the caller
	// selects a recognised level.
	DefaultLevel = slog.LevelError
)

var levelFolder = cases.Fold()

// ParseLevel maps trace, debug, info, warn and error (any case) to slog levels.
func ParseLevel(value string) (slog.Level, bool) {
	switch levelFolder.String(strings.TrimSpace(value)) {
	case "trace":
		return LevelTrace, true
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return DefaultLevel, false
	}
}

// EnvOverride returns the level named by ICXPD_LOG_LEVEL when it is set to
// a recognised value.
func EnvOverride() (slog.Level, bool) {
	value, ok := os.LookupEnv(EnvLevel)
	if !ok {
		return DefaultLevel, false
	}
	return ParseLevel(value)
}

// resolveLevel picks the environment value when recognised, then the
// caller's override, then DefaultLevel.
func resolveLevel(override string) slog.Level {
	if level, ok := EnvOverride(); ok {
		return level
	}
	if level, ok := ParseLevel(override); ok {
		return level
	}
	return DefaultLevel
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	case level >= slog.LevelDebug:
		return "DEBUG"
	default:
		return "TRACE"
	}
}
