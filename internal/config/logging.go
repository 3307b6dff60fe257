package config

import (
	"fmt"
	"log/slog"
	"strings"
)

// LevelTrace sits below [slog.LevelDebug] and carries wire-level
// payloads: full JSON-RPC frames and LLM request bodies. Nothing logs
// at this level during normal operation.
const LevelTrace = slog.Level(-8)

// ParseLogLevel converts the logging.level config string to an
// [slog.Level]. Matching is case-insensitive and trims whitespace;
// the empty string means info. "warning" is accepted as an alias for
// "warn".
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "trace":
		return LevelTrace, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (valid: trace, debug, info, warn, error)", s)
	}
}

// ReplaceLogLevelNames is a [slog.HandlerOptions.ReplaceAttr] function
// that renders [LevelTrace] as "TRACE". slog has no name for custom
// levels and would print "DEBUG-4" otherwise.
func ReplaceLogLevelNames(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		if level, ok := a.Value.Any().(slog.Level); ok && level == LevelTrace {
			a.Value = slog.StringValue("TRACE")
		}
	}
	return a
}
