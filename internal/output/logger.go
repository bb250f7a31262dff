/*
PURPOSE:
  Provides the structured logger for Suite Runner.
  Wraps slog for consistent output across the orchestrator and the
  per-task runner.

REQUIREMENTS:
  User-specified:
  - "Sane" CLI output. Not spammy.
  - Every failure prints a diagnostic.

  Implementation-discovered:
  - Child task output is streamed to stdout/stderr, so log lines go to
    stderr to keep them apart from task output on stdout.
  - Cluster job logs are files, where a JSON handler is easier to grep.

ARCHITECTURE INTEGRATION:
  - Used everywhere.

IMPLEMENTATION RULES:
  - Use `log/slog` as the API; charmbracelet/log renders the text format.

USAGE:
  output.Logger.Info("message", "key", "value")
  output.Configure("debug", "json", os.Stderr)

SELF-HEALING INSTRUCTIONS:
  - If logs are missing, check the level and that Configure ran before
    the first log call.

MAINTENANCE:
  - Update when adding log formats.
*/

package output

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

var Logger *slog.Logger

func init() {
	Logger = New(slog.LevelInfo, "text", os.Stderr)
}

// SetLogger allows overriding the default logger (e.g. for testing or config changes)
func SetLogger(l *slog.Logger) {
	Logger = l
}

// Configure replaces the global logger using a level name
// (debug|info|warn|error) and a format (text|json).
func Configure(level, format string, w io.Writer) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}
	switch format {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q (want text or json)", format)
	}
	SetLogger(New(lvl, format, w))
	return nil
}

// New builds a logger writing to w.
func New(level slog.Level, format string, w io.Writer) *slog.Logger {
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	}

	handler := log.NewWithOptions(w, log.Options{
		Level:           log.Level(level),
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
	})
	return slog.New(handler)
}

// ParseLevel maps a level name to a slog level. Empty means info.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}
