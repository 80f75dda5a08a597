// Package logger builds the process slog.Logger from logging configuration.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	charmLog "github.com/charmbracelet/log"

	"github.com/bjaus/commandbus/assembly"
)

const (
	defaultFormat = "text"
	defaultLevel  = "info"
)

// New creates a logger writing to stderr. Text output is styled for
// terminals; json writes one object per line.
func New(cfg assembly.LoggingConfig) (*slog.Logger, error) {
	return newWithWriter(cfg, os.Stderr)
}

func newWithWriter(cfg assembly.LoggingConfig, writer io.Writer) (*slog.Logger, error) {
	format := strings.ToLower(strings.TrimSpace(cfg.Format))
	if format == "" {
		format = defaultFormat
	}

	var formatter charmLog.Formatter
	switch format {
	case "text":
		formatter = charmLog.TextFormatter
	case "json":
		formatter = charmLog.JSONFormatter
	default:
		return nil, fmt.Errorf("unsupported log format %q", format)
	}

	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	h := charmLog.NewWithOptions(writer, charmLog.Options{
		Level:           charmLevel(level),
		ReportTimestamp: format == "text",
		ReportCaller:    cfg.AddSource,
		Formatter:       formatter,
	})
	return slog.New(h), nil
}

func charmLevel(level slog.Level) charmLog.Level {
	switch {
	case level <= slog.LevelDebug:
		return charmLog.DebugLevel
	case level <= slog.LevelInfo:
		return charmLog.InfoLevel
	case level <= slog.LevelWarn:
		return charmLog.WarnLevel
	default:
		return charmLog.ErrorLevel
	}
}

func parseLevel(input string) (slog.Level, error) {
	levelText := strings.ToLower(strings.TrimSpace(input))
	if levelText == "" {
		levelText = defaultLevel
	}

	switch levelText {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unsupported log level %q", levelText)
	}
}
