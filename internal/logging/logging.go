// Package logging builds the process *slog.Logger from configuration.
// JSON output goes through slog's JSON handler; text output goes through
// charmbracelet/log, which doubles as an slog.Handler.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	charmlog "github.com/charmbracelet/log"
)

// Format names an output encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Options configures New.
type Options struct {
	Level  string
	Format Format
	Output io.Writer
	// AddSource adds the caller location to every record.
	AddSource bool
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("logging: unknown level %q", s)
}

// New returns a logger writing to opts.Output.
func New(opts Options) (*slog.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	switch opts.Format {
	case FormatJSON, "":
		return slog.New(slog.NewJSONHandler(opts.Output, &slog.HandlerOptions{
			Level:     level,
			AddSource: opts.AddSource,
		})), nil
	case FormatText:
		handler := charmlog.NewWithOptions(opts.Output, charmlog.Options{
			Level:           charmLevel(level),
			ReportTimestamp: true,
			ReportCaller:    opts.AddSource,
			TimeFormat:      "15:04:05",
		})
		return slog.New(handler), nil
	}
	return nil, fmt.Errorf("logging: unknown format %q", opts.Format)
}

func charmLevel(l slog.Level) charmlog.Level {
	switch {
	case l <= slog.LevelDebug:
		return charmlog.DebugLevel
	case l <= slog.LevelInfo:
		return charmlog.InfoLevel
	case l <= slog.LevelWarn:
		return charmlog.WarnLevel
	default:
		return charmlog.ErrorLevel
	}
}
