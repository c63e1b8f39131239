// Package logger configures the process-wide slog logger.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	colorable "github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// logLevels maps log level names to slog.Level values.
var logLevels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// Options come from the root command's persistent flags.
type Options struct {
	Level   string
	Format  string // "text" or "json"
	File    string // empty means stderr
	NoColor bool
}

// CleanupFunc closes any log file the logger opened.
type CleanupFunc func() error

// Init installs the configured handler as the slog default and returns both
// the logger and a cleanup to defer.
func Init(opts Options) (*slog.Logger, CleanupFunc, error) {
	cleanup := io.NopCloser(nil).Close

	level, ok := logLevels[strings.ToLower(opts.Level)]
	if !ok {
		return nil, cleanup, fmt.Errorf("invalid log level: %s", opts.Level)
	}

	w := os.Stderr
	if opts.File != "" {
		file, err := os.OpenFile(opts.File, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return nil, cleanup, fmt.Errorf("open log file: %w", err)
		}
		w = file
		cleanup = file.Close
	}

	var handler slog.Handler
	switch strings.ToLower(opts.Format) {
	case "", "text":
		handler = tint.NewHandler(
			colorable.NewColorable(w),
			&tint.Options{
				Level:      level,
				TimeFormat: time.TimeOnly,
				NoColor:    !isatty.IsTerminal(w.Fd()) || os.Getenv("NO_COLOR") != "" || opts.NoColor,
			},
		)
	case "json":
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	default:
		return nil, cleanup, fmt.Errorf("invalid log format: %s", opts.Format)
	}

	log := slog.New(handler)
	slog.SetDefault(log)

	return log, cleanup, nil
}
