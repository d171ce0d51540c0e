package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"github.com/mabhi256/heapref/internal/config"
)

func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

// progress logs how long an operation took once it is done
type progress struct {
	logger *log.Logger
	start  time.Time
}

func newProgress(l *log.Logger) *progress {
	return &progress{logger: l, start: time.Now()}
}

func (p *progress) done(msg string) {
	p.logger.Infof("%s (%s)", msg, time.Since(p.start).Round(time.Millisecond))
}

type ctxKey int

const (
	loggerKey ctxKey = iota
	configKey
	logFileKey
)

func withLogger(ctx context.Context, l *log.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// loggerFromContext returns the command logger, or log.Default when none is attached
func loggerFromContext(ctx context.Context) *log.Logger {
	if l, ok := ctx.Value(loggerKey).(*log.Logger); ok {
		return l
	}
	return log.Default()
}

func withConfig(ctx context.Context, cfg *config.Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

func configFromContext(ctx context.Context) *config.Config {
	if cfg, ok := ctx.Value(configKey).(*config.Config); ok {
		return cfg
	}
	return config.Default()
}

// setupLogging opens the log destination: the configured file, else stderr.
// The returned closer releases the file.
func setupLogging(cfg *config.Config, verbose bool) (*log.Logger, bool, func() error, error) {
	level, err := cfg.LogLevel()
	if err != nil {
		return nil, false, nil, err
	}
	if verbose {
		level = log.DebugLevel
	}

	if cfg.Log.File == "" {
		return newLogger(os.Stderr, level), false, func() error { return nil }, nil
	}

	f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, false, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return newLogger(f, level), true, f.Close, nil
}

// tuiLogger keeps the alternate screen clean: it logs only to a file
func tuiLogger(ctx context.Context) *log.Logger {
	if toFile, _ := ctx.Value(logFileKey).(bool); toFile {
		return loggerFromContext(ctx)
	}
	return log.New(io.Discard)
}
