// Package log is the structured logger for facedeploy.
//
// Warnings and errors go to stderr; everything goes to a daily JSON file under
// the debug directory when one is configured. Attributes that carry the
// CompreFace credential are masked before any handler sees them.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

var logger *slog.Logger
var fileWriter *DailyFile

// Options configures the logger.
type Options struct {
	// Verbose sends debug and info records to stderr as well.
	Verbose bool
	// JSONFormat switches stderr output to JSON.
	JSONFormat bool
	// DebugDir receives daily JSON log files. Empty disables file logging.
	DebugDir string
	// RetentionDays removes daily files older than this (0 keeps everything).
	RetentionDays int
	// Stderr defaults to os.Stderr.
	Stderr io.Writer
}

// secretKeys are attribute keys whose values are never written verbatim.
var secretKeys = map[string]bool{
	"api_key":             true,
	"apikey":              true,
	"x-api-key":           true,
	"compre_face_api_key": true,
}

func redact(_ []string, a slog.Attr) slog.Attr {
	if secretKeys[strings.ToLower(a.Key)] {
		return slog.String(a.Key, "[redacted]")
	}
	return a
}

// Init installs the global logger.
func Init(opts Options) error {
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	stderrLevel := slog.LevelWarn
	if opts.Verbose {
		stderrLevel = slog.LevelDebug
	}
	stderrOpts := &slog.HandlerOptions{Level: stderrLevel, ReplaceAttr: redact}

	var handlers []slog.Handler
	if opts.JSONFormat {
		handlers = append(handlers, slog.NewJSONHandler(stderr, stderrOpts))
	} else {
		handlers = append(handlers, slog.NewTextHandler(stderr, stderrOpts))
	}

	if opts.DebugDir != "" {
		if opts.RetentionDays > 0 {
			Cleanup(opts.DebugDir, opts.RetentionDays)
		}
		fw, err := NewDailyFile(opts.DebugDir)
		if err != nil {
			return err
		}
		Close()
		fileWriter = fw
		handlers = append(handlers, slog.NewJSONHandler(fw, &slog.HandlerOptions{
			Level:       slog.LevelDebug,
			ReplaceAttr: redact,
		}))
	}

	logger = slog.New(fanout(handlers))
	slog.SetDefault(logger)
	return nil
}

// Close closes the debug file, if any.
func Close() {
	if fileWriter != nil {
		fileWriter.Close()
		fileWriter = nil
	}
}

// fanout sends each record to every handler that accepts its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}

// Debug logs at debug level.
func Debug(msg string, args ...any) { logger.Debug(msg, args...) }

// Info logs at info level.
func Info(msg string, args ...any) { logger.Info(msg, args...) }

// Warn logs at warn level.
func Warn(msg string, args ...any) { logger.Warn(msg, args...) }

// Error logs at error level.
func Error(msg string, args ...any) { logger.Error(msg, args...) }

// With returns a logger with additional attributes.
func With(args ...any) *slog.Logger {
	return logger.With(args...)
}

// setOutput sends all levels to w as text.
func setOutput(w io.Writer) {
	logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug, ReplaceAttr: redact}))
	slog.SetDefault(logger)
}

// SetDeployID tags every subsequent record with deploy_id so one deployment's
// records can be picked out of the daily file.
func SetDeployID(id string) {
	logger = slog.New(logger.Handler().WithAttrs([]slog.Attr{slog.String("deploy_id", id)}))
	slog.SetDefault(logger)
}

func init() {
	logger = slog.Default()
}
