// Package logger installs the process-wide slog handler and threads the
// run id through contexts so every record of a mining run can be joined.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
)

// RunIDKey is the attribute every run-scoped record carries.
const RunIDKey = "run_id"

var handlers = map[string]func(io.Writer, *slog.HandlerOptions) slog.Handler{
	"text": func(w io.Writer, o *slog.HandlerOptions) slog.Handler { return slog.NewTextHandler(w, o) },
	"json": func(w io.Writer, o *slog.HandlerOptions) slog.Handler { return slog.NewJSONHandler(w, o) },
}

// Formats lists the accepted handler formats.
func Formats() []string {
	out := make([]string, 0, len(handlers))
	for f := range handlers {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// ParseLevel accepts slog level names in any case, with optional offsets
// such as "debug-2". An empty string means info.
func ParseLevel(level string) (slog.Level, error) {
	var l slog.Level
	if level == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
	return l, nil
}

// Setup logs to stderr; stdout stays free for the result stream.
func Setup(level, format string) error {
	return SetupWriter(os.Stderr, level, format)
}

// SetupWriter installs the default logger on w. Debug level adds source
// locations.
func SetupWriter(w io.Writer, level, format string) error {
	l, err := ParseLevel(level)
	if err != nil {
		return err
	}
	newHandler, ok := handlers[format]
	if !ok {
		return fmt.Errorf("unknown log format %q, want one of %v", format, Formats())
	}
	slog.SetDefault(slog.New(newHandler(w, &slog.HandlerOptions{
		Level:     l,
		AddSource: l <= slog.LevelDebug,
	})))
	return nil
}

type runIDKey struct{}

func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

func RunID(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// FromContext returns the default logger, tagged with the run id when ctx
// carries one.
func FromContext(ctx context.Context) *slog.Logger {
	if id := RunID(ctx); id != "" {
		return slog.Default().With(RunIDKey, id)
	}
	return slog.Default()
}
