// Package obslog wires zerolog as the pipeline's structured logger behind
// a narrow interface so the orchestrator's dependents stay swappable in
// tests.
package obslog

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the minimal logging surface the pipeline depends on.
type Logger interface {
	Info(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
	Debug(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
}

// ZeroLogger adapts zerolog.Logger to Logger.
type ZeroLogger struct {
	l zerolog.Logger
}

// New configures a ZeroLogger writing to logPath (or stdout when empty) at
// the given level.
func New(logPath string, level string) *ZeroLogger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	var w io.Writer = os.Stdout
	if logPath != "" {
		if f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			w = f
		}
	}
	lvl := zerolog.InfoLevel
	if l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level))); err == nil {
		lvl = l
	}
	logger := zerolog.New(w).Level(lvl).With().Timestamp().Logger()
	return &ZeroLogger{l: logger}
}

// WithContext enriches the logger with a query id for per-request
// correlation, mirroring the trace-enrichment pattern of a context-scoped
// logger helper.
func (z *ZeroLogger) WithContext(ctx context.Context, queryID string) *ZeroLogger {
	l := z.l
	if queryID != "" {
		l = l.With().Str("query_id", queryID).Logger()
	}
	return &ZeroLogger{l: l}
}

func (z *ZeroLogger) event(e *zerolog.Event, msg string, fields map[string]any) {
	for k, v := range fields {
		e = e.Interface(k, v)
	}
	e.Msg(msg)
}

func (z *ZeroLogger) Info(msg string, fields map[string]any)  { z.event(z.l.Info(), msg, fields) }
func (z *ZeroLogger) Error(msg string, fields map[string]any) { z.event(z.l.Error(), msg, fields) }
func (z *ZeroLogger) Debug(msg string, fields map[string]any) { z.event(z.l.Debug(), msg, fields) }
func (z *ZeroLogger) Warn(msg string, fields map[string]any)  { z.event(z.l.Warn(), msg, fields) }

// Noop discards everything; useful as a safe zero value in tests.
type Noop struct{}

func (Noop) Info(string, map[string]any)  {}
func (Noop) Error(string, map[string]any) {}
func (Noop) Debug(string, map[string]any) {}
func (Noop) Warn(string, map[string]any)  {}
