/*
Package dynatable – logging interface.
*/
package dynatable

import (
	"os"

	"github.com/rs/zerolog"
)

// Logger is the interface callers may supply to Table.
// Each method receives a structured context map (may be nil).
type Logger interface {
	Trace(message string, ctx map[string]any)
	Info(message string, ctx map[string]any)
	Error(message string, ctx map[string]any)
}

// zeroLogger adapts a zerolog.Logger to the Logger interface.
type zeroLogger struct {
	log zerolog.Logger
}

// NewLogger wraps a zerolog.Logger.
func NewLogger(l zerolog.Logger) Logger {
	return zeroLogger{log: l}
}

// defaultLogger logs info and above to stderr, dropping trace output.
func defaultLogger() Logger {
	return zeroLogger{
		log: zerolog.New(os.Stderr).Level(zerolog.InfoLevel).With().Timestamp().Logger(),
	}
}

func (z zeroLogger) Trace(msg string, ctx map[string]any) { z.emit(z.log.Trace(), msg, ctx) }
func (z zeroLogger) Info(msg string, ctx map[string]any)  { z.emit(z.log.Info(), msg, ctx) }
func (z zeroLogger) Error(msg string, ctx map[string]any) { z.emit(z.log.Error(), msg, ctx) }

func (z zeroLogger) emit(ev *zerolog.Event, msg string, ctx map[string]any) {
	for k, v := range ctx {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

// nopLogger silently discards everything.
type nopLogger struct{}

func (nopLogger) Trace(string, map[string]any) {}
func (nopLogger) Info(string, map[string]any)  {}
func (nopLogger) Error(string, map[string]any) {}

// NopLogger returns a Logger that discards all output.
func NopLogger() Logger { return nopLogger{} }
