// Package logger provides structured logging for the service.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog with service-specific helpers.
type Logger struct {
	zlog zerolog.Logger
}

// Config holds logger configuration
type Config struct {
	Level  string // debug, info, warn, error
	Pretty bool   // console output for development
	Output io.Writer
}

// New creates a logger. Unknown levels fall back to info.
func New(cfg Config) *Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	zlog := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Str("service", "scenyx-connect").
		Logger()
	return &Logger{zlog: zlog}
}

// Nop returns a logger that discards everything. Tests use it.
func Nop() *Logger {
	return &Logger{zlog: zerolog.Nop()}
}

// Component returns a child logger tagged with a component name.
func (l *Logger) Component(name string) *Logger {
	return &Logger{zlog: l.zlog.With().Str("component", name).Logger()}
}

func (l *Logger) Debug() *zerolog.Event { return l.zlog.Debug() }
func (l *Logger) Info() *zerolog.Event  { return l.zlog.Info() }
func (l *Logger) Warn() *zerolog.Event  { return l.zlog.Warn() }
func (l *Logger) Error() *zerolog.Event { return l.zlog.Error() }

// LogRequest logs a completed HTTP request.
func (l *Logger) LogRequest(method, route string, status int, duration time.Duration) {
	event := l.zlog.Info()
	if status >= 500 {
		event = l.zlog.Error()
	} else if status >= 400 {
		event = l.zlog.Warn()
	}
	event.
		Str("method", method).
		Str("route", route).
		Int("status", status).
		Dur("duration_ms", duration).
		Msg("request completed")
}

// LogServerStart logs server startup
func (l *Logger) LogServerStart(addr, storeDriver string, cacheEnabled bool) {
	l.zlog.Info().
		Str("event", "server_start").
		Str("addr", addr).
		Str("store", storeDriver).
		Bool("pair_cache", cacheEnabled).
		Msg("server starting")
}

// LogServerShutdown logs server shutdown
func (l *Logger) LogServerShutdown() {
	l.zlog.Info().
		Str("event", "server_shutdown").
		Msg("server shutting down")
}
