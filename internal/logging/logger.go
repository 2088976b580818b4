// Package logging provides the structured logger used across every
// component of the bot: ingest loops, the signal engine, the exchange
// gateway, and each strategy. It wraps zerolog behind the same
// component/field builder surface the rest of the codebase expects,
// so call sites never import zerolog directly.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logger configuration.
type Config struct {
	Level      string `json:"level"`
	Output     string `json:"output"` // "stdout", "stderr", or file path
	Component  string `json:"component"`
	JSONFormat bool   `json:"json_format"` // false renders a human-readable console line
}

// Logger is a structured logger built around a zerolog sub-logger.
type Logger struct {
	z zerolog.Logger
}

var defaultLogger *Logger

// New creates a new logger with the given configuration.
func New(cfg *Config) *Logger {
	var output io.Writer = os.Stdout
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "", "stdout":
		output = os.Stdout
	default:
		if f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644); err == nil {
			output = f
		}
	}

	if !cfg.JSONFormat {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	z := zerolog.New(output).With().Timestamp().Logger().Level(parseLevel(cfg.Level))
	if cfg.Component != "" {
		z = z.With().Str("component", cfg.Component).Logger()
	}
	return &Logger{z: z}
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return zerolog.DebugLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	case "FATAL":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// Default returns the default logger instance, creating it on first use.
func Default() *Logger {
	if defaultLogger == nil {
		defaultLogger = New(&Config{Level: "INFO", Output: "stdout", Component: "app", JSONFormat: true})
	}
	return defaultLogger
}

// SetDefault replaces the default logger, normally called once at startup
// after config.Load() has determined the desired level/format.
func SetDefault(l *Logger) {
	defaultLogger = l
}

// WithComponent returns a derived logger tagging every entry with component.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{z: l.z.With().Str("component", component).Logger()}
}

// WithTraceID returns a derived logger tagging every entry with a trace id.
func (l *Logger) WithTraceID(traceID string) *Logger {
	return &Logger{z: l.z.With().Str("trace_id", traceID).Logger()}
}

// WithField returns a derived logger with one additional field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{z: l.z.With().Interface(key, value).Logger()}
}

// WithFields returns a derived logger with several additional fields.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	ctx := l.z.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{z: ctx.Logger()}
}

// WithError returns a derived logger with an error field.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return &Logger{z: l.z.With().Err(err).Logger()}
}

// WithDuration returns a derived logger with a duration field.
func (l *Logger) WithDuration(d time.Duration) *Logger {
	return &Logger{z: l.z.With().Dur("duration", d).Logger()}
}

func (l *Logger) Debug(msg string, args ...interface{}) { logf(l.z.Debug(), msg, args...) }
func (l *Logger) Info(msg string, args ...interface{})  { logf(l.z.Info(), msg, args...) }
func (l *Logger) Warn(msg string, args ...interface{})  { logf(l.z.Warn(), msg, args...) }
func (l *Logger) Error(msg string, args ...interface{}) { logf(l.z.Error(), msg, args...) }

// Fatal logs at fatal level and exits the process, matching the
// teacher's contract (os.Exit(1) via zerolog's own Fatal event).
func (l *Logger) Fatal(msg string, args ...interface{}) { logf(l.z.Fatal(), msg, args...) }

func logf(e *zerolog.Event, msg string, args ...interface{}) {
	if len(args) > 0 {
		e.Msgf(msg, args...)
		return
	}
	e.Msg(msg)
}

// Package-level convenience wrappers delegating to the default logger.

func Debug(msg string, args ...interface{}) { Default().Debug(msg, args...) }
func Info(msg string, args ...interface{})  { Default().Info(msg, args...) }
func Warn(msg string, args ...interface{})  { Default().Warn(msg, args...) }
func Error(msg string, args ...interface{}) { Default().Error(msg, args...) }
func Fatal(msg string, args ...interface{}) { Default().Fatal(msg, args...) }

func WithComponent(component string) *Logger           { return Default().WithComponent(component) }
func WithField(key string, value interface{}) *Logger  { return Default().WithField(key, value) }
func WithFields(fields map[string]interface{}) *Logger { return Default().WithFields(fields) }
func WithError(err error) *Logger                      { return Default().WithError(err) }
