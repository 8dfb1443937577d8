package log

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// Level represents the severity level of a log message.
type Level int

// Log levels
const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	case FatalLevel:
		return "fatal"
	default:
		return "unknown"
	}
}

// ParseLevel converts a textual level into a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	case "fatal":
		return FatalLevel, nil
	default:
		return InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

func (l Level) slogLevel() slog.Level {
	switch l {
	case DebugLevel:
		return slog.LevelDebug
	case InfoLevel:
		return slog.LevelInfo
	case WarnLevel:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// Logger is the logging interface passed to Dueue components.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	// Fatal logs at error level and exits the process.
	Fatal(msg string, fields ...Field)

	// With returns a Logger that includes fields on every entry.
	With(fields ...Field) Logger
}

// Config selects level and output format, typically from env or flags.
type Config struct {
	Level  string `json:"level" yaml:"level" env:"DUEUE_LOG_LEVEL"`
	Format string `json:"format" yaml:"format" env:"DUEUE_LOG_FORMAT"`
}

// Option configures a logger built by New.
type Option func(*options)

type options struct {
	level  Level
	format string
	out    io.Writer
}

// WithLevel sets the minimum log level.
func WithLevel(level Level) Option { return func(o *options) { o.level = level } }

// WithFormat selects "text" or "json" output.
func WithFormat(format string) Option { return func(o *options) { o.format = format } }

// WithWriter directs output somewhere other than stderr.
func WithWriter(w io.Writer) Option { return func(o *options) { o.out = w } }

type slogger struct {
	sl    *slog.Logger
	level Level
	exit  func(int)
}

// New builds a Logger. Text output goes through tint; json through slog's
// JSON handler.
func New(opts ...Option) Logger {
	o := options{level: InfoLevel, format: "text", out: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}

	var h slog.Handler
	switch o.format {
	case "json":
		h = slog.NewJSONHandler(o.out, &slog.HandlerOptions{Level: o.level.slogLevel()})
	default:
		h = tint.NewHandler(o.out, &tint.Options{
			Level:      o.level.slogLevel(),
			TimeFormat: time.DateTime,
		})
	}
	return &slogger{sl: slog.New(h), level: o.level, exit: os.Exit}
}

// ApplyConfig builds a Logger from a Config. On an unparseable level the
// returned Logger is still usable (info level) alongside the error.
func ApplyConfig(cfg *Config) (Logger, error) {
	level, err := ParseLevel(cfg.Level)
	logger := New(WithLevel(level), WithFormat(cfg.Format))
	return logger, err
}

func attrs(fields []Field) []any {
	out := make([]any, 0, len(fields))
	for _, f := range fields {
		out = append(out, slog.Any(f.Key, f.Value))
	}
	return out
}

func (l *slogger) Debug(msg string, fields ...Field) { l.sl.Debug(msg, attrs(fields)...) }
func (l *slogger) Info(msg string, fields ...Field)  { l.sl.Info(msg, attrs(fields)...) }
func (l *slogger) Warn(msg string, fields ...Field)  { l.sl.Warn(msg, attrs(fields)...) }
func (l *slogger) Error(msg string, fields ...Field) { l.sl.Error(msg, attrs(fields)...) }

func (l *slogger) Fatal(msg string, fields ...Field) {
	l.sl.Error(msg, attrs(fields)...)
	l.exit(1)
}

func (l *slogger) With(fields ...Field) Logger {
	return &slogger{sl: l.sl.With(attrs(fields)...), level: l.level, exit: l.exit}
}

// RedirectStdLog routes stdlib log output (Pebble logs through it) to logger
// at info level.
func RedirectStdLog(logger Logger) {
	log.SetFlags(0)
	log.SetOutput(stdLogWriter{logger: logger})
}

type stdLogWriter struct {
	logger Logger
}

func (w stdLogWriter) Write(p []byte) (int, error) {
	w.logger.Info(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
