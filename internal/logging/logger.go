package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/term"
)

// LogLevel is the severity of a log entry
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	}
	return fmt.Sprintf("LEVEL(%d)", int(l))
}

// ParseLevel maps a config or flag value onto a LogLevel. The CLI verbosity
// words "quiet", "normal" and "verbose" are accepted too.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG, nil
	case "info", "normal", "":
		return INFO, nil
	case "verbose":
		return DEBUG, nil
	case "warn", "warning":
		return WARN, nil
	case "error", "quiet":
		return ERROR, nil
	}
	return INFO, fmt.Errorf("unknown log level %q", s)
}

// Logger is the logging interface used throughout docdr
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	WithTraceID(traceID string) Logger
	WithContext(ctx context.Context) Logger
	SetLevel(level LogLevel)
	Close() error
}

// Field is a structured key/value attached to a log entry
type Field struct {
	Key   string
	Value interface{}
}

// F builds a Field
func F(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// LogEntry is one JSON line written by FileLogger
type LogEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	TraceID   string                 `json:"traceId,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// LogConfig configures NewLogger
type LogConfig struct {
	Level           LogLevel
	OutputFile      string
	EnableConsole   bool
	ConsoleWriter   io.Writer
	Timestamps      bool
	RedactSensitive bool
	// MaxFileSize is in bytes; the file rotates once it grows past it.
	MaxFileSize int64
	MaxBackups  int
	MaxAgeDays  int
}

// DefaultLogConfig returns the configuration used when nothing is set
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:           INFO,
		EnableConsole:   true,
		Timestamps:      true,
		RedactSensitive: true,
		MaxFileSize:     100 * 1024 * 1024,
		MaxBackups:      5,
		MaxAgeDays:      30,
	}
}

// NewLogger builds a console logger, a file logger, both, or a no-op logger
func NewLogger(config LogConfig) (Logger, error) {
	var loggers []Logger

	if config.EnableConsole {
		writer := config.ConsoleWriter
		if writer == nil {
			writer = os.Stderr
		}
		loggers = append(loggers, NewConsoleLogger(ConsoleLoggerConfig{
			Writer:           writer,
			Level:            config.Level,
			ColorEnabled:     isTerminal(writer),
			TimestampEnabled: config.Timestamps,
			RedactSensitive:  config.RedactSensitive,
		}))
	}

	if config.OutputFile != "" {
		fileLogger, err := NewFileLogger(FileLoggerConfig{
			FilePath:    config.OutputFile,
			Level:       config.Level,
			MaxFileSize: config.MaxFileSize,
			MaxBackups:  config.MaxBackups,
			MaxAgeDays:  config.MaxAgeDays,
		})
		if err != nil {
			return nil, err
		}
		loggers = append(loggers, fileLogger)
	}

	switch len(loggers) {
	case 0:
		return NewNoOpLogger(), nil
	case 1:
		return loggers[0], nil
	}
	return NewMultiLogger(loggers...), nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

type traceIDKey struct{}

// ContextWithTraceID attaches a trace ID to ctx
func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

// TraceIDFromContext returns the trace ID attached to ctx, if any
func TraceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(traceIDKey{}).(string); ok {
		return v
	}
	return ""
}

// OrNoOp returns l, or a no-op logger when l is nil
func OrNoOp(l Logger) Logger {
	if l == nil {
		return NewNoOpLogger()
	}
	return l
}
