package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorGray   = "\033[90m"
)

// ConsoleLogger writes human-readable lines, usually to stderr
type ConsoleLogger struct {
	mu               *sync.Mutex
	writer           io.Writer
	level            LogLevel
	traceID          string
	colorEnabled     bool
	timestampEnabled bool
	redactSensitive  bool
}

// ConsoleLoggerConfig contains configuration for console logger
type ConsoleLoggerConfig struct {
	Writer           io.Writer
	Level            LogLevel
	ColorEnabled     bool
	TimestampEnabled bool
	RedactSensitive  bool
}

// NewConsoleLogger creates a new console logger
func NewConsoleLogger(config ConsoleLoggerConfig) *ConsoleLogger {
	if config.Writer == nil {
		config.Writer = os.Stderr
	}

	return &ConsoleLogger{
		mu:               &sync.Mutex{},
		writer:           config.Writer,
		level:            config.Level,
		colorEnabled:     config.ColorEnabled,
		timestampEnabled: config.TimestampEnabled,
		redactSensitive:  config.RedactSensitive,
	}
}

var redactions = []struct {
	pattern *regexp.Regexp
	replace string
}{
	{regexp.MustCompile(`Bearer\s+[A-Za-z0-9\-._~+/]+=*`), "Bearer [REDACTED]"},
	{regexp.MustCompile(`(access_token|refresh_token|id_token)["']?\s*[:=]\s*["']?[A-Za-z0-9\-._~+/]+=*`), "$1=[REDACTED]"},
	{regexp.MustCompile(`(?i)authorization["']?\s*[:=]\s*["']?[^\s"']+`), "Authorization: [REDACTED]"},
	{regexp.MustCompile(`(private_key_id)["']?\s*[:=]\s*["']?[A-Za-z0-9]+`), "$1=[REDACTED]"},
	{regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----[^-]*-----END [A-Z ]*PRIVATE KEY-----`), "[REDACTED PRIVATE KEY]"},
}

// redactSensitiveData masks tokens and service account key material
func redactSensitiveData(s string) string {
	for _, r := range redactions {
		s = r.pattern.ReplaceAllString(s, r.replace)
	}
	return s
}

func levelColor(level LogLevel) string {
	switch level {
	case DEBUG:
		return colorBlue
	case WARN:
		return colorYellow
	case ERROR:
		return colorRed
	}
	return ""
}

func (l *ConsoleLogger) paint(sb *strings.Builder, color, text string) {
	if l.colorEnabled && color != "" {
		sb.WriteString(color)
		sb.WriteString(text)
		sb.WriteString(colorReset)
		return
	}
	sb.WriteString(text)
}

func (l *ConsoleLogger) formatMessage(level LogLevel, msg string, fields ...Field) string {
	var sb strings.Builder

	if l.timestampEnabled {
		l.paint(&sb, colorGray, time.Now().Format("2006-01-02 15:04:05"))
		sb.WriteByte(' ')
	}

	l.paint(&sb, levelColor(level), fmt.Sprintf("%-5s", level.String()))
	sb.WriteByte(' ')

	if l.traceID != "" {
		short := l.traceID
		if len(short) > 8 {
			short = short[:8]
		}
		l.paint(&sb, colorGray, "["+short+"]")
		sb.WriteByte(' ')
	}

	if l.redactSensitive {
		msg = redactSensitiveData(msg)
	}
	sb.WriteString(msg)

	for i, field := range fields {
		if i == 0 {
			sb.WriteByte(' ')
		} else {
			sb.WriteString(", ")
		}
		value := formatValue(field.Value)
		if l.redactSensitive {
			value = redactSensitiveData(value)
		}
		sb.WriteString(field.Key)
		sb.WriteByte('=')
		sb.WriteString(value)
	}

	return sb.String()
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case error:
		return val.Error()
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case map[string]int:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s:%d", k, val[k]))
		}
		return "{" + strings.Join(parts, " ") + "}"
	}
	return fmt.Sprintf("%v", v)
}

func (l *ConsoleLogger) log(level LogLevel, msg string, fields ...Field) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.level {
		return
	}
	_, _ = fmt.Fprintln(l.writer, l.formatMessage(level, msg, fields...))
}

// Debug logs a debug-level message
func (l *ConsoleLogger) Debug(msg string, fields ...Field) {
	l.log(DEBUG, msg, fields...)
}

// Info logs an info-level message
func (l *ConsoleLogger) Info(msg string, fields ...Field) {
	l.log(INFO, msg, fields...)
}

// Warn logs a warning-level message
func (l *ConsoleLogger) Warn(msg string, fields ...Field) {
	l.log(WARN, msg, fields...)
}

// Error logs an error-level message
func (l *ConsoleLogger) Error(msg string, fields ...Field) {
	l.log(ERROR, msg, fields...)
}

// WithTraceID returns a logger writing to the same destination with the trace ID set
func (l *ConsoleLogger) WithTraceID(traceID string) Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &ConsoleLogger{
		mu:               l.mu,
		writer:           l.writer,
		level:            l.level,
		traceID:          traceID,
		colorEnabled:     l.colorEnabled,
		timestampEnabled: l.timestampEnabled,
		redactSensitive:  l.redactSensitive,
	}
}

// WithContext returns a new logger that extracts trace ID from context
func (l *ConsoleLogger) WithContext(ctx context.Context) Logger {
	traceID := TraceIDFromContext(ctx)
	if traceID == "" {
		return l
	}
	return l.WithTraceID(traceID)
}

// SetLevel sets the minimum log level
func (l *ConsoleLogger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// Close is a no-op; the writer belongs to the caller
func (l *ConsoleLogger) Close() error {
	return nil
}
