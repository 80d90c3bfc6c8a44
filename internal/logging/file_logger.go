package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileLogger writes JSON lines to a size-rotated file
type FileLogger struct {
	mu      *sync.Mutex
	out     *lumberjack.Logger
	level   *LogLevel
	traceID string
}

// FileLoggerConfig contains configuration for file logger
type FileLoggerConfig struct {
	FilePath string
	Level    LogLevel
	// MaxFileSize is in bytes; 0 uses the rotation library's default.
	MaxFileSize int64
	MaxBackups  int
	MaxAgeDays  int
}

// NewFileLogger creates a new file logger
func NewFileLogger(config FileLoggerConfig) (*FileLogger, error) {
	dir := filepath.Dir(config.FilePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	// Create the file up front so configuration errors surface here rather
	// than on the first write.
	file, err := os.OpenFile(config.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close log file: %w", err)
	}

	level := config.Level
	return &FileLogger{
		mu: &sync.Mutex{},
		out: &lumberjack.Logger{
			Filename:   config.FilePath,
			MaxSize:    megabytes(config.MaxFileSize),
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAgeDays,
		},
		level: &level,
	}, nil
}

// megabytes converts a byte budget to lumberjack's unit, rounding up
func megabytes(bytes int64) int {
	if bytes <= 0 {
		return 0
	}
	const mb = 1024 * 1024
	n := int((bytes + mb - 1) / mb)
	if n < 1 {
		n = 1
	}
	return n
}

func (l *FileLogger) log(level LogLevel, msg string, fields ...Field) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < *l.level {
		return
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC(),
		Level:     level.String(),
		Message:   msg,
		TraceID:   l.traceID,
	}
	if len(fields) > 0 {
		entry.Fields = make(map[string]interface{}, len(fields))
		for _, field := range fields {
			value := field.Value
			if err, ok := value.(error); ok {
				value = err.Error()
			}
			entry.Fields[field.Key] = value
		}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to marshal log entry: %v\n", err)
		return
	}

	data = append(data, '\n')
	if _, err := l.out.Write(data); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write log entry: %v\n", err)
	}
}

// Debug logs a debug-level message
func (l *FileLogger) Debug(msg string, fields ...Field) {
	l.log(DEBUG, msg, fields...)
}

// Info logs an info-level message
func (l *FileLogger) Info(msg string, fields ...Field) {
	l.log(INFO, msg, fields...)
}

// Warn logs a warning-level message
func (l *FileLogger) Warn(msg string, fields ...Field) {
	l.log(WARN, msg, fields...)
}

// Error logs an error-level message
func (l *FileLogger) Error(msg string, fields ...Field) {
	l.log(ERROR, msg, fields...)
}

// WithTraceID returns a logger sharing the same file with the trace ID set
func (l *FileLogger) WithTraceID(traceID string) Logger {
	return &FileLogger{
		mu:      l.mu,
		out:     l.out,
		level:   l.level,
		traceID: traceID,
	}
}

// WithContext returns a new logger that extracts trace ID from context
func (l *FileLogger) WithContext(ctx context.Context) Logger {
	traceID := TraceIDFromContext(ctx)
	if traceID == "" {
		return l
	}
	return l.WithTraceID(traceID)
}

// SetLevel sets the minimum log level for this logger and its derivatives
func (l *FileLogger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.level = level
}

// Close closes the log file
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.out.Close()
}
