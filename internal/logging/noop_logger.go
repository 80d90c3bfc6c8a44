package logging

import "context"

// NoOpLogger discards everything
type NoOpLogger struct{}

// NewNoOpLogger returns a logger that discards everything
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

func (n *NoOpLogger) Debug(string, ...Field) {}
func (n *NoOpLogger) Info(string, ...Field) {}
func (n *NoOpLogger) Warn(string, ...Field) {}
func (n *NoOpLogger) Error(string, ...Field) {}
func (n *NoOpLogger) WithTraceID(string) Logger { return n }
func (n *NoOpLogger) WithContext(context.Context) Logger { return n }
func (n *NoOpLogger) SetLevel(LogLevel) {}
func (n *NoOpLogger) Close() error { return nil }
