package logging

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

// closeFailer is a logger whose Close fails
type closeFailer struct {
	NoOpLogger
	err error
}

func (c *closeFailer) Close() error { return c.err }

func TestMultiLogger_FansOut(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "docdr.log")
	file, err := NewFileLogger(FileLoggerConfig{FilePath: path, Level: DEBUG})
	if err != nil {
		t.Fatal(err)
	}
	m := NewMultiLogger(NewConsoleLogger(ConsoleLoggerConfig{Writer: &console, Level: WARN}), file)

	ctx := ContextWithTraceID(context.Background(), "b7c1e2f0aa")
	m.WithContext(ctx).Info("restored file", F("path", "/srv/restore/a.txt"))
	m.WithContext(ctx).Error("restore failed", F("user", "alice"))
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	out := console.String()
	if strings.Contains(out, "restored file") || !strings.Contains(out, "[b7c1e2f0] restore failed") {
		t.Errorf("console = %q", out)
	}
	entries := readEntries(t, path)
	if len(entries) != 2 {
		t.Fatalf("file entries = %+v", entries)
	}
	for _, e := range entries {
		if e.TraceID != "b7c1e2f0aa" {
			t.Errorf("entry %q trace = %q", e.Message, e.TraceID)
		}
	}
}

func TestMultiLogger_SetLevel(t *testing.T) {
	var a, b bytes.Buffer
	m := NewMultiLogger(
		NewConsoleLogger(ConsoleLoggerConfig{Writer: &a, Level: DEBUG}),
		NewConsoleLogger(ConsoleLoggerConfig{Writer: &b, Level: DEBUG}),
	)
	m.SetLevel(ERROR)
	m.Warn("hidden")
	if a.Len() != 0 || b.Len() != 0 {
		t.Errorf("warn written after SetLevel(ERROR): %q %q", a.String(), b.String())
	}
}

func TestMultiLogger_CloseJoinsErrors(t *testing.T) {
	errA := errors.New("flush a")
	errB := errors.New("flush b")
	m := NewMultiLogger(&closeFailer{err: errA}, NewNoOpLogger(), &closeFailer{err: errB})

	err := m.Close()
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Errorf("Close = %v, want both errors", err)
	}
}
