package source

import (
	"context"
	"testing"
)

func TestSubjectContext(t *testing.T) {
	ctx := context.Background()
	if got := SubjectFromContext(ctx); got != "" {
		t.Errorf("SubjectFromContext(empty) = %q", got)
	}
	ctx = WithSubject(ctx, "alice@example.com")
	if got := SubjectFromContext(ctx); got != "alice@example.com" {
		t.Errorf("SubjectFromContext = %q, want alice@example.com", got)
	}
}
