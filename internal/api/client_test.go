package api

import (
	"context"
	stderrors "errors"
	"net/http"
	"testing"
	"time"

	"github.com/dl-alexandre/docdr/internal/logging"
	"github.com/dl-alexandre/docdr/internal/types"
	"github.com/dl-alexandre/docdr/internal/utils"
	"google.golang.org/api/googleapi"
)

func TestExecuteWithRetryRecovers(t *testing.T) {
	client := NewClient("drive", 3, 1, nil)
	reqCtx := client.NewRequestContext(context.Background(), types.RequestTypeGetByID, "f1")

	calls := 0
	got, err := ExecuteWithRetry(context.Background(), client, reqCtx, func() (string, error) {
		calls++
		if calls < 3 {
			return "", &googleapi.Error{Code: 503}
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("ExecuteWithRetry: %v", err)
	}
	if got != "ok" || calls != 3 {
		t.Errorf("got %q after %d calls, want ok after 3", got, calls)
	}
}

func TestExecuteWithRetryStopsOnPermanentError(t *testing.T) {
	client := NewClient("storage", 3, 1, nil)
	reqCtx := client.NewRequestContext(context.Background(), types.RequestTypeGetByID)

	calls := 0
	err := Execute(context.Background(), client, reqCtx, func() error {
		calls++
		return &googleapi.Error{Code: 404}
	})
	if calls != 1 {
		t.Errorf("made %d calls, want 1", calls)
	}
	if !stderrors.Is(err, utils.ErrNotFound) {
		t.Errorf("error %v should be NotFound", err)
	}
}

func TestExecuteWithRetryGivesUp(t *testing.T) {
	client := NewClient("drive", 2, 1, nil)
	reqCtx := client.NewRequestContext(context.Background(), types.RequestTypeListOrSearch)

	calls := 0
	err := Execute(context.Background(), client, reqCtx, func() error {
		calls++
		return &googleapi.Error{Code: 429}
	})
	if calls != 3 {
		t.Errorf("made %d calls, want 3", calls)
	}
	if !stderrors.Is(err, utils.ErrTransientIO) {
		t.Errorf("error %v should be TransientIO", err)
	}
}

func TestExecuteWithRetryHonoursCancellation(t *testing.T) {
	client := NewClient("drive", 5, 1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Execute(ctx, client, client.NewRequestContext(ctx, types.RequestTypeGetByID), func() error {
		calls++
		return nil
	})
	if calls != 0 {
		t.Errorf("made %d calls on a cancelled context", calls)
	}
	if !stderrors.Is(err, context.Canceled) {
		t.Errorf("error %v should wrap context.Canceled", err)
	}
}

func TestNewRequestContextReusesTraceID(t *testing.T) {
	client := NewClient("drive", 0, 0, nil)
	ctx := logging.ContextWithTraceID(context.Background(), "run-42")
	if got := client.NewRequestContext(ctx, types.RequestTypeGetByID).TraceID; got != "run-42" {
		t.Errorf("TraceID = %q, want run-42", got)
	}
	if got := client.NewRequestContext(context.Background(), types.RequestTypeGetByID).TraceID; got == "" {
		t.Error("expected a generated trace ID")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"429", &googleapi.Error{Code: 429}, true},
		{"500", &googleapi.Error{Code: 500}, true},
		{"403 rate limit", &googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "rateLimitExceeded"}}}, true},
		{"403 forbidden", &googleapi.Error{Code: 403}, false},
		{"404", &googleapi.Error{Code: 404}, false},
		{"plain", stderrors.New("x"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryable(tt.err); got != tt.want {
				t.Errorf("isRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCalculateBackoff(t *testing.T) {
	header := http.Header{}
	header.Set("Retry-After", "2")
	if got := calculateBackoff(time.Second, 0, &googleapi.Error{Code: 429, Header: header}); got != 2*time.Second {
		t.Errorf("Retry-After delay = %v, want 2s", got)
	}

	header.Set("Retry-After", "3600")
	if got := calculateBackoff(time.Second, 0, &googleapi.Error{Code: 429, Header: header}); got != time.Duration(utils.MaxRetryDelayMs)*time.Millisecond {
		t.Errorf("Retry-After delay should be capped, got %v", got)
	}

	for attempt := 0; attempt < 4; attempt++ {
		base := time.Second * time.Duration(1<<attempt)
		got := calculateBackoff(time.Second, attempt, &googleapi.Error{Code: 503})
		if got < base*3/4 || got > base*5/4 {
			t.Errorf("attempt %d: delay %v outside [%v, %v]", attempt, got, base*3/4, base*5/4)
		}
	}
}
