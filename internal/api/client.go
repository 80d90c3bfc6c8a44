package api

import (
	"context"
	stderrors "errors"
	"math"
	"math/rand"
	"strconv"
	"time"

	"github.com/dl-alexandre/docdr/internal/errors"
	"github.com/dl-alexandre/docdr/internal/logging"
	"github.com/dl-alexandre/docdr/internal/types"
	"github.com/dl-alexandre/docdr/internal/utils"
	"github.com/google/uuid"
	"google.golang.org/api/googleapi"
)

// Client runs remote calls for one Google service with retry logic and
// error classification
type Client struct {
	service    string
	maxRetries int
	retryDelay time.Duration
	logger     logging.Logger
}

// NewClient creates a retry client for service ("drive", "storage", ...)
func NewClient(service string, maxRetries int, retryDelayMs int, logger logging.Logger) *Client {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Client{
		service:    service,
		maxRetries: maxRetries,
		retryDelay: time.Duration(retryDelayMs) * time.Millisecond,
		logger:     logger,
	}
}

// Service returns the name of the service the client talks to
func (c *Client) Service() string {
	return c.service
}

// NewRequestContext creates a request context with a fresh trace ID, reusing
// the trace ID carried by ctx when there is one.
func (c *Client) NewRequestContext(ctx context.Context, requestType types.RequestType, ids ...string) *types.RequestContext {
	traceID := logging.TraceIDFromContext(ctx)
	if traceID == "" {
		traceID = uuid.New().String()
	}
	return &types.RequestContext{
		TraceID:     traceID,
		Service:     c.service,
		RequestType: requestType,
		InvolvedIDs: ids,
	}
}

// ExecuteWithRetry executes an API call with retry logic. The returned error,
// if any, is an *utils.AppError classified by status code.
func ExecuteWithRetry[T any](ctx context.Context, client *Client, reqCtx *types.RequestContext, fn func() (T, error)) (T, error) {
	var result T
	var lastErr error

	logger := client.logger.WithTraceID(reqCtx.TraceID)
	start := time.Now()

	for attempt := 0; attempt <= client.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return result, classifyError(client.service, err, reqCtx, client.logger)
		}

		result, lastErr = fn()
		if lastErr == nil {
			if attempt > 0 {
				logger.Info("API operation recovered",
					logging.F("service", client.service),
					logging.F("requestType", reqCtx.RequestType),
					logging.F("attempts", attempt+1),
					logging.F("duration_ms", time.Since(start).Milliseconds()),
				)
			}
			return result, nil
		}

		if !isRetryable(lastErr) {
			return result, classifyError(client.service, lastErr, reqCtx, client.logger)
		}

		if attempt < client.maxRetries {
			delay := calculateBackoff(client.retryDelay, attempt, lastErr)
			logger.Warn("API operation failed (retryable)",
				logging.F("service", client.service),
				logging.F("attempt", attempt+1),
				logging.F("delay_ms", delay.Milliseconds()),
				logging.F("error", lastErr.Error()),
			)
			select {
			case <-ctx.Done():
				return result, classifyError(client.service, ctx.Err(), reqCtx, client.logger)
			case <-time.After(delay):
			}
		}
	}

	logger.Error("API operation failed after max retries",
		logging.F("service", client.service),
		logging.F("duration_ms", time.Since(start).Milliseconds()),
		logging.F("attempts", client.maxRetries+1),
		logging.F("error", lastErr.Error()),
	)

	return result, classifyError(client.service, lastErr, reqCtx, client.logger)
}

// Execute is ExecuteWithRetry for calls without a result
func Execute(ctx context.Context, client *Client, reqCtx *types.RequestContext, fn func() error) error {
	_, err := ExecuteWithRetry(ctx, client, reqCtx, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// isRetryable checks if an error is retryable
func isRetryable(err error) bool {
	var apiErr *googleapi.Error
	if !stderrors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Code {
	case 408, 429, 500, 502, 503, 504:
		return true
	case 403:
		for _, e := range apiErr.Errors {
			if e.Reason == "userRateLimitExceeded" || e.Reason == "rateLimitExceeded" {
				return true
			}
		}
	}
	return false
}

// calculateBackoff calculates the retry delay with exponential backoff
func calculateBackoff(baseDelay time.Duration, attempt int, err error) time.Duration {
	maxDelay := time.Duration(utils.MaxRetryDelayMs) * time.Millisecond

	var apiErr *googleapi.Error
	if stderrors.As(err, &apiErr) && apiErr.Header != nil {
		if retryAfter := apiErr.Header.Get("Retry-After"); retryAfter != "" {
			if seconds, err := strconv.Atoi(retryAfter); err == nil {
				delay := time.Duration(seconds) * time.Second
				if delay > maxDelay {
					return maxDelay
				}
				return delay
			}
		}
	}

	delay := baseDelay * time.Duration(math.Pow(2, float64(attempt)))
	if delay > maxDelay {
		delay = maxDelay
	}

	// Jitter of +/-25%
	if jitterRange := delay / 4; jitterRange > 0 {
		jitter := time.Duration(rand.Int63n(int64(jitterRange*2))) - jitterRange
		delay += jitter
	}

	if delay < 0 {
		delay = baseDelay
	}
	return delay
}

func classifyError(service string, err error, reqCtx *types.RequestContext, logger logging.Logger) error {
	return errors.ClassifyGoogleAPIError(service, err, reqCtx, logger)
}
