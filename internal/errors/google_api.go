package errors

import (
	"context"
	stderrors "errors"

	"github.com/dl-alexandre/docdr/internal/logging"
	"github.com/dl-alexandre/docdr/internal/types"
	"github.com/dl-alexandre/docdr/internal/utils"
	"google.golang.org/api/googleapi"
)

// ClassifyGoogleAPIError converts an error returned by a Google client library
// into an *utils.AppError whose code unwraps onto the error taxonomy.
func ClassifyGoogleAPIError(service string, err error, reqCtx *types.RequestContext, logger logging.Logger) error {
	if err == nil {
		return nil
	}
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	if reqCtx == nil {
		reqCtx = &types.RequestContext{}
	}

	var existing *utils.AppError
	if stderrors.As(err, &existing) {
		return err
	}

	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		code := utils.ErrCodeCancelled
		if stderrors.Is(err, context.DeadlineExceeded) {
			code = utils.ErrCodeTimeout
		}
		return utils.WrapAppError(utils.NewCLIError(code, err.Error()).
			WithContext("traceId", reqCtx.TraceID).
			WithContext("service", service).
			Build(), err)
	}

	var apiErr *googleapi.Error
	if !stderrors.As(err, &apiErr) {
		logger.Error("Non-API error",
			logging.F("error", err.Error()),
			logging.F("traceId", reqCtx.TraceID),
		)
		return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeNetworkError, err.Error()).
			WithRetryable(true).
			WithContext("traceId", reqCtx.TraceID).
			WithContext("service", service).
			Build(), err)
	}

	var code string
	var retryable bool

	switch apiErr.Code {
	case 400:
		code = utils.ErrCodeInvalidArgument
	case 401:
		code = utils.ErrCodeAuthExpired
	case 403:
		code = utils.ErrCodePermissionDenied
		for _, e := range apiErr.Errors {
			switch e.Reason {
			case "storageQuotaExceeded", "quotaExceeded":
				code = utils.ErrCodeQuotaExceeded
			case "userRateLimitExceeded", "rateLimitExceeded":
				code = utils.ErrCodeRateLimited
				retryable = true
			case "dailyLimitExceeded":
				code = utils.ErrCodeRateLimited
			}
		}
	case 404, 410:
		code = utils.ErrCodeNotFound
	case 408:
		code = utils.ErrCodeTimeout
		retryable = true
	case 429:
		code = utils.ErrCodeRateLimited
		retryable = true
	case 500, 502, 503, 504:
		code = utils.ErrCodeNetworkError
		retryable = true
	default:
		code = utils.ErrCodeUnknown
		retryable = apiErr.Code >= 500
	}

	if code == utils.ErrCodeNotFound {
		logger.Debug("API resource not found",
			logging.F("httpStatus", apiErr.Code),
			logging.F("traceId", reqCtx.TraceID),
			logging.F("service", service),
		)
	} else {
		logger.Error("API error classified",
			logging.F("httpStatus", apiErr.Code),
			logging.F("errorCode", code),
			logging.F("retryable", retryable),
			logging.F("message", apiErr.Message),
			logging.F("traceId", reqCtx.TraceID),
			logging.F("service", service),
		)
	}

	builder := utils.NewCLIError(code, apiErr.Message).
		WithHTTPStatus(apiErr.Code).
		WithRetryable(retryable).
		WithContext("traceId", reqCtx.TraceID).
		WithContext("requestType", string(reqCtx.RequestType)).
		WithContext("service", service)

	if reqCtx.Subject != "" {
		builder.WithContext("subject", reqCtx.Subject)
	}
	if len(reqCtx.InvolvedIDs) > 0 {
		builder.WithContext("involvedIds", reqCtx.InvolvedIDs)
	}

	if len(apiErr.Errors) > 0 {
		builder.WithReason(apiErr.Errors[0].Reason)
		switch apiErr.Errors[0].Reason {
		case "userRateLimitExceeded", "rateLimitExceeded":
			builder.WithContext("suggestedAction", "wait before retrying")
		case "dailyLimitExceeded":
			builder.WithContext("suggestedAction", "quota will reset in 24 hours")
		case "unauthorized_client", "insufficientPermissions":
			builder.WithContext("suggestedAction", "check domain-wide delegation scopes for the service account")
		}
	}

	switch code {
	case utils.ErrCodeAuthExpired:
		builder.WithContext("suggestedAction", "run 'docdr auth set-key' with a valid service account key")
	case utils.ErrCodeRateLimited:
		builder.WithContext("suggestedAction", "rate limit exceeded, retrying with backoff")
	}

	if apiErr.Code >= 500 && apiErr.Code <= 504 {
		builder.WithContext("serverError", true).
			WithContext("suggestedAction", "temporary server error, retrying")
	}

	return utils.WrapAppError(builder.Build(), err)
}
