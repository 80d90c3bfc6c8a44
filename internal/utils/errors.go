package utils

import (
	"errors"
	"fmt"

	"github.com/dl-alexandre/docdr/internal/types"
)

// Exit codes
const (
	ExitSuccess = 0
	// Auth errors (10-19)
	ExitAuthRequired = 10
	ExitAuthExpired  = 11
	ExitAuthInvalid  = 12
	// Resource errors (20-29)
	ExitNotFound         = 20
	ExitPermissionDenied = 21
	ExitQuotaExceeded    = 22
	ExitOwnershipCycle   = 23
	// Network errors (30-39)
	ExitNetworkError = 30
	ExitTimeout      = 31
	ExitRateLimited  = 32
	// Validation errors (40-49)
	ExitInvalidArgument = 40
	ExitInvalidPath     = 41
	ExitInvalidConfig   = 42
	// Partial failure: the run finished but some actions failed
	ExitPartialFailure = 60
	// Unknown
	ExitUnknown = 99
)

// Error codes (tool-owned, stable)
const (
	ErrCodeAuthRequired     = "AUTH_REQUIRED"
	ErrCodeAuthExpired      = "AUTH_EXPIRED"
	ErrCodeAuthInvalid      = "AUTH_INVALID"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodePermissionDenied = "PERMISSION_DENIED"
	ErrCodeQuotaExceeded    = "QUOTA_EXCEEDED"
	ErrCodeOwnershipCycle   = "OWNERSHIP_CYCLE"
	ErrCodeNetworkError     = "NETWORK_ERROR"
	ErrCodeTimeout          = "TIMEOUT"
	ErrCodeRateLimited      = "RATE_LIMITED"
	ErrCodeInvalidArgument  = "INVALID_ARGUMENT"
	ErrCodeInvalidPath      = "INVALID_PATH"
	ErrCodeInvalidConfig    = "INVALID_CONFIG"
	ErrCodePartialFailure   = "PARTIAL_FAILURE"
	ErrCodeCancelled        = "CANCELLED"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeUnknown          = "UNKNOWN"
)

// Error taxonomy. Components compare with errors.Is; AppError unwraps onto
// these according to its code.
var (
	// ErrNotFound: the resource does not exist at either endpoint.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized: the credentials cannot see the resource.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrTransientIO: network or server trouble, worth retrying later.
	ErrTransientIO = errors.New("transient I/O failure")
	// ErrOwnershipCycle: the parent chain of a resource never reaches a user root.
	ErrOwnershipCycle = errors.New("ownership cycle")
	// ErrBadPath: a restore path exists and is not a directory.
	ErrBadPath = errors.New("bad path")
)

// IsUnreachable reports whether err means the resource cannot be reached:
// either it is gone or the credentials cannot see it.
func IsUnreachable(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnauthorized)
}

// CLIErrorBuilder helps construct CLIError instances
type CLIErrorBuilder struct {
	err types.CLIError
}

// NewCLIError creates a new error builder
func NewCLIError(code, message string) *CLIErrorBuilder {
	return &CLIErrorBuilder{
		err: types.CLIError{
			Code:    code,
			Message: message,
		},
	}
}

func (b *CLIErrorBuilder) WithHTTPStatus(status int) *CLIErrorBuilder {
	b.err.HTTPStatus = status
	return b
}

func (b *CLIErrorBuilder) WithReason(reason string) *CLIErrorBuilder {
	b.err.Reason = reason
	return b
}

func (b *CLIErrorBuilder) WithRetryable(retryable bool) *CLIErrorBuilder {
	b.err.Retryable = retryable
	return b
}

func (b *CLIErrorBuilder) WithContext(key string, value interface{}) *CLIErrorBuilder {
	if b.err.Context == nil {
		b.err.Context = make(map[string]interface{})
	}
	b.err.Context[key] = value
	return b
}

func (b *CLIErrorBuilder) Build() types.CLIError {
	return b.err
}

// GetExitCode returns the exit code for an error code
func GetExitCode(errorCode string) int {
	mapping := map[string]int{
		ErrCodeAuthRequired:     ExitAuthRequired,
		ErrCodeAuthExpired:      ExitAuthExpired,
		ErrCodeAuthInvalid:      ExitAuthInvalid,
		ErrCodeNotFound:         ExitNotFound,
		ErrCodePermissionDenied: ExitPermissionDenied,
		ErrCodeQuotaExceeded:    ExitQuotaExceeded,
		ErrCodeOwnershipCycle:   ExitOwnershipCycle,
		ErrCodeNetworkError:     ExitNetworkError,
		ErrCodeTimeout:          ExitTimeout,
		ErrCodeRateLimited:      ExitRateLimited,
		ErrCodeInvalidArgument:  ExitInvalidArgument,
		ErrCodeInvalidPath:      ExitInvalidPath,
		ErrCodeInvalidConfig:    ExitInvalidConfig,
		ErrCodePartialFailure:   ExitPartialFailure,
	}
	if code, ok := mapping[errorCode]; ok {
		return code
	}
	return ExitUnknown
}

// AppError is a custom error type that carries CLI error info
type AppError struct {
	CLIError types.CLIError
	cause    error
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.CLIError.Code, e.CLIError.Message)
}

// Unwrap exposes the taxonomy sentinel for the error code, plus the
// underlying cause when one was attached.
func (e *AppError) Unwrap() []error {
	var errs []error
	if kind := kindForCode(e.CLIError.Code); kind != nil {
		errs = append(errs, kind)
	}
	if e.cause != nil {
		errs = append(errs, e.cause)
	}
	return errs
}

// NewAppError creates an AppError from a CLIError
func NewAppError(cliErr types.CLIError) *AppError {
	return &AppError{CLIError: cliErr}
}

// WrapAppError creates an AppError that also unwraps to cause
func WrapAppError(cliErr types.CLIError, cause error) *AppError {
	return &AppError{CLIError: cliErr, cause: cause}
}

func kindForCode(code string) error {
	switch code {
	case ErrCodeNotFound:
		return ErrNotFound
	case ErrCodeAuthRequired, ErrCodeAuthExpired, ErrCodeAuthInvalid, ErrCodePermissionDenied:
		return ErrUnauthorized
	case ErrCodeNetworkError, ErrCodeTimeout, ErrCodeRateLimited:
		return ErrTransientIO
	case ErrCodeOwnershipCycle:
		return ErrOwnershipCycle
	case ErrCodeInvalidPath:
		return ErrBadPath
	}
	return nil
}

// CodeForError picks the error code matching err's taxonomy kind
func CodeForError(err error) string {
	var appErr *AppError
	switch {
	case errors.As(err, &appErr):
		return appErr.CLIError.Code
	case errors.Is(err, ErrNotFound):
		return ErrCodeNotFound
	case errors.Is(err, ErrUnauthorized):
		return ErrCodePermissionDenied
	case errors.Is(err, ErrTransientIO):
		return ErrCodeNetworkError
	case errors.Is(err, ErrOwnershipCycle):
		return ErrCodeOwnershipCycle
	case errors.Is(err, ErrBadPath):
		return ErrCodeInvalidPath
	}
	return ErrCodeUnknown
}
