package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/hrygo/yapper/plugin/ai"
	"github.com/hrygo/yapper/server/retrieval"
	"github.com/hrygo/yapper/store"
)

// ErrorCode is the machine-readable error type exposed by the API.
type ErrorCode string

const (
	// ErrCodeInvalidArgument indicates invalid input parameters.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	// ErrCodeNotFound indicates the entry does not exist for the caller.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeUnauthorized indicates authentication failure.
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	// ErrCodeRateLimitExceeded indicates rate limit has been exceeded.
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"
	// ErrCodeEmbeddingUnavailable indicates the embedding service failed.
	ErrCodeEmbeddingUnavailable ErrorCode = "EMBEDDING_UNAVAILABLE"
	// ErrCodeCompletionUnavailable indicates the chat model failed.
	ErrCodeCompletionUnavailable ErrorCode = "COMPLETION_UNAVAILABLE"
	// ErrCodeUnavailable indicates the server cannot take the request right now.
	ErrCodeUnavailable ErrorCode = "UNAVAILABLE"
	// ErrCodeContextCanceled indicates the operation was canceled.
	ErrCodeContextCanceled ErrorCode = "CONTEXT_CANCELED"
	// ErrCodeTimeout indicates the operation timed out.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeInternal hides every failure the caller cannot act on.
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// StatusClientClosedRequest is the non-standard status used when the client went away.
const StatusClientClosedRequest = 499

// AIError represents a structured API error.
type AIError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *AIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *AIError) Unwrap() error {
	return e.Cause
}

// Convenience constructors for common error types.

// Unauthorized creates an unauthorized error.
func Unauthorized(msg string) *AIError {
	return &AIError{Code: ErrCodeUnauthorized, Message: msg}
}

// RateLimitExceeded creates a rate limit exceeded error.
func RateLimitExceeded(msg string) *AIError {
	return &AIError{Code: ErrCodeRateLimitExceeded, Message: msg}
}

// InvalidArgument creates an invalid argument error.
func InvalidArgument(msg string) *AIError {
	return &AIError{Code: ErrCodeInvalidArgument, Message: msg}
}

// NotFound creates a not found error.
func NotFound(msg string) *AIError {
	return &AIError{Code: ErrCodeNotFound, Message: msg}
}

// Wrap wraps an existing error with additional context.
func Wrap(cause error, code ErrorCode, msg string) *AIError {
	return &AIError{Code: code, Message: msg, Cause: cause}
}

// IsCode checks if an error is of a specific code.
func IsCode(err error, code ErrorCode) bool {
	var aiErr *AIError
	if errors.As(err, &aiErr) {
		return aiErr.Code == code
	}
	return false
}

// FromError classifies any error returned by the services into an AIError.
// Messages of internal failures are generic; the cause is kept for logging.
func FromError(err error) *AIError {
	if err == nil {
		return nil
	}

	var (
		aiErr         *AIError
		validationErr *retrieval.ValidationError
		emptyErr      *ai.EmptyInputError
		embeddingErr  *ai.EmbeddingError
		completionErr *ai.CompletionError
	)
	switch {
	case errors.As(err, &aiErr):
		return aiErr
	case errors.As(err, &validationErr):
		return Wrap(err, ErrCodeInvalidArgument, validationErr.Error())
	case errors.As(err, &emptyErr):
		return Wrap(err, ErrCodeInvalidArgument, emptyErr.Error())
	case errors.Is(err, store.ErrEntryNotFound):
		return Wrap(err, ErrCodeNotFound, "entry not found")
	case errors.As(err, &embeddingErr):
		return fromReason(err, embeddingErr.Reason, ErrCodeEmbeddingUnavailable, "embedding service unavailable")
	case errors.As(err, &completionErr):
		return fromReason(err, completionErr.Reason, ErrCodeCompletionUnavailable, "completion service unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		return Wrap(err, ErrCodeTimeout, "operation timed out")
	case errors.Is(err, context.Canceled):
		return Wrap(err, ErrCodeContextCanceled, "operation canceled")
	}
	return Wrap(err, ErrCodeInternal, "internal error")
}

func fromReason(err error, reason ai.Reason, unavailable ErrorCode, msg string) *AIError {
	switch reason {
	case ai.ReasonRateLimit:
		return Wrap(err, ErrCodeRateLimitExceeded, "upstream rate limit exceeded")
	case ai.ReasonCanceled:
		if errors.Is(err, context.DeadlineExceeded) {
			return Wrap(err, ErrCodeTimeout, "operation timed out")
		}
		return Wrap(err, ErrCodeContextCanceled, "operation canceled")
	}
	return Wrap(err, unavailable, msg)
}

// HTTPStatus returns the HTTP status for code.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeInvalidArgument:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case ErrCodeEmbeddingUnavailable, ErrCodeCompletionUnavailable, ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	case ErrCodeContextCanceled:
		return StatusClientClosedRequest
	case ErrCodeTimeout:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
