package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/yapper/plugin/ai"
	"github.com/hrygo/yapper/server/retrieval"
	"github.com/hrygo/yapper/store"
)

func TestFromError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code ErrorCode
	}{
		{"validation", &retrieval.ValidationError{Field: "query", Message: "must not be empty"}, ErrCodeInvalidArgument},
		{"empty input", ai.ErrEmptyInput, ErrCodeInvalidArgument},
		{"not found", store.ErrEntryNotFound, ErrCodeNotFound},
		{"wrapped not found", fmt.Errorf("get: %w", store.ErrEntryNotFound), ErrCodeNotFound},
		{"embedding rate limit", &ai.EmbeddingError{Reason: ai.ReasonRateLimit, Cause: errors.New("429")}, ErrCodeRateLimitExceeded},
		{"embedding transient", &ai.EmbeddingError{Reason: ai.ReasonTransient, Cause: errors.New("502")}, ErrCodeEmbeddingUnavailable},
		{"embedding auth", &ai.EmbeddingError{Reason: ai.ReasonAuth, Cause: errors.New("401")}, ErrCodeEmbeddingUnavailable},
		{"embedding timeout", &ai.EmbeddingError{Reason: ai.ReasonCanceled, Cause: context.DeadlineExceeded}, ErrCodeTimeout},
		{"completion canceled", &ai.CompletionError{Reason: ai.ReasonCanceled, Cause: context.Canceled}, ErrCodeContextCanceled},
		{"completion malformed", &ai.CompletionError{Reason: ai.ReasonMalformed, Cause: errors.New("400")}, ErrCodeCompletionUnavailable},
		{"deadline", context.DeadlineExceeded, ErrCodeTimeout},
		{"canceled", context.Canceled, ErrCodeContextCanceled},
		{"isolation", &retrieval.TenantIsolationViolation{RequestedOwner: "a", FoundOwner: "b", EntryID: "e"}, ErrCodeInternal},
		{"dimension mismatch", &store.DimensionMismatchError{EntryID: "e", Expected: 3, Actual: 2}, ErrCodeInternal},
		{"unknown", errors.New("boom"), ErrCodeInternal},
		{"already classified", Unauthorized("missing token"), ErrCodeUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			aiErr := FromError(tt.err)
			require.NotNil(t, aiErr)
			assert.Equal(t, tt.code, aiErr.Code)
			assert.True(t, IsCode(aiErr, tt.code))
		})
	}
}

func TestFromError_Nil(t *testing.T) {
	assert.Nil(t, FromError(nil))
}

func TestFromError_HidesInternalDetails(t *testing.T) {
	aiErr := FromError(errors.New("pq: password authentication failed"))
	assert.Equal(t, "internal error", aiErr.Message)
	assert.ErrorContains(t, aiErr, "password authentication failed")
}

func TestHTTPStatus(t *testing.T) {
	tests := map[ErrorCode]int{
		ErrCodeInvalidArgument:       http.StatusBadRequest,
		ErrCodeNotFound:              http.StatusNotFound,
		ErrCodeUnauthorized:          http.StatusUnauthorized,
		ErrCodeRateLimitExceeded:     http.StatusTooManyRequests,
		ErrCodeEmbeddingUnavailable:  http.StatusServiceUnavailable,
		ErrCodeCompletionUnavailable: http.StatusServiceUnavailable,
		ErrCodeUnavailable:           http.StatusServiceUnavailable,
		ErrCodeContextCanceled:       StatusClientClosedRequest,
		ErrCodeTimeout:               http.StatusGatewayTimeout,
		ErrCodeInternal:              http.StatusInternalServerError,
	}
	for code, status := range tests {
		assert.Equal(t, status, HTTPStatus(code), code)
	}
}

func TestAIError(t *testing.T) {
	cause := errors.New("root")
	err := Wrap(cause, ErrCodeInternal, "failed")

	assert.Equal(t, "[INTERNAL] failed: root", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "[NOT_FOUND] missing", NotFound("missing").Error())
	assert.False(t, IsCode(errors.New("plain"), ErrCodeInternal))
}
