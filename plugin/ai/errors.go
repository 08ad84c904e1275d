package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"
)

// Reason is a machine-readable failure reason reported by the model services.
type Reason string

const (
	ReasonAuth      Reason = "auth"
	ReasonRateLimit Reason = "rate_limit"
	ReasonMalformed Reason = "malformed_input"
	ReasonTransient Reason = "transient"
	ReasonCanceled  Reason = "canceled"
)

// EmptyInputError is returned when a text is empty or whitespace only.
// It is raised before any network call is made.
type EmptyInputError struct {
	Field string
}

func (e *EmptyInputError) Error() string {
	if e.Field == "" {
		return "input text is empty"
	}
	return fmt.Sprintf("%s is empty", e.Field)
}

// ErrEmptyInput is the EmptyInputError returned by Embed.
var ErrEmptyInput = &EmptyInputError{Field: "embedding input"}

// EmbeddingError reports any failure of the embedding service.
type EmbeddingError struct {
	Reason Reason
	Cause  error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding failed (%s): %v", e.Reason, e.Cause)
}

func (e *EmbeddingError) Unwrap() error {
	return e.Cause
}

// CompletionError reports any failure of the text-completion service.
type CompletionError struct {
	Reason Reason
	Cause  error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("completion failed (%s): %v", e.Reason, e.Cause)
}

func (e *CompletionError) Unwrap() error {
	return e.Cause
}

func newEmbeddingError(err error) *EmbeddingError {
	return &EmbeddingError{Reason: classify(err), Cause: err}
}

func newCompletionError(err error) *CompletionError {
	return &CompletionError{Reason: classify(err), Cause: err}
}

// classify maps a go-openai client error to a Reason.
func classify(err error) Reason {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ReasonCanceled
	}

	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ReasonAuth
	case http.StatusTooManyRequests:
		return ReasonRateLimit
	case http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity:
		return ReasonMalformed
	default:
		return ReasonTransient
	}
}
