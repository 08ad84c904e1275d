// Package timeout defines centralized timeout constants for model calls.
package timeout

import "time"

const (
	// EmbeddingTimeout bounds one embedding request (single text or batch).
	EmbeddingTimeout = 30 * time.Second

	// CompletionTimeout bounds one synchronous chat completion.
	CompletionTimeout = 2 * time.Minute
)
