package observability

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const (
	LogFieldRequestID = "request_id"
	LogFieldOwnerID   = "owner_id"
	LogFieldOperation = "operation"
	LogFieldDuration  = "duration_ms"
	// LogFieldTextLen records the length of user text; the text itself is never logged.
	LogFieldTextLen   = "text_length"
	LogFieldErrorCode = "error_code"
)

// RequestContext carries per-request identity for structured logging.
type RequestContext struct {
	RequestID string
	OwnerID   string
	Operation string
	StartTime time.Time
	Logger    *slog.Logger
}

// NewRequestContext creates a request context with a generated request ID.
func NewRequestContext(logger *slog.Logger, operation, ownerID string) *RequestContext {
	return NewRequestContextWithID(logger, uuid.New().String(), operation, ownerID)
}

// NewRequestContextWithID creates a request context with a caller-supplied request ID.
func NewRequestContextWithID(logger *slog.Logger, requestID, operation, ownerID string) *RequestContext {
	if logger == nil {
		logger = slog.Default()
	}
	return &RequestContext{
		RequestID: requestID,
		OwnerID:   ownerID,
		Operation: operation,
		StartTime: time.Now(),
		Logger:    logger,
	}
}

// Info logs an info message.
func (r *RequestContext) Info(msg string, attrs ...slog.Attr) {
	r.log(slog.LevelInfo, msg, attrs)
}

// Debug logs a debug message.
func (r *RequestContext) Debug(msg string, attrs ...slog.Attr) {
	r.log(slog.LevelDebug, msg, attrs)
}

// Warn logs a warning message.
func (r *RequestContext) Warn(msg string, attrs ...slog.Attr) {
	r.log(slog.LevelWarn, msg, attrs)
}

// Error logs an error message with the error.
func (r *RequestContext) Error(msg string, err error, attrs ...slog.Attr) {
	r.log(slog.LevelError, msg, append(attrs, slog.String("error", err.Error())))
}

// Duration returns the elapsed time since the request started.
func (r *RequestContext) Duration() time.Duration {
	return time.Since(r.StartTime)
}

func (r *RequestContext) log(level slog.Level, msg string, attrs []slog.Attr) {
	combined := append([]slog.Attr{
		slog.String(LogFieldRequestID, r.RequestID),
		slog.String(LogFieldOwnerID, r.OwnerID),
		slog.String(LogFieldOperation, r.Operation),
	}, attrs...)
	r.Logger.LogAttrs(context.Background(), level, msg, combined...)
}

type ctxKey struct{}

// WithRequestContext adds the request context to the context.
func WithRequestContext(ctx context.Context, reqCtx *RequestContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, reqCtx)
}

// FromContext extracts the request context from the context.
func FromContext(ctx context.Context) (*RequestContext, bool) {
	reqCtx, ok := ctx.Value(ctxKey{}).(*RequestContext)
	return reqCtx, ok
}

// Logger returns a request-scoped RequestContext from ctx, or a detached one
// for operation when ctx carries none.
func Logger(ctx context.Context, operation, ownerID string) *RequestContext {
	if reqCtx, ok := FromContext(ctx); ok {
		return reqCtx
	}
	return NewRequestContextWithID(slog.Default(), "", operation, ownerID)
}
