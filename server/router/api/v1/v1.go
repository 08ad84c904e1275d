// Package v1 exposes the journal API as JSON over echo.
package v1

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/yapper/internal/profile"
	"github.com/hrygo/yapper/server/auth"
	apperrors "github.com/hrygo/yapper/server/internal/errors"
	"github.com/hrygo/yapper/server/internal/observability"
	"github.com/hrygo/yapper/server/middleware"
	"github.com/hrygo/yapper/server/retrieval"
	embeddingrunner "github.com/hrygo/yapper/server/runner/embedding"
	"github.com/hrygo/yapper/server/service/entry"
)

// Searcher runs semantic search for one owner.
type Searcher interface {
	Search(ctx context.Context, query, ownerID string, k int) ([]*retrieval.SearchResult, error)
}

// Answerer answers a question from retrieved entries.
type Answerer interface {
	Answer(ctx context.Context, question, ownerID string, k int) (*retrieval.Answer, error)
}

// Backfiller embeds the entries that are still missing a vector.
type Backfiller interface {
	Backfill(ctx context.Context, ownerID string) (*embeddingrunner.BackfillResult, error)
}

// APIV1Service holds the handlers of /api/v1. Search, chat and backfill stay
// nil when AI is disabled and then answer 503.
type APIV1Service struct {
	Secret  string
	Profile *profile.Profile
	Metrics *observability.Metrics

	EntryService *entry.Service
	Searcher     Searcher
	Answerer     Answerer
	Backfiller   Backfiller
	RateLimiter  *middleware.RateLimiter
}

// RegisterRoutes mounts every route on echoServer.
func (s *APIV1Service) RegisterRoutes(echoServer *echo.Echo) {
	echoServer.HTTPErrorHandler = ErrorHandler
	echoServer.GET("/healthz", s.Healthz)

	api := echoServer.Group("/api/v1", auth.Middleware([]byte(s.Secret)))
	if s.RateLimiter != nil {
		api.Use(s.RateLimiter.Middleware())
	}

	api.GET("/entries", s.ListEntries, s.observe("list_entries"))
	api.POST("/entries", s.CreateEntry, s.observe("create_entry"))
	api.POST("/entries/search", s.SearchEntries, s.observe("search"))
	api.POST("/entries/backfill", s.BackfillEntries, s.observe("backfill"))
	api.GET("/entries/:id", s.GetEntry, s.observe("get_entry"))
	api.PUT("/entries/:id", s.UpdateEntry, s.observe("update_entry"))
	api.DELETE("/entries/:id", s.DeleteEntry, s.observe("delete_entry"))
	api.POST("/chat", s.Chat, s.observe("chat"))
}

// HealthzResponse reports liveness and per-operation counters.
type HealthzResponse struct {
	Status     string                            `json:"status"`
	Version    string                            `json:"version,omitempty"`
	AIEnabled  bool                              `json:"ai_enabled"`
	Operations []observability.OperationSnapshot `json:"operations"`
}

// Healthz is the unauthenticated liveness check.
// GET /healthz
func (s *APIV1Service) Healthz(c echo.Context) error {
	resp := HealthzResponse{Status: "ok", AIEnabled: s.Searcher != nil, Operations: []observability.OperationSnapshot{}}
	if s.Profile != nil {
		resp.Version = s.Profile.Version
	}
	if s.Metrics != nil {
		resp.Operations = s.Metrics.Snapshot()
	}
	return c.JSON(http.StatusOK, resp)
}

// observe attaches a RequestContext to the request and records its outcome.
func (s *APIV1Service) observe(operation string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			requestID := req.Header.Get(echo.HeaderXRequestID)
			var reqCtx *observability.RequestContext
			if requestID != "" {
				reqCtx = observability.NewRequestContextWithID(slog.Default(), requestID, operation, auth.OwnerFromContext(req.Context()))
			} else {
				reqCtx = observability.NewRequestContext(slog.Default(), operation, auth.OwnerFromContext(req.Context()))
			}
			c.Response().Header().Set(echo.HeaderXRequestID, reqCtx.RequestID)
			c.SetRequest(req.WithContext(observability.WithRequestContext(req.Context(), reqCtx)))

			err := next(c)

			duration := reqCtx.Duration()
			if s.Metrics != nil {
				s.Metrics.Record(operation, duration, err != nil)
			}
			attrs := []slog.Attr{slog.Int64(observability.LogFieldDuration, duration.Milliseconds())}
			if err != nil {
				code := codeOf(err)
				attrs = append(attrs, slog.String(observability.LogFieldErrorCode, string(code)))
				if code == apperrors.ErrCodeInternal {
					reqCtx.Error("request failed", err, attrs...)
				} else {
					reqCtx.Info("request rejected", attrs...)
				}
			} else {
				reqCtx.Debug("request completed", attrs...)
			}
			return err
		}
	}
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code    apperrors.ErrorCode `json:"code"`
	Message string              `json:"message"`
}

// ErrorHandler renders any handler error as an ErrorResponse.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var resp ErrorResponse
	var status int
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		resp = ErrorResponse{Code: codeForStatus(he.Code), Message: http.StatusText(he.Code)}
		if msg, ok := he.Message.(string); ok && msg != "" {
			resp.Message = msg
		}
	} else {
		aiErr := apperrors.FromError(err)
		status = apperrors.HTTPStatus(aiErr.Code)
		resp = ErrorResponse{Code: aiErr.Code, Message: aiErr.Message}
	}

	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(status)
	} else {
		writeErr = c.JSON(status, resp)
	}
	if writeErr != nil {
		slog.Error("failed to write error response", "error", writeErr)
	}
}

func codeOf(err error) apperrors.ErrorCode {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return codeForStatus(he.Code)
	}
	return apperrors.FromError(err).Code
}

func codeForStatus(status int) apperrors.ErrorCode {
	switch status {
	case http.StatusBadRequest, http.StatusMethodNotAllowed, http.StatusUnsupportedMediaType, http.StatusRequestEntityTooLarge:
		return apperrors.ErrCodeInvalidArgument
	case http.StatusUnauthorized, http.StatusForbidden:
		return apperrors.ErrCodeUnauthorized
	case http.StatusNotFound:
		return apperrors.ErrCodeNotFound
	case http.StatusTooManyRequests:
		return apperrors.ErrCodeRateLimitExceeded
	case http.StatusServiceUnavailable:
		return apperrors.ErrCodeUnavailable
	case http.StatusGatewayTimeout:
		return apperrors.ErrCodeTimeout
	}
	return apperrors.ErrCodeInternal
}

func ownerOf(c echo.Context) string {
	return auth.OwnerFromContext(c.Request().Context())
}
