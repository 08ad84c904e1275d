package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/yapper/plugin/ai/vector"
	apperrors "github.com/hrygo/yapper/server/internal/errors"
	"github.com/hrygo/yapper/server/retrieval"
)

type SearchRequest struct {
	Query string `json:"query"`
	// Limit is optional; nil selects the default.
	Limit *int `json:"limit"`
}

type SearchResponse struct {
	Results []*retrieval.SearchResult `json:"results"`
}

type ChatRequest struct {
	Message string `json:"message"`
	Limit   *int   `json:"limit"`
}

// ChatSource is an entry the answer was grounded on.
type ChatSource struct {
	EntryID    string  `json:"entry_id"`
	DisplayID  int32   `json:"display_id"`
	Similarity float64 `json:"similarity"`
}

type ChatResponse struct {
	Response string        `json:"response"`
	Sources  []*ChatSource `json:"sources"`
}

// SearchEntries ranks the caller's entries against a query.
// POST /api/v1/entries/search
func (s *APIV1Service) SearchEntries(c echo.Context) error {
	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.InvalidArgument("malformed request body")
	}
	if s.Searcher == nil {
		return &apperrors.AIError{Code: apperrors.ErrCodeEmbeddingUnavailable, Message: "semantic search is disabled"}
	}

	results, err := s.Searcher.Search(c.Request().Context(), req.Query, ownerOf(c), limitOrDefault(req.Limit, retrieval.DefaultSearchLimit))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, SearchResponse{Results: results})
}

// Chat answers a question grounded on the caller's entries.
// POST /api/v1/chat
func (s *APIV1Service) Chat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.InvalidArgument("malformed request body")
	}
	if s.Answerer == nil {
		return &apperrors.AIError{Code: apperrors.ErrCodeCompletionUnavailable, Message: "chat is disabled"}
	}

	answer, err := s.Answerer.Answer(c.Request().Context(), req.Message, ownerOf(c), limitOrDefault(req.Limit, retrieval.DefaultChatLimit))
	if err != nil {
		return err
	}

	resp := ChatResponse{Response: answer.Text, Sources: make([]*ChatSource, 0, len(answer.Sources))}
	for _, src := range answer.Sources {
		resp.Sources = append(resp.Sources, &ChatSource{
			EntryID:    src.EntryID,
			DisplayID:  src.DisplayID,
			Similarity: vector.Round(src.Similarity, 2),
		})
	}
	return c.JSON(http.StatusOK, resp)
}

// BackfillEntries embeds the caller's entries that are not searchable yet.
// POST /api/v1/entries/backfill
func (s *APIV1Service) BackfillEntries(c echo.Context) error {
	if s.Backfiller == nil {
		return &apperrors.AIError{Code: apperrors.ErrCodeEmbeddingUnavailable, Message: "embedding is disabled"}
	}
	ownerID := ownerOf(c)
	if ownerID == "" {
		return apperrors.Unauthorized("authentication required")
	}

	result, err := s.Backfiller.Backfill(c.Request().Context(), ownerID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func limitOrDefault(limit *int, def int) int {
	if limit == nil {
		return def
	}
	return *limit
}
