package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	apperrors "github.com/hrygo/yapper/server/internal/errors"
	"github.com/hrygo/yapper/store"
)

// Entry is the API representation of a journal entry.
type Entry struct {
	ID                string  `json:"id"`
	DisplayID         int32   `json:"display_id"`
	Content           string  `json:"content"`
	NormalizedContent *string `json:"normalized_content"`
	Searchable        bool    `json:"searchable"`
	CreatedTs         int64   `json:"created_ts"`
	UpdatedTs         int64   `json:"updated_ts"`
}

type ListEntriesResponse struct {
	Entries []*Entry `json:"entries"`
}

type CreateEntryRequest struct {
	Content string `json:"content"`
}

type UpdateEntryRequest struct {
	Content   string `json:"content"`
	Reprocess bool   `json:"reprocess"`
}

func convertEntryFromStore(e *store.Entry) *Entry {
	return &Entry{
		ID:                e.ID,
		DisplayID:         e.DisplayID,
		Content:           e.Content,
		NormalizedContent: e.NormalizedContent,
		Searchable:        e.HasEmbedding(),
		CreatedTs:         e.CreatedTs,
		UpdatedTs:         e.UpdatedTs,
	}
}

// ListEntries returns the caller's entries, newest first.
// GET /api/v1/entries?limit=&offset=
func (s *APIV1Service) ListEntries(c echo.Context) error {
	limit, err := queryInt(c, "limit")
	if err != nil {
		return err
	}
	offset, err := queryInt(c, "offset")
	if err != nil {
		return err
	}

	entries, err := s.EntryService.List(c.Request().Context(), ownerOf(c), limit, offset)
	if err != nil {
		return err
	}

	resp := ListEntriesResponse{Entries: make([]*Entry, 0, len(entries))}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, convertEntryFromStore(e))
	}
	return c.JSON(http.StatusOK, resp)
}

// CreateEntry stores a new entry.
// POST /api/v1/entries
func (s *APIV1Service) CreateEntry(c echo.Context) error {
	var req CreateEntryRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.InvalidArgument("malformed request body")
	}

	created, err := s.EntryService.Create(c.Request().Context(), ownerOf(c), req.Content)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, convertEntryFromStore(created))
}

// GetEntry returns one of the caller's entries.
// GET /api/v1/entries/:id
func (s *APIV1Service) GetEntry(c echo.Context) error {
	e, err := s.EntryService.Get(c.Request().Context(), ownerOf(c), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, convertEntryFromStore(e))
}

// UpdateEntry replaces the content of an entry, optionally reprocessing it.
// PUT /api/v1/entries/:id
func (s *APIV1Service) UpdateEntry(c echo.Context) error {
	var req UpdateEntryRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.InvalidArgument("malformed request body")
	}

	updated, err := s.EntryService.Update(c.Request().Context(), ownerOf(c), c.Param("id"), req.Content, req.Reprocess)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, convertEntryFromStore(updated))
}

// DeleteEntry removes one of the caller's entries.
// DELETE /api/v1/entries/:id
func (s *APIV1Service) DeleteEntry(c echo.Context) error {
	if err := s.EntryService.Delete(c.Request().Context(), ownerOf(c), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func queryInt(c echo.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.InvalidArgument(name + " must be an integer")
	}
	return v, nil
}
