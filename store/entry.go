package store

import (
	"context"
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"
)

// maxDisplayIDAttempts bounds the retries of CreateEntry under concurrent inserts for one owner.
const maxDisplayIDAttempts = 8

// Entry is a journal entry together with its derived search data.
type Entry struct {
	ID        string
	OwnerID   string
	DisplayID int32

	Content string
	// NormalizedContent is nil until the language model restated the entry.
	NormalizedContent *string
	// Embedding is nil until the entry was indexed.
	Embedding []float32

	CreatedTs int64
	UpdatedTs int64
}

// HasEmbedding reports whether the entry is searchable.
func (e *Entry) HasEmbedding() bool {
	return len(e.Embedding) > 0
}

// FindEntry filters entries. Results are ordered newest first.
type FindEntry struct {
	ID      *string
	OwnerID *string

	HasEmbedding *bool

	Limit  *int
	Offset *int
}

// UpdateEntry changes mutable entry fields. ID and OwnerID select the row.
type UpdateEntry struct {
	ID      string
	OwnerID string

	UpdatedTs         int64
	Content           *string
	NormalizedContent *string
	// ClearNormalizedContent and ClearEmbedding reset the derived data to NULL.
	ClearNormalizedContent bool
	ClearEmbedding         bool

	// ExpectedContent makes the update conditional on the current content.
	// A mismatch reports ErrEntryChanged.
	ExpectedContent *string
}

type DeleteEntry struct {
	ID      string
	OwnerID string
}

type UpdateEntryEmbedding struct {
	ID        string
	Embedding []float32
	UpdatedTs int64

	// NormalizedContent, when set, makes the write conditional: it applies only
	// while the entry has no embedding and still has this normalized content.
	// Otherwise ErrEntryChanged is reported.
	NormalizedContent *string
}

// CreateEntry inserts a new entry and assigns its id and display id.
func (s *Store) CreateEntry(ctx context.Context, create *Entry) (*Entry, error) {
	if strings.TrimSpace(create.OwnerID) == "" {
		return nil, errors.New("owner id is required")
	}
	if create.Embedding != nil {
		if err := s.checkDimensions(create.ID, create.Embedding); err != nil {
			return nil, err
		}
	}
	if create.ID == "" {
		create.ID = shortuuid.New()
	}
	now := time.Now().Unix()
	if create.CreatedTs == 0 {
		create.CreatedTs = now
	}
	if create.UpdatedTs == 0 {
		create.UpdatedTs = create.CreatedTs
	}

	var lastErr error
	for attempt := 0; attempt < maxDisplayIDAttempts; attempt++ {
		entry, err := s.driver.CreateEntry(ctx, create)
		if err == nil {
			return entry, nil
		}
		if !errors.Is(err, ErrDisplayIDConflict) {
			return nil, err
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, errors.Wrapf(lastErr, "failed to assign display id after %d attempts", maxDisplayIDAttempts)
}

func (s *Store) ListEntries(ctx context.Context, find *FindEntry) ([]*Entry, error) {
	return s.driver.ListEntries(ctx, find)
}

// GetEntry returns the single entry matching find or ErrEntryNotFound.
func (s *Store) GetEntry(ctx context.Context, find *FindEntry) (*Entry, error) {
	limit := 1
	find.Limit = &limit
	list, err := s.driver.ListEntries(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrEntryNotFound
	}
	return list[0], nil
}

// UpdateEntry applies update and returns the fresh row.
func (s *Store) UpdateEntry(ctx context.Context, update *UpdateEntry) (*Entry, error) {
	if update.UpdatedTs == 0 {
		update.UpdatedTs = time.Now().Unix()
	}
	if err := s.driver.UpdateEntry(ctx, update); err != nil {
		return nil, err
	}
	return s.GetEntry(ctx, &FindEntry{ID: &update.ID, OwnerID: &update.OwnerID})
}

func (s *Store) DeleteEntry(ctx context.Context, delete *DeleteEntry) error {
	return s.driver.DeleteEntry(ctx, delete)
}

// NextDisplayID previews the display id the next entry of ownerID would get.
// The value is only advisory; CreateEntry assigns it atomically.
func (s *Store) NextDisplayID(ctx context.Context, ownerID string) (int32, error) {
	if ownerID == "" {
		return 0, errors.New("owner id is required")
	}
	return s.driver.NextDisplayID(ctx, ownerID)
}

// UpsertEntryEmbedding stores vector as the embedding of entry id, replacing any previous one.
func (s *Store) UpsertEntryEmbedding(ctx context.Context, id string, vector []float32) error {
	if err := s.checkDimensions(id, vector); err != nil {
		return err
	}
	return s.driver.UpdateEntryEmbedding(ctx, &UpdateEntryEmbedding{
		ID:        id,
		Embedding: vector,
		UpdatedTs: time.Now().Unix(),
	})
}

// FillEntryEmbedding stores vector for entry id if the entry is still
// unembedded and its normalized content is the text the vector was computed
// from. A concurrent edit or embedding reports ErrEntryChanged.
func (s *Store) FillEntryEmbedding(ctx context.Context, id, normalizedContent string, vector []float32) error {
	if err := s.checkDimensions(id, vector); err != nil {
		return err
	}
	return s.driver.UpdateEntryEmbedding(ctx, &UpdateEntryEmbedding{
		ID:                id,
		Embedding:         vector,
		UpdatedTs:         time.Now().Unix(),
		NormalizedContent: &normalizedContent,
	})
}

// ListCandidates returns every embedded entry of ownerID.
func (s *Store) ListCandidates(ctx context.Context, ownerID string) ([]*Entry, error) {
	if ownerID == "" {
		return nil, errors.New("owner id is required")
	}
	hasEmbedding := true
	return s.driver.ListEntries(ctx, &FindEntry{OwnerID: &ownerID, HasEmbedding: &hasEmbedding})
}

// ListEntriesWithoutEmbedding returns entries still missing an embedding.
// An empty ownerID lists them across all owners; limit <= 0 means no limit.
func (s *Store) ListEntriesWithoutEmbedding(ctx context.Context, ownerID string, limit int) ([]*Entry, error) {
	hasEmbedding := false
	find := &FindEntry{HasEmbedding: &hasEmbedding}
	if ownerID != "" {
		find.OwnerID = &ownerID
	}
	if limit > 0 {
		find.Limit = &limit
	}
	return s.driver.ListEntries(ctx, find)
}

func (s *Store) checkDimensions(id string, vector []float32) error {
	if len(vector) != s.dimensions {
		return &DimensionMismatchError{EntryID: id, Expected: s.dimensions, Actual: len(vector)}
	}
	return nil
}
