// Package entry implements the journal entry lifecycle: normalize on write,
// index for search, edit and delete, always scoped to one owner.
package entry

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/hrygo/yapper/plugin/ai"
	"github.com/hrygo/yapper/plugin/markdown"
	apperrors "github.com/hrygo/yapper/server/internal/errors"
	embeddingrunner "github.com/hrygo/yapper/server/runner/embedding"
	"github.com/hrygo/yapper/store"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// Service creates and maintains journal entries.
type Service struct {
	store      *store.Store
	embedding  ai.EmbeddingService
	normalizer ai.Normalizer
	markdown   *markdown.Service
	// embedOnWrite indexes entries synchronously; otherwise the backfill runner does it.
	embedOnWrite bool
}

// NewService creates a Service. embedding and normalizer may be nil when AI is disabled.
func NewService(st *store.Store, embedding ai.EmbeddingService, normalizer ai.Normalizer, embedOnWrite bool) *Service {
	return &Service{
		store:        st,
		embedding:    embedding,
		normalizer:   normalizer,
		markdown:     markdown.NewService(),
		embedOnWrite: embedOnWrite,
	}
}

// Create stores a new entry for ownerID. Normalization and indexing failures
// are logged; the entry is returned anyway and picked up by the next backfill.
func (s *Service) Create(ctx context.Context, ownerID, content string) (*store.Entry, error) {
	if err := validate(ownerID, content); err != nil {
		return nil, err
	}

	entry, err := s.store.CreateEntry(ctx, &store.Entry{
		OwnerID:           ownerID,
		Content:           content,
		NormalizedContent: s.normalize(ctx, content),
	})
	if err != nil {
		return nil, err
	}

	s.index(ctx, entry)
	return entry, nil
}

// Update replaces the content of an entry. With reprocess the derived data is
// rebuilt; the old embedding is dropped before the new one is computed.
func (s *Service) Update(ctx context.Context, ownerID, id, content string, reprocess bool) (*store.Entry, error) {
	if err := validate(ownerID, content); err != nil {
		return nil, err
	}

	update := &store.UpdateEntry{
		ID:      id,
		OwnerID: ownerID,
		Content: &content,
	}
	if reprocess {
		update.ClearEmbedding = true
		if normalized := s.normalize(ctx, content); normalized != nil {
			update.NormalizedContent = normalized
		} else {
			update.ClearNormalizedContent = true
		}
	}

	entry, err := s.store.UpdateEntry(ctx, update)
	if err != nil {
		return nil, err
	}
	if reprocess {
		s.index(ctx, entry)
	}
	return entry, nil
}

// Get returns one entry of ownerID. Entries of other owners are reported as not found.
func (s *Service) Get(ctx context.Context, ownerID, id string) (*store.Entry, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, apperrors.InvalidArgument("owner is required")
	}
	return s.store.GetEntry(ctx, &store.FindEntry{ID: &id, OwnerID: &ownerID})
}

// List returns the entries of ownerID, newest first.
func (s *Service) List(ctx context.Context, ownerID string, limit, offset int) ([]*store.Entry, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, apperrors.InvalidArgument("owner is required")
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		return nil, apperrors.InvalidArgument("limit must not exceed 200")
	}
	if offset < 0 {
		return nil, apperrors.InvalidArgument("offset must not be negative")
	}
	return s.store.ListEntries(ctx, &store.FindEntry{OwnerID: &ownerID, Limit: &limit, Offset: &offset})
}

// Delete removes an entry of ownerID.
func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	if strings.TrimSpace(ownerID) == "" {
		return apperrors.InvalidArgument("owner is required")
	}
	return s.store.DeleteEntry(ctx, &store.DeleteEntry{ID: id, OwnerID: ownerID})
}

func validate(ownerID, content string) error {
	if strings.TrimSpace(ownerID) == "" {
		return apperrors.InvalidArgument("owner is required")
	}
	if strings.TrimSpace(content) == "" {
		return apperrors.InvalidArgument("content must not be empty")
	}
	return nil
}

// normalize returns nil when there is no normalizer or it failed.
func (s *Service) normalize(ctx context.Context, content string) *string {
	if s.normalizer == nil {
		return nil
	}
	normalized, err := s.normalizer.Normalize(ctx, content)
	if err != nil {
		slog.Warn("failed to normalize entry", slog.Int("text_length", len(content)), slog.String("error", err.Error()))
		return nil
	}
	return &normalized
}

// index embeds entry and stores the vector. Entries whose normalization
// failed are left to the backfill, which retries it.
func (s *Service) index(ctx context.Context, entry *store.Entry) {
	if !s.embedOnWrite || s.embedding == nil {
		return
	}
	if entry.NormalizedContent == nil {
		return
	}

	text := embeddingrunner.TextForEmbedding(s.markdown, entry)
	if text == "" {
		return
	}
	vector, err := s.embedding.Embed(ctx, text)
	if err != nil {
		slog.Warn("failed to embed entry", "entry_id", entry.ID, "error", err)
		return
	}
	if err := s.store.FillEntryEmbedding(ctx, entry.ID, *entry.NormalizedContent, vector); err != nil {
		if errors.Is(err, store.ErrEntryChanged) {
			slog.Info("entry changed before its embedding was stored", "entry_id", entry.ID)
			return
		}
		slog.Warn("failed to store embedding", "entry_id", entry.ID, "error", err)
		return
	}
	entry.Embedding = vector
}
