// Package retrieval ranks an owner's journal entries against a query and
// assembles them as context for the chat responder.
package retrieval

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/hrygo/yapper/plugin/ai"
	"github.com/hrygo/yapper/plugin/ai/vector"
	"github.com/hrygo/yapper/server/internal/observability"
	"github.com/hrygo/yapper/store"
)

const (
	DefaultSearchLimit = 5
	DefaultChatLimit   = 3
	// MaxLimit caps k for both search and chat.
	MaxLimit = 50
	// displayPrecision is the number of decimals exposed for similarity scores.
	displayPrecision = 2
)

// CandidateStore supplies the owner-scoped, embedded entries to rank.
type CandidateStore interface {
	ListCandidates(ctx context.Context, ownerID string) ([]*store.Entry, error)
}

// SearchResult is one ranked entry.
type SearchResult struct {
	EntryID   string
	DisplayID int32
	// Similarity is the full-precision cosine score in [-1, 1].
	Similarity        float64
	NormalizedContent string
}

// MarshalJSON exposes the similarity rounded for display.
func (r *SearchResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		EntryID           string  `json:"entry_id"`
		DisplayID         int32   `json:"display_id"`
		Similarity        float64 `json:"similarity"`
		NormalizedContent string  `json:"normalized_content"`
	}{
		EntryID:           r.EntryID,
		DisplayID:         r.DisplayID,
		Similarity:        vector.Round(r.Similarity, displayPrecision),
		NormalizedContent: r.NormalizedContent,
	})
}

// Retriever performs semantic search over one owner's entries.
type Retriever struct {
	store     CandidateStore
	embedding ai.EmbeddingService
}

// NewRetriever creates a Retriever.
func NewRetriever(st CandidateStore, embedding ai.EmbeddingService) *Retriever {
	return &Retriever{store: st, embedding: embedding}
}

// Search returns up to k entries of ownerID most similar to query, best first.
func (r *Retriever) Search(ctx context.Context, query, ownerID string, k int) ([]*SearchResult, error) {
	if err := validate(query, ownerID, k); err != nil {
		return nil, err
	}
	log := observability.Logger(ctx, "search", ownerID)

	queryVector, err := r.embedding.Embed(ctx, query)
	if err != nil {
		log.Warn("failed to embed query", slog.Int(observability.LogFieldTextLen, len(query)), slog.String("error", err.Error()))
		return nil, err
	}

	entries, err := r.store.ListCandidates(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return []*SearchResult{}, nil
	}

	// Entries without normalized content are not searchable yet, even when
	// an embedding is present.
	searchable := make([]*store.Entry, 0, len(entries))
	candidates := make([]vector.Candidate, 0, len(entries))
	for _, e := range entries {
		if e.OwnerID != ownerID {
			violation := &TenantIsolationViolation{RequestedOwner: ownerID, FoundOwner: e.OwnerID, EntryID: e.ID}
			log.Error("candidate from another owner", violation)
			return nil, violation
		}
		if e.NormalizedContent == nil {
			continue
		}
		searchable = append(searchable, e)
		candidates = append(candidates, vector.Candidate{ID: e.ID, Vector: e.Embedding})
	}
	if skipped := len(entries) - len(searchable); skipped > 0 {
		log.Warn("skipped embedded candidates without normalized content", slog.Int("skipped", skipped))
	}

	ranked := vector.Rank(queryVector, candidates, k)
	if ranked.Excluded > 0 {
		log.Warn("skipped candidates with mismatched dimensions",
			slog.Int("excluded", ranked.Excluded),
			slog.Int("dimensions", len(queryVector)),
		)
	}

	results := make([]*SearchResult, 0, len(ranked.Hits))
	for _, hit := range ranked.Hits {
		e := searchable[hit.Index]
		results = append(results, &SearchResult{
			EntryID:           e.ID,
			DisplayID:         e.DisplayID,
			Similarity:        hit.Score,
			NormalizedContent: *e.NormalizedContent,
		})
	}

	log.Debug("search completed",
		slog.Int("candidates", len(entries)),
		slog.Int("results", len(results)),
	)
	return results, nil
}

func validate(query, ownerID string, k int) error {
	if strings.TrimSpace(query) == "" {
		return &ValidationError{Field: "query", Message: "must not be empty"}
	}
	if strings.TrimSpace(ownerID) == "" {
		return &ValidationError{Field: "owner", Message: "must not be empty"}
	}
	if k < 1 || k > MaxLimit {
		return &ValidationError{Field: "limit", Message: "must be between 1 and 50"}
	}
	return nil
}
