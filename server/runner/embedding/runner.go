// Package embedding fills in missing entry embeddings in the background.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hrygo/yapper/plugin/ai"
	"github.com/hrygo/yapper/plugin/markdown"
	"github.com/hrygo/yapper/store"
)

const (
	defaultBatchSize   = 8
	defaultConcurrency = 3
)

// EntryStore is the part of the store the runner needs.
type EntryStore interface {
	ListEntriesWithoutEmbedding(ctx context.Context, ownerID string, limit int) ([]*store.Entry, error)
	UpdateEntry(ctx context.Context, update *store.UpdateEntry) (*store.Entry, error)
	FillEntryEmbedding(ctx context.Context, id, normalizedContent string, vector []float32) error
}

// BackfillResult counts the entries handled by one backfill pass. Skipped
// entries were edited or embedded by someone else while the pass ran.
type BackfillResult struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// errNoNormalizedContent marks an entry that cannot be embedded because it has
// no normalized content and none could be produced.
var errNoNormalizedContent = errors.New("entry has no normalized content")

type Runner struct {
	store            EntryStore
	embeddingService ai.EmbeddingService
	// normalizer is optional; without it unnormalized entries stay unembedded.
	normalizer  ai.Normalizer
	markdown    *markdown.Service
	interval    time.Duration
	batchSize   int
	concurrency int
}

// NewRunner creates an embedding backfill runner. normalizer may be nil.
// interval <= 0 disables the periodic loop in Run.
func NewRunner(store EntryStore, embeddingService ai.EmbeddingService, normalizer ai.Normalizer, interval time.Duration) *Runner {
	return &Runner{
		store:            store,
		embeddingService: embeddingService,
		normalizer:       normalizer,
		markdown:         markdown.NewService(),
		interval:         interval,
		batchSize:        defaultBatchSize,
		concurrency:      defaultConcurrency,
	}
}

// Run backfills once on startup and then on every tick until ctx is done.
func (r *Runner) Run(ctx context.Context) {
	if r.interval <= 0 {
		slog.Info("embedding backfill loop disabled")
		return
	}

	r.runOnce(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.runOnce(ctx)
		case <-ctx.Done():
			slog.Info("embedding runner stopped")
			return
		}
	}
}

func (r *Runner) runOnce(ctx context.Context) {
	result, err := r.Backfill(ctx, "")
	if err != nil {
		slog.Error("embedding backfill failed", "error", err)
		return
	}
	if result.Attempted > 0 {
		slog.Info("embedding backfill finished",
			"attempted", result.Attempted,
			"succeeded", result.Succeeded,
			"failed", result.Failed,
			"skipped", result.Skipped,
		)
	}
}

// Backfill embeds every entry of ownerID that has no embedding yet. An empty
// ownerID covers all owners. Entries that already have an embedding are never
// touched, so the call can be repeated safely.
func (r *Runner) Backfill(ctx context.Context, ownerID string) (*BackfillResult, error) {
	entries, err := r.store.ListEntriesWithoutEmbedding(ctx, ownerID, 0)
	if err != nil {
		return nil, err
	}

	result := &BackfillResult{Attempted: len(entries)}
	if len(entries) == 0 {
		return result, nil
	}

	slog.Info("processing entries for embedding", "count", len(entries))

	var succeeded, failed, skipped atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i := 0; i < len(entries); i += r.batchSize {
		end := min(i+r.batchSize, len(entries))
		batch := entries[i:end]

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			stored, lost := r.processBatch(gctx, batch)
			succeeded.Add(int64(stored))
			skipped.Add(int64(lost))
			failed.Add(int64(len(batch) - stored - lost))
			slog.Debug("batch processed", "count", len(batch), "progress", fmt.Sprintf("%d/%d", end, len(entries)))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result.Succeeded = int(succeeded.Load())
	result.Failed = int(failed.Load())
	result.Skipped = int(skipped.Load())
	return result, nil
}

// processBatch embeds one batch. It returns how many entries were stored and
// how many were skipped because they changed underneath the pass.
func (r *Runner) processBatch(ctx context.Context, entries []*store.Entry) (stored, skipped int) {
	pending := make([]*store.Entry, 0, len(entries))
	texts := make([]string, 0, len(entries))
	for _, e := range entries {
		text, err := r.embeddingText(ctx, e)
		switch {
		case errors.Is(err, store.ErrEntryChanged), errors.Is(err, store.ErrEntryNotFound):
			slog.Info("entry changed during backfill", "entry_id", e.ID)
			skipped++
			continue
		case err != nil:
			slog.Warn("entry cannot be embedded", "entry_id", e.ID, "error", err)
			continue
		case text == "":
			slog.Warn("entry has no text to embed", "entry_id", e.ID)
			continue
		}
		pending = append(pending, e)
		texts = append(texts, text)
	}
	if len(pending) == 0 {
		return 0, skipped
	}

	vectors, err := r.embeddingService.EmbedBatch(ctx, texts)
	if err != nil {
		slog.Error("failed to embed batch", "count", len(texts), "error", err)
		return 0, skipped
	}

	for i, e := range pending {
		err := r.store.FillEntryEmbedding(ctx, e.ID, *e.NormalizedContent, vectors[i])
		switch {
		case errors.Is(err, store.ErrEntryChanged):
			slog.Info("entry changed before its embedding was stored", "entry_id", e.ID)
			skipped++
		case err != nil:
			slog.Error("failed to store embedding", "entry_id", e.ID, "error", err)
		default:
			stored++
		}
	}
	return stored, skipped
}

// embeddingText returns the plain text that represents e in the vector space,
// normalizing the entry first when it was never normalized. Raw content is
// never embedded.
func (r *Runner) embeddingText(ctx context.Context, e *store.Entry) (string, error) {
	if e.NormalizedContent == nil {
		if r.normalizer == nil {
			return "", errNoNormalizedContent
		}
		normalized, err := r.normalizer.Normalize(ctx, e.Content)
		if err != nil {
			return "", errors.Join(errNoNormalizedContent, err)
		}
		expected := e.Content
		if _, err := r.store.UpdateEntry(ctx, &store.UpdateEntry{
			ID:                e.ID,
			OwnerID:           e.OwnerID,
			NormalizedContent: &normalized,
			ExpectedContent:   &expected,
		}); err != nil {
			return "", err
		}
		e.NormalizedContent = &normalized
	}
	return TextForEmbedding(r.markdown, e), nil
}

// TextForEmbedding converts the normalized content to plain text. Entries that
// were never normalized have no embedding text.
func TextForEmbedding(md *markdown.Service, e *store.Entry) string {
	if e.NormalizedContent == nil {
		return ""
	}
	source := *e.NormalizedContent
	if text := md.PlainText(source); text != "" {
		return text
	}
	return strings.TrimSpace(source)
}
