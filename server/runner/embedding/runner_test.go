package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/yapper/plugin/ai"
	"github.com/hrygo/yapper/plugin/markdown"
	"github.com/hrygo/yapper/store"
)

// fakeStore is an in-memory EntryStore.
type fakeStore struct {
	mu        sync.Mutex
	entries   []*store.Entry
	upsertErr map[string]error
	listErr   error
}

func (s *fakeStore) ListEntriesWithoutEmbedding(_ context.Context, ownerID string, _ int) ([]*store.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []*store.Entry
	for _, e := range s.entries {
		if e.HasEmbedding() || (ownerID != "" && e.OwnerID != ownerID) {
			continue
		}
		clone := *e
		out = append(out, &clone)
	}
	return out, nil
}

func (s *fakeStore) UpdateEntry(_ context.Context, update *store.UpdateEntry) (*store.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.find(update.ID)
	if e == nil || e.OwnerID != update.OwnerID {
		return nil, store.ErrEntryNotFound
	}
	if update.ExpectedContent != nil && *update.ExpectedContent != e.Content {
		return nil, store.ErrEntryChanged
	}
	if update.NormalizedContent != nil {
		normalized := *update.NormalizedContent
		e.NormalizedContent = &normalized
	}
	clone := *e
	return &clone, nil
}

func (s *fakeStore) FillEntryEmbedding(_ context.Context, id, normalizedContent string, vector []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.upsertErr[id]; err != nil {
		return err
	}
	e := s.find(id)
	if e == nil || e.HasEmbedding() || e.NormalizedContent == nil || *e.NormalizedContent != normalizedContent {
		return store.ErrEntryChanged
	}
	e.Embedding = vector
	return nil
}

// edit replaces the content of an entry the way a user edit does.
func (s *fakeStore) edit(id, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.find(id)
	e.Content = content
	e.NormalizedContent = nil
	e.Embedding = nil
}

func (s *fakeStore) find(id string) *store.Entry {
	for _, e := range s.entries {
		if e.ID == id {
			return e
		}
	}
	return nil
}

func (s *fakeStore) get(id string) *store.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := *s.find(id)
	return &e
}

// normalizerFunc adapts a function to ai.Normalizer.
type normalizerFunc func(ctx context.Context, content string) (string, error)

func (f normalizerFunc) Normalize(ctx context.Context, content string) (string, error) {
	return f(ctx, content)
}

// editingEmbedder edits an entry in the store while its batch is being
// embedded, so the vector it returns is already stale.
type editingEmbedder struct {
	*ai.MockEmbeddingService
	store   *fakeStore
	entryID string
}

func (e *editingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.store.edit(e.entryID, "rewritten while embedding")
	return e.MockEmbeddingService.EmbedBatch(ctx, texts)
}

func ptr(s string) *string {
	return &s
}

func createEntries(owner string, count int) []*store.Entry {
	entries := make([]*store.Entry, count)
	for i := range entries {
		entries[i] = &store.Entry{
			ID:                fmt.Sprintf("%s-%d", owner, i+1),
			OwnerID:           owner,
			DisplayID:         int32(i + 1),
			Content:           fmt.Sprintf("entry %d", i+1),
			NormalizedContent: ptr(fmt.Sprintf("normalized %d", i+1)),
		}
	}
	return entries
}

func TestNewRunner(t *testing.T) {
	st := &fakeStore{}
	svc := ai.NewMockEmbeddingService(3)

	runner := NewRunner(st, svc, nil, time.Minute)

	assert.Equal(t, st, runner.store)
	assert.Equal(t, svc, runner.embeddingService)
	assert.Nil(t, runner.normalizer)
	assert.Equal(t, time.Minute, runner.interval)
	assert.Equal(t, 8, runner.batchSize)
	assert.Equal(t, 3, runner.concurrency)
}

func TestBackfill_EmbedsMissingOnly(t *testing.T) {
	ctx := context.Background()
	entries := createEntries("alice", 20)
	entries[0].Embedding = []float32{1, 0, 0}
	st := &fakeStore{entries: entries}
	svc := ai.NewMockEmbeddingService(3)

	result, err := NewRunner(st, svc, nil, 0).Backfill(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, &BackfillResult{Attempted: 19, Succeeded: 19, Failed: 0}, result)

	assert.Equal(t, []float32{1, 0, 0}, st.get("alice-1").Embedding)
	for i := 2; i <= 20; i++ {
		assert.Len(t, st.get(fmt.Sprintf("alice-%d", i)).Embedding, 3)
	}
	assert.Len(t, svc.Calls(), 19)

	// A second pass finds nothing left to do.
	result, err = NewRunner(st, svc, nil, 0).Backfill(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, &BackfillResult{}, result)
}

func TestBackfill_OwnerScope(t *testing.T) {
	ctx := context.Background()
	st := &fakeStore{entries: append(createEntries("alice", 2), createEntries("bob", 3)...)}
	runner := NewRunner(st, ai.NewMockEmbeddingService(3), nil, 0)

	result, err := runner.Backfill(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 3, result.Succeeded)
	assert.False(t, st.get("alice-1").HasEmbedding())

	result, err = runner.Backfill(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, &BackfillResult{Attempted: 2, Succeeded: 2}, result)
	assert.True(t, st.get("alice-1").HasEmbedding())
}

func TestBackfill_EmbedsPlainText(t *testing.T) {
	ctx := context.Background()
	st := &fakeStore{entries: []*store.Entry{{
		ID:                "e1",
		OwnerID:           "alice",
		Content:           "raw",
		NormalizedContent: ptr("# Trip\n\nWe **hiked** all day."),
	}}}
	svc := ai.NewMockEmbeddingService(3)

	_, err := NewRunner(st, svc, nil, 0).Backfill(ctx, "alice")
	require.NoError(t, err)

	want := markdown.NewService().PlainText("# Trip\n\nWe **hiked** all day.")
	assert.Equal(t, []string{want}, svc.Calls())
	assert.NotContains(t, want, "**")
}

func TestBackfill_NormalizesFirst(t *testing.T) {
	ctx := context.Background()
	st := &fakeStore{entries: []*store.Entry{
		{ID: "e1", OwnerID: "alice", Content: "went hiking"},
		{ID: "e2", OwnerID: "alice", Content: "bad day"},
	}}
	normalizer := normalizerFunc(func(_ context.Context, content string) (string, error) {
		if content == "bad day" {
			return "", &ai.CompletionError{Reason: ai.ReasonTransient, Cause: errors.New("502")}
		}
		return "The user went hiking.", nil
	})
	svc := ai.NewMockEmbeddingService(3)

	result, err := NewRunner(st, svc, normalizer, 0).Backfill(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, &BackfillResult{Attempted: 2, Succeeded: 1, Failed: 1}, result)

	require.NotNil(t, st.get("e1").NormalizedContent)
	assert.Equal(t, "The user went hiking.", *st.get("e1").NormalizedContent)
	assert.True(t, st.get("e1").HasEmbedding())

	// A failed normalization leaves the entry unembedded; raw content is never sent.
	assert.Nil(t, st.get("e2").NormalizedContent)
	assert.False(t, st.get("e2").HasEmbedding())
	assert.Equal(t, []string{"The user went hiking."}, svc.Calls())
}

func TestBackfill_WithoutNormalizer(t *testing.T) {
	ctx := context.Background()
	st := &fakeStore{entries: []*store.Entry{
		{ID: "e1", OwnerID: "alice", Content: "went hiking"},
		{ID: "e2", OwnerID: "alice", Content: "raw", NormalizedContent: ptr("The user wrote.")},
	}}
	svc := ai.NewMockEmbeddingService(3)

	result, err := NewRunner(st, svc, nil, 0).Backfill(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, &BackfillResult{Attempted: 2, Succeeded: 1, Failed: 1}, result)
	assert.False(t, st.get("e1").HasEmbedding())
	assert.True(t, st.get("e2").HasEmbedding())
	assert.Equal(t, []string{"The user wrote."}, svc.Calls())
}

func TestBackfill_SkipsEntriesEditedDuringPass(t *testing.T) {
	ctx := context.Background()

	t.Run("edited while embedding", func(t *testing.T) {
		st := &fakeStore{entries: createEntries("alice", 3)}
		svc := &editingEmbedder{MockEmbeddingService: ai.NewMockEmbeddingService(3), store: st, entryID: "alice-2"}

		result, err := NewRunner(st, svc, nil, 0).Backfill(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, &BackfillResult{Attempted: 3, Succeeded: 2, Skipped: 1}, result)

		edited := st.get("alice-2")
		assert.Equal(t, "rewritten while embedding", edited.Content)
		assert.False(t, edited.HasEmbedding())
		assert.True(t, st.get("alice-1").HasEmbedding())
		assert.True(t, st.get("alice-3").HasEmbedding())
	})

	t.Run("edited while normalizing", func(t *testing.T) {
		st := &fakeStore{entries: []*store.Entry{{ID: "e1", OwnerID: "alice", Content: "went hiking"}}}
		normalizer := normalizerFunc(func(_ context.Context, content string) (string, error) {
			st.edit("e1", "went swimming")
			return "The user went hiking.", nil
		})
		svc := ai.NewMockEmbeddingService(3)

		result, err := NewRunner(st, svc, normalizer, 0).Backfill(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, &BackfillResult{Attempted: 1, Skipped: 1}, result)
		assert.Nil(t, st.get("e1").NormalizedContent)
		assert.Empty(t, svc.Calls())
	})
}

func TestBackfill_CountsFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("embedding failure fails the batch", func(t *testing.T) {
		st := &fakeStore{entries: createEntries("alice", 5)}
		svc := ai.NewMockEmbeddingService(3)
		svc.Err = &ai.EmbeddingError{Reason: ai.ReasonRateLimit, Cause: errors.New("429")}

		result, err := NewRunner(st, svc, nil, 0).Backfill(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, &BackfillResult{Attempted: 5, Succeeded: 0, Failed: 5}, result)
	})

	t.Run("upsert failure fails one entry", func(t *testing.T) {
		st := &fakeStore{
			entries:   createEntries("alice", 5),
			upsertErr: map[string]error{"alice-3": errors.New("disk full")},
		}

		result, err := NewRunner(st, ai.NewMockEmbeddingService(3), nil, 0).Backfill(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, &BackfillResult{Attempted: 5, Succeeded: 4, Failed: 1}, result)
		assert.False(t, st.get("alice-3").HasEmbedding())
	})

	t.Run("entry without text", func(t *testing.T) {
		st := &fakeStore{entries: []*store.Entry{{ID: "e1", OwnerID: "alice", Content: "  ", NormalizedContent: ptr("  ")}}}
		svc := ai.NewMockEmbeddingService(3)

		result, err := NewRunner(st, svc, nil, 0).Backfill(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, &BackfillResult{Attempted: 1, Failed: 1}, result)
		assert.Empty(t, svc.Calls())
	})
}

func TestBackfill_ListError(t *testing.T) {
	listErr := errors.New("connection refused")
	st := &fakeStore{listErr: listErr}

	result, err := NewRunner(st, ai.NewMockEmbeddingService(3), nil, 0).Backfill(context.Background(), "")
	assert.Nil(t, result)
	assert.ErrorIs(t, err, listErr)
}

func TestBackfill_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	st := &fakeStore{entries: createEntries("alice", 10)}

	result, err := NewRunner(st, ai.NewMockEmbeddingService(3), nil, 0).Backfill(ctx, "alice")
	assert.Nil(t, result)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, st.get("alice-1").HasEmbedding())
}

func TestRun(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		st := &fakeStore{entries: createEntries("alice", 1)}
		NewRunner(st, ai.NewMockEmbeddingService(3), nil, 0).Run(context.Background())
		assert.False(t, st.get("alice-1").HasEmbedding())
	})

	t.Run("runs until canceled", func(t *testing.T) {
		st := &fakeStore{entries: createEntries("alice", 2)}
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			NewRunner(st, ai.NewMockEmbeddingService(3), nil, time.Hour).Run(ctx)
			close(done)
		}()

		require.Eventually(t, func() bool {
			return st.get("alice-2").HasEmbedding()
		}, time.Second, 10*time.Millisecond)
		cancel()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("runner did not stop")
		}
	})
}

func TestTextForEmbedding(t *testing.T) {
	md := markdown.NewService()

	assert.Equal(t, "", TextForEmbedding(md, &store.Entry{Content: "raw text"}))
	assert.Equal(t, "refined", TextForEmbedding(md, &store.Entry{Content: "raw", NormalizedContent: ptr("refined")}))
	assert.Equal(t, "", TextForEmbedding(md, &store.Entry{Content: "raw", NormalizedContent: ptr("   ")}))
}
