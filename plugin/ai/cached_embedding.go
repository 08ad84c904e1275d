package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"time"

	"github.com/hrygo/yapper/plugin/ai/cache"
)

// CachedEmbeddingService memoizes embeddings of identical texts.
// Search traffic repeats queries often; stored entries never hit it twice.
type CachedEmbeddingService struct {
	inner EmbeddingService
	cache *cache.LRU[[]float32]
}

// NewCachedEmbeddingService wraps inner with an LRU of the given size and ttl.
func NewCachedEmbeddingService(inner EmbeddingService, capacity int, ttl time.Duration) *CachedEmbeddingService {
	return &CachedEmbeddingService{
		inner: inner,
		cache: cache.New[[]float32](capacity, ttl),
	}
}

func (s *CachedEmbeddingService) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return s.inner.Model() + ":" + hex.EncodeToString(sum[:])
}

func (s *CachedEmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	key := s.key(text)
	if v, ok := s.cache.Get(key); ok {
		return slices.Clone(v), nil
	}

	v, err := s.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, slices.Clone(v))
	return v, nil
}

// EmbedBatch forwards only the texts missing from the cache.
func (s *CachedEmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, text := range texts {
		if v, ok := s.cache.Get(s.key(text)); ok {
			out[i] = slices.Clone(v)
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	if len(texts) > 0 && len(missing) == 0 {
		return out, nil
	}

	vectors, err := s.inner.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	for j, v := range vectors {
		out[missingIdx[j]] = v
		s.cache.Set(s.key(missing[j]), slices.Clone(v))
	}
	return out, nil
}

func (s *CachedEmbeddingService) Dimensions() int {
	return s.inner.Dimensions()
}

func (s *CachedEmbeddingService) Model() string {
	return s.inner.Model()
}

// Stats exposes cache counters.
func (s *CachedEmbeddingService) Stats() cache.Stats {
	return s.cache.Stats()
}

var _ EmbeddingService = (*CachedEmbeddingService)(nil)
