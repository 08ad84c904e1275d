package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func (f *fakeClock) now() time.Time { return f.t }

func newTestLRU(capacity int, ttl time.Duration) (*LRU[[]float32], *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New[[]float32](capacity, ttl)
	c.now = clock.now
	return c, clock
}

func TestLRU_BasicOperations(t *testing.T) {
	c, _ := newTestLRU(10, time.Minute)

	t.Run("SetAndGet", func(t *testing.T) {
		c.Set("a", []float32{1, 2})
		v, ok := c.Get("a")
		require.True(t, ok)
		assert.Equal(t, []float32{1, 2}, v)
	})

	t.Run("Missing", func(t *testing.T) {
		v, ok := c.Get("missing")
		assert.False(t, ok)
		assert.Nil(t, v)
	})

	t.Run("Overwrite", func(t *testing.T) {
		c.Set("a", []float32{3})
		v, ok := c.Get("a")
		require.True(t, ok)
		assert.Equal(t, []float32{3}, v)
		assert.Equal(t, 1, c.Len())
	})

	t.Run("Delete", func(t *testing.T) {
		c.Delete("a")
		_, ok := c.Get("a")
		assert.False(t, ok)
	})
}

func TestLRU_Expiration(t *testing.T) {
	c, clock := newTestLRU(10, time.Minute)
	c.Set("k", []float32{1})

	clock.t = clock.t.Add(30 * time.Second)
	_, ok := c.Get("k")
	assert.True(t, ok)

	clock.t = clock.t.Add(31 * time.Second)
	_, ok = c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestLRU_Eviction(t *testing.T) {
	c, _ := newTestLRU(3, time.Minute)
	c.Set("k1", []float32{1})
	c.Set("k2", []float32{2})
	c.Set("k3", []float32{3})

	// k1 becomes most recently used, so k2 is evicted next.
	_, ok := c.Get("k1")
	require.True(t, ok)
	c.Set("k4", []float32{4})

	_, ok = c.Get("k2")
	assert.False(t, ok)
	for _, k := range []string{"k1", "k3", "k4"} {
		_, ok := c.Get(k)
		assert.True(t, ok, k)
	}
	assert.Equal(t, 3, c.Len())
}

func TestLRU_Purge(t *testing.T) {
	c, clock := newTestLRU(10, time.Minute)
	c.Set("old1", []float32{1})
	c.Set("old2", []float32{2})
	clock.t = clock.t.Add(50 * time.Second)
	c.Set("fresh", []float32{3})
	clock.t = clock.t.Add(20 * time.Second)

	assert.Equal(t, 2, c.Purge())
	assert.Equal(t, 1, c.Len())
}

func TestLRU_Stats(t *testing.T) {
	c, _ := newTestLRU(10, time.Minute)
	c.Set("a", []float32{1})
	c.Get("a")
	c.Get("a")
	c.Get("b")

	s := c.Stats()
	assert.Equal(t, Stats{Size: 1, Hits: 2, Misses: 1}, s)
}

func TestLRU_Defaults(t *testing.T) {
	c := New[string](0, 0)
	assert.Equal(t, defaultCapacity, c.capacity)
	assert.Equal(t, defaultTTL, c.ttl)
}

func TestLRU_Concurrent(t *testing.T) {
	c := New[int](50, time.Minute)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", (g*200+i)%100)
				c.Set(key, i)
				c.Get(key)
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 50)
}
