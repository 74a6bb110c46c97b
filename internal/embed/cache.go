package embed

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// CachedEmbedder memoizes successful embeddings for the life of the process.
// Entries are never evicted. Concurrent misses for the same text share one
// call to the inner embedder. Returned slices are shared and must not be modified.
type CachedEmbedder struct {
	inner Embedder

	mu    sync.RWMutex
	cache map[string][]float32
	group singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
}

var _ Embedder = (*CachedEmbedder)(nil)

// NewCachedEmbedder wraps inner with an unbounded cache.
func NewCachedEmbedder(inner Embedder) *CachedEmbedder {
	return &CachedEmbedder{
		inner: inner,
		cache: make(map[string][]float32),
	}
}

// Embed returns the cached vector for text or computes it.
// Failures are not cached.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.mu.RLock()
	vec, ok := c.cache[text]
	c.mu.RUnlock()
	if ok {
		c.hits.Add(1)
		return vec, nil
	}

	// The shared call outlives any single caller; each caller stops
	// waiting when its own context ends.
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(text, func() (any, error) {
		c.mu.RLock()
		vec, ok := c.cache[text]
		c.mu.RUnlock()
		if ok {
			return vec, nil
		}

		c.misses.Add(1)
		vec, err := c.inner.Embed(shared, text)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.cache[text] = vec
		c.mu.Unlock()
		return vec, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]float32), nil
	}
}

// Len returns the number of cached embeddings.
func (c *CachedEmbedder) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

// Stats returns cache hits and misses.
func (c *CachedEmbedder) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// ModelName returns the inner model name.
func (c *CachedEmbedder) ModelName() string {
	return c.inner.ModelName()
}

// Available passes through to the inner embedder.
func (c *CachedEmbedder) Available(ctx context.Context) bool {
	return c.inner.Available(ctx)
}

// Close closes the inner embedder.
func (c *CachedEmbedder) Close() error {
	return c.inner.Close()
}
