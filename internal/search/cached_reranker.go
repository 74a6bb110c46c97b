package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Aman-CERP/hybridrag/internal/errors"
)

// DefaultRerankCacheSize is the default number of (query, document) scores kept.
const DefaultRerankCacheSize = 1024

// CachedReranker memoizes cross-encoder scores per (query, document) pair.
// Only documents missing from the cache are sent to the inner reranker.
type CachedReranker struct {
	inner Reranker
	cache *lru.Cache[string, float64]
}

// NewCachedReranker wraps inner with an LRU of cacheSize entries.
func NewCachedReranker(inner Reranker, cacheSize int) *CachedReranker {
	if cacheSize <= 0 {
		cacheSize = DefaultRerankCacheSize
	}
	cache, _ := lru.New[string, float64](cacheSize)
	return &CachedReranker{inner: inner, cache: cache}
}

func (c *CachedReranker) cacheKey(query, document string) string {
	hash := sha256.Sum256([]byte(query + "\x00" + document))
	return hex.EncodeToString(hash[:])
}

// Rerank implements Reranker.
func (c *CachedReranker) Rerank(ctx context.Context, query string, documents []string, topK int) ([]RerankResult, error) {
	results := make([]RerankResult, 0, len(documents))
	var missing []int
	for i, doc := range documents {
		if score, ok := c.cache.Get(c.cacheKey(query, doc)); ok {
			results = append(results, RerankResult{Index: i, Score: score})
			continue
		}
		missing = append(missing, i)
	}

	if len(missing) > 0 {
		docs := make([]string, len(missing))
		for j, i := range missing {
			docs[j] = documents[i]
		}
		scored, err := c.inner.Rerank(ctx, query, docs, 0)
		if err != nil {
			return nil, err
		}
		for _, s := range scored {
			if s.Index < 0 || s.Index >= len(missing) {
				return nil, errors.RerankerUnavailable(
					fmt.Sprintf("reranker returned out of range index %d", s.Index), nil)
			}
			i := missing[s.Index]
			c.cache.Add(c.cacheKey(query, documents[i]), s.Score)
			results = append(results, RerankResult{Index: i, Score: s.Score})
		}
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if topK > 0 && topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

// Available delegates to the inner reranker.
func (c *CachedReranker) Available(ctx context.Context) bool {
	return c.inner.Available(ctx)
}

// Close purges the cache and closes the inner reranker.
func (c *CachedReranker) Close() error {
	c.cache.Purge()
	return c.inner.Close()
}

// Len returns the number of cached scores.
func (c *CachedReranker) Len() int {
	return c.cache.Len()
}

var _ Reranker = (*CachedReranker)(nil)
