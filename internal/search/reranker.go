package search

import (
	"context"
)

// RerankResult is the score a cross-encoder gave one document.
type RerankResult struct {
	// Index is the position in the input documents slice.
	Index int
	Score float64
}

// Reranker rescores documents against a query with a cross-encoder.
// Cross-encoders jointly encode query-document pairs, which is more
// accurate than embedding similarity but costlier, so only the fused
// top candidates are sent.
type Reranker interface {
	// Rerank scores documents and returns results sorted by score
	// descending. topK limits the results; 0 returns all.
	Rerank(ctx context.Context, query string, documents []string, topK int) ([]RerankResult, error)

	// Available checks if the reranker service is reachable.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// NoOpReranker is the pass-through reranker used when no cross-encoder is
// configured. It scores nothing, so every candidate keeps its fusion score.
type NoOpReranker struct{}

// Rerank returns no results.
func (n *NoOpReranker) Rerank(_ context.Context, _ string, _ []string, _ int) ([]RerankResult, error) {
	return []RerankResult{}, nil
}

// Available always returns true for NoOpReranker.
func (n *NoOpReranker) Available(_ context.Context) bool {
	return true
}

// Close is a no-op for NoOpReranker.
func (n *NoOpReranker) Close() error {
	return nil
}

var _ Reranker = (*NoOpReranker)(nil)

// IsNoOp reports whether r is the pass-through reranker.
func IsNoOp(r Reranker) bool {
	_, ok := r.(*NoOpReranker)
	return ok
}
