// Package store loads the read-only artifacts produced by the indexing job:
// the chunk store, the lexical (BM25) index and the dense vector index.
// Nothing in this package writes an index at query time.
package store

import (
	"context"
)

// Dense backends.
const (
	BackendHNSW   = "hnsw"
	BackendQdrant = "qdrant"
)

// Scored is a chunk id with the score one retriever gave it.
type Scored struct {
	ChunkID int     `json:"chunk_id"`
	Score   float64 `json:"score"`
}

// DenseIndex finds the chunks nearest to a query embedding.
type DenseIndex interface {
	// Search returns up to topN chunks ordered by similarity descending,
	// where similarity is 1 - cosine distance. A non-empty source restricts
	// results to chunks of that source.
	Search(ctx context.Context, vector []float32, topN int, source string) ([]Scored, error)

	// Backend names the implementation ("hnsw", "qdrant").
	Backend() string

	// Close releases resources.
	Close() error
}

// LexicalIndex scores chunks against weighted query terms with BM25.
type LexicalIndex interface {
	// Search returns up to topN chunks with a strictly positive score,
	// ordered by score descending. Each term carries its weight.
	Search(ctx context.Context, terms []WeightedTerm, topN int, source string) ([]Scored, error)

	// DocCount returns the number of indexed chunks.
	DocCount() int

	// Close releases resources.
	Close() error
}

// WeightedTerm is a lexical query term and its boost.
type WeightedTerm struct {
	Term   string
	Weight float64
}
