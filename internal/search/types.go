// Package search implements the hybrid retrieval pipeline: dense and lexical
// candidates are merged with Reciprocal Rank Fusion, optionally rescored by
// a cross-encoder, boosted with chunk metadata and gated on confidence.
package search

import (
	"context"

	"github.com/Aman-CERP/hybridrag/internal/chunk"
	"github.com/Aman-CERP/hybridrag/internal/store"
	"github.com/Aman-CERP/hybridrag/internal/telemetry"
)

// Retriever is the query surface shared by the CLI, MCP and HTTP fronts.
type Retriever interface {
	Retrieve(ctx context.Context, raw string, opts RetrieveOptions) (*RetrievalResult, error)
	RetrieveContextString(ctx context.Context, raw string, opts RetrieveOptions) (string, []SourceRef, bool, error)
	Stats() Stats
}

var _ Retriever = (*Engine)(nil)

// Signals are the per-candidate scores accumulated through the pipeline.
type Signals struct {
	// VectorSimilarity is nil when the chunk was not in the dense list.
	VectorSimilarity *float64 `json:"vector_similarity,omitempty"`
	// LexicalScore is nil when the chunk was not in the lexical list.
	LexicalScore *float64 `json:"lexical_score,omitempty"`

	FusionScore float64 `json:"fusion_score"`
	// RerankScore equals FusionScore when no cross-encoder scored the candidate.
	RerankScore float64 `json:"rerank_score"`

	KeywordMatchRatio float64 `json:"keyword_match_ratio"`
	IAMatchRatio      float64 `json:"ia_match_ratio"`
	SynonymMatchRatio float64 `json:"synonym_match_ratio"`
	CategoryBoost     float64 `json:"category_boost"`
	TitleBoost        float64 `json:"title_boost"`
}

// Candidate is a chunk moving through fusion, reranking and boosting.
type Candidate struct {
	Chunk *chunk.Chunk
	Signals
	FinalScore float64
}

// ScoredChunk is one ranked result.
type ScoredChunk struct {
	Chunk   *chunk.Chunk `json:"chunk"`
	Score   float64      `json:"score"`
	Signals Signals      `json:"signals"`
}

// RetrievalResult is the ranked outcome of a query.
type RetrievalResult struct {
	Results []ScoredChunk `json:"results"`

	// BestScore is the score of the first result, 0 when empty.
	BestScore float64 `json:"best_score"`

	// LowConfidence is true when Results is empty or BestScore is below
	// the confidence threshold.
	LowConfidence bool `json:"low_confidence"`

	// Query is the query text the results were produced for. After a
	// fallback it is the simplified query.
	Query string `json:"query"`

	// FallbackUsed reports whether the simplified-query retry ran.
	FallbackUsed bool `json:"fallback_used"`

	// Degraded names the stages that failed and were skipped.
	Degraded []string `json:"degraded,omitempty"`

	Diagnostics *Diagnostics `json:"diagnostics,omitempty"`
}

// Diagnostics exposes the intermediate rankings of the last pipeline run.
type Diagnostics struct {
	ExpandedTerms []string       `json:"expanded_terms"`
	Category      chunk.Category `json:"category,omitempty"`
	Dense         []store.Scored `json:"dense"`
	Lexical       []store.Scored `json:"lexical"`
	Fused         []store.Scored `json:"fused"`
	Reranked      bool           `json:"reranked"`
}

// RetrieveOptions are per-request settings.
type RetrieveOptions struct {
	// TopK bounds the number of results. Zero selects the configured default.
	TopK int

	// Source restricts results to one document group. Empty means all.
	Source string

	// Explain fills RetrievalResult.Diagnostics.
	Explain bool
}

// SourceRef is the citation form of a result.
type SourceRef struct {
	Title      string         `json:"title"`
	URL        string         `json:"url"`
	Source     string         `json:"source"`
	Score      float64        `json:"score"`
	HasCode    bool           `json:"has_code"`
	IACategory chunk.Category `json:"ia_category"`
	IAKeywords []string       `json:"ia_keywords"`
}

// Stats describes the loaded engine.
type Stats struct {
	Chunks          int            `json:"chunks"`
	Sources         map[string]int `json:"sources"`
	LexicalDocs     int            `json:"lexical_docs"`
	DenseBackend    string         `json:"dense_backend"`
	EmbeddingModel  string         `json:"embedding_model"`
	RerankerEnabled bool           `json:"reranker_enabled"`
	EmbeddingCache  int            `json:"embedding_cache"`

	Queries *telemetry.Snapshot `json:"queries,omitempty"`
}
