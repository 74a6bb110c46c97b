package mcp

import (
	"github.com/Aman-CERP/hybridrag/internal/search"
)

// Result limits accepted from tool callers.
const (
	DefaultTopK = 10
	MaxTopK     = 50
)

// RetrieveInput defines the input schema for the retrieve tool.
type RetrieveInput struct {
	Query   string `json:"query" jsonschema:"question or keywords about HAProxy configuration or operation"`
	TopK    int    `json:"top_k,omitempty" jsonschema:"maximum number of results, default 10"`
	Source  string `json:"source,omitempty" jsonschema:"restrict results to one documentation source, e.g. configuration"`
	Explain bool   `json:"explain,omitempty" jsonschema:"include the dense, lexical and fused rankings"`
}

// RetrieveOutput defines the output schema for the retrieve tool.
type RetrieveOutput struct {
	Results       []ResultOutput      `json:"results" jsonschema:"ranked documentation chunks"`
	BestScore     float64             `json:"best_score" jsonschema:"score of the first result, 0 when empty"`
	LowConfidence bool                `json:"low_confidence" jsonschema:"true when no result is relevant enough to answer from"`
	Query         string              `json:"query" jsonschema:"query the results were produced for"`
	FallbackUsed  bool                `json:"fallback_used,omitempty" jsonschema:"true when the query was simplified and retried"`
	Degraded      []string            `json:"degraded,omitempty" jsonschema:"pipeline stages that failed and were skipped"`
	Diagnostics   *search.Diagnostics `json:"diagnostics,omitempty" jsonschema:"intermediate rankings, present when explain is set"`
}

// ResultOutput is one ranked chunk with the signals explaining its rank.
type ResultOutput struct {
	ID         int      `json:"id" jsonschema:"chunk id"`
	Title      string   `json:"title" jsonschema:"section title"`
	URL        string   `json:"url" jsonschema:"documentation URL with anchor"`
	Source     string   `json:"source" jsonschema:"documentation source"`
	Content    string   `json:"content" jsonschema:"chunk text"`
	Score      float64  `json:"score" jsonschema:"final relevance score"`
	Category   string   `json:"category,omitempty" jsonschema:"topic category of the chunk"`
	Keywords   []string `json:"keywords,omitempty" jsonschema:"enrichment keywords of the chunk"`
	HasCode    bool     `json:"has_code,omitempty" jsonschema:"true if the chunk contains configuration examples"`
	Fusion     float64  `json:"fusion_score" jsonschema:"reciprocal rank fusion score"`
	Rerank     float64  `json:"rerank_score" jsonschema:"cross-encoder score, equal to fusion_score when not reranked"`
	InDense    bool     `json:"in_dense,omitempty" jsonschema:"true if semantic search returned the chunk"`
	InLexical  bool     `json:"in_lexical,omitempty" jsonschema:"true if keyword search returned the chunk"`
	BoostTotal float64  `json:"boost,omitempty" jsonschema:"metadata multiplier minus one"`
}

// RetrieveContextInput defines the input schema for the retrieve_context tool.
type RetrieveContextInput struct {
	Query  string `json:"query" jsonschema:"question or keywords about HAProxy configuration or operation"`
	TopK   int    `json:"top_k,omitempty" jsonschema:"maximum number of chunks, default 10"`
	Source string `json:"source,omitempty" jsonschema:"restrict chunks to one documentation source"`
}

// RetrieveContextOutput defines the output schema for the retrieve_context tool.
type RetrieveContextOutput struct {
	Context       string             `json:"context" jsonschema:"chunks under [Source i: title - url] headers, ready to quote"`
	Sources       []search.SourceRef `json:"sources" jsonschema:"citations in the order of the context headers"`
	LowConfidence bool               `json:"low_confidence" jsonschema:"true when the context should not be trusted to answer"`
}

// StatsInput defines the input schema for the index_stats tool (no parameters).
type StatsInput struct{}

// StatsOutput defines the output schema for the index_stats tool.
type StatsOutput struct {
	Chunks          int            `json:"chunks" jsonschema:"number of indexed chunks"`
	Sources         map[string]int `json:"sources" jsonschema:"chunk count per documentation source"`
	LexicalDocs     int            `json:"lexical_docs" jsonschema:"documents in the keyword index"`
	DenseBackend    string         `json:"dense_backend" jsonschema:"vector index backend"`
	EmbeddingModel  string         `json:"embedding_model" jsonschema:"embedding model name"`
	RerankerEnabled bool           `json:"reranker_enabled" jsonschema:"true if a cross-encoder rescores candidates"`

	TotalQueries         int64 `json:"total_queries" jsonschema:"queries served since startup"`
	LowConfidenceQueries int64 `json:"low_confidence_queries" jsonschema:"queries answered with low confidence"`
	FallbackQueries      int64 `json:"fallback_queries" jsonschema:"queries retried with the simplified query"`
}

// clampTopK ensures topK is within bounds; 0 selects the default.
func clampTopK(topK int) int {
	if topK <= 0 {
		return DefaultTopK
	}
	if topK > MaxTopK {
		return MaxTopK
	}
	return topK
}

// ToResultOutput converts a ranked chunk to the tool output format.
func ToResultOutput(r search.ScoredChunk) ResultOutput {
	if r.Chunk == nil {
		return ResultOutput{}
	}
	out := ResultOutput{
		ID:        r.Chunk.ID,
		Title:     r.Chunk.Title,
		URL:       r.Chunk.URL,
		Source:    r.Chunk.Source,
		Content:   r.Chunk.Content,
		Score:     r.Score,
		Category:  string(r.Chunk.IACategory),
		Keywords:  r.Chunk.IAKeywords,
		HasCode:   r.Chunk.HasCode,
		Fusion:    r.Signals.FusionScore,
		Rerank:    r.Signals.RerankScore,
		InDense:   r.Signals.VectorSimilarity != nil,
		InLexical: r.Signals.LexicalScore != nil,
	}
	if r.Signals.RerankScore > 0 {
		out.BoostTotal = r.Score/r.Signals.RerankScore - 1
	}
	return out
}

// ToRetrieveOutput converts a retrieval result to the tool output format.
func ToRetrieveOutput(result *search.RetrievalResult) RetrieveOutput {
	out := RetrieveOutput{
		Results:       make([]ResultOutput, 0, len(result.Results)),
		BestScore:     result.BestScore,
		LowConfidence: result.LowConfidence,
		Query:         result.Query,
		FallbackUsed:  result.FallbackUsed,
		Degraded:      result.Degraded,
		Diagnostics:   result.Diagnostics,
	}
	for _, r := range result.Results {
		if r.Chunk != nil {
			out.Results = append(out.Results, ToResultOutput(r))
		}
	}
	return out
}
