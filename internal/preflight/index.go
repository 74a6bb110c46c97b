package preflight

import (
	"context"
	"fmt"
	"os"

	"github.com/Aman-CERP/hybridrag/internal/chunk"
	"github.com/Aman-CERP/hybridrag/internal/embed"
	"github.com/Aman-CERP/hybridrag/internal/search"
	"github.com/Aman-CERP/hybridrag/internal/store"
)

// CheckChunks loads the chunk store. The store is returned on success so
// the index checks can validate against it.
func (c *Checker) CheckChunks() (*store.ChunkStore, CheckResult) {
	result := CheckResult{
		Name:     "chunk_store",
		Required: true,
		Details:  c.cfg.Chunks.Path,
	}

	chunks, err := store.LoadChunks(c.cfg.Chunks.Path, chunk.Limits{
		MaxItems:      c.cfg.Chunks.MaxMetadataItems,
		MaxItemLength: c.cfg.Chunks.MaxMetadataItemLength,
	})
	if err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		return nil, result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%d chunks from %d sources", chunks.Len(), len(chunks.Sources()))
	return chunks, result
}

// CheckLexical opens the lexical index and compares it with the chunk
// store. Without a configured path the index is built in memory at startup.
func (c *Checker) CheckLexical(ctx context.Context, chunks *store.ChunkStore) CheckResult {
	result := CheckResult{
		Name:     "lexical_index",
		Required: true,
	}

	path := c.cfg.Lexical.Path
	if path == "" {
		result.Status = StatusPass
		result.Message = fmt.Sprintf("built in memory from %d chunks at startup", chunks.Len())
		return result
	}
	result.Details = path

	if _, err := os.Stat(path); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("index not found: %v", err)
		return result
	}

	idx, err := store.OpenLexical(ctx, c.cfg.Lexical, chunks)
	if err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		return result
	}
	_ = idx.Close()

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%d documents", chunks.Len())
	return result
}

// CheckDense opens the configured dense backend.
func (c *Checker) CheckDense(chunks *store.ChunkStore) CheckResult {
	result := CheckResult{
		Name:     "dense_index",
		Required: true,
	}

	idx, err := store.OpenDense(c.cfg.Dense, chunks)
	if err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		result.Details = c.cfg.Dense.Backend
		return result
	}
	defer func() { _ = idx.Close() }()

	result.Status = StatusPass
	switch h := idx.(type) {
	case *store.HNSWIndex:
		if h.Len() != chunks.Len() {
			result.Status = StatusWarn
			result.Message = fmt.Sprintf("hnsw has %d vectors, chunk store has %d", h.Len(), chunks.Len())
		} else {
			result.Message = fmt.Sprintf("hnsw, %d vectors of %d dimensions", h.Len(), h.Dimensions())
		}
		result.Details = c.cfg.Dense.Path
	default:
		result.Message = idx.Backend()
		result.Details = fmt.Sprintf("%s:%d/%s", c.cfg.Dense.QdrantHost, c.cfg.Dense.QdrantPort, c.cfg.Dense.QdrantCollection)
	}
	return result
}

// CheckEmbedding probes the embedding service. Queries degrade to
// lexical-only search when it is down, so a failure is a warning.
func (c *Checker) CheckEmbedding(ctx context.Context) CheckResult {
	result := CheckResult{
		Name:     "embedding_service",
		Required: false,
		Details:  c.cfg.Embedding.Endpoint,
	}

	embedder, err := embed.NewFromConfig(c.cfg.Embedding)
	if err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		return result
	}
	defer func() { _ = embedder.Close() }()

	if !embedder.Available(ctx) {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s not reachable, dense search will be skipped", c.cfg.Embedding.Endpoint)
		return result
	}

	result.Status = StatusPass
	result.Message = embedder.ModelName()

	// Services without a model list are accepted as they are.
	models, err := embed.ListModels(ctx, c.cfg.Embedding.Endpoint)
	if err != nil {
		result.Details = fmt.Sprintf("%s (model list unavailable: %v)", c.cfg.Embedding.Endpoint, err)
		return result
	}
	if !embed.HasModel(models, c.cfg.Embedding.Model) {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("model %s not found on %s", c.cfg.Embedding.Model, c.cfg.Embedding.Endpoint)
	}
	return result
}

// CheckReranker probes the reranker when one is configured.
func (c *Checker) CheckReranker(ctx context.Context) CheckResult {
	result := CheckResult{
		Name:     "reranker",
		Required: false,
	}

	reranker, err := search.NewRerankerFromConfig(c.cfg.Reranker)
	if err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		return result
	}
	defer func() { _ = reranker.Close() }()

	if search.IsNoOp(reranker) {
		result.Status = StatusPass
		result.Message = "disabled"
		return result
	}

	result.Details = c.cfg.Reranker.Endpoint
	if !reranker.Available(ctx) {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s not reachable, fused order will be kept", c.cfg.Reranker.Endpoint)
		return result
	}

	result.Status = StatusPass
	result.Message = c.cfg.Reranker.Model
	return result
}
