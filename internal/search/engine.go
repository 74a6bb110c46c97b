package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/hybridrag/internal/config"
	"github.com/Aman-CERP/hybridrag/internal/embed"
	"github.com/Aman-CERP/hybridrag/internal/errors"
	"github.com/Aman-CERP/hybridrag/internal/query"
	"github.com/Aman-CERP/hybridrag/internal/store"
	"github.com/Aman-CERP/hybridrag/internal/telemetry"
)

// Degraded stage names reported in RetrievalResult.Degraded.
const (
	StageEmbedding = "embedding"
	StageDense     = "dense"
	StageReranker  = "reranker"
)

// strongRerankTerms are appended to the reranker query when the user typed
// them and expansion did not already include them.
var strongRerankTerms = []string{"stick-table", "track-sc", "http_req_rate", "conn_rate", "deny", "acl"}

// EngineConfig tunes the pipeline.
type EngineConfig struct {
	// TopKRetrieval is the number of candidates requested from each retriever.
	TopKRetrieval int
	// TopKRRF is the number of fused candidates kept for reranking.
	TopKRRF int
	// TopK is the default number of results.
	TopK int
	// RRFK is the fusion smoothing constant.
	RRFK int
	// ConfidenceThreshold is the minimum best score of a confident result.
	ConfidenceThreshold float64
	// DenseTimeout bounds a dense index query.
	DenseTimeout time.Duration
	// MaxQueryLength truncates longer queries.
	MaxQueryLength int

	Boost config.BoostConfig
}

// DefaultEngineConfig returns the defaults of config.NewConfig.
func DefaultEngineConfig() EngineConfig {
	return EngineConfigFrom(config.NewConfig())
}

// EngineConfigFrom extracts the pipeline settings of cfg.
func EngineConfigFrom(cfg *config.Config) EngineConfig {
	return EngineConfig{
		TopKRetrieval:       cfg.Retrieval.TopKRetrieval,
		TopKRRF:             cfg.Retrieval.TopKRRF,
		TopK:                cfg.Retrieval.TopK,
		RRFK:                cfg.Retrieval.RRFK,
		ConfidenceThreshold: cfg.Retrieval.ConfidenceThreshold,
		DenseTimeout:        cfg.Dense.Timeout,
		MaxQueryLength:      cfg.Validation.MaxQueryLength,
		Boost:               cfg.Boost,
	}
}

// Engine answers queries against a loaded corpus snapshot. All fields are
// read-only after construction; an Engine is safe for concurrent use.
type Engine struct {
	chunks    *store.ChunkStore
	dense     store.DenseIndex
	lexical   store.LexicalIndex
	embedder  embed.Embedder
	reranker  Reranker
	processor *query.Processor
	fusion    *RRFFusion
	booster   *Booster
	config    EngineConfig
	metrics   *telemetry.QueryMetrics

	runs      atomic.Int64
	closeOnce sync.Once
	closeErr  error
}

// NewEngine wires a pipeline from loaded components. A nil reranker
// selects the pass-through reranker.
func NewEngine(
	chunks *store.ChunkStore,
	dense store.DenseIndex,
	lexical store.LexicalIndex,
	embedder embed.Embedder,
	reranker Reranker,
	cfg EngineConfig,
) (*Engine, error) {
	if chunks == nil || dense == nil || lexical == nil || embedder == nil {
		return nil, errors.InternalError("engine requires a chunk store, dense index, lexical index and embedder", nil)
	}
	if reranker == nil {
		reranker = &NoOpReranker{}
	}

	defaults := config.NewConfig().Retrieval
	if cfg.TopKRetrieval <= 0 {
		cfg.TopKRetrieval = defaults.TopKRetrieval
	}
	if cfg.TopKRRF <= 0 {
		cfg.TopKRRF = defaults.TopKRRF
	}
	if cfg.TopK <= 0 {
		cfg.TopK = defaults.TopK
	}

	return &Engine{
		chunks:    chunks,
		dense:     dense,
		lexical:   lexical,
		embedder:  embedder,
		reranker:  reranker,
		processor: query.NewProcessor(cfg.MaxQueryLength),
		fusion:    NewRRFFusion(cfg.RRFK),
		booster:   NewBooster(cfg.Boost),
		config:    cfg,
		metrics:   telemetry.New(telemetry.DefaultConfig()),
	}, nil
}

// Retrieve runs the full pipeline for raw.
//
// Invalid queries and dangerous source filters are rejected with a
// validation error. An unknown source, an unreachable embedding service or
// dense index all yield an empty, low-confidence result without error.
// When the pipeline finds nothing, it is retried once with the query
// reduced to its terms longer than three characters.
func (e *Engine) Retrieve(ctx context.Context, raw string, opts RetrieveOptions) (*RetrievalResult, error) {
	start := time.Now()
	result, err := e.retrieve(ctx, raw, opts)

	event := telemetry.QueryEvent{Query: raw, Latency: time.Since(start)}
	switch {
	case errors.IsValidation(err):
		event.Rejected = true
	case err != nil:
		event.Failed = true
	default:
		event.ResultCount = len(result.Results)
		event.LowConfidence = result.LowConfidence
		event.FallbackUsed = result.FallbackUsed
		event.Degraded = result.Degraded
	}
	e.metrics.Record(event)

	return result, err
}

func (e *Engine) retrieve(ctx context.Context, raw string, opts RetrieveOptions) (*RetrievalResult, error) {
	start := time.Now()

	if opts.TopK < 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("top_k must not be negative, got %d", opts.TopK), nil)
	}
	topK := opts.TopK
	if topK == 0 {
		topK = e.config.TopK
	}

	q, err := e.processor.Process(raw)
	if err != nil {
		return nil, err
	}

	source := ""
	if opts.Source != "" {
		if source, err = query.ValidateSource(opts.Source); err != nil {
			return nil, err
		}
		if !e.chunks.HasSource(source) {
			slog.Info("retrieve_unknown_source", slog.String("source", source))
			return e.finish(&RetrievalResult{Query: q.Text}, nil, topK), nil
		}
	}

	out, err := e.run(ctx, q, source, opts.Explain)
	if err != nil {
		return nil, err
	}

	if len(out.candidates) == 0 && len(out.degraded) == 0 {
		if simplified := q.Simplified(); simplified != "" {
			slog.Warn("retrieve_fallback",
				slog.String("query", truncateQuery(q.Text, 80)),
				slog.String("simplified", simplified))

			fq, ferr := e.processor.Process(simplified)
			if ferr == nil {
				fout, ferr := e.run(ctx, fq, source, opts.Explain)
				if ferr != nil {
					return nil, ferr
				}
				fout.fallback = true
				out, q = fout, fq
			}
		}
	}

	result := e.finish(&RetrievalResult{
		Query:        q.Text,
		FallbackUsed: out.fallback,
		Degraded:     out.degraded,
		Diagnostics:  out.diagnostics,
	}, out.candidates, topK)

	slog.Debug("retrieve_done",
		slog.Int("results", len(result.Results)),
		slog.Float64("best_score", result.BestScore),
		slog.Bool("low_confidence", result.LowConfidence),
		slog.Bool("fallback", result.FallbackUsed),
		slog.Duration("duration", time.Since(start)))
	return result, nil
}

// finish truncates candidates to topK and applies the confidence gate.
func (e *Engine) finish(result *RetrievalResult, candidates []*Candidate, topK int) *RetrievalResult {
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	result.Results = make([]ScoredChunk, len(candidates))
	for i, c := range candidates {
		result.Results[i] = ScoredChunk{Chunk: c.Chunk, Score: c.FinalScore, Signals: c.Signals}
	}
	result.BestScore, result.LowConfidence = Gate(result.Results, e.config.ConfidenceThreshold)
	return result
}

// RetrieveContextString runs Retrieve and renders the results as an LLM
// context string with their citations. An empty result gives "", no
// sources and lowConfidence true.
func (e *Engine) RetrieveContextString(ctx context.Context, raw string, opts RetrieveOptions) (string, []SourceRef, bool, error) {
	result, err := e.Retrieve(ctx, raw, opts)
	if err != nil {
		return "", nil, true, err
	}
	text, sources := BuildContext(result.Results)
	return text, sources, result.LowConfidence, nil
}

// pipelineOutput is one pass through the pipeline.
type pipelineOutput struct {
	candidates  []*Candidate
	degraded    []string
	diagnostics *Diagnostics
	fallback    bool
}

// run executes retrieve, fuse, rerank and boost for q.
func (e *Engine) run(ctx context.Context, q *query.Query, source string, explain bool) (*pipelineOutput, error) {
	e.runs.Add(1)
	out := &pipelineOutput{}

	dense, lexical, stage, err := e.parallelSearch(ctx, q, source)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if stage == "" {
			return nil, err
		}
		slog.Warn("retrieve_degraded",
			slog.String("stage", stage),
			slog.String("error", err.Error()))
		out.degraded = append(out.degraded, stage)
		return out, nil
	}

	fused := e.fusion.Fuse(dense, lexical)
	if len(fused) > e.config.TopKRRF {
		fused = fused[:e.config.TopKRRF]
	}
	slog.Debug("retrieve_fused",
		slog.Int("dense", len(dense)),
		slog.Int("lexical", len(lexical)),
		slog.Int("candidates", len(fused)))

	out.candidates = e.candidates(fused, dense, lexical)
	if explain {
		out.diagnostics = &Diagnostics{
			ExpandedTerms: q.Expanded,
			Category:      q.Category,
			Dense:         nonNil(dense),
			Lexical:       nonNil(lexical),
			Fused:         nonNil(fused),
		}
	}
	if len(out.candidates) == 0 {
		return out, nil
	}

	reranked, err := e.rerank(ctx, q, out.candidates)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		slog.Warn("reranker_failed", slog.String("error", err.Error()))
		out.degraded = append(out.degraded, StageReranker)
	}
	if out.diagnostics != nil {
		out.diagnostics.Reranked = reranked
	}

	e.booster.Apply(q, out.candidates)
	return out, nil
}

// parallelSearch embeds the query and runs dense and lexical search
// concurrently. On failure, stage names the degradable stage that failed;
// it is empty for errors that must reach the caller.
func (e *Engine) parallelSearch(ctx context.Context, q *query.Query, source string) (
	dense, lexical []store.Scored,
	stage string,
	err error,
) {
	g, gctx := errgroup.WithContext(ctx)

	var denseStage string
	var denseErr, lexErr error

	g.Go(func() error {
		vector, embedErr := e.embedder.Embed(gctx, q.Text)
		if embedErr != nil {
			denseStage, denseErr = StageEmbedding, embedErr
			return nil
		}

		searchCtx := gctx
		if e.config.DenseTimeout > 0 {
			var cancel context.CancelFunc
			searchCtx, cancel = context.WithTimeout(gctx, e.config.DenseTimeout)
			defer cancel()
		}
		var searchErr error
		dense, searchErr = e.dense.Search(searchCtx, vector, e.config.TopKRetrieval, source)
		if searchErr != nil {
			denseStage, denseErr = StageDense, searchErr
		}
		return nil
	})

	g.Go(func() error {
		terms := store.QueryTerms(q.Tokens, q.ExpansionOnly())
		var searchErr error
		lexical, searchErr = e.lexical.Search(gctx, terms, e.config.TopKRetrieval, source)
		if searchErr != nil {
			lexErr = searchErr
		}
		return nil
	})

	if waitErr := g.Wait(); waitErr != nil {
		return nil, nil, "", waitErr
	}
	if lexErr != nil {
		return nil, nil, "", errors.New(errors.ErrCodeSearchFailed, "lexical search failed", lexErr)
	}
	if denseErr != nil {
		return nil, nil, denseStage, denseErr
	}
	return dense, lexical, "", nil
}

// candidates resolves fused ids to chunks and copies the retriever scores.
func (e *Engine) candidates(fused, dense, lexical []store.Scored) []*Candidate {
	denseScores := make(map[int]float64, len(dense))
	for _, s := range dense {
		denseScores[s.ChunkID] = s.Score
	}
	lexicalScores := make(map[int]float64, len(lexical))
	for _, s := range lexical {
		lexicalScores[s.ChunkID] = s.Score
	}

	out := make([]*Candidate, 0, len(fused))
	for _, f := range fused {
		c, ok := e.chunks.Get(f.ChunkID)
		if !ok {
			slog.Warn("retrieve_unknown_chunk", slog.Int("chunk_id", f.ChunkID))
			continue
		}
		cand := &Candidate{Chunk: c}
		cand.FusionScore = f.Score
		cand.RerankScore = f.Score
		if v, ok := denseScores[f.ChunkID]; ok {
			cand.VectorSimilarity = &v
		}
		if v, ok := lexicalScores[f.ChunkID]; ok {
			cand.LexicalScore = &v
		}
		out = append(out, cand)
	}
	return out
}

// rerank rescores candidates with the cross-encoder. Every candidate keeps
// its fusion score unless the reranker scored all of them. It reports
// whether reranker scores were applied.
func (e *Engine) rerank(ctx context.Context, q *query.Query, candidates []*Candidate) (bool, error) {
	if IsNoOp(e.reranker) {
		return false, nil
	}

	docs := make([]string, len(candidates))
	for i, c := range candidates {
		docs[i] = RerankDocument(c)
	}

	results, err := e.reranker.Rerank(ctx, RerankQuery(q), docs, 0)
	if err != nil {
		return false, err
	}
	if len(results) != len(candidates) {
		return false, errors.RerankerUnavailable(
			fmt.Sprintf("reranker scored %d of %d candidates", len(results), len(candidates)), nil)
	}
	seen := make([]bool, len(candidates))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(candidates) || seen[r.Index] {
			return false, errors.RerankerUnavailable(
				fmt.Sprintf("reranker returned invalid or duplicate index %d", r.Index), nil)
		}
		seen[r.Index] = true
	}
	for _, r := range results {
		candidates[r.Index].RerankScore = r.Score
	}
	return true, nil
}

func nonNil(s []store.Scored) []store.Scored {
	if s == nil {
		return []store.Scored{}
	}
	return s
}

// RerankQuery is the expanded query followed by the strong terms the user
// typed that expansion did not already include.
func RerankQuery(q *query.Query) string {
	expanded := q.ExpandedText()
	lower := strings.ToLower(q.Text)

	var b strings.Builder
	b.WriteString(expanded)
	for _, term := range strongRerankTerms {
		if strings.Contains(lower, term) && !strings.Contains(expanded, term) {
			b.WriteString(" ")
			b.WriteString(term)
		}
	}
	return b.String()
}

// RerankDocument is the chunk content followed by its metadata line.
func RerankDocument(c *Candidate) string {
	meta := c.Chunk.MetadataLine()
	if meta == "" {
		return c.Chunk.Content
	}
	return c.Chunk.Content + "\n" + meta
}

// PipelineRuns returns how many pipeline passes have run, fallbacks included.
func (e *Engine) PipelineRuns() int64 {
	return e.runs.Load()
}

// Sources returns the known source filter values.
func (e *Engine) Sources() []string {
	return e.chunks.Sources()
}

// Stats describes the loaded corpus and components.
func (e *Engine) Stats() Stats {
	s := Stats{
		Chunks:          e.chunks.Len(),
		Sources:         e.chunks.SourceCounts(),
		LexicalDocs:     e.lexical.DocCount(),
		DenseBackend:    e.dense.Backend(),
		EmbeddingModel:  e.embedder.ModelName(),
		RerankerEnabled: !IsNoOp(e.reranker),
		Queries:         e.metrics.Snapshot(),
	}
	if c, ok := e.embedder.(interface{ Len() int }); ok {
		s.EmbeddingCache = c.Len()
	}
	return s
}

// Close releases every component. It is safe to call more than once.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		var errs []error
		for _, c := range []interface{ Close() error }{e.reranker, e.embedder, e.dense, e.lexical} {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if len(errs) > 0 {
			e.closeErr = fmt.Errorf("close engine: %v", errs)
		}
	})
	return e.closeErr
}
