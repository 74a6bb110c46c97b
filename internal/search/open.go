package search

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/Aman-CERP/hybridrag/internal/chunk"
	"github.com/Aman-CERP/hybridrag/internal/config"
	"github.com/Aman-CERP/hybridrag/internal/embed"
	"github.com/Aman-CERP/hybridrag/internal/store"
)

// Open loads every component named by cfg and returns a ready engine.
// The index directory is share-locked while files are read so a
// concurrent index writer cannot swap them mid-load.
func Open(ctx context.Context, cfg *config.Config) (engine *Engine, err error) {
	start := time.Now()

	lock := store.NewIndexLock(filepath.Dir(cfg.Chunks.Path))
	if err := lock.RLock(ctx); err != nil {
		return nil, err
	}
	defer func() { _ = lock.Unlock() }()

	var closers []interface{ Close() error }
	defer func() {
		if err == nil {
			return
		}
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}()

	chunks, err := store.LoadChunks(cfg.Chunks.Path, chunk.Limits{
		MaxItems:      cfg.Chunks.MaxMetadataItems,
		MaxItemLength: cfg.Chunks.MaxMetadataItemLength,
	})
	if err != nil {
		return nil, err
	}

	lexical, err := store.OpenLexical(ctx, cfg.Lexical, chunks)
	if err != nil {
		return nil, err
	}
	closers = append(closers, lexical)

	dense, err := store.OpenDense(cfg.Dense, chunks)
	if err != nil {
		return nil, err
	}
	closers = append(closers, dense)

	embedder, err := embed.NewFromConfig(cfg.Embedding)
	if err != nil {
		return nil, err
	}
	closers = append(closers, embedder)

	reranker, err := NewRerankerFromConfig(cfg.Reranker)
	if err != nil {
		return nil, err
	}
	closers = append(closers, reranker)

	engine, err = NewEngine(chunks, dense, lexical, embedder, reranker, EngineConfigFrom(cfg))
	if err != nil {
		return nil, err
	}

	slog.Info("engine_ready",
		slog.Int("chunks", chunks.Len()),
		slog.Int("sources", len(chunks.Sources())),
		slog.String("dense_backend", dense.Backend()),
		slog.String("embedding_model", embedder.ModelName()),
		slog.Bool("reranker", !IsNoOp(reranker)),
		slog.Duration("duration", time.Since(start)))
	return engine, nil
}
