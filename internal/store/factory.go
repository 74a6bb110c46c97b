package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/Aman-CERP/hybridrag/internal/config"
	"github.com/Aman-CERP/hybridrag/internal/errors"
)

// OpenDense opens the dense backend selected by cfg. Chunk sources are
// resolved through chunks for backends that do not store them.
func OpenDense(cfg config.DenseConfig, chunks *ChunkStore) (DenseIndex, error) {
	switch strings.ToLower(cfg.Backend) {
	case BackendHNSW, "":
		return LoadHNSWIndex(cfg.Path, chunks.SourceOf)
	case BackendQdrant:
		return NewQdrantIndex(QdrantConfig{
			Host:       cfg.QdrantHost,
			Port:       cfg.QdrantPort,
			APIKey:     cfg.QdrantAPIKey,
			UseTLS:     cfg.QdrantUseTLS,
			Collection: cfg.QdrantCollection,
		})
	default:
		return nil, errors.ConfigError(fmt.Sprintf("unknown dense backend %q", cfg.Backend), nil)
	}
}

// OpenLexical opens the prebuilt index at cfg.Path, or builds one in
// memory from chunks when no path is configured.
func OpenLexical(ctx context.Context, cfg config.LexicalConfig, chunks *ChunkStore) (LexicalIndex, error) {
	if cfg.Path == "" {
		return NewLexicalIndex(ctx, "", chunks.All())
	}
	idx, err := OpenLexicalIndex(cfg.Path)
	if err != nil {
		return nil, err
	}
	if n := idx.DocCount(); n != chunks.Len() {
		_ = idx.Close()
		return nil, errors.New(errors.ErrCodeChunkStoreInvalid,
			fmt.Sprintf("lexical index has %d documents, chunk store has %d", n, chunks.Len()), nil).
			WithSuggestion("rebuild the lexical index from the current chunk store")
	}
	return idx, nil
}
