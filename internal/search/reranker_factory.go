package search

import (
	"log/slog"

	"github.com/Aman-CERP/hybridrag/internal/config"
	"github.com/Aman-CERP/hybridrag/internal/errors"
)

// NewRerankerFromConfig selects the reranker capability. Without an
// endpoint, or when disabled, the pass-through reranker is returned.
// Otherwise the HTTP cross-encoder is wrapped by a circuit breaker and,
// outermost, a score cache.
func NewRerankerFromConfig(cfg config.RerankerConfig) (Reranker, error) {
	if cfg.Disabled || cfg.Endpoint == "" {
		slog.Info("reranker_disabled",
			slog.Bool("disabled", cfg.Disabled),
			slog.Bool("endpoint_set", cfg.Endpoint != ""))
		return &NoOpReranker{}, nil
	}

	httpReranker, err := NewHTTPReranker(HTTPRerankerConfig{
		Endpoint: cfg.Endpoint,
		Model:    cfg.Model,
		Timeout:  cfg.Timeout,
		Logits:   cfg.Logits,
	})
	if err != nil {
		return nil, err
	}

	var r Reranker = NewCircuitReranker(httpReranker, errors.NewCircuitBreaker("reranker",
		errors.WithMaxFailures(cfg.MaxFailures),
		errors.WithResetTimeout(cfg.ResetTimeout)))
	if cfg.CacheSize > 0 {
		r = NewCachedReranker(r, cfg.CacheSize)
	}

	slog.Info("reranker_enabled",
		slog.String("endpoint", cfg.Endpoint),
		slog.String("model", cfg.Model),
		slog.Int("cache_size", cfg.CacheSize))
	return r, nil
}
