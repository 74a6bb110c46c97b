package embed

import (
	"time"

	"github.com/Aman-CERP/hybridrag/internal/config"
	"github.com/Aman-CERP/hybridrag/internal/errors"
)

// NewFromConfig builds the cached, rate-limited embedding client described by cfg.
func NewFromConfig(cfg config.EmbeddingConfig) (*CachedEmbedder, error) {
	retry := errors.DefaultRetryPolicy()
	retry.MaxRetries = cfg.MaxRetries
	retry.InitialDelay = time.Second

	client, err := NewClient(ClientConfig{
		Endpoint:   cfg.Endpoint,
		Model:      cfg.Model,
		Timeout:    cfg.Timeout,
		Dimensions: cfg.Dimensions,
		Retry:      retry,
		Limiter:    NewRateLimiter(cfg.RateLimit),
	})
	if err != nil {
		return nil, err
	}
	return NewCachedEmbedder(client), nil
}
