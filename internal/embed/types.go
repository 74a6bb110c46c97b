// Package embed turns query text into dense vectors through an external
// embedding service.
package embed

import (
	"context"
	"time"
)

const (
	// DefaultTimeout bounds a single embedding call.
	DefaultTimeout = 120 * time.Second

	// DefaultMaxRetries is the number of retries after the first attempt.
	DefaultMaxRetries = 3

	// DefaultCallsPerMinute is the process-wide embedding call budget.
	DefaultCallsPerMinute = 30
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed returns the embedding of text. It never fabricates a vector:
	// any failure is returned as an error.
	Embed(ctx context.Context, text string) ([]float32, error)

	// ModelName returns the model identifier.
	ModelName() string

	// Available reports whether the service answers.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}
