package search

import (
	"context"
	"log/slog"

	"github.com/Aman-CERP/hybridrag/internal/errors"
)

// CircuitReranker skips a reranker that keeps failing until its reset
// timeout has passed. Failures caused by the caller's own cancellation do
// not count.
type CircuitReranker struct {
	inner   Reranker
	breaker *errors.CircuitBreaker
}

// NewCircuitReranker wraps inner with breaker.
func NewCircuitReranker(inner Reranker, breaker *errors.CircuitBreaker) *CircuitReranker {
	return &CircuitReranker{inner: inner, breaker: breaker}
}

// Rerank implements Reranker.
func (c *CircuitReranker) Rerank(ctx context.Context, query string, documents []string, topK int) ([]RerankResult, error) {
	if !c.breaker.Allow() {
		return nil, errors.RerankerUnavailable("reranker circuit is open", errors.ErrCircuitOpen)
	}

	results, err := c.inner.Rerank(ctx, query, documents, topK)
	switch {
	case err == nil:
		c.breaker.RecordSuccess()
	case ctx.Err() == nil:
		c.breaker.RecordFailure()
		if c.breaker.State() == errors.StateOpen {
			slog.Warn("reranker_circuit_open",
				slog.String("breaker", c.breaker.Name()),
				slog.String("error", err.Error()))
		}
	}
	return results, err
}

// Available reports false while the circuit is open.
func (c *CircuitReranker) Available(ctx context.Context) bool {
	return c.breaker.Allow() && c.inner.Available(ctx)
}

// Close closes the inner reranker.
func (c *CircuitReranker) Close() error {
	return c.inner.Close()
}

// State returns the breaker state.
func (c *CircuitReranker) State() errors.State {
	return c.breaker.State()
}

var _ Reranker = (*CircuitReranker)(nil)
