package embed

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Aman-CERP/hybridrag/internal/errors"
)

// ClientConfig configures an HTTP embedding client.
type ClientConfig struct {
	// Endpoint is the service base URL. Requests go to {Endpoint}/embeddings.
	Endpoint string
	Model    string

	// Timeout bounds each attempt.
	Timeout time.Duration

	// Dimensions is the expected vector size. Zero accepts any size.
	Dimensions int

	// Retry decides how failed attempts are retried.
	Retry errors.RetryPolicy

	// Limiter paces every attempt, retries included. Nil means unlimited.
	Limiter RateLimiter

	// HTTPClient overrides the default client, for tests.
	HTTPClient *http.Client
}

type embeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Client calls the embedding service over HTTP.
type Client struct {
	cfg    ClientConfig
	client *http.Client

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*Client)(nil)

// NewClient creates an embedding client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.ConfigError("embedding endpoint is empty", nil)
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Limiter == nil {
		cfg.Limiter = Unlimited()
	}
	if cfg.Retry.ShouldRetry == nil {
		cfg.Retry.ShouldRetry = errors.IsRetryable
	}

	// Attempts are bounded by per-request contexts, not by a client timeout.
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        4,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	return &Client{cfg: cfg, client: client}, nil
}

// Embed returns the embedding of text, retrying transient failures.
// After the last retry it returns a ServiceUnavailable error.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return nil, errors.New(errors.ErrCodeEmbeddingFailed, "embedding client is closed", nil)
	}

	start := time.Now()
	vec, err := errors.RetryWithResult(ctx, c.cfg.Retry, func(attempt int) ([]float32, error) {
		if attempt > 0 {
			slog.Debug("embed_retry", slog.Int("attempt", attempt))
		}
		if err := c.cfg.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return c.embedOnce(ctx, text)
	})
	if err != nil {
		if errors.IsRetryable(err) {
			return nil, errors.ServiceUnavailable("embedding", err).
				WithDetail("endpoint", c.cfg.Endpoint)
		}
		return nil, err
	}

	slog.Debug("embed_complete",
		slog.Int("dims", len(vec)),
		slog.Duration("duration", time.Since(start)))
	return vec, nil
}

func (c *Client) embedOnce(ctx context.Context, text string) ([]float32, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(embeddingRequest{Model: c.cfg.Model, Prompt: text})
	if err != nil {
		return nil, errors.New(errors.ErrCodeEmbeddingFailed, "failed to marshal request", err)
	}

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.cfg.Endpoint+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, errors.New(errors.ErrCodeEmbeddingFailed, "failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		// The caller giving up is not a service failure.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, classifyTransportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		e := fmt.Errorf("embedding failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, errors.New(errors.ErrCodeServiceUnavailable, e.Error(), e)
		}
		return nil, errors.New(errors.ErrCodeEmbeddingFailed, e.Error(), e)
	}

	var result embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errors.New(errors.ErrCodeEmbeddingFailed, "malformed embedding response", err)
	}
	if len(result.Embedding) == 0 {
		return nil, errors.New(errors.ErrCodeEmbeddingFailed, "empty embedding returned", nil)
	}
	if c.cfg.Dimensions > 0 && len(result.Embedding) != c.cfg.Dimensions {
		return nil, errors.New(errors.ErrCodeDimensionMismatch,
			fmt.Sprintf("embedding has %d dimensions, expected %d", len(result.Embedding), c.cfg.Dimensions), nil)
	}
	return result.Embedding, nil
}

// classifyTransportError marks connection failures and timeouts as retryable.
func classifyTransportError(err error) error {
	msg := "embedding request failed"
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		msg = "embedding request timed out"
	}
	return errors.New(errors.ErrCodeServiceUnavailable, msg, err)
}

// ModelName returns the configured model.
func (c *Client) ModelName() string {
	return c.cfg.Model
}

// Available reports whether the service root answers within five seconds.
func (c *Client) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Endpoint, nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode < 500
}

// Close releases idle connections. Later calls fail.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.client.CloseIdleConnections()
	return nil
}
