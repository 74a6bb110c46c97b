package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Aman-CERP/hybridrag/internal/errors"
)

// HTTP reranker defaults
const (
	DefaultRerankerModel   = "ms-marco-MiniLM-L-12-v2"
	DefaultRerankerTimeout = 30 * time.Second
)

// HTTPRerankerConfig configures a cross-encoder served over HTTP.
type HTTPRerankerConfig struct {
	// Endpoint is the server base URL; requests go to {Endpoint}/rerank.
	Endpoint string

	Model string

	// Timeout bounds each rerank request (default: 30s).
	Timeout time.Duration

	// Logits maps raw model outputs through a logistic function so
	// scores fall in (0, 1).
	Logits bool

	// HTTPClient overrides the default client.
	HTTPClient *http.Client
}

// HTTPReranker calls a cross-encoder service.
type HTTPReranker struct {
	client   *http.Client
	config   HTTPRerankerConfig
	endpoint string
	mu       sync.RWMutex
	closed   bool
}

var _ Reranker = (*HTTPReranker)(nil)

// NewHTTPReranker creates a reranker client. It does not contact the server.
func NewHTTPReranker(cfg HTTPRerankerConfig) (*HTTPReranker, error) {
	if cfg.Endpoint == "" {
		return nil, errors.ConfigError("reranker endpoint is required", nil)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultRerankerModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultRerankerTimeout
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     30 * time.Second,
			},
		}
	}

	slog.Debug("http_reranker_created",
		slog.String("endpoint", cfg.Endpoint),
		slog.String("model", cfg.Model),
		slog.Duration("timeout", cfg.Timeout),
		slog.Bool("logits", cfg.Logits))

	return &HTTPReranker{
		client:   client,
		config:   cfg,
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
	}, nil
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	Model     string   `json:"model,omitempty"`
	TopK      int      `json:"top_k,omitempty"`
}

type rerankResponse struct {
	Results []struct {
		Index int     `json:"index"`
		Score float64 `json:"score"`
	} `json:"results"`
	ProcessingTimeMs float64 `json:"processing_time_ms"`
}

// Rerank implements Reranker.
func (r *HTTPReranker) Rerank(ctx context.Context, query string, documents []string, topK int) ([]RerankResult, error) {
	start := time.Now()

	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return nil, errors.RerankerUnavailable("reranker is closed", nil)
	}

	if len(documents) == 0 {
		return []RerankResult{}, nil
	}

	body, err := json.Marshal(rerankRequest{
		Query:     query,
		Documents: documents,
		Model:     r.config.Model,
		TopK:      topK,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rerank request: %w", err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodPost, r.endpoint+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, errors.RerankerUnavailable("rerank request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.RerankerUnavailable(
			fmt.Sprintf("rerank failed (status %d): %s", resp.StatusCode, strings.TrimSpace(string(msg))), nil)
	}

	var decoded rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, errors.RerankerUnavailable("failed to decode rerank response", err)
	}

	results := make([]RerankResult, 0, len(decoded.Results))
	for _, res := range decoded.Results {
		if res.Index < 0 || res.Index >= len(documents) {
			return nil, errors.RerankerUnavailable(
				fmt.Sprintf("rerank result index %d out of range", res.Index), nil)
		}
		score := res.Score
		if r.config.Logits {
			score = sigmoid(score)
		}
		results = append(results, RerankResult{Index: res.Index, Score: score})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if topK > 0 && topK < len(results) {
		results = results[:topK]
	}

	slog.Debug("reranker_http_timing",
		slog.String("query", truncateQuery(query, 50)),
		slog.Int("doc_count", len(documents)),
		slog.Duration("total", time.Since(start)),
		slog.Float64("server_time_ms", decoded.ProcessingTimeMs))

	return results, nil
}

// Available checks GET {endpoint}/health.
func (r *HTTPReranker) Available(ctx context.Context) bool {
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return false
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, r.endpoint+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Close releases idle connections.
func (r *HTTPReranker) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	if transport, ok := r.client.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
	return nil
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// truncateQuery truncates a query string for logging
func truncateQuery(q string, maxLen int) string {
	r := []rune(q)
	if len(r) <= maxLen {
		return q
	}
	return string(r[:maxLen]) + "..."
}
