package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/hybridrag/internal/config"
	"github.com/Aman-CERP/hybridrag/internal/errors"
)

// =============================================================================
// NoOpReranker
// =============================================================================

func TestNoOpReranker_ScoresNothing(t *testing.T) {
	// Given: NoOpReranker and documents
	reranker := &NoOpReranker{}

	// When: reranking
	results, err := reranker.Rerank(context.Background(), "query", []string{"a", "b"}, 0)

	// Then: no scores, candidates keep their fusion score
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
	assert.True(t, reranker.Available(context.Background()))
	assert.NoError(t, reranker.Close())
}

func TestIsNoOp(t *testing.T) {
	assert.True(t, IsNoOp(&NoOpReranker{}))
	assert.False(t, IsNoOp(&scoringReranker{}))
	assert.False(t, IsNoOp(NewCachedReranker(&NoOpReranker{}, 8)))
}

// =============================================================================
// HTTPReranker
// =============================================================================

// rerankServer scores documents by their length and counts requests.
func rerankServer(t *testing.T, status int) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(status)
		case "/rerank":
			calls.Add(1)
			if status != http.StatusOK {
				http.Error(w, "model not loaded", status)
				return
			}
			var req rerankRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			type result struct {
				Index int     `json:"index"`
				Score float64 `json:"score"`
			}
			out := struct {
				Results []result `json:"results"`
			}{}
			for i, d := range req.Documents {
				out.Results = append(out.Results, result{Index: i, Score: float64(len(d))})
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(out)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestNewHTTPReranker_RequiresEndpoint(t *testing.T) {
	_, err := NewHTTPReranker(HTTPRerankerConfig{})

	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeConfigInvalid, errors.GetCode(err))
}

func TestHTTPReranker_Rerank(t *testing.T) {
	// Given: a server scoring documents by length
	srv, _ := rerankServer(t, http.StatusOK)
	r, err := NewHTTPReranker(HTTPRerankerConfig{Endpoint: srv.URL + "/"})
	require.NoError(t, err)
	defer r.Close()

	// When
	results, err := r.Rerank(context.Background(), "q", []string{"aa", "aaaa", "a"}, 0)

	// Then: sorted by score descending with input indices
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, []int{1, 0, 2}, []int{results[0].Index, results[1].Index, results[2].Index})
	assert.Equal(t, 4.0, results[0].Score)
}

func TestHTTPReranker_TopKAndLogits(t *testing.T) {
	srv, _ := rerankServer(t, http.StatusOK)
	r, err := NewHTTPReranker(HTTPRerankerConfig{Endpoint: srv.URL, Logits: true})
	require.NoError(t, err)

	results, err := r.Rerank(context.Background(), "q", []string{"a", "aaa"}, 1)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].Index)
	assert.InDelta(t, sigmoid(3), results[0].Score, 1e-12)
	assert.Less(t, results[0].Score, 1.0)
}

func TestHTTPReranker_EmptyDocumentsSkipsRequest(t *testing.T) {
	srv, calls := rerankServer(t, http.StatusOK)
	r, err := NewHTTPReranker(HTTPRerankerConfig{Endpoint: srv.URL})
	require.NoError(t, err)

	results, err := r.Rerank(context.Background(), "q", nil, 0)

	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, calls.Load())
}

func TestHTTPReranker_ServerError(t *testing.T) {
	srv, _ := rerankServer(t, http.StatusServiceUnavailable)
	r, err := NewHTTPReranker(HTTPRerankerConfig{Endpoint: srv.URL})
	require.NoError(t, err)

	_, err = r.Rerank(context.Background(), "q", []string{"a"}, 0)

	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeRerankerUnavailable, errors.GetCode(err))
	assert.Contains(t, err.Error(), "503")
	assert.False(t, r.Available(context.Background()))
}

func TestHTTPReranker_IndexOutOfRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, `{"results":[{"index":5,"score":1}]}`)
	}))
	defer srv.Close()
	r, err := NewHTTPReranker(HTTPRerankerConfig{Endpoint: srv.URL})
	require.NoError(t, err)

	_, err = r.Rerank(context.Background(), "q", []string{"a"}, 0)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestHTTPReranker_AvailableAndClose(t *testing.T) {
	srv, _ := rerankServer(t, http.StatusOK)
	r, err := NewHTTPReranker(HTTPRerankerConfig{Endpoint: srv.URL})
	require.NoError(t, err)

	assert.True(t, r.Available(context.Background()))

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	assert.False(t, r.Available(context.Background()))
	_, err = r.Rerank(context.Background(), "q", []string{"a"}, 0)
	assert.Error(t, err)
}

func TestHTTPReranker_RespectsTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	r, err := NewHTTPReranker(HTTPRerankerConfig{Endpoint: srv.URL, Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	start := time.Now()
	_, err = r.Rerank(context.Background(), "q", []string{"a"}, 0)

	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

// =============================================================================
// CachedReranker
// =============================================================================

func TestCachedReranker_OnlySendsMisses(t *testing.T) {
	// Given: a cached HTTP reranker
	srv, calls := rerankServer(t, http.StatusOK)
	inner, err := NewHTTPReranker(HTTPRerankerConfig{Endpoint: srv.URL})
	require.NoError(t, err)
	cached := NewCachedReranker(inner, 16)

	// When: the same documents are reranked twice
	first, err := cached.Rerank(context.Background(), "q", []string{"a", "bbb"}, 0)
	require.NoError(t, err)
	second, err := cached.Rerank(context.Background(), "q", []string{"a", "bbb"}, 0)
	require.NoError(t, err)

	// Then: the second call is served from cache
	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, 2, cached.Len())

	// And: a new document triggers one more request with only the miss
	third, err := cached.Rerank(context.Background(), "q", []string{"cc", "a"}, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
	assert.Equal(t, []RerankResult{{Index: 0, Score: 2}, {Index: 1, Score: 1}}, third)
}

func TestCachedReranker_KeyIncludesQuery(t *testing.T) {
	srv, calls := rerankServer(t, http.StatusOK)
	inner, err := NewHTTPReranker(HTTPRerankerConfig{Endpoint: srv.URL})
	require.NoError(t, err)
	cached := NewCachedReranker(inner, 16)

	_, err = cached.Rerank(context.Background(), "q1", []string{"a"}, 0)
	require.NoError(t, err)
	_, err = cached.Rerank(context.Background(), "q2", []string{"a"}, 0)
	require.NoError(t, err)

	assert.EqualValues(t, 2, calls.Load())
}

func TestCachedReranker_ErrorsAreNotCached(t *testing.T) {
	failing := &scoringReranker{err: errors.RerankerUnavailable("down", nil)}
	cached := NewCachedReranker(failing, 0)

	_, err := cached.Rerank(context.Background(), "q", []string{"a"}, 0)

	require.Error(t, err)
	assert.Zero(t, cached.Len())
	require.NoError(t, cached.Close())
}

func TestCachedReranker_RejectsOutOfRangeIndex(t *testing.T) {
	cached := NewCachedReranker(&indexReranker{index: 7}, 0)

	_, err := cached.Rerank(context.Background(), "q", []string{"a", "b"}, 0)

	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeRerankerUnavailable, errors.GetCode(err))
	assert.Zero(t, cached.Len())
}

// =============================================================================
// CircuitReranker
// =============================================================================

func TestCircuitReranker_OpensAfterFailures(t *testing.T) {
	// Given: a failing reranker behind a breaker opening after 2 failures
	now := time.Now()
	failing := &scoringReranker{err: errors.RerankerUnavailable("down", nil)}
	breaker := errors.NewCircuitBreaker("reranker",
		errors.WithMaxFailures(2),
		errors.WithResetTimeout(time.Minute),
		errors.WithClock(func() time.Time { return now }))
	r := NewCircuitReranker(failing, breaker)

	// When: two calls fail
	for i := 0; i < 2; i++ {
		_, err := r.Rerank(context.Background(), "q", []string{"a"}, 0)
		require.Error(t, err)
	}

	// Then: the third call fails fast without reaching the inner reranker
	_, err := r.Rerank(context.Background(), "q", []string{"a"}, 0)
	require.ErrorIs(t, err, errors.ErrCircuitOpen)
	assert.Len(t, failing.queries, 2)
	assert.Equal(t, errors.StateOpen, r.State())
	assert.False(t, r.Available(context.Background()))

	// And: after the reset timeout a successful probe closes it
	now = now.Add(2 * time.Minute)
	failing.err = nil
	_, err = r.Rerank(context.Background(), "q", []string{"a"}, 0)
	require.NoError(t, err)
	assert.Equal(t, errors.StateClosed, r.State())
}

func TestCircuitReranker_IgnoresCallerCancellation(t *testing.T) {
	failing := &scoringReranker{err: context.Canceled}
	r := NewCircuitReranker(failing, errors.NewCircuitBreaker("reranker", errors.WithMaxFailures(1)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Rerank(ctx, "q", []string{"a"}, 0)

	require.Error(t, err)
	assert.Equal(t, errors.StateClosed, r.State())
}

// =============================================================================
// Factory
// =============================================================================

func TestNewRerankerFromConfig(t *testing.T) {
	tests := []struct {
		name       string
		cfg        config.RerankerConfig
		wantNoOp   bool
		wantCached bool
	}{
		{name: "no endpoint", cfg: config.RerankerConfig{}, wantNoOp: true},
		{name: "disabled", cfg: config.RerankerConfig{Endpoint: "http://localhost:9659", Disabled: true}, wantNoOp: true},
		{name: "cached", cfg: config.RerankerConfig{Endpoint: "http://localhost:9659", CacheSize: 10}, wantCached: true},
		{name: "uncached", cfg: config.RerankerConfig{Endpoint: "http://localhost:9659"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewRerankerFromConfig(tt.cfg)
			require.NoError(t, err)
			defer r.Close()

			assert.Equal(t, tt.wantNoOp, IsNoOp(r))
			_, cached := r.(*CachedReranker)
			assert.Equal(t, tt.wantCached, cached)
			if !tt.wantNoOp && !tt.wantCached {
				_, isCircuit := r.(*CircuitReranker)
				assert.True(t, isCircuit)
			}
		})
	}
}

func TestRerankQuery(t *testing.T) {
	q := processQuery(t, "acl path_beg")

	got := RerankQuery(q)

	assert.True(t, strings.HasPrefix(got, q.ExpandedText()))
	assert.Equal(t, 1, strings.Count(got, "acl"))
}
