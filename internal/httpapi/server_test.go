package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/hybridrag/internal/chunk"
	"github.com/Aman-CERP/hybridrag/internal/errors"
	"github.com/Aman-CERP/hybridrag/internal/search"
)

type fakeRetriever struct {
	result   *search.RetrievalResult
	err      error
	lastOpts search.RetrieveOptions
	lastRaw  string
}

func (f *fakeRetriever) Retrieve(_ context.Context, raw string, opts search.RetrieveOptions) (*search.RetrievalResult, error) {
	f.lastRaw = raw
	f.lastOpts = opts
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeRetriever) RetrieveContextString(_ context.Context, raw string, opts search.RetrieveOptions) (string, []search.SourceRef, bool, error) {
	f.lastRaw = raw
	f.lastOpts = opts
	if f.err != nil {
		return "", nil, false, f.err
	}
	return "[Source 1: balance - https://docs/balance]\nbody", []search.SourceRef{
		{Title: "balance", URL: "https://docs/balance", Source: "configuration", Score: 0.7},
	}, false, nil
}

func (f *fakeRetriever) Stats() search.Stats {
	return search.Stats{Chunks: 3, Sources: map[string]int{"configuration": 3}, DenseBackend: "hnsw"}
}

func newTestServer(t *testing.T, f *fakeRetriever) http.Handler {
	t.Helper()
	s, err := New(f, Config{Addr: ":0"})
	require.NoError(t, err)
	return s.Handler()
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNew_RequiresEngine(t *testing.T) {
	_, err := New(nil, Config{})
	assert.Error(t, err)
}

func TestHealthz(t *testing.T) {
	// Given: a server with a loaded engine
	h := newTestServer(t, &fakeRetriever{})

	// When: probing health
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	// Then: the engine stats are reported
	require.Equal(t, http.StatusOK, rec.Code)
	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, 3, body.Stats.Chunks)
	assert.Equal(t, "hnsw", body.Stats.DenseBackend)
}

func TestStats(t *testing.T) {
	h := newTestServer(t, &fakeRetriever{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"configuration":3`)
}

func TestRetrieve_ReturnsResults(t *testing.T) {
	// Given: an engine returning one result
	f := &fakeRetriever{result: &search.RetrievalResult{
		Query:     "balance roundrobin",
		BestScore: 0.9,
		Results: []search.ScoredChunk{
			{Chunk: &chunk.Chunk{ID: 4, Title: "balance", URL: "https://docs/balance"}, Score: 0.9},
		},
	}}
	h := newTestServer(t, f)

	// When: posting a query
	rec := post(t, h, "/v1/retrieve", `{"query":"balance roundrobin","top_k":3,"source":"configuration","explain":true}`)

	// Then: the result is returned and options are passed through
	require.Equal(t, http.StatusOK, rec.Code)
	var got search.RetrievalResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Results, 1)
	assert.Equal(t, 4, got.Results[0].Chunk.ID)
	assert.Equal(t, "balance roundrobin", f.lastRaw)
	assert.Equal(t, search.RetrieveOptions{TopK: 3, Source: "configuration", Explain: true}, f.lastOpts)
}

func TestRetrieve_EmptyResultsEncodeAsArray(t *testing.T) {
	f := &fakeRetriever{result: &search.RetrievalResult{Query: "x", LowConfidence: true}}
	h := newTestServer(t, f)

	rec := post(t, h, "/v1/retrieve", `{"query":"x"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"results":[]`)
}

func TestRetrieve_ClampsTopK(t *testing.T) {
	f := &fakeRetriever{result: &search.RetrievalResult{}}
	h := newTestServer(t, f)

	rec := post(t, h, "/v1/retrieve", `{"query":"timeout","top_k":500}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, MaxTopK, f.lastOpts.TopK)
}

func TestRetrieve_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
		code string
	}{
		{name: "malformed json", body: `{"query":`, code: errors.ErrCodeInvalidInput},
		{name: "unknown field", body: `{"query":"x","limit":3}`, code: errors.ErrCodeInvalidInput},
		{name: "empty query", body: `{"query":"   "}`, code: errors.ErrCodeQueryEmpty},
		{name: "negative top_k", body: `{"query":"x","top_k":-1}`, code: errors.ErrCodeInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeRetriever{result: &search.RetrievalResult{}}
			h := newTestServer(t, f)

			rec := post(t, h, "/v1/retrieve", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.code)
			assert.Empty(t, f.lastRaw, "engine must not be called")
		})
	}
}

func TestRetrieve_EngineErrorsMapToStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "validation", err: errors.ValidationError("query contains script markup", nil), status: http.StatusBadRequest},
		{name: "search failed", err: errors.New(errors.ErrCodeSearchFailed, "lexical search failed", nil), status: http.StatusInternalServerError},
		{name: "service", err: errors.ServiceUnavailable("embedding", nil), status: http.StatusServiceUnavailable},
		{name: "deadline", err: context.DeadlineExceeded, status: http.StatusGatewayTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(t, &fakeRetriever{err: tt.err})

			rec := post(t, h, "/v1/retrieve", `{"query":"acl"}`)

			assert.Equal(t, tt.status, rec.Code)
			var body map[string]map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"]["code"])
		})
	}
}

func TestContext_ReturnsBlockAndSources(t *testing.T) {
	f := &fakeRetriever{}
	h := newTestServer(t, f)

	rec := post(t, h, "/v1/context", `{"query":"balance","top_k":2}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var got ContextResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, strings.HasPrefix(got.Context, "[Source 1: balance"))
	require.Len(t, got.Sources, 1)
	assert.Equal(t, "https://docs/balance", got.Sources[0].URL)
	assert.Equal(t, 2, f.lastOpts.TopK)
}

func TestRoutes_MethodNotAllowed(t *testing.T) {
	h := newTestServer(t, &fakeRetriever{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/retrieve", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStatusFor_PlainErrorIsInternal(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, StatusFor(assert.AnError))
}
