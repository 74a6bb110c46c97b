package validation

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/hybridrag/internal/chunk"
	"github.com/Aman-CERP/hybridrag/internal/errors"
	"github.com/Aman-CERP/hybridrag/internal/search"
)

// stubRetriever answers from a fixed table keyed by query.
type stubRetriever struct {
	mu      sync.Mutex
	answers map[string]*search.RetrievalResult
	errs    map[string]error
	calls   []search.RetrieveOptions
}

func (s *stubRetriever) Retrieve(_ context.Context, raw string, opts search.RetrieveOptions) (*search.RetrievalResult, error) {
	s.mu.Lock()
	s.calls = append(s.calls, opts)
	s.mu.Unlock()
	if err, ok := s.errs[raw]; ok {
		return nil, err
	}
	if r, ok := s.answers[raw]; ok {
		return r, nil
	}
	return &search.RetrievalResult{Query: raw, LowConfidence: true}, nil
}

func (s *stubRetriever) RetrieveContextString(context.Context, string, search.RetrieveOptions) (string, []search.SourceRef, bool, error) {
	return "", nil, true, nil
}

func (s *stubRetriever) Stats() search.Stats { return search.Stats{} }

func ranked(chunks ...*chunk.Chunk) *search.RetrievalResult {
	r := &search.RetrievalResult{}
	for i, c := range chunks {
		r.Results = append(r.Results, search.ScoredChunk{Chunk: c, Score: 1 - float64(i)*0.1})
	}
	return r
}

func TestDefaultQueries_Parse(t *testing.T) {
	// Given: the embedded query set
	set, err := LoadQueries("")

	// Then: it parses and every level selects more than the previous
	require.NoError(t, err)
	quick := set.Select(LevelQuick, "")
	standard := set.Select(LevelStandard, "")
	full := set.Select(LevelFull, "")
	assert.NotEmpty(t, quick)
	assert.Greater(t, len(standard), len(quick))
	assert.Greater(t, len(full), len(standard))
	assert.Len(t, full, len(set.Queries))
}

func TestParseQueries_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{name: "missing id", yaml: "queries:\n  - query: x\n    expected_keywords: [x]\n", want: "missing id"},
		{name: "duplicate", yaml: "queries:\n  - {id: a, query: x, expected_keywords: [x]}\n  - {id: a, query: y, expected_keywords: [y]}\n", want: "duplicate id"},
		{name: "bad level", yaml: "queries:\n  - {id: a, level: huge, query: x, expected_keywords: [x]}\n", want: "unknown level"},
		{name: "no expectation", yaml: "queries:\n  - {id: a, query: x}\n", want: "needs expected_keywords"},
		{name: "malformed", yaml: "queries: [", want: "failed to parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseQueries([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseQueries_DefaultsLevelToFull(t *testing.T) {
	set, err := ParseQueries([]byte("queries:\n  - {id: a, query: x, expected_keywords: [x]}\n"))

	require.NoError(t, err)
	assert.Equal(t, LevelFull, set.Queries[0].Level)
	assert.Empty(t, set.Select(LevelQuick, ""))
}

func TestLoadQueries_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q.yaml")
	require.NoError(t, os.WriteFile(path, []byte("queries:\n  - {id: a, level: quick, category: acl, query: x, expected_keywords: [acl]}\n"), 0o644))

	set, err := LoadQueries(path)

	require.NoError(t, err)
	assert.Len(t, set.Select(LevelQuick, "ACL"), 1)
	assert.Empty(t, set.Select(LevelQuick, "ssl"))
}

func TestLoadQueries_MissingFile(t *testing.T) {
	_, err := LoadQueries(filepath.Join(t.TempDir(), "none.yaml"))
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, LevelQuick, l)

	l, err = ParseLevel(" Full ")
	require.NoError(t, err)
	assert.Equal(t, LevelFull, l)

	_, err = ParseLevel("huge")
	assert.Error(t, err)
}

func TestRunQuery_KeywordCoverage(t *testing.T) {
	// Given: results covering three of four keywords
	engine := &stubRetriever{answers: map[string]*search.RetrievalResult{
		"health check": ranked(
			&chunk.Chunk{Title: "timeout", Content: "timeout server bounds the wait", URL: "u0"},
			&chunk.Chunk{Title: "option httpchk", Content: "enables HTTP checks; add check on each server", URL: "u1"},
		),
	}}
	r := NewRunner(engine, WithTopK(3))

	// When: running the query
	tr := r.RunQuery(context.Background(), QuerySpec{
		ID:               "hc",
		Query:            "health check",
		ExpectedKeywords: []string{"option httpchk", "check", "server", "http-check"},
	})

	// Then: coverage is 75% which passes the default 60% threshold
	assert.True(t, tr.Passed)
	assert.InDelta(t, 0.75, tr.KeywordCoverage, 1e-9)
	assert.Equal(t, []string{"http-check"}, tr.MissingKeywords)
	assert.Equal(t, 0, tr.MatchedAt)
	assert.Equal(t, []string{"u0", "u1"}, tr.TopURLs)
	assert.Equal(t, 3, engine.calls[0].TopK)
}

func TestRunQuery_ExpectedURLRequired(t *testing.T) {
	engine := &stubRetriever{answers: map[string]*search.RetrievalResult{
		"bind": ranked(
			&chunk.Chunk{Title: "bind", Content: "bind address port", URL: "https://docs/intro#bind"},
			&chunk.Chunk{Title: "bind", Content: "bind ssl crt", URL: "https://docs/configuration#bind"},
		),
	}}
	r := NewRunner(engine)

	found := r.RunQuery(context.Background(), QuerySpec{
		ID: "b", Query: "bind", ExpectedKeywords: []string{"bind"},
		ExpectedURLs: []string{"configuration#bind"},
	})
	missing := r.RunQuery(context.Background(), QuerySpec{
		ID: "b2", Query: "bind", ExpectedKeywords: []string{"bind"},
		ExpectedURLs: []string{"management#bind"},
	})

	assert.True(t, found.Passed)
	assert.Equal(t, 1, found.MatchedAt)
	assert.False(t, missing.Passed)
	assert.Equal(t, -1, missing.MatchedAt)
}

func TestRunQuery_Negative(t *testing.T) {
	engine := &stubRetriever{
		answers: map[string]*search.RetrievalResult{
			"confident": ranked(&chunk.Chunk{Title: "balance", Content: "balance", URL: "u"}),
		},
		errs: map[string]error{
			"<script>":  errors.ValidationError("query contains script markup", nil),
			"exploding": errors.New(errors.ErrCodeSearchFailed, "lexical search failed", nil),
		},
	}
	r := NewRunner(engine)

	tests := []struct {
		query string
		pass  bool
	}{
		{query: "<script>", pass: true},
		{query: "off topic", pass: true},
		{query: "confident", pass: false},
		{query: "exploding", pass: false},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			tr := r.RunQuery(context.Background(), QuerySpec{ID: tt.query, Query: tt.query, Negative: true})
			assert.Equal(t, tt.pass, tr.Passed)
		})
	}
}

func TestRunQuery_EngineError(t *testing.T) {
	engine := &stubRetriever{errs: map[string]error{
		"acl": errors.ServiceUnavailable("embedding", nil),
	}}

	tr := NewRunner(engine).RunQuery(context.Background(), QuerySpec{
		ID: "a", Query: "acl", ExpectedKeywords: []string{"acl"},
	})

	assert.False(t, tr.Passed)
	assert.Contains(t, tr.Error, errors.ErrCodeServiceUnavailable)
}

func TestRun_Report(t *testing.T) {
	// Given: one hit at rank 0, one hit at rank 1, one miss and a negative
	engine := &stubRetriever{answers: map[string]*search.RetrievalResult{
		"first":  ranked(&chunk.Chunk{Title: "acl", Content: "acl path_beg", URL: "a"}),
		"second": ranked(&chunk.Chunk{Title: "x", Content: "nothing", URL: "b"}, &chunk.Chunk{Title: "ssl", Content: "ssl crt", URL: "c"}),
		"miss":   ranked(&chunk.Chunk{Title: "x", Content: "nothing", URL: "d"}),
	}}
	queries := []QuerySpec{
		{ID: "1", Category: "acl", Query: "first", ExpectedKeywords: []string{"acl"}},
		{ID: "2", Category: "ssl", Query: "second", ExpectedKeywords: []string{"ssl"}},
		{ID: "3", Category: "ssl", Query: "miss", ExpectedKeywords: []string{"stick-table"}},
		{ID: "4", Category: "negative", Query: "unknown", Negative: true},
	}

	// When: running them concurrently
	report, err := NewRunner(engine, WithConcurrency(2)).Run(context.Background(), queries)

	// Then: order is kept and metrics cover the positive queries
	require.NoError(t, err)
	require.Len(t, report.Results, 4)
	for i, tr := range report.Results {
		assert.Equal(t, queries[i].ID, tr.ID)
	}
	assert.Equal(t, 4, report.Total)
	assert.Equal(t, 3, report.Passed)
	assert.InDelta(t, 0.75, report.PassRate(), 1e-9)
	assert.InDelta(t, 2.0/3.0, report.HitRate, 1e-9)
	assert.InDelta(t, (1+0.5)/3.0, report.MRR, 1e-9)
	assert.InDelta(t, 2.0/3.0, report.MeanCoverage, 1e-9)
	assert.Equal(t, CategorySummary{Total: 2, Passed: 1}, report.ByCategory["ssl"])
	assert.Equal(t, CategorySummary{Total: 1, Passed: 1}, report.ByCategory["negative"])
}

func TestRun_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRunner(&stubRetriever{}).Run(ctx, []QuerySpec{{ID: "a", Query: "x", Negative: true}})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunner_OptionsIgnoreInvalid(t *testing.T) {
	r := NewRunner(&stubRetriever{}, WithTopK(0), WithConcurrency(-1), WithMinCoverage(2))

	assert.Equal(t, 5, r.topK)
	assert.Equal(t, 4, r.concurrency)
	assert.InDelta(t, 0.6, r.minCoverage, 1e-9)
}

func TestPercentile(t *testing.T) {
	var d []time.Duration
	for i := 1; i <= 20; i++ {
		d = append(d, time.Duration(i)*time.Millisecond)
	}

	assert.Equal(t, 10*time.Millisecond, percentile(d, 50))
	assert.Equal(t, 19*time.Millisecond, percentile(d, 95))
	assert.Equal(t, time.Duration(0), percentile(nil, 50))
}

func TestKeywordCoverage_CaseInsensitive(t *testing.T) {
	results := ranked(&chunk.Chunk{Title: "X-Forwarded-For", Content: "Option FORWARDFOR"}).Results

	cov, missing := keywordCoverage(results, []string{"forwardfor", "x-forwarded-for"})

	assert.InDelta(t, 1.0, cov, 1e-9)
	assert.Empty(t, missing)
	assert.True(t, strings.Contains(strings.ToLower(results[0].Chunk.Title), "forwarded"))
}
