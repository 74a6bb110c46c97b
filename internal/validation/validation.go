// Package validation benchmarks retrieval quality against a data-driven
// query set.
//
// Queries are loaded from YAML, either the embedded default set or a file
// given by the caller, so the set can change without rebuilding. Each query
// names the keywords (and optionally the documentation URLs) a good answer
// should surface; negative queries must be rejected or answered with low
// confidence.
package validation

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/hybridrag/internal/errors"
	"github.com/Aman-CERP/hybridrag/internal/search"
)

//go:embed queries.yaml
var defaultQueries []byte

// Level selects how much of the query set runs. Levels are cumulative.
type Level string

const (
	LevelQuick    Level = "quick"
	LevelStandard Level = "standard"
	LevelFull     Level = "full"
)

func (l Level) rank() int {
	switch l {
	case LevelQuick:
		return 0
	case LevelStandard:
		return 1
	case LevelFull:
		return 2
	default:
		return -1
	}
}

// ParseLevel parses a level name. The empty string is quick.
func ParseLevel(s string) (Level, error) {
	if s == "" {
		return LevelQuick, nil
	}
	l := Level(strings.ToLower(strings.TrimSpace(s)))
	if l.rank() < 0 {
		return "", fmt.Errorf("unknown level %q (valid: quick, standard, full)", s)
	}
	return l, nil
}

// QuerySpec defines a benchmark query with its expectations.
type QuerySpec struct {
	ID               string   `yaml:"id" json:"id"`
	Level            Level    `yaml:"level" json:"level"`
	Category         string   `yaml:"category" json:"category"`
	Query            string   `yaml:"query" json:"query"`
	Source           string   `yaml:"source,omitempty" json:"source,omitempty"`
	ExpectedKeywords []string `yaml:"expected_keywords,omitempty" json:"expected_keywords,omitempty"`
	ExpectedURLs     []string `yaml:"expected_urls,omitempty" json:"expected_urls,omitempty"`
	Negative         bool     `yaml:"negative,omitempty" json:"negative,omitempty"`
}

// QuerySet is a parsed query file.
type QuerySet struct {
	Queries []QuerySpec `yaml:"queries"`
}

// ParseQueries parses and checks a YAML query set.
func ParseQueries(data []byte) (*QuerySet, error) {
	var set QuerySet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("failed to parse queries YAML: %w", err)
	}

	seen := make(map[string]bool, len(set.Queries))
	for i := range set.Queries {
		q := &set.Queries[i]
		if q.ID == "" {
			return nil, fmt.Errorf("query %d: missing id", i)
		}
		if seen[q.ID] {
			return nil, fmt.Errorf("query %s: duplicate id", q.ID)
		}
		seen[q.ID] = true

		if q.Level == "" {
			q.Level = LevelFull
		}
		if q.Level.rank() < 0 {
			return nil, fmt.Errorf("query %s: unknown level %q", q.ID, q.Level)
		}
		if !q.Negative && len(q.ExpectedKeywords) == 0 && len(q.ExpectedURLs) == 0 {
			return nil, fmt.Errorf("query %s: needs expected_keywords or expected_urls", q.ID)
		}
	}
	return &set, nil
}

// LoadQueries reads the query set at path, or the embedded default set
// when path is empty.
func LoadQueries(path string) (*QuerySet, error) {
	if path == "" {
		return ParseQueries(defaultQueries)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read queries file %s: %w", path, err)
	}
	return ParseQueries(data)
}

// Select returns the queries up to level, optionally restricted to one
// category.
func (s *QuerySet) Select(level Level, category string) []QuerySpec {
	var out []QuerySpec
	for _, q := range s.Queries {
		if q.Level.rank() > level.rank() {
			continue
		}
		if category != "" && !strings.EqualFold(q.Category, category) {
			continue
		}
		out = append(out, q)
	}
	return out
}

// TestResult captures the outcome of a single query.
type TestResult struct {
	ID              string        `json:"id"`
	Query           string        `json:"query"`
	Category        string        `json:"category"`
	Negative        bool          `json:"negative,omitempty"`
	Passed          bool          `json:"passed"`
	MatchedAt       int           `json:"matched_at"` // rank of the first match, -1 if none
	KeywordCoverage float64       `json:"keyword_coverage"`
	MissingKeywords []string      `json:"missing_keywords,omitempty"`
	TopURLs         []string      `json:"top_urls,omitempty"`
	LowConfidence   bool          `json:"low_confidence"`
	FallbackUsed    bool          `json:"fallback_used"`
	Degraded        []string      `json:"degraded,omitempty"`
	Duration        time.Duration `json:"duration_ns"`
	Error           string        `json:"error,omitempty"`
}

// CategorySummary counts results of one category.
type CategorySummary struct {
	Total  int `json:"total"`
	Passed int `json:"passed"`
}

// Report summarizes a benchmark run.
type Report struct {
	Timestamp    time.Time                  `json:"timestamp"`
	Total        int                        `json:"total"`
	Passed       int                        `json:"passed"`
	HitRate      float64                    `json:"hit_rate"`
	MRR          float64                    `json:"mrr"`
	MeanCoverage float64                    `json:"mean_keyword_coverage"`
	LatencyP50   time.Duration              `json:"latency_p50_ns"`
	LatencyP95   time.Duration              `json:"latency_p95_ns"`
	ByCategory   map[string]CategorySummary `json:"by_category"`
	Results      []TestResult               `json:"results"`
}

// PassRate returns the fraction of passed queries.
func (r *Report) PassRate() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Passed) / float64(r.Total)
}

// Runner runs benchmark queries against a retriever.
type Runner struct {
	engine      search.Retriever
	topK        int
	concurrency int
	minCoverage float64
}

// Option configures a Runner.
type Option func(*Runner)

// WithTopK sets the number of results inspected per query.
func WithTopK(k int) Option {
	return func(r *Runner) {
		if k > 0 {
			r.topK = k
		}
	}
}

// WithConcurrency bounds the number of queries in flight.
func WithConcurrency(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithMinCoverage sets the keyword coverage a query needs to pass.
func WithMinCoverage(c float64) Option {
	return func(r *Runner) {
		if c >= 0 && c <= 1 {
			r.minCoverage = c
		}
	}
}

// NewRunner creates a runner with top 5, four workers and 60% coverage.
func NewRunner(engine search.Retriever, opts ...Option) *Runner {
	r := &Runner{
		engine:      engine,
		topK:        5,
		concurrency: 4,
		minCoverage: 0.6,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunQuery executes a single query and scores it.
func (r *Runner) RunQuery(ctx context.Context, qs QuerySpec) TestResult {
	tr := TestResult{
		ID:        qs.ID,
		Query:     qs.Query,
		Category:  qs.Category,
		Negative:  qs.Negative,
		MatchedAt: -1,
	}

	start := time.Now()
	result, err := r.engine.Retrieve(ctx, qs.Query, search.RetrieveOptions{
		TopK:   r.topK,
		Source: qs.Source,
	})
	tr.Duration = time.Since(start)

	if err != nil {
		if qs.Negative && errors.IsValidation(err) {
			tr.Passed = true
			return tr
		}
		tr.Error = err.Error()
		return tr
	}

	tr.LowConfidence = result.LowConfidence
	tr.FallbackUsed = result.FallbackUsed
	tr.Degraded = result.Degraded
	for _, sc := range result.Results {
		tr.TopURLs = append(tr.TopURLs, sc.Chunk.URL)
	}

	if qs.Negative {
		tr.Passed = result.LowConfidence || len(result.Results) == 0
		return tr
	}

	tr.KeywordCoverage, tr.MissingKeywords = keywordCoverage(result.Results, qs.ExpectedKeywords)
	tr.MatchedAt = firstMatch(result.Results, qs)
	tr.Passed = tr.KeywordCoverage >= r.minCoverage &&
		(len(qs.ExpectedURLs) == 0 || tr.MatchedAt >= 0)
	return tr
}

// Run executes queries with bounded concurrency and builds a report.
// Results keep the order of queries.
func (r *Runner) Run(ctx context.Context, queries []QuerySpec) (*Report, error) {
	results := make([]TestResult, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, qs := range queries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = r.RunQuery(gctx, qs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return summarize(results), nil
}

func summarize(results []TestResult) *Report {
	report := &Report{
		Timestamp:  time.Now(),
		Total:      len(results),
		ByCategory: make(map[string]CategorySummary),
		Results:    results,
	}

	var (
		positives   int
		hits        int
		rrSum       float64
		coverageSum float64
		latencies   = make([]time.Duration, 0, len(results))
	)
	for _, tr := range results {
		cs := report.ByCategory[tr.Category]
		cs.Total++
		if tr.Passed {
			report.Passed++
			cs.Passed++
		}
		report.ByCategory[tr.Category] = cs
		latencies = append(latencies, tr.Duration)

		if tr.Negative {
			continue
		}
		positives++
		coverageSum += tr.KeywordCoverage
		if tr.MatchedAt >= 0 {
			hits++
			rrSum += 1 / float64(tr.MatchedAt+1)
		}
	}

	if positives > 0 {
		report.HitRate = float64(hits) / float64(positives)
		report.MRR = rrSum / float64(positives)
		report.MeanCoverage = coverageSum / float64(positives)
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	report.LatencyP50 = percentile(latencies, 50)
	report.LatencyP95 = percentile(latencies, 95)
	return report
}

// keywordCoverage returns the fraction of keywords found in the title or
// content of any ranked chunk, and the keywords that were not.
func keywordCoverage(results []search.ScoredChunk, keywords []string) (float64, []string) {
	if len(keywords) == 0 {
		return 1, nil
	}

	var b strings.Builder
	for _, sc := range results {
		b.WriteString(strings.ToLower(sc.Chunk.Title))
		b.WriteByte('\n')
		b.WriteString(strings.ToLower(sc.Chunk.Content))
		b.WriteByte('\n')
	}
	text := b.String()

	var missing []string
	for _, kw := range keywords {
		if !strings.Contains(text, strings.ToLower(kw)) {
			missing = append(missing, kw)
		}
	}
	found := len(keywords) - len(missing)
	return float64(found) / float64(len(keywords)), missing
}

// firstMatch returns the rank of the first result matching an expected
// URL, or with no URLs expected, the first containing any keyword.
func firstMatch(results []search.ScoredChunk, qs QuerySpec) int {
	for i, sc := range results {
		if len(qs.ExpectedURLs) > 0 {
			for _, u := range qs.ExpectedURLs {
				if strings.Contains(sc.Chunk.URL, u) {
					return i
				}
			}
			continue
		}
		text := strings.ToLower(sc.Chunk.Title + "\n" + sc.Chunk.Content)
		for _, kw := range qs.ExpectedKeywords {
			if strings.Contains(text, strings.ToLower(kw)) {
				return i
			}
		}
	}
	return -1
}

// percentile uses the nearest-rank method on sorted durations.
func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := (p*len(sorted)+99)/100 - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
