// Package telemetry keeps in-process query metrics for the retrieval engine.
// Nothing is reported externally; the snapshot is exposed through the
// engine statistics.
package telemetry

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LatencyBucket represents a latency histogram bucket.
type LatencyBucket string

const (
	BucketP100   LatencyBucket = "p100"   // <100ms
	BucketP500   LatencyBucket = "p500"   // 100-500ms
	BucketP1000  LatencyBucket = "p1000"  // 500ms-1s
	BucketP5000  LatencyBucket = "p5000"  // 1-5s
	BucketP10000 LatencyBucket = "p10000" // >=5s
)

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	case ms < 1000:
		return BucketP1000
	case ms < 5000:
		return BucketP5000
	default:
		return BucketP10000
	}
}

// QueryEvent is the outcome of one Retrieve call.
type QueryEvent struct {
	Query         string
	ResultCount   int
	LowConfidence bool
	FallbackUsed  bool
	Degraded      []string
	Rejected      bool // validation error
	Failed        bool // any other error
	Latency       time.Duration
}

// CircularBuffer is a fixed-capacity FIFO buffer.
type CircularBuffer[T any] struct {
	items    []T
	head     int // next write position
	size     int
	capacity int
	mu       sync.RWMutex
}

// NewCircularBuffer creates a new circular buffer with the given capacity.
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &CircularBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Add adds an item to the buffer. If full, the oldest item is evicted.
func (b *CircularBuffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items[b.head] = item
	b.head = (b.head + 1) % b.capacity
	if b.size < b.capacity {
		b.size++
	}
}

// Items returns all items in FIFO order (oldest first).
func (b *CircularBuffer[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]T, b.size)
	if b.size < b.capacity {
		copy(result, b.items[:b.size])
	} else {
		copy(result, b.items[b.head:])
		copy(result[b.capacity-b.head:], b.items[:b.head])
	}
	return result
}

// Size returns the current number of items in the buffer.
func (b *CircularBuffer[T]) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// ExtractTerms lowercases query and keeps words of at least three bytes.
func ExtractTerms(query string) []string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if len(w) >= 3 {
			terms = append(terms, w)
		}
	}
	return terms
}

// TermCount represents a term and its frequency count.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// Snapshot is an immutable copy of the metrics.
type Snapshot struct {
	TotalQueries        int64                   `json:"total_queries"`
	EmptyCount          int64                   `json:"empty_count"`
	LowConfidenceCount  int64                   `json:"low_confidence_count"`
	FallbackCount       int64                   `json:"fallback_count"`
	RejectedCount       int64                   `json:"rejected_count"`
	FailedCount         int64                   `json:"failed_count"`
	ExactRepeatCount    int64                   `json:"exact_repeat_count"`
	DegradedStages      map[string]int64        `json:"degraded_stages"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	TopTerms            []TermCount             `json:"top_terms"`
	RecentLowConfidence []string                `json:"recent_low_confidence"`
	Since               time.Time               `json:"since"`
}

// LowConfidenceRate returns the share of answered queries that were low confidence.
func (s *Snapshot) LowConfidenceRate() float64 {
	answered := s.TotalQueries - s.RejectedCount - s.FailedCount
	if answered <= 0 {
		return 0
	}
	return float64(s.LowConfidenceCount) / float64(answered)
}

// Config bounds the memory used by QueryMetrics.
type Config struct {
	TopTermsCapacity      int // distinct terms tracked (default: 100)
	LowConfidenceCapacity int // recent low-confidence queries kept (default: 50)
	RecentQueriesCapacity int // query hashes kept for repeat detection (default: 500)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		TopTermsCapacity:      100,
		LowConfidenceCapacity: 50,
		RecentQueriesCapacity: 500,
	}
}

// QueryMetrics aggregates QueryEvents. Safe for concurrent use.
type QueryMetrics struct {
	mu sync.Mutex

	total, empty, lowConfidence int64
	fallback, rejected, failed  int64
	exactRepeats                int64
	degraded                    map[string]int64
	latencies                   map[LatencyBucket]int64

	topTerms      *lru.Cache[string, int64]
	recentQueries *lru.Cache[string, struct{}]
	recentLow     *CircularBuffer[string]
	startTime     time.Time
}

// New creates a collector with cfg, replacing non-positive capacities
// with the defaults.
func New(cfg Config) *QueryMetrics {
	def := DefaultConfig()
	if cfg.TopTermsCapacity <= 0 {
		cfg.TopTermsCapacity = def.TopTermsCapacity
	}
	if cfg.LowConfidenceCapacity <= 0 {
		cfg.LowConfidenceCapacity = def.LowConfidenceCapacity
	}
	if cfg.RecentQueriesCapacity <= 0 {
		cfg.RecentQueriesCapacity = def.RecentQueriesCapacity
	}

	topTerms, _ := lru.New[string, int64](cfg.TopTermsCapacity)
	recent, _ := lru.New[string, struct{}](cfg.RecentQueriesCapacity)

	return &QueryMetrics{
		degraded:      make(map[string]int64),
		latencies:     make(map[LatencyBucket]int64),
		topTerms:      topTerms,
		recentQueries: recent,
		recentLow:     NewCircularBuffer[string](cfg.LowConfidenceCapacity),
		startTime:     time.Now(),
	}
}

// Record adds one event.
func (m *QueryMetrics) Record(event QueryEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total++
	m.latencies[LatencyToBucket(event.Latency)]++

	switch {
	case event.Rejected:
		m.rejected++
		return
	case event.Failed:
		m.failed++
		return
	}

	for _, term := range ExtractTerms(event.Query) {
		count, _ := m.topTerms.Get(term)
		m.topTerms.Add(term, count+1)
	}

	hash := hashQuery(event.Query)
	if _, ok := m.recentQueries.Get(hash); ok {
		m.exactRepeats++
	}
	m.recentQueries.Add(hash, struct{}{})

	if event.ResultCount == 0 {
		m.empty++
	}
	if event.LowConfidence {
		m.lowConfidence++
		m.recentLow.Add(event.Query)
	}
	if event.FallbackUsed {
		m.fallback++
	}
	for _, stage := range event.Degraded {
		m.degraded[stage]++
	}
}

// hashQuery normalizes and hashes a query for repeat detection.
func hashQuery(query string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(query), " "))
	hash := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(hash[:16])
}

// Snapshot returns the current metrics. Top terms are sorted by count,
// then term.
func (m *QueryMetrics) Snapshot() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	degraded := make(map[string]int64, len(m.degraded))
	for k, v := range m.degraded {
		degraded[k] = v
	}
	latencies := make(map[LatencyBucket]int64, len(m.latencies))
	for k, v := range m.latencies {
		latencies[k] = v
	}

	terms := make([]TermCount, 0, m.topTerms.Len())
	for _, key := range m.topTerms.Keys() {
		if count, ok := m.topTerms.Peek(key); ok {
			terms = append(terms, TermCount{Term: key, Count: count})
		}
	}
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].Count != terms[j].Count {
			return terms[i].Count > terms[j].Count
		}
		return terms[i].Term < terms[j].Term
	})

	return &Snapshot{
		TotalQueries:        m.total,
		EmptyCount:          m.empty,
		LowConfidenceCount:  m.lowConfidence,
		FallbackCount:       m.fallback,
		RejectedCount:       m.rejected,
		FailedCount:         m.failed,
		ExactRepeatCount:    m.exactRepeats,
		DegradedStages:      degraded,
		LatencyDistribution: latencies,
		TopTerms:            terms,
		RecentLowConfidence: m.recentLow.Items(),
		Since:               m.startTime,
	}
}
