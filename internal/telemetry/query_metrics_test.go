package telemetry

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatencyToBucket(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want LatencyBucket
	}{
		{50 * time.Millisecond, BucketP100},
		{100 * time.Millisecond, BucketP500},
		{700 * time.Millisecond, BucketP1000},
		{2 * time.Second, BucketP5000},
		{12 * time.Second, BucketP10000},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LatencyToBucket(tt.d), tt.d.String())
	}
}

func TestCircularBuffer_EvictsOldest(t *testing.T) {
	// Given: a buffer of three
	b := NewCircularBuffer[string](3)

	// When: adding four items
	for _, s := range []string{"a", "b", "c", "d"} {
		b.Add(s)
	}

	// Then: the oldest is gone and order is preserved
	assert.Equal(t, []string{"b", "c", "d"}, b.Items())
	assert.Equal(t, 3, b.Size())
}

func TestCircularBuffer_Empty(t *testing.T) {
	b := NewCircularBuffer[int](0)
	assert.Empty(t, b.Items())
}

func TestExtractTerms(t *testing.T) {
	assert.Equal(t, []string{"stick-table", "rate", "limit"}, ExtractTerms("  Stick-Table rate to limit "))
	assert.Nil(t, ExtractTerms("a b"))
}

func TestQueryMetrics_RecordOutcomes(t *testing.T) {
	// Given: a fresh collector
	m := New(DefaultConfig())

	// When: recording a mix of outcomes
	m.Record(QueryEvent{Query: "balance roundrobin", ResultCount: 5, Latency: 20 * time.Millisecond})
	m.Record(QueryEvent{Query: "Balance  roundrobin", ResultCount: 5, Latency: 20 * time.Millisecond})
	m.Record(QueryEvent{Query: "xyzzy", LowConfidence: true, FallbackUsed: true, Latency: time.Second})
	m.Record(QueryEvent{Query: "ssl crt", LowConfidence: true, Degraded: []string{"embedding"}, Latency: 30 * time.Millisecond})
	m.Record(QueryEvent{Query: "<script>", Rejected: true})
	m.Record(QueryEvent{Query: "timeout", Failed: true})

	// Then: every counter reflects the events
	s := m.Snapshot()
	assert.Equal(t, int64(6), s.TotalQueries)
	assert.Equal(t, int64(2), s.EmptyCount)
	assert.Equal(t, int64(2), s.LowConfidenceCount)
	assert.Equal(t, int64(1), s.FallbackCount)
	assert.Equal(t, int64(1), s.RejectedCount)
	assert.Equal(t, int64(1), s.FailedCount)
	assert.Equal(t, int64(1), s.ExactRepeatCount)
	assert.Equal(t, map[string]int64{"embedding": 1}, s.DegradedStages)
	assert.Equal(t, []string{"xyzzy", "ssl crt"}, s.RecentLowConfidence)
	assert.Equal(t, int64(5), s.LatencyDistribution[BucketP100])
	assert.InDelta(t, 0.5, s.LowConfidenceRate(), 1e-9)
}

func TestQueryMetrics_TopTermsSorted(t *testing.T) {
	m := New(DefaultConfig())

	m.Record(QueryEvent{Query: "backend server", ResultCount: 1})
	m.Record(QueryEvent{Query: "backend timeout", ResultCount: 1})
	m.Record(QueryEvent{Query: "backend", ResultCount: 1})

	s := m.Snapshot()
	require.Len(t, s.TopTerms, 3)
	assert.Equal(t, TermCount{Term: "backend", Count: 3}, s.TopTerms[0])
	assert.Equal(t, "server", s.TopTerms[1].Term)
	assert.Equal(t, "timeout", s.TopTerms[2].Term)
}

func TestQueryMetrics_EmptySnapshot(t *testing.T) {
	s := New(Config{}).Snapshot()

	assert.Zero(t, s.TotalQueries)
	assert.Zero(t, s.LowConfidenceRate())
	assert.NotNil(t, s.DegradedStages)
	assert.NotNil(t, s.TopTerms)
}

func TestQueryMetrics_ConcurrentRecord(t *testing.T) {
	m := New(DefaultConfig())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Record(QueryEvent{Query: "health check", ResultCount: 1})
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), m.Snapshot().TotalQueries)
}
