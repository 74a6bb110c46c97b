package embed

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbedder counts calls and can fail or block.
type fakeEmbedder struct {
	calls atomic.Int32
	fail  bool
	delay time.Duration
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.fail {
		return nil, errors.New("service down")
	}
	return []float32{float32(len(text))}, nil
}

func (f *fakeEmbedder) ModelName() string                  { return "fake" }
func (f *fakeEmbedder) Available(ctx context.Context) bool { return true }
func (f *fakeEmbedder) Close() error                       { return nil }

func TestCachedEmbedder_HitsAfterFirstCall(t *testing.T) {
	// Given: a cached embedder
	inner := &fakeEmbedder{}
	c := NewCachedEmbedder(inner)

	// When: embedding the same text twice and another text once
	a, err := c.Embed(context.Background(), "timeout")
	require.NoError(t, err)
	b, err := c.Embed(context.Background(), "timeout")
	require.NoError(t, err)
	_, err = c.Embed(context.Background(), "timeout ")
	require.NoError(t, err)

	// Then: only exact repeats are served from the cache
	assert.Equal(t, a, b)
	assert.Equal(t, int32(2), inner.calls.Load())
	assert.Equal(t, 2, c.Len())
	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(2), misses)
}

func TestCachedEmbedder_DoesNotCacheFailures(t *testing.T) {
	inner := &fakeEmbedder{fail: true}
	c := NewCachedEmbedder(inner)

	_, err := c.Embed(context.Background(), "q")
	require.Error(t, err)
	_, err = c.Embed(context.Background(), "q")
	require.Error(t, err)

	assert.Equal(t, int32(2), inner.calls.Load())
	assert.Equal(t, 0, c.Len())
}

func TestCachedEmbedder_ConcurrentMissesShareOneCall(t *testing.T) {
	inner := &fakeEmbedder{delay: 50 * time.Millisecond}
	c := NewCachedEmbedder(inner)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			vec, err := c.Embed(context.Background(), "stick-table")
			assert.NoError(t, err)
			assert.Equal(t, []float32{11}, vec)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), inner.calls.Load())
}

// gatedEmbedder blocks until release is closed or its context ends.
type gatedEmbedder struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	g.calls.Add(1)
	g.once.Do(func() { close(g.started) })
	select {
	case <-g.release:
		return []float32{float32(len(text))}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *gatedEmbedder) ModelName() string                  { return "gated" }
func (g *gatedEmbedder) Available(ctx context.Context) bool { return true }
func (g *gatedEmbedder) Close() error                       { return nil }

func TestCachedEmbedder_CancelDoesNotFailOtherWaiters(t *testing.T) {
	// Given: a first caller holding the shared call for "acl"
	inner := &gatedEmbedder{started: make(chan struct{}), release: make(chan struct{})}
	c := NewCachedEmbedder(inner)

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Embed(firstCtx, "acl")
		firstErr <- err
	}()
	<-inner.started

	type outcome struct {
		vec []float32
		err error
	}
	second := make(chan outcome, 1)
	go func() {
		vec, err := c.Embed(context.Background(), "acl")
		second <- outcome{vec, err}
	}()
	time.Sleep(20 * time.Millisecond)

	// When: the first caller cancels and the service then answers
	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)
	close(inner.release)

	// Then: the second caller still gets the embedding from the one call
	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, []float32{3}, got.vec)
	assert.Equal(t, int32(1), inner.calls.Load())
	assert.Equal(t, 1, c.Len())
}

func TestNewRateLimiter_AllowsBurstThenPaces(t *testing.T) {
	limiter := NewRateLimiter(60)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 60; i++ {
		require.NoError(t, limiter.Wait(ctx))
	}
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	cancelled, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	assert.Error(t, limiter.Wait(cancelled), "the 61st call must wait about a second")
}

func TestUnlimited_NeverWaits(t *testing.T) {
	limiter := NewRateLimiter(0)
	for i := 0; i < 1000; i++ {
		require.NoError(t, limiter.Wait(context.Background()))
	}
}
