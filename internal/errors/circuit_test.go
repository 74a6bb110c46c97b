package errors

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	// Given: a breaker allowing two failures
	clock := &fakeClock{t: time.Unix(0, 0)}
	cb := NewCircuitBreaker("reranker", WithMaxFailures(2), WithResetTimeout(time.Minute), WithClock(clock.now))
	failing := func() (int, error) { return 0, errors.New("boom") }

	// When: two calls fail
	_, _ = CircuitCall(cb, failing)
	_, _ = CircuitCall(cb, failing)

	// Then: the next call is rejected without running
	called := false
	_, err := CircuitCall(cb, func() (int, error) { called = true; return 1, nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	cb := NewCircuitBreaker("reranker", WithMaxFailures(1), WithResetTimeout(time.Minute), WithClock(clock.now))
	_, _ = CircuitCall(cb, func() (int, error) { return 0, errors.New("boom") })
	require.Equal(t, StateOpen, cb.State())

	// When: the reset timeout elapses
	clock.advance(2 * time.Minute)
	assert.Equal(t, StateHalfOpen, cb.State())

	// Then: a successful probe closes the circuit
	v, err := CircuitCall(cb, func() (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	cb := NewCircuitBreaker("reranker", WithMaxFailures(3), WithResetTimeout(time.Minute), WithClock(clock.now))
	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	clock.advance(2 * time.Minute)

	cb.RecordFailure()

	assert.Equal(t, StateOpen, cb.State())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(9).String())
}
