package embed

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter paces calls to the embedding service.
type RateLimiter interface {
	// Wait blocks until a call may proceed or ctx is done.
	Wait(ctx context.Context) error
}

// NewRateLimiter returns a token bucket refilling callsPerMinute tokens per
// minute. The bucket holds a minute's worth of tokens, so short bursts of
// interactive queries are not delayed. A non-positive rate disables limiting.
func NewRateLimiter(callsPerMinute int) RateLimiter {
	if callsPerMinute <= 0 {
		return Unlimited()
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(callsPerMinute)), callsPerMinute)
}

// Unlimited returns a limiter that never waits.
func Unlimited() RateLimiter {
	return rate.NewLimiter(rate.Inf, 0)
}
