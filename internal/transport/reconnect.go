package transport

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// reconnector computes bounded exponential backoff with jitter.
// maxAttempts counts retries after a failure; zero disables retrying.
type reconnector struct {
	baseDelay   time.Duration
	maxDelay    time.Duration
	maxAttempts int
	attempt     int
	jitter      func() float64
}

func newReconnector(base, maxDelay time.Duration, maxAttempts int) *reconnector {
	return &reconnector{
		baseDelay:   base,
		maxDelay:    maxDelay,
		maxAttempts: maxAttempts,
		jitter:      rand.Float64,
	}
}

func (r *reconnector) shouldRetry() bool {
	return r.attempt < r.maxAttempts
}

// nextDelay returns the wait before the next attempt and counts it.
func (r *reconnector) nextDelay() time.Duration {
	jitter := time.Duration(r.jitter() * float64(r.baseDelay) * 0.5)
	delay := time.Duration(math.Min(
		float64(r.baseDelay)*math.Pow(2, float64(r.attempt))+float64(jitter),
		float64(r.maxDelay),
	))
	r.attempt++
	return delay
}

func (r *reconnector) reset() {
	r.attempt = 0
}

// sleep waits for d or ctx, reporting false when ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
