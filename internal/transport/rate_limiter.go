package transport

import (
	"golang.org/x/time/rate"
)

// RateLimiter throttles outbound send-message intents for one session.
// FUNCTIONAL DISCOVERY: a token bucket lets a short burst through (pasting a few lines)
// while holding a runaway client to a steady rate; typing intents are not limited
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter allows rps sends per second with the given burst.
// rps <= 0 disables limiting.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if rps <= 0 {
		return &RateLimiter{}
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Allow reports whether one more send may go out now.
func (rl *RateLimiter) Allow() bool {
	if rl == nil || rl.limiter == nil {
		return true
	}
	return rl.limiter.Allow()
}
