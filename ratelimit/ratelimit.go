// Package ratelimit paces outbound calls to the two service clients
// and backs off when a service starts answering 429. Neither service A's
// nor service B's original client has a standalone limiter — service A's
// pacing is inline sleeps in its request loop, service B has none at all
// (see sync/spotify.py, sync/yandex.py) — this package generalizes that
// into one reusable limiter. The service A client uses it; the service B
// client does not pace its calls.
package ratelimit

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter paces a single service's outbound requests and tracks a
// per-service exponential backoff after consecutive rate-limit errors.
type RateLimiter struct {
	limiter           *rate.Limiter
	mu                sync.Mutex
	consecutiveErrors int
	currentDelay      time.Duration
	config            *Config
}

// Config holds one service's pacing and backoff parameters.
type Config struct {
	APIDelay          time.Duration
	BackoffMultiplier float64
	MaxDelay          time.Duration
	MaxAttempts       int
}

// DefaultConfig returns default rate limiter configuration
func DefaultConfig() *Config {
	return &Config{
		APIDelay:          200 * time.Millisecond, // Default 200ms between API calls
		BackoffMultiplier: 2.0,
		MaxDelay:          30 * time.Second,
		MaxAttempts:       5,
	}
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(cfg *Config) *RateLimiter {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	// Calculate requests per second from delay
	rps := float64(time.Second) / float64(cfg.APIDelay)

	return &RateLimiter{
		limiter:      rate.NewLimiter(rate.Limit(rps), 1),
		currentDelay: cfg.APIDelay,
		config:       cfg,
	}
}

// Wait blocks until the limiter admits the next outbound request.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// HandleError classifies err as rate-limit related or not. For a rate
// limit error it advances the consecutive-error count, widens the
// limiter's pacing, and reports whether the caller's own retry loop
// should try again (false once MaxAttempts is reached) along with how
// long to wait before doing so.
func (r *RateLimiter) HandleError(err error) (shouldRetry bool, waitTime time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	errStr := strings.ToLower(err.Error())

	// Check if it's a rate limit error
	if strings.Contains(errStr, "429") || strings.Contains(errStr, "rate limit") {
		r.consecutiveErrors++

		// Calculate exponential backoff
		waitTime = time.Duration(math.Min(
			float64(r.currentDelay)*math.Pow(r.config.BackoffMultiplier, float64(r.consecutiveErrors-1)),
			float64(r.config.MaxDelay),
		))

		// Update rate limiter to slow down
		newDelay := waitTime
		if newDelay > r.currentDelay {
			r.currentDelay = newDelay
			// Update rate limiter with new delay
			rps := float64(time.Second) / float64(newDelay)
			r.limiter.SetLimit(rate.Limit(rps))
		}

		return r.consecutiveErrors < r.config.MaxAttempts, waitTime
	}

	// Not a rate limit error
	return false, 0
}

// Success clears the consecutive-error count and restores the
// limiter's original pacing. Callers report a successful response here
// so a past 429 streak doesn't keep pacing slowed indefinitely.
func (r *RateLimiter) Success() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.consecutiveErrors > 0 {
		r.consecutiveErrors = 0
		r.currentDelay = r.config.APIDelay
		rps := float64(time.Second) / float64(r.config.APIDelay)
		r.limiter.SetLimit(rate.Limit(rps))
	}
}
