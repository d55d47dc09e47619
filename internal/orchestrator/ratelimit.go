package orchestrator

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiterConfig configures a per-provider token bucket.
type RateLimiterConfig struct {
	Capacity      int
	RefillPerSec  float64
}

// RateLimiter throttles requests to a provider using a token bucket, so a
// burst of batches doesn't exceed what the provider can sustain.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter constructs a limiter with cfg.Capacity burst tokens,
// refilled at cfg.RefillPerSec tokens/second.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = 1
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(cfg.RefillPerSec), capacity),
	}
}

// Wait blocks until a token is available or ctx is cancelled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}
