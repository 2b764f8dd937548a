// Package ratelimit bounds the request rate of the podbulk client using
// token buckets from golang.org/x/time/rate.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// RateLimiter wraps a token bucket and warns when callers wait long.
// A nil *RateLimiter never blocks.
type RateLimiter struct {
	limiter      *rate.Limiter
	name         string
	lastWarnTime time.Time
	mu           sync.Mutex
}

// NewRateLimiter creates a rate limiter.
//
// Parameters:
//   - tokensPerSecond: Rate at which tokens are added. <= 0 means unlimited.
//   - burstSize: Maximum tokens that can accumulate (allows brief bursts)
func NewRateLimiter(name string, tokensPerSecond float64, burstSize int) *RateLimiter {
	limit := rate.Limit(tokensPerSecond)
	if tokensPerSecond <= 0 {
		limit = rate.Inf
	}
	if burstSize < 1 {
		burstSize = 1
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(limit, burstSize),
		name:    name,
	}
}

// Wait blocks until a token is available or ctx is cancelled.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if rl == nil {
		return nil
	}

	r := rl.limiter.Reserve()
	if !r.OK() {
		return rl.limiter.Wait(ctx)
	}
	delay := r.Delay()
	if delay == 0 {
		return nil
	}

	if delay > 2*time.Second {
		rl.mu.Lock()
		if time.Since(rl.lastWarnTime) > 10*time.Second {
			log.Warn().Str("scope", rl.name).Dur("wait", delay).Msg("rate limited, waiting for request capacity")
			rl.lastWarnTime = time.Now()
		}
		rl.mu.Unlock()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
