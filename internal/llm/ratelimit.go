package llm

import (
	"context"
	"sync"
	"time"
)

// RateLimiter enforces a minimum interval between generation requests
// across all concurrent jobs. The time of the last dispatch is the only
// mutable state shared between jobs and is guarded by a mutex.
type RateLimiter struct {
	mu          sync.Mutex
	minInterval time.Duration
	last        time.Time

	// now and sleep are swappable for deterministic tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRateLimiter creates a limiter with the given minimum inter-request
// interval. A zero or negative interval disables throttling.
func NewRateLimiter(minInterval time.Duration) *RateLimiter {
	return &RateLimiter{
		minInterval: minInterval,
		now:         time.Now,
		sleep:       sleepCtx,
	}
}

// Wait blocks until the minimum interval since the previous dispatch has
// elapsed, then records the new dispatch time. Returns early with the
// context error on cancellation.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r == nil || r.minInterval <= 0 {
		return ctx.Err()
	}

	r.mu.Lock()
	now := r.now()
	wait := r.minInterval - now.Sub(r.last)
	if wait < 0 {
		wait = 0
	}
	// Reserve the slot before sleeping so concurrent callers queue behind it.
	r.last = now.Add(wait)
	r.mu.Unlock()

	if wait > 0 {
		return r.sleep(ctx, wait)
	}
	return ctx.Err()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
