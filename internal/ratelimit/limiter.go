// Package ratelimit provides token-bucket rate limiters and call budgets for
// the services under comparison.
package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// SideRates configures per-side request rates (requests per second). A rate
// of zero or less disables limiting for that side.
type SideRates struct {
	Reference float64
	Candidate float64
}

// DefaultSideRates keeps hosted reference APIs well under typical tier
// limits and leaves a local candidate unthrottled.
func DefaultSideRates() SideRates {
	return SideRates{
		Reference: 2,
		Candidate: 0,
	}
}

// SideLimiter rate-limits collaborator calls per side using token buckets.
type SideLimiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
}

// NewSideLimiter creates a limiter with the given per-side rates.
func NewSideLimiter(rates SideRates) *SideLimiter {
	sl := &SideLimiter{limiters: make(map[string]*rate.Limiter)}
	sl.Set("reference", rates.Reference)
	sl.Set("candidate", rates.Candidate)
	return sl
}

// Set replaces the rate for side. A rate of zero or less removes the limit.
func (sl *SideLimiter) Set(side string, rps float64) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if rps <= 0 {
		delete(sl.limiters, side)
		return
	}
	sl.limiters[side] = rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
}

// Wait blocks until a token is available for side, or ctx is cancelled.
func (sl *SideLimiter) Wait(ctx context.Context, side string) error {
	sl.mu.RLock()
	limiter, ok := sl.limiters[side]
	sl.mu.RUnlock()
	if !ok {
		return nil // unknown side = no limit
	}
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit %s: %w", side, err)
	}
	return nil
}
