package ratelimit

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrBudgetExceeded is returned once a scope has used up its calls for the
// current window.
var ErrBudgetExceeded = errors.New("call budget exceeded")

// CallBudget caps calls per (scope, operation) within time windows. The
// scope is a collaborator side for HTTP calls and a run ID for activities.
// A zero-valued maximum disables the cap.
type CallBudget struct {
	mu     sync.Mutex
	counts map[string]*windowCounter

	maxPerWindow int
	windowSize   time.Duration
	now          func() time.Time
}

type windowCounter struct {
	count     int
	windowEnd time.Time
}

// NewCallBudget creates a budget limiter.
// maxPerWindow limits calls per (scope, operation) within windowSize.
func NewCallBudget(maxPerWindow int, windowSize time.Duration) *CallBudget {
	return &CallBudget{
		counts:       make(map[string]*windowCounter),
		maxPerWindow: maxPerWindow,
		windowSize:   windowSize,
		now:          time.Now,
	}
}

func budgetKey(scope, operation string) string {
	return scope + "|" + operation
}

// Check returns an error if scope has exceeded the budget for operation.
func (b *CallBudget) Check(scope, operation string) error {
	if b == nil || b.maxPerWindow <= 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.check(budgetKey(scope, operation), scope, operation)
}

func (b *CallBudget) check(key, scope, operation string) error {
	wc, ok := b.counts[key]
	if !ok || b.now().After(wc.windowEnd) {
		return nil // no window or expired window
	}
	if wc.count >= b.maxPerWindow {
		return fmt.Errorf("%w: %s %s (%d/%d in window)",
			ErrBudgetExceeded, scope, operation, wc.count, b.maxPerWindow)
	}
	return nil
}

// Record records a call for scope.
func (b *CallBudget) Record(scope, operation string) {
	if b == nil || b.maxPerWindow <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(budgetKey(scope, operation))
}

func (b *CallBudget) record(key string) {
	wc, ok := b.counts[key]
	if !ok || b.now().After(wc.windowEnd) {
		b.counts[key] = &windowCounter{
			count:     1,
			windowEnd: b.now().Add(b.windowSize),
		}
		return
	}
	wc.count++
}

// Spend checks and records one call atomically.
func (b *CallBudget) Spend(scope, operation string) error {
	if b == nil || b.maxPerWindow <= 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	key := budgetKey(scope, operation)
	if err := b.check(key, scope, operation); err != nil {
		return err
	}
	b.record(key)
	return nil
}
