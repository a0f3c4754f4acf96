package ai

import (
	"sync"
	"time"
)

// Breaker states.
const (
	StateClosed = "closed"
	StateOpen   = "open"
)

// CircuitBreaker is a mutex-guarded failure counter for one operation kind.
// CLOSED passes calls through; once failureCount reaches the threshold the
// circuit is OPEN and calls skip the external generator entirely. The
// circuit auto-resets to CLOSED (count zeroed) when the cooldown has elapsed
// since the last failure — checked lazily on each call, no background timer.
type CircuitBreaker struct {
	mu              sync.Mutex
	failureCount    int
	lastFailureTime time.Time

	threshold int
	cooldown  time.Duration
	now       func() time.Time
}

// NewCircuitBreaker creates a breaker with the given threshold and cooldown.
// A nil clock defaults to time.Now.
func NewCircuitBreaker(threshold int, cooldown time.Duration, clock func() time.Time) *CircuitBreaker {
	if clock == nil {
		clock = time.Now
	}
	return &CircuitBreaker{threshold: threshold, cooldown: cooldown, now: clock}
}

// Allow reports whether a call may reach the external generator, applying
// the lazy cooldown reset first.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.maybeReset()
	return cb.failureCount < cb.threshold
}

// RecordFailure counts one failed call sequence (a single call's exhausted
// retries count once, not per attempt).
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failureCount++
	cb.lastFailureTime = cb.now()
}

// RecordSuccess zeroes the failure count.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failureCount = 0
}

// State returns "open" or "closed" after applying the lazy reset.
func (cb *CircuitBreaker) State() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.maybeReset()
	if cb.failureCount >= cb.threshold {
		return StateOpen
	}
	return StateClosed
}

// FailureCount returns the current failure count after the lazy reset.
func (cb *CircuitBreaker) FailureCount() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.maybeReset()
	return cb.failureCount
}

// maybeReset zeroes the counter once the cooldown has elapsed since the
// last failure. Caller must hold cb.mu.
func (cb *CircuitBreaker) maybeReset() {
	if cb.failureCount >= cb.threshold && cb.now().Sub(cb.lastFailureTime) > cb.cooldown {
		cb.failureCount = 0
	}
}
