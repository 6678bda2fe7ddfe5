// Package circuitbreaker implements the executor's consecutive-failure
// circuit breaker, using the same mutex-guarded-counter idiom as
// internal/db/sqlite_lock.go.
package circuitbreaker

import (
	"sync"
	"time"
)

// Breaker trips open after Threshold consecutive failures and stays open
// until ResetAfter elapses; a single success resets the counter and closes
// the circuit.
type Breaker struct {
	mu           sync.Mutex
	Threshold    int
	ResetAfter   time.Duration
	consecutive  int
	openedAt     time.Time
	open         bool
}

// New returns a Breaker with the given threshold and reset window.
func New(threshold int, resetAfter time.Duration) *Breaker {
	return &Breaker{Threshold: threshold, ResetAfter: resetAfter}
}

// Allow reports whether a call may proceed. While the circuit is open it
// refuses calls until the reset window has elapsed; after that it lets
// every call through, without clearing the counter, until RecordSuccess
// closes the circuit or a further RecordFailure re-trips it.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return true
	}
	if time.Since(b.openedAt) >= b.ResetAfter {
		return true
	}
	return false
}

// RecordSuccess resets the consecutive-failure counter and closes the
// circuit.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutive = 0
	b.open = false
}

// RecordFailure increments the counter and trips the breaker open once the
// threshold is reached.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutive++
	if b.consecutive >= b.Threshold {
		b.open = true
		b.openedAt = time.Now()
	}
}

// IsOpen reports the breaker's current state without mutating it.
func (b *Breaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open && time.Since(b.openedAt) < b.ResetAfter
}
