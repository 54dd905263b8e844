package concurrency

import (
	"sync"
	"time"
)

// BreakerState represents the state of a Breaker
type BreakerState int

const (
	// StateClosed lets work through
	StateClosed BreakerState = iota

	// StateOpen rejects work until the cooldown passes
	StateOpen

	// StateHalfOpen lets work through on probation; one failure reopens
	StateHalfOpen
)

// String returns the string representation of the state
func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// Breaker stops a batch from grinding through work that keeps failing the same way, such as
// every page of a site hitting one broken import
type Breaker struct {
	mu        sync.Mutex
	state     BreakerState
	failures  int
	successes int
	openedAt  time.Time

	threshold int
	cooldown  time.Duration
	probes    int
	now       func() time.Time
}

// NewBreaker opens after threshold consecutive failures and half-opens after cooldown
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 10
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{threshold: threshold, cooldown: cooldown, probes: 3, now: time.Now}
}

// Allow reports whether work may start
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		b.state = StateHalfOpen
		b.successes = 0
	}
	return b.state != StateOpen
}

// Success records finished work
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	if b.state == StateHalfOpen {
		b.successes++
		if b.successes >= b.probes {
			b.state = StateClosed
			b.successes = 0
		}
	}
}

// Failure records failed work
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.successes = 0
	b.failures++
	if b.state == StateHalfOpen || (b.state == StateClosed && b.failures >= b.threshold) {
		b.state = StateOpen
		b.openedAt = b.now()
	}
}

// State returns the current state
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
