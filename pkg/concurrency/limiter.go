// Package concurrency bounds how many renders run at once and stops a batch early when
// renders keep failing.
package concurrency

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrBreakerOpen is returned instead of running work while the breaker is open
var ErrBreakerOpen = errors.New("too many consecutive failures; breaker is open")

// Stats is a snapshot of limiter activity
type Stats struct {
	Started  int64
	Finished int64
	Failed   int64
	Peak     int64
	Waited   time.Duration
}

// Limiter is a semaphore with an optional breaker
type Limiter struct {
	slots   chan struct{}
	breaker *Breaker

	active   atomic.Int64
	started  atomic.Int64
	finished atomic.Int64
	failed   atomic.Int64
	peak     atomic.Int64
	waitedNs atomic.Int64
}

// NewLimiter allows max concurrent tasks. breaker may be nil.
func NewLimiter(max int, breaker *Breaker) *Limiter {
	if max <= 0 {
		max = 1
	}
	return &Limiter{slots: make(chan struct{}, max), breaker: breaker}
}

// NewLimiterFromConfig builds a limiter and breaker from config
func NewLimiterFromConfig(config *Config) *Limiter {
	var breaker *Breaker
	if config.BreakerThreshold > 0 {
		breaker = NewBreaker(config.BreakerThreshold, config.BreakerCooldown)
	}
	return NewLimiter(config.MaxConcurrent, breaker)
}

func (l *Limiter) acquire(ctx context.Context) error {
	start := time.Now()
	select {
	case l.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	// checked after the slot so failures of the tasks it waited on count
	if l.breaker != nil && !l.breaker.Allow() {
		<-l.slots
		return ErrBreakerOpen
	}
	l.waitedNs.Add(time.Since(start).Nanoseconds())
	l.started.Add(1)
	current := l.active.Add(1)
	for {
		peak := l.peak.Load()
		if current <= peak || l.peak.CompareAndSwap(peak, current) {
			break
		}
	}
	return nil
}

func (l *Limiter) release(err error) {
	l.active.Add(-1)
	l.finished.Add(1)
	if err != nil {
		l.failed.Add(1)
	}
	if l.breaker != nil {
		if err != nil {
			l.breaker.Failure()
		} else {
			l.breaker.Success()
		}
	}
	<-l.slots
}

// Do runs fn once a slot is free
func (l *Limiter) Do(ctx context.Context, fn func(context.Context) error) (err error) {
	if err := l.acquire(ctx); err != nil {
		return err
	}
	defer func() { l.release(err) }()
	return fn(ctx)
}

// Each runs fn for indexes 0..n-1, at most the limiter's capacity at a time, and waits for
// all of them. The returned slice holds each index's error.
func (l *Limiter) Each(ctx context.Context, n int, fn func(ctx context.Context, i int) error) []error {
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		if err := l.acquire(ctx); err != nil {
			errs[i] = err
			continue
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := fn(ctx, i)
			errs[i] = err
			l.release(err)
		}(i)
	}
	wg.Wait()
	return errs
}

// Active returns the number of running tasks
func (l *Limiter) Active() int64 { return l.active.Load() }

// Stats returns a snapshot of limiter activity
func (l *Limiter) Stats() Stats {
	return Stats{
		Started:  l.started.Load(),
		Finished: l.finished.Load(),
		Failed:   l.failed.Load(),
		Peak:     l.peak.Load(),
		Waited:   time.Duration(l.waitedNs.Load()),
	}
}
