// Package ratelimit keeps one token bucket per key so every caller sharing
// a key (an upstream source, an API client) shares the same budget.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limit is a sustained rate plus burst.
type Limit struct {
	RequestsPerSecond float64
	Burst             int
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Registry hands out shared limiters by key. It is safe for concurrent
// use.
type Registry struct {
	mu       sync.Mutex
	entries  map[string]*entry
	fallback Limit
	now      func() time.Time
}

// NewRegistry creates a Registry. fallback is used for keys registered
// without an explicit limit.
func NewRegistry(fallback Limit) *Registry {
	return &Registry{
		entries:  make(map[string]*entry),
		fallback: fallback,
		now:      time.Now,
	}
}

// For returns the limiter for key, creating it with l on first use. Later
// calls return the existing limiter and ignore l so all holders keep
// sharing one bucket.
func (r *Registry) For(key string, l Limit) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[key]; ok {
		e.lastSeen = r.now()
		return e.limiter
	}
	if l.RequestsPerSecond <= 0 {
		l = r.fallback
	}
	e := &entry{limiter: newLimiter(l), lastSeen: r.now()}
	r.entries[key] = e
	return e.limiter
}

// Wait blocks until key's limiter grants a token or ctx is done.
func (r *Registry) Wait(ctx context.Context, key string) error {
	return r.For(key, Limit{}).Wait(ctx)
}

// Len returns the number of live buckets.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Evict drops buckets not used within ttl and returns how many went.
func (r *Registry) Evict(ttl time.Duration) int {
	cutoff := r.now().Add(-ttl)
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for key, e := range r.entries {
		if e.lastSeen.Before(cutoff) {
			delete(r.entries, key)
			n++
		}
	}
	return n
}

// StartEviction runs Evict every interval until the returned stop func is
// called.
func (r *Registry) StartEviction(interval, ttl time.Duration) (stop func()) {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.Evict(ttl)
			case <-done:
				return
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

func newLimiter(l Limit) *rate.Limiter {
	if l.RequestsPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := l.Burst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(l.RequestsPerSecond), burst)
}
