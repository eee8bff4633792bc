package ratelimit

import (
	"context"
	"sync"
	"time"
)

// tokenBucket tracks remaining capacity for one key.
type tokenBucket struct {
	remaining  float64
	lastRefill time.Time
}

// MemoryLimiter implements Limiter with one in-process token bucket per key.
//
// Buckets refill continuously at rate tokens per second up to the burst
// capacity. Idle buckets are evicted in the background so a churn of
// one-off keys cannot grow the map without bound.
type MemoryLimiter struct {
	rate  float64
	burst float64

	mu      sync.Mutex
	buckets map[string]*tokenBucket

	stopOnce sync.Once
	done     chan struct{}
}

// NewMemoryLimiter creates a limiter allowing a sustained rate of requests
// per second per key, with bursts up to burst. Call Close to stop the
// eviction goroutine.
func NewMemoryLimiter(rate float64, burst int) *MemoryLimiter {
	m := &MemoryLimiter{
		rate:    rate,
		burst:   float64(burst),
		buckets: make(map[string]*tokenBucket),
		done:    make(chan struct{}),
	}
	go m.evictLoop(time.Minute)
	return m
}

// Allow consumes one token for key, reporting whether the request may
// proceed. It never returns an error; the signature exists so alternative
// Limiter backends can fail.
func (m *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	b, ok := m.buckets[key]
	if !ok {
		// New key starts full, minus the token this request consumes.
		m.buckets[key] = &tokenBucket{remaining: m.burst - 1, lastRefill: now}
		return true, nil
	}

	b.remaining += now.Sub(b.lastRefill).Seconds() * m.rate
	if b.remaining > m.burst {
		b.remaining = m.burst
	}
	b.lastRefill = now

	if b.remaining < 1 {
		return false, nil
	}
	b.remaining--
	return true, nil
}

// Close stops the eviction goroutine. Safe to call more than once.
func (m *MemoryLimiter) Close() error {
	m.stopOnce.Do(func() { close(m.done) })
	return nil
}

// idleTTL is how long a bucket may go untouched before eviction.
const idleTTL = 10 * time.Minute

func (m *MemoryLimiter) evictLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.evictIdle(time.Now())
		}
	}
}

func (m *MemoryLimiter) evictIdle(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := now.Add(-idleTTL)
	for key, b := range m.buckets {
		if b.lastRefill.Before(cutoff) {
			delete(m.buckets, key)
		}
	}
}

// size reports the number of live buckets; used by tests.
func (m *MemoryLimiter) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buckets)
}
