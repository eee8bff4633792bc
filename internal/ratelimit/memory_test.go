package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func closeLimiter(t *testing.T, m *MemoryLimiter) {
	t.Helper()
	if err := m.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
}

func TestMemoryLimiterAllowUnderBurst(t *testing.T) {
	m := NewMemoryLimiter(10, 5)
	defer closeLimiter(t, m)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		ok, err := m.Allow(ctx, "k1")
		if err != nil {
			t.Fatalf("Allow returned error on request %d: %v", i, err)
		}
		if !ok {
			t.Fatalf("expected Allow=true for request %d (within burst)", i)
		}
	}

	// Burst exhausted; the next request is denied.
	ok, err := m.Allow(ctx, "k1")
	if err != nil {
		t.Fatalf("Allow error: %v", err)
	}
	if ok {
		t.Fatal("expected Allow=false after burst exhausted")
	}
}

func TestMemoryLimiterRefill(t *testing.T) {
	// 1000 tokens/s is one per millisecond; with burst 2, a few ms of
	// waiting is enough to earn a token back.
	m := NewMemoryLimiter(1000, 2)
	defer closeLimiter(t, m)

	ctx := context.Background()
	_, _ = m.Allow(ctx, "k1")
	_, _ = m.Allow(ctx, "k1")
	if ok, _ := m.Allow(ctx, "k1"); ok {
		t.Fatal("should be denied immediately after exhausting burst")
	}

	time.Sleep(5 * time.Millisecond)

	ok, err := m.Allow(ctx, "k1")
	if err != nil {
		t.Fatalf("Allow error: %v", err)
	}
	if !ok {
		t.Fatal("expected Allow=true after refill period")
	}
}

func TestMemoryLimiterRefillCapsAtBurst(t *testing.T) {
	m := NewMemoryLimiter(1000, 3)
	defer closeLimiter(t, m)

	ctx := context.Background()
	_, _ = m.Allow(ctx, "k1")

	// Backdate so a huge refill would be computed; it must cap at burst.
	m.mu.Lock()
	m.buckets["k1"].lastRefill = time.Now().Add(-time.Hour)
	m.mu.Unlock()

	for i := 0; i < 3; i++ {
		if ok, _ := m.Allow(ctx, "k1"); !ok {
			t.Fatalf("expected Allow=true for request %d after long idle", i)
		}
	}
	if ok, _ := m.Allow(ctx, "k1"); ok {
		t.Fatal("expected Allow=false once the capped burst is spent")
	}
}

func TestMemoryLimiterKeysAreIndependent(t *testing.T) {
	m := NewMemoryLimiter(10, 1)
	defer closeLimiter(t, m)

	ctx := context.Background()
	if ok, _ := m.Allow(ctx, "a"); !ok {
		t.Fatal("first request for 'a' should succeed")
	}
	if ok, _ := m.Allow(ctx, "a"); ok {
		t.Fatal("second request for 'a' should be denied")
	}
	if ok, _ := m.Allow(ctx, "b"); !ok {
		t.Fatal("'b' should not be affected by 'a' spending its budget")
	}
}

func TestMemoryLimiterConcurrentSharedKey(t *testing.T) {
	m := NewMemoryLimiter(100, 50)
	defer closeLimiter(t, m)

	ctx := context.Background()
	var wg sync.WaitGroup
	allowed := make([]int, 10)

	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				ok, err := m.Allow(ctx, "shared")
				if err != nil {
					t.Errorf("goroutine %d: Allow error: %v", idx, err)
					return
				}
				if ok {
					allowed[idx]++
				}
			}
		}(g)
	}
	wg.Wait()

	total := 0
	for _, c := range allowed {
		total += c
	}
	// 100 near-simultaneous requests against burst 50: some allowed, never
	// meaningfully more than the burst.
	if total < 1 || total > 51 {
		t.Fatalf("expected between 1 and 51 allowed requests, got %d", total)
	}
}

func TestMemoryLimiterEviction(t *testing.T) {
	m := NewMemoryLimiter(10, 5)
	defer closeLimiter(t, m)

	ctx := context.Background()
	_, _ = m.Allow(ctx, "idle")
	_, _ = m.Allow(ctx, "active")

	m.mu.Lock()
	m.buckets["idle"].lastRefill = time.Now().Add(-15 * time.Minute)
	m.mu.Unlock()

	m.evictIdle(time.Now())

	if m.size() != 1 {
		t.Fatalf("expected 1 surviving bucket, got %d", m.size())
	}
	m.mu.Lock()
	_, exists := m.buckets["active"]
	m.mu.Unlock()
	if !exists {
		t.Fatal("expected the recently used bucket to survive eviction")
	}
}

func TestMemoryLimiterCloseIdempotent(t *testing.T) {
	m := NewMemoryLimiter(10, 5)
	if err := m.Close(); err != nil {
		t.Fatalf("first Close error: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second Close error: %v", err)
	}
}

func TestNoopLimiterAlwaysAllows(t *testing.T) {
	var l NoopLimiter
	ctx := context.Background()
	for i := 0; i < 100; i++ {
		ok, err := l.Allow(ctx, "anything")
		if err != nil {
			t.Fatalf("NoopLimiter.Allow error: %v", err)
		}
		if !ok {
			t.Fatal("NoopLimiter should always allow")
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("NoopLimiter.Close error: %v", err)
	}
}
