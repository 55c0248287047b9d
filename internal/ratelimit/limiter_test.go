package ratelimit

import (
	"testing"
	"time"
)

func TestNewLimiter(t *testing.T) {
	cfg := &Config{Enabled: true, RequestsPerSecond: 100, Burst: 200}
	limiter := NewLimiter(cfg)

	if !limiter.IsEnabled() {
		t.Error("expected limiter to be enabled")
	}
	if limiter.Remaining("1.2.3.4") != -1 {
		t.Error("expected no bucket before first request")
	}
	limiter.Allow("1.2.3.4")
	if limiter.Remaining("1.2.3.4") < 0 {
		t.Error("expected a bucket for 1.2.3.4 after its first request")
	}
}

func TestAllowPerAddress(t *testing.T) {
	cfg := &Config{Enabled: true, RequestsPerSecond: 1, Burst: 2}
	limiter := NewLimiter(cfg)

	if !limiter.Allow("addr-a").Allowed {
		t.Error("expected first request from addr-a to be allowed")
	}
	if !limiter.Allow("addr-a").Allowed {
		t.Error("expected second request from addr-a to be allowed (burst)")
	}
	if limiter.Allow("addr-a").Allowed {
		t.Error("expected third request from addr-a to be rejected")
	}

	// A different address has its own independent bucket.
	if !limiter.Allow("addr-b").Allowed {
		t.Error("expected addr-b's first request to be allowed despite addr-a being exhausted")
	}
}

func TestDisabledLimiter(t *testing.T) {
	cfg := &Config{Enabled: false, RequestsPerSecond: 1, Burst: 1}
	limiter := NewLimiter(cfg)

	for i := 0; i < 50; i++ {
		if !limiter.Allow("test").Allowed {
			t.Fatalf("expected request %d to be allowed when disabled", i)
		}
	}
}

func TestSetEnabled(t *testing.T) {
	cfg := &Config{Enabled: true, RequestsPerSecond: 1, Burst: 1}
	limiter := NewLimiter(cfg)

	limiter.Allow("test")
	if limiter.Allow("test").Allowed {
		t.Error("expected request to be rejected once the bucket is exhausted")
	}

	limiter.SetEnabled(false)
	if !limiter.Allow("test").Allowed {
		t.Error("expected request to be allowed once disabled")
	}
}

func TestLimiterMetrics(t *testing.T) {
	cfg := &Config{Enabled: true, RequestsPerSecond: 1, Burst: 1}
	limiter := NewLimiter(cfg)

	limiter.Allow("test")
	limiter.Allow("test")

	m := limiter.GetMetrics()
	if m.TotalAllowed() != 1 {
		t.Errorf("expected 1 allowed, got %d", m.TotalAllowed())
	}
	if m.TotalRejected() != 1 {
		t.Errorf("expected 1 rejected, got %d", m.TotalRejected())
	}
}

func TestLimiterReset(t *testing.T) {
	cfg := &Config{Enabled: true, RequestsPerSecond: 1, Burst: 2}
	limiter := NewLimiter(cfg)

	limiter.Allow("test")
	limiter.Allow("test")
	if limiter.Allow("test").Allowed {
		t.Fatal("expected bucket to be exhausted before reset")
	}

	limiter.Reset()
	if !limiter.Allow("test").Allowed {
		t.Error("expected request to be allowed after reset")
	}
}

func TestBucketStartsFull(t *testing.T) {
	b := newBucket(10, 5)

	if b.capacity != 10 {
		t.Errorf("expected capacity 10, got %f", b.capacity)
	}
	if b.refillRate != 5 {
		t.Errorf("expected refill rate 5, got %f", b.refillRate)
	}
	if b.availableTokens() < 9.9 { // Allow small time drift
		t.Errorf("expected ~10 tokens, got %f", b.availableTokens())
	}
}

func TestBucketTryConsume(t *testing.T) {
	b := newBucket(10, 1)

	if !b.tryConsume(5) {
		t.Error("expected consume to succeed")
	}
	if !b.tryConsume(3) {
		t.Error("expected consume to succeed")
	}
	if b.tryConsume(5) {
		t.Error("expected consume to fail with only ~2 tokens left")
	}
}

func TestBucketRefill(t *testing.T) {
	b := newBucket(10, 100) // 100 tokens/sec

	b.tryConsume(10)
	if b.availableTokens() > 0.5 {
		t.Errorf("expected ~0 tokens after consume, got %f", b.availableTokens())
	}

	time.Sleep(50 * time.Millisecond) // Should refill ~5 tokens

	tokens := b.availableTokens()
	if tokens < 4 || tokens > 6 {
		t.Errorf("expected ~5 tokens after refill, got %f", tokens)
	}
}

func TestBucketWaitFor(t *testing.T) {
	b := newBucket(10, 10) // 10 tokens/sec
	b.tryConsume(10)

	wait := b.waitFor(5) // need 5 tokens = 0.5 seconds
	if wait < 400*time.Millisecond || wait > 600*time.Millisecond {
		t.Errorf("expected ~500ms wait time, got %v", wait)
	}
}

func TestBucketReset(t *testing.T) {
	b := newBucket(10, 1)

	b.tryConsume(8)
	b.reset()

	if b.availableTokens() < 9.9 {
		t.Errorf("expected ~10 tokens after reset, got %f", b.availableTokens())
	}
}

func TestBucketCapacityLimit(t *testing.T) {
	b := newBucket(10, 100)

	time.Sleep(200 * time.Millisecond) // accumulate more than capacity

	if b.availableTokens() > 10.1 {
		t.Errorf("expected tokens <= 10, got %f", b.availableTokens())
	}
}
