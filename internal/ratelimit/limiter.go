package ratelimit

import (
	"sync"
	"time"
)

// LimitResult contains the result of a rate limit check.
type LimitResult struct {
	Allowed   bool    // Whether the request is allowed
	Remaining float64 // Remaining tokens in the caller's bucket
}

// bucket is a token bucket guarding one remote address's request budget:
// thread-safe, with tokens refilled lazily based on elapsed wall-clock time
// rather than a background ticker.
type bucket struct {
	mu         sync.Mutex
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

// newBucket creates a bucket starting full: capacity tokens, refilling at
// refillRate tokens/second.
func newBucket(capacity, refillRate float64) *bucket {
	return &bucket{
		tokens:     capacity,
		capacity:   capacity,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// tryConsume attempts to consume n tokens, refilling first. Returns false if
// the bucket doesn't hold n tokens even after refill.
func (b *bucket) tryConsume(n float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()

	if b.tokens >= n {
		b.tokens -= n
		return true
	}
	return false
}

// refill must be called with mu held.
func (b *bucket) refill() {
	now := time.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.lastRefill = now

	b.tokens += elapsed * b.refillRate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
}

// availableTokens returns the current token count after refilling.
func (b *bucket) availableTokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	return b.tokens
}

// waitFor returns how long the caller must wait until n tokens are
// available, or 0 if they already are.
func (b *bucket) waitFor(n float64) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()

	if b.tokens >= n {
		return 0
	}
	needed := n - b.tokens
	seconds := needed / b.refillRate
	return time.Duration(seconds * float64(time.Second))
}

// reset refills the bucket to full capacity immediately.
func (b *bucket) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens = b.capacity
	b.lastRefill = time.Now()
}

// Limiter enforces one token-bucket budget per remote address, guarding the
// REST SQL endpoint against a single noisy client starving the others.
type Limiter struct {
	mu      sync.Mutex
	enabled bool
	config  *Config
	buckets map[string]*bucket
	metrics *Metrics
}

// NewLimiter creates a new rate limiter from configuration.
func NewLimiter(cfg *Config) *Limiter {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Limiter{
		enabled: cfg.Enabled,
		config:  cfg,
		buckets: make(map[string]*bucket),
		metrics: NewMetrics(),
	}
}

// Allow checks whether a request from remoteAddr is allowed, lazily
// creating that address's bucket on first use.
func (l *Limiter) Allow(remoteAddr string) *LimitResult {
	if !l.enabled {
		return &LimitResult{Allowed: true, Remaining: -1}
	}

	l.mu.Lock()
	b, ok := l.buckets[remoteAddr]
	if !ok {
		b = newBucket(float64(l.config.Burst), l.config.RequestsPerSecond)
		l.buckets[remoteAddr] = b
	}
	l.mu.Unlock()

	if b.tryConsume(1) {
		l.metrics.RecordAllowed(remoteAddr)
		return &LimitResult{Allowed: true, Remaining: b.availableTokens()}
	}
	l.metrics.RecordRejection(remoteAddr)
	return &LimitResult{Allowed: false, Remaining: b.availableTokens()}
}

// IsEnabled returns whether rate limiting is enabled.
func (l *Limiter) IsEnabled() bool {
	return l.enabled
}

// SetEnabled enables or disables rate limiting.
func (l *Limiter) SetEnabled(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = enabled
}

// GetMetrics returns the limiter's running metrics.
func (l *Limiter) GetMetrics() *Metrics {
	return l.metrics
}

// Remaining returns the available tokens for a specific remote address, or
// -1 if it has not made a request yet. Exposed for tests.
func (l *Limiter) Remaining(remoteAddr string) float64 {
	l.mu.Lock()
	b, ok := l.buckets[remoteAddr]
	l.mu.Unlock()
	if !ok {
		return -1
	}
	return b.availableTokens()
}

// Reset resets every known bucket to full capacity.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, b := range l.buckets {
		b.reset()
	}
}
