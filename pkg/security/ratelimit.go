package security

import (
	"fmt"
	"sync"
	"time"
)

// RateLimitError is returned when a request exceeds its rate limit. It
// carries everything the boundary needs for a 429 response.
type RateLimitError struct {
	Limit      int
	Window     int // seconds
	RetryAfter float64
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded: %d requests per %ds, retry after %.1fs",
		e.Limit, e.Window, e.RetryAfter)
}

// TokenBucket accumulates capacity at refillRate tokens per second, capped
// at capacity. Refill is lazy: it is computed from true elapsed wall-clock
// time on each access, so no background timer is needed and the result is
// exact for any calling cadence.
type TokenBucket struct {
	mu         sync.Mutex
	capacity   int
	refillRate float64
	tokens     float64
	lastRefill time.Time
}

func NewTokenBucket(capacity int, refillRate float64) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		refillRate: refillRate,
		tokens:     float64(capacity),
		lastRefill: time.Now(),
	}
}

// Consume takes cost tokens from the bucket. When the bucket holds too few
// it reports false along with the seconds until enough tokens accrue.
// Refill-and-consume is atomic with respect to concurrent callers.
func (b *TokenBucket) Consume(cost int) (bool, float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens = min(float64(b.capacity), b.tokens+elapsed*b.refillRate)
	b.lastRefill = now

	if b.tokens >= float64(cost) {
		b.tokens -= float64(cost)
		return true, 0
	}
	return false, (float64(cost) - b.tokens) / b.refillRate
}

func (b *TokenBucket) lastTouched() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastRefill
}

type bucketKey struct {
	clientID string
	endpoint string
}

type endpointLimit struct {
	limit  int
	window int
}

// RateLimiter enforces per-(client, endpoint) token-bucket limits. Buckets
// are created lazily on first access and kept until reset or swept by
// CleanupStaleBuckets. Each bucket carries its own lock, so contention on
// one key never blocks another beyond the shared map lookup.
type RateLimiter struct {
	defaultLimit int
	window       int // seconds
	enabled      bool

	mu             sync.Mutex
	endpointLimits map[string]endpointLimit
	buckets        map[bucketKey]*TokenBucket
}

func NewRateLimiter(defaultLimit, window int, enabled bool) *RateLimiter {
	return &RateLimiter{
		defaultLimit:   defaultLimit,
		window:         window,
		enabled:        enabled,
		endpointLimits: make(map[string]endpointLimit),
		buckets:        make(map[bucketKey]*TokenBucket),
	}
}

// SetEndpointLimit overrides the limit for one endpoint. window == 0 uses
// the limiter's default window. Existing buckets keep the parameters they
// were created with: an override applies only to buckets first touched
// after the call. This is deliberate, documented behavior.
func (l *RateLimiter) SetEndpointLimit(endpoint string, limit, window int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if window == 0 {
		window = l.window
	}
	l.endpointLimits[endpoint] = endpointLimit{limit: limit, window: window}
}

// GetLimit returns the (limit, window) pair in effect for an endpoint.
func (l *RateLimiter) GetLimit(endpoint string) (int, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.getLimitLocked(endpoint)
}

func (l *RateLimiter) getLimitLocked(endpoint string) (int, int) {
	if el, ok := l.endpointLimits[endpoint]; ok {
		return el.limit, el.window
	}
	return l.defaultLimit, l.window
}

func (l *RateLimiter) bucket(clientID, endpoint string) *TokenBucket {
	key := bucketKey{clientID: clientID, endpoint: endpoint}

	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		limit, window := l.getLimitLocked(endpoint)
		b = NewTokenBucket(limit, float64(limit)/float64(window))
		l.buckets[key] = b
	}
	return b
}

// CheckLimit consumes cost tokens for (clientID, endpoint) and returns a
// *RateLimitError when the limit is exceeded. It is a no-op when the
// limiter is disabled.
func (l *RateLimiter) CheckLimit(clientID, endpoint string, cost int) error {
	if !l.enabled {
		return nil
	}

	allowed, retryAfter := l.bucket(clientID, endpoint).Consume(cost)
	if allowed {
		return nil
	}
	limit, window := l.GetLimit(endpoint)
	return &RateLimitError{Limit: limit, Window: window, RetryAfter: retryAfter}
}

// ResetClient drops the bucket for (clientID, endpoint), or every bucket
// for clientID when endpoint is empty.
func (l *RateLimiter) ResetClient(clientID, endpoint string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if endpoint != "" {
		delete(l.buckets, bucketKey{clientID: clientID, endpoint: endpoint})
		return
	}
	for key := range l.buckets {
		if key.clientID == clientID {
			delete(l.buckets, key)
		}
	}
}

// CleanupStaleBuckets removes buckets untouched for longer than maxAge and
// returns the count removed. Eviction is explicit; there is no scheduled
// sweep inside the limiter.
func (l *RateLimiter) CleanupStaleBuckets(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for key, b := range l.buckets {
		if b.lastTouched().Before(cutoff) {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// Stats is a point-in-time snapshot for diagnostics.
type Stats struct {
	Enabled        bool              `json:"enabled"`
	DefaultLimit   int               `json:"default_limit"`
	Window         int               `json:"window"`
	EndpointLimits map[string][2]int `json:"endpoint_limits"`
	ActiveBuckets  int               `json:"active_buckets"`
	Clients        int               `json:"clients"`
}

func (l *RateLimiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	limits := make(map[string][2]int, len(l.endpointLimits))
	for ep, el := range l.endpointLimits {
		limits[ep] = [2]int{el.limit, el.window}
	}
	clients := make(map[string]struct{})
	for key := range l.buckets {
		clients[key.clientID] = struct{}{}
	}
	return Stats{
		Enabled:        l.enabled,
		DefaultLimit:   l.defaultLimit,
		Window:         l.window,
		EndpointLimits: limits,
		ActiveBuckets:  len(l.buckets),
		Clients:        len(clients),
	}
}
