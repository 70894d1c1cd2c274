package security

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucket_ConsumeUntilEmpty(t *testing.T) {
	b := NewTokenBucket(5, 1.0)

	for i := 0; i < 5; i++ {
		allowed, retry := b.Consume(1)
		assert.True(t, allowed, "request %d should be allowed", i)
		assert.Zero(t, retry)
	}

	allowed, retry := b.Consume(1)
	assert.False(t, allowed)
	// Bucket is empty and refills at 1 token/s, so one token is about a
	// second away.
	assert.InDelta(t, 1.0, retry, 0.1)
}

func TestTokenBucket_Refills(t *testing.T) {
	b := NewTokenBucket(2, 100.0)

	b.Consume(2)
	allowed, _ := b.Consume(1)
	assert.False(t, allowed)

	time.Sleep(20 * time.Millisecond)
	allowed, _ = b.Consume(1)
	assert.True(t, allowed, "bucket should refill over time")
}

func TestTokenBucket_CapacityCapped(t *testing.T) {
	b := NewTokenBucket(3, 1000.0)
	time.Sleep(10 * time.Millisecond)

	// Even after plenty of refill time only capacity tokens are present.
	for i := 0; i < 3; i++ {
		allowed, _ := b.Consume(1)
		assert.True(t, allowed)
	}
	allowed, _ := b.Consume(1)
	assert.False(t, allowed)
}

func TestRateLimiter_DefaultLimit(t *testing.T) {
	l := NewRateLimiter(3, 60, true)

	for i := 0; i < 3; i++ {
		assert.NoError(t, l.CheckLimit("client-a", "/v1/images", 1))
	}

	err := l.CheckLimit("client-a", "/v1/images", 1)
	require.Error(t, err)

	var rle *RateLimitError
	require.True(t, errors.As(err, &rle))
	assert.Equal(t, 3, rle.Limit)
	assert.Equal(t, 60, rle.Window)
	assert.Greater(t, rle.RetryAfter, 0.0)
}

func TestRateLimiter_ClientIsolation(t *testing.T) {
	l := NewRateLimiter(1, 60, true)

	assert.NoError(t, l.CheckLimit("client-a", "/v1/images", 1))
	assert.Error(t, l.CheckLimit("client-a", "/v1/images", 1))

	// A different client has its own bucket.
	assert.NoError(t, l.CheckLimit("client-b", "/v1/images", 1))
	// So does the same client on a different endpoint.
	assert.NoError(t, l.CheckLimit("client-a", "/v1/render/line", 1))
}

func TestRateLimiter_EndpointOverride(t *testing.T) {
	l := NewRateLimiter(100, 60, true)
	l.SetEndpointLimit("/v1/render/line", 2, 60)

	limit, window := l.GetLimit("/v1/render/line")
	assert.Equal(t, 2, limit)
	assert.Equal(t, 60, window)

	assert.NoError(t, l.CheckLimit("c", "/v1/render/line", 1))
	assert.NoError(t, l.CheckLimit("c", "/v1/render/line", 1))
	assert.Error(t, l.CheckLimit("c", "/v1/render/line", 1))
}

func TestRateLimiter_OverrideNotRetroactive(t *testing.T) {
	l := NewRateLimiter(10, 60, true)

	// First touch creates the bucket with the default limit.
	assert.NoError(t, l.CheckLimit("c", "/v1/render/bar", 1))

	l.SetEndpointLimit("/v1/render/bar", 1, 60)

	// The existing bucket keeps its original capacity.
	for i := 0; i < 9; i++ {
		assert.NoError(t, l.CheckLimit("c", "/v1/render/bar", 1))
	}
	assert.Error(t, l.CheckLimit("c", "/v1/render/bar", 1))

	// A fresh client gets the new limit.
	assert.NoError(t, l.CheckLimit("other", "/v1/render/bar", 1))
	assert.Error(t, l.CheckLimit("other", "/v1/render/bar", 1))
}

func TestRateLimiter_Disabled(t *testing.T) {
	l := NewRateLimiter(1, 60, false)
	for i := 0; i < 50; i++ {
		assert.NoError(t, l.CheckLimit("c", "/v1/images", 1))
	}
}

func TestRateLimiter_ResetClient(t *testing.T) {
	l := NewRateLimiter(1, 60, true)

	assert.NoError(t, l.CheckLimit("c", "/v1/images", 1))
	assert.Error(t, l.CheckLimit("c", "/v1/images", 1))

	l.ResetClient("c", "/v1/images")
	assert.NoError(t, l.CheckLimit("c", "/v1/images", 1))

	// Empty endpoint drops every bucket for the client.
	assert.NoError(t, l.CheckLimit("c", "/v1/render/line", 1))
	l.ResetClient("c", "")
	assert.NoError(t, l.CheckLimit("c", "/v1/images", 1))
	assert.NoError(t, l.CheckLimit("c", "/v1/render/line", 1))
}

func TestRateLimiter_CleanupStaleBuckets(t *testing.T) {
	l := NewRateLimiter(5, 60, true)

	require.NoError(t, l.CheckLimit("old", "/v1/images", 1))
	time.Sleep(15 * time.Millisecond)
	require.NoError(t, l.CheckLimit("fresh", "/v1/images", 1))

	removed := l.CleanupStaleBuckets(10 * time.Millisecond)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, l.Stats().ActiveBuckets)
}

func TestRateLimiter_Stats(t *testing.T) {
	l := NewRateLimiter(10, 60, true)
	l.SetEndpointLimit("/v1/render/line", 2, 30)

	require.NoError(t, l.CheckLimit("a", "/v1/images", 1))
	require.NoError(t, l.CheckLimit("a", "/v1/render/line", 1))
	require.NoError(t, l.CheckLimit("b", "/v1/images", 1))

	st := l.Stats()
	assert.True(t, st.Enabled)
	assert.Equal(t, 10, st.DefaultLimit)
	assert.Equal(t, 3, st.ActiveBuckets)
	assert.Equal(t, 2, st.Clients)
	assert.Equal(t, [2]int{2, 30}, st.EndpointLimits["/v1/render/line"])
}

func TestRateLimiter_ConcurrentConsumption(t *testing.T) {
	l := NewRateLimiter(100, 3600, true)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.CheckLimit("c", "/v1/images", 1) == nil {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// With a one-hour window the refill during the test is negligible, so
	// exactly the bucket capacity may pass.
	assert.Equal(t, 100, allowed)
}
