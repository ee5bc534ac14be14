package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time {
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.t = c.t.Add(d)
}

// newTestBucket builds a bucket with rate 2 tokens/s and capacity 4,
// driven by a fake clock whose sleep advances time instead of blocking.
func newTestBucket(t *testing.T) (*TokenBucket, *fakeClock) {
	t.Helper()

	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	b, err := NewTokenBucket("testex", 2.0, 4.0, 1.0)
	require.NoError(t, err)
	b.now = clock.now
	b.sleep = func(d time.Duration) { clock.advance(d) }
	b.lastRefill = clock.t
	return b, clock
}

func TestNonBlockingAcquire(t *testing.T) {
	b, _ := newTestBucket(t)

	// Three sequential acquisitions from a full bucket all succeed.
	for i := 0; i < 3; i++ {
		assert.True(t, b.Acquire(1, false))
	}
	assert.InDelta(t, 1.0, b.AvailableTokens(), 1e-9)

	// A fourth for two tokens fails and leaves the bucket untouched.
	assert.False(t, b.Acquire(2, false))
	assert.InDelta(t, 1.0, b.AvailableTokens(), 1e-9)

	stats := b.Stats()
	assert.Equal(t, uint64(4), stats.TotalRequests)
	assert.Equal(t, uint64(1), stats.RejectedRequests)
	assert.InDelta(t, 0.25, stats.RejectionRate, 1e-9)
}

func TestBlockingAcquireSleepsExactDeficit(t *testing.T) {
	b, clock := newTestBucket(t)
	start := clock.t

	require.True(t, b.Acquire(3, false)) // leaves 1 token

	// Needs 2, has 1: deficit/rate = 1/2 = 500ms, then the bucket drains.
	assert.True(t, b.Acquire(2, true))
	assert.Equal(t, 500*time.Millisecond, clock.t.Sub(start))
	assert.InDelta(t, 0.0, b.AvailableTokens(), 1e-9)

	stats := b.Stats()
	assert.InDelta(t, 0.5, stats.TotalWaitSeconds, 1e-9)
}

func TestRefillIsContinuousAndBounded(t *testing.T) {
	b, clock := newTestBucket(t)

	require.True(t, b.Acquire(4, false))
	assert.InDelta(t, 0.0, b.AvailableTokens(), 1e-9)

	clock.advance(250 * time.Millisecond)
	assert.InDelta(t, 0.5, b.AvailableTokens(), 1e-9)

	// Refill never exceeds capacity no matter how long we idle.
	clock.advance(time.Hour)
	assert.InDelta(t, 4.0, b.AvailableTokens(), 1e-9)
}

func TestWaitTimeDoesNotConsume(t *testing.T) {
	b, _ := newTestBucket(t)

	require.True(t, b.Acquire(4, false))
	assert.Equal(t, 500*time.Millisecond, b.WaitTime(1))
	assert.Equal(t, time.Second, b.WaitTime(2))
	assert.InDelta(t, 0.0, b.AvailableTokens(), 1e-9)

	// Enough tokens means no wait.
	b.Reset()
	assert.Equal(t, time.Duration(0), b.WaitTime(2))
}

func TestReset(t *testing.T) {
	b, _ := newTestBucket(t)

	require.True(t, b.Acquire(4, false))
	b.Reset()
	assert.InDelta(t, 4.0, b.AvailableTokens(), 1e-9)
}

func TestDefaultRateTable(t *testing.T) {
	b, err := NewTokenBucket("Bybit", 0, 0, 0)
	require.NoError(t, err)
	// 2 req/s nominal at the 0.8 default margin, two seconds of burst.
	assert.InDelta(t, 1.6, b.rate, 1e-9)
	assert.InDelta(t, 3.2, b.capacity, 1e-9)

	unknown, err := NewTokenBucket("nosuchexchange", 0, 0, 0)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, unknown.rate, 1e-9)
}

func TestInvalidConfiguration(t *testing.T) {
	_, err := NewTokenBucket("testex", -1, 0, 0)
	assert.Error(t, err)

	_, err = NewTokenBucket("testex", 2, -4, 0)
	assert.Error(t, err)

	_, err = NewTokenBucket("testex", 2, 4, 1.5)
	assert.Error(t, err)

	_, err = NewTokenBucket("testex", 2, 4, -0.5)
	assert.Error(t, err)
}
