package ratelimit

import (
	"sync"
	"testing"

	"github.com/quantdesk/tradecore/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryReturnsSharedBucket(t *testing.T) {
	r := NewRegistry(config.LimiterConfig{SafetyMargin: 1.0})

	a, err := r.Limiter("Bybit")
	require.NoError(t, err)
	b, err := r.Limiter("bybit")
	require.NoError(t, err)
	assert.Same(t, a, b, "one exchange must map to exactly one bucket")
}

func TestRegistryConcurrentFirstCallers(t *testing.T) {
	r := NewRegistry(config.LimiterConfig{SafetyMargin: 1.0})

	const n = 32
	buckets := make([]*TokenBucket, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b, err := r.Limiter("okx")
			if err != nil {
				t.Error(err)
				return
			}
			buckets[i] = b
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		assert.Same(t, buckets[0], buckets[i])
	}
}

func TestRegistryRateOverrides(t *testing.T) {
	r := NewRegistry(config.LimiterConfig{
		SafetyMargin: 1.0,
		Rates:        map[string]float64{"bybit": 4.0},
	})

	b, err := r.Limiter("bybit")
	require.NoError(t, err)
	assert.InDelta(t, 4.0, b.rate, 1e-9)

	// Unconfigured exchanges fall back to the built-in table.
	d, err := r.Limiter("binance")
	require.NoError(t, err)
	assert.InDelta(t, 20.0, d.rate, 1e-9)
}

func TestRegistryAcquireDelegates(t *testing.T) {
	r := NewRegistry(config.LimiterConfig{SafetyMargin: 1.0, Rates: map[string]float64{"testex": 2.0}})

	ok, err := r.Acquire("testex", 1, false)
	require.NoError(t, err)
	assert.True(t, ok)

	stats := r.AllStats()
	require.Contains(t, stats, "testex")
	assert.Equal(t, uint64(1), stats["testex"].TotalRequests)
}

func TestRegistryInvalidOverride(t *testing.T) {
	r := NewRegistry(config.LimiterConfig{SafetyMargin: 1.0, Rates: map[string]float64{"testex": -1.0}})

	_, err := r.Limiter("testex")
	assert.Error(t, err)
}
