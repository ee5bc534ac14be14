package ratelimit

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/quantdesk/tradecore/internal/pkg/logger"
	"github.com/quantdesk/tradecore/internal/pkg/metrics"
)

// DefaultSafetyMargin keeps outbound traffic at 80% of the published
// exchange limit to absorb clock skew and bursty callers.
const DefaultSafetyMargin = 0.8

// defaultBurstSeconds sizes the bucket to two seconds of burst allowance
// when no explicit capacity is given.
const defaultBurstSeconds = 2.0

// exchangeRates holds published per-exchange request limits (req/s)
// before the safety margin is applied.
var exchangeRates = map[string]float64{
	"bybit":   2.0,  // 120/min
	"binance": 20.0, // 1200/min
	"okx":     10.0, // 20/2s
	"bitget":  10.0, // 600/min
	"bingx":   10.0,
	"upbit":   5.0,
	"bithumb": 5.0,
	"lighter": 10.0,
}

const fallbackRate = 5.0

// TokenBucket bounds the outbound request rate to one exchange. The
// bucket refills continuously; each request consumes tokens.
type TokenBucket struct {
	exchange string
	rate     float64 // tokens per second, safety margin already applied
	capacity float64

	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time

	totalRequests    uint64
	rejectedRequests uint64
	totalWait        time.Duration

	now   func() time.Time
	sleep func(time.Duration)
}

// BucketStats is a point-in-time snapshot of a bucket's counters.
type BucketStats struct {
	Exchange         string  `json:"exchange"`
	TotalRequests    uint64  `json:"total_requests"`
	RejectedRequests uint64  `json:"rejected_requests"`
	TotalWaitSeconds float64 `json:"total_wait_seconds"`
	CurrentTokens    float64 `json:"current_tokens"`
	Capacity         float64 `json:"capacity"`
	Rate             float64 `json:"rate_per_second"`
	RejectionRate    float64 `json:"rejection_rate"`
	AvgWaitSeconds   float64 `json:"avg_wait_seconds"`
}

// NewTokenBucket builds a limiter for one exchange. A zero
// requestsPerSecond selects the built-in rate for the exchange (5 req/s
// for unknown names); a zero burstSize derives capacity from the rate.
// Negative values, a rate that resolves to zero, or a safety margin
// outside (0,1] are configuration errors.
func NewTokenBucket(exchange string, requestsPerSecond, burstSize, safetyMargin float64) (*TokenBucket, error) {
	exchange = strings.ToLower(exchange)

	if safetyMargin == 0 {
		safetyMargin = DefaultSafetyMargin
	}
	if safetyMargin < 0 || safetyMargin > 1 {
		return nil, fmt.Errorf("ratelimit: safety margin %v outside (0,1]", safetyMargin)
	}
	if requestsPerSecond < 0 {
		return nil, fmt.Errorf("ratelimit: negative rate %v for %s", requestsPerSecond, exchange)
	}
	if burstSize < 0 {
		return nil, fmt.Errorf("ratelimit: negative burst size %v for %s", burstSize, exchange)
	}

	base := requestsPerSecond
	if base == 0 {
		var ok bool
		if base, ok = exchangeRates[exchange]; !ok {
			base = fallbackRate
		}
	}

	rate := base * safetyMargin
	capacity := burstSize
	if capacity == 0 {
		capacity = rate * defaultBurstSeconds
	}
	if rate <= 0 || capacity <= 0 {
		return nil, fmt.Errorf("ratelimit: non-positive rate or capacity for %s (rate=%v capacity=%v)", exchange, rate, capacity)
	}

	b := &TokenBucket{
		exchange: exchange,
		rate:     rate,
		capacity: capacity,
		tokens:   capacity,
		now:      time.Now,
		sleep:    time.Sleep,
	}
	b.lastRefill = b.now()

	logger.Info("rate limiter created",
		"exchange", exchange,
		"rate", rate,
		"capacity", capacity,
		"safety_margin", safetyMargin,
	)
	return b, nil
}

// Acquire consumes tokens ahead of an API request, refilling the bucket
// for elapsed wall-clock time first. With insufficient tokens a blocking
// call sleeps exactly (requested-available)/rate seconds, drains the
// bucket and succeeds; a non-blocking call fails immediately.
//
// The bucket mutex is held across the sleep on purpose: concurrent
// callers for the same exchange queue behind it, which is exactly the
// serialization the exchange limit demands. A single precomputed sleep
// enforces the rate with one context switch instead of a re-check loop.
func (b *TokenBucket) Acquire(tokens int, blocking bool) bool {
	need := float64(tokens)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	b.totalRequests++
	metrics.RateLimitRequests.WithLabelValues(b.exchange).Inc()

	if b.tokens >= need {
		b.tokens -= need
		return true
	}

	if blocking {
		wait := time.Duration((need - b.tokens) / b.rate * float64(time.Second))
		b.totalWait += wait
		metrics.RateLimitWaitSeconds.WithLabelValues(b.exchange).Add(wait.Seconds())
		logger.Warn("rate limit wait",
			"exchange", b.exchange,
			"wait_seconds", wait.Seconds(),
			"tokens", b.tokens,
			"requested", need,
		)
		b.sleep(wait)
		// The sleep covered exactly the deficit, so the full request is
		// spent and nothing is left over.
		b.tokens = 0
		b.lastRefill = b.now()
		return true
	}

	b.rejectedRequests++
	metrics.RateLimitRejects.WithLabelValues(b.exchange).Inc()
	logger.Warn("rate limit reached",
		"exchange", b.exchange,
		"tokens", b.tokens,
		"capacity", b.capacity,
		"requested", need,
	)
	return false
}

// refill credits tokens for the time elapsed since the last refill.
// Callers must hold b.mu.
func (b *TokenBucket) refill() {
	now := b.now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * b.rate
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
	}
	b.lastRefill = now
}

// AvailableTokens refills then reports the current token count.
func (b *TokenBucket) AvailableTokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	return b.tokens
}

// WaitTime reports how long a blocking Acquire for the given token count
// would sleep right now, without consuming anything.
func (b *TokenBucket) WaitTime(tokens int) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()

	need := float64(tokens)
	if b.tokens >= need {
		return 0
	}
	return time.Duration((need - b.tokens) / b.rate * float64(time.Second))
}

// Reset refills the bucket to capacity. Used after a temporary exchange
// ban is observed to have lifted.
func (b *TokenBucket) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens = b.capacity
	b.lastRefill = b.now()
	logger.Info("rate limiter reset", "exchange", b.exchange)
}

// Stats returns a snapshot of the bucket's counters.
func (b *TokenBucket) Stats() BucketStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := BucketStats{
		Exchange:         b.exchange,
		TotalRequests:    b.totalRequests,
		RejectedRequests: b.rejectedRequests,
		TotalWaitSeconds: b.totalWait.Seconds(),
		CurrentTokens:    b.tokens,
		Capacity:         b.capacity,
		Rate:             b.rate,
	}
	if b.totalRequests > 0 {
		s.RejectionRate = float64(b.rejectedRequests) / float64(b.totalRequests)
		s.AvgWaitSeconds = b.totalWait.Seconds() / float64(b.totalRequests)
	}
	return s
}
