package ratelimit

import (
	"strings"
	"sync"

	"github.com/quantdesk/tradecore/internal/config"
)

// Registry owns one shared TokenBucket per exchange, created lazily on
// first reference. Every worker targeting an exchange must go through
// the same registry instance; two independent buckets for one exchange
// would defeat the limit entirely, so the registry is constructed once
// at session startup and handed to workers.
type Registry struct {
	mu       sync.Mutex
	limiters map[string]*TokenBucket
	cfg      config.LimiterConfig
}

func NewRegistry(cfg config.LimiterConfig) *Registry {
	return &Registry{
		limiters: make(map[string]*TokenBucket),
		cfg:      cfg,
	}
}

// Limiter returns the bucket for an exchange, creating it under the
// registry lock so concurrent first-callers never build duplicates.
// Creation fails only on invalid configured overrides.
func (r *Registry) Limiter(exchange string) (*TokenBucket, error) {
	exchange = strings.ToLower(exchange)

	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.limiters[exchange]; ok {
		return b, nil
	}

	b, err := NewTokenBucket(exchange, r.cfg.Rates[exchange], 0, r.cfg.SafetyMargin)
	if err != nil {
		return nil, err
	}
	r.limiters[exchange] = b
	return b, nil
}

// Acquire looks up or creates the bucket for the exchange and delegates.
func (r *Registry) Acquire(exchange string, tokens int, blocking bool) (bool, error) {
	b, err := r.Limiter(exchange)
	if err != nil {
		return false, err
	}
	return b.Acquire(tokens, blocking), nil
}

// AllStats snapshots every known bucket, keyed by exchange.
func (r *Registry) AllStats() map[string]BucketStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]BucketStats, len(r.limiters))
	for name, b := range r.limiters {
		out[name] = b.Stats()
	}
	return out
}
