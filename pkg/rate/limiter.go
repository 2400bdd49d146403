// Package rate limits operations per key.
package rate

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/code-payments/code-timelock/pkg/cache"
)

// Limiter limits operations based on a provided key.
type Limiter interface {
	Allow(key string) (bool, error)
}

// DefaultMaxKeys bounds the number of keys a local limiter tracks.
const DefaultMaxKeys = 100_000

type localLimiter struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	buckets cache.Cache[*rate.Limiter]
}

// NewLocalRateLimiter returns an in-memory token bucket limiter allowing
// limit operations per second per key, with bursts of up to limit (and at
// least one). The least recently used keys are forgotten beyond maxKeys,
// which resets their buckets.
func NewLocalRateLimiter(limit rate.Limit, maxKeys int) Limiter {
	return &localLimiter{
		limit:   limit,
		burst:   max(int(limit), 1),
		buckets: cache.New[*rate.Limiter]("rate_limiter", maxKeys),
	}
}

// Allow implements Limiter.Allow.
func (l *localLimiter) Allow(key string) (bool, error) {
	return l.bucket(key).Allow(), nil
}

func (l *localLimiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if bucket, ok := l.buckets.Retrieve(key); ok {
		return bucket
	}

	bucket := rate.NewLimiter(l.limit, l.burst)
	l.buckets.Insert(key, bucket, 1)
	return bucket
}

// NoLimiter never limits operations
type NoLimiter struct{}

// Allow implements Limiter.Allow.
func (NoLimiter) Allow(string) (bool, error) {
	return true, nil
}
