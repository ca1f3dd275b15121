package rateLimit

import (
	"context"
	"sync"
	"time"

	redisadapter "github.com/robertarktes/turf-booking-assistant/internal/adapters/redis"
	"github.com/robertarktes/turf-booking-assistant/internal/observability"
	"golang.org/x/time/rate"
)

// Limiter admits up to a fixed number of hits per key and period.
type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

// RateLimiter counts hits in fixed windows shared through Redis.
type RateLimiter struct {
	redis  *redisadapter.Cache
	rate   int
	period time.Duration
	logger observability.Logger
}

func NewRateLimiter(redis *redisadapter.Cache, rate int, period time.Duration, logger observability.Logger) *RateLimiter {
	return &RateLimiter{redis: redis, rate: rate, period: period, logger: logger}
}

// Allow lets the request through when Redis cannot be reached.
func (rl *RateLimiter) Allow(ctx context.Context, key string) bool {
	n, err := rl.redis.IncrWindow(ctx, "rl:"+key, rl.period)
	if err != nil {
		rl.logger.WithError(err).Warn("rate limit counter unavailable")
		return true
	}
	return n <= int64(rl.rate)
}

// LocalLimiter keeps a token bucket per key in process.
type LocalLimiter struct {
	mu       sync.Mutex
	limiters map[string]*localEntry
	limit    rate.Limit
	burst    int
	period   time.Duration
	now      func() time.Time
}

type localEntry struct {
	limiter *rate.Limiter
	seen    time.Time
}

func NewLocalLimiter(perPeriod int, period time.Duration) *LocalLimiter {
	return &LocalLimiter{
		limiters: make(map[string]*localEntry),
		limit:    rate.Every(period / time.Duration(perPeriod)),
		burst:    perPeriod,
		period:   period,
		now:      time.Now,
	}
}

func (l *LocalLimiter) Allow(_ context.Context, key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	entry, ok := l.limiters[key]
	if !ok {
		entry = &localEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = entry
	}
	entry.seen = now
	return entry.limiter.AllowN(now, 1)
}

// Sweep drops buckets idle for a full period. Their bucket has refilled, so a returning
// client sees no difference.
func (l *LocalLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	dropped := 0
	for key, entry := range l.limiters {
		if now.Sub(entry.seen) >= l.period {
			delete(l.limiters, key)
			dropped++
		}
	}
	return dropped
}

func (l *LocalLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}
