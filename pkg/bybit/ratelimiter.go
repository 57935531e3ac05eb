package bybit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// retryDelay is how long an exhausted caller waits before re-checking
	// the shared window.
	retryDelay = 200 * time.Millisecond

	windowTTL = time.Minute
)

// RateLimiter throttles REST calls to a requests-per-minute budget shared
// across process instances through a Redis counter keyed by wall-clock
// minute. Acquire never rejects a call; it only delays it. Without Redis
// (nil client or Redis failure) it falls back to local pacing that spaces
// calls evenly across the minute.
type RateLimiter struct {
	rdb               *redis.Client
	requestsPerMinute int
	keyPrefix         string
	logger            *zap.Logger

	// now is swappable so tests can pin the minute bucket.
	now func() time.Time

	localMu          sync.Mutex
	localNextAllowed time.Time
}

func NewRateLimiter(rdb *redis.Client, requestsPerMinute int, keyPrefix string, logger *zap.Logger) *RateLimiter {
	if requestsPerMinute < 1 {
		requestsPerMinute = 1
	}
	return &RateLimiter{
		rdb:               rdb,
		requestsPerMinute: requestsPerMinute,
		keyPrefix:         keyPrefix,
		logger:            logger,
		now:               time.Now,
	}
}

// Acquire blocks until a request slot is available or ctx is done. The only
// possible error is the context's; callers never need retry logic here.
func (l *RateLimiter) Acquire(ctx context.Context) error {
	if l.rdb == nil {
		return l.acquireLocal(ctx)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		window := l.now().UTC().Unix() / 60
		key := fmt.Sprintf("%s:%d", l.keyPrefix, window)

		// The key is bucketed per minute, so a plain INCR is enough: the
		// count only ever grows within one window and the whole bucket
		// expires on its own.
		count, err := l.rdb.Incr(ctx, key).Result()
		if err != nil {
			l.logger.Warn("rate limit counter unavailable, falling back to local pacing", zap.Error(err))
			return l.acquireLocal(ctx)
		}
		if count == 1 {
			l.rdb.PExpire(ctx, key, windowTTL)
		}

		if count <= int64(l.requestsPerMinute) {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryDelay):
		}
	}
}

// acquireLocal spaces requests evenly at 60s/rpm. The mutex makes one caller
// at a time compute the next permitted instant, so concurrent callers queue
// up behind each other instead of bursting.
func (l *RateLimiter) acquireLocal(ctx context.Context) error {
	l.localMu.Lock()
	defer l.localMu.Unlock()

	now := time.Now()
	if now.Before(l.localNextAllowed) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.localNextAllowed.Sub(now)):
		}
	}

	interval := time.Minute / time.Duration(l.requestsPerMinute)
	l.localNextAllowed = time.Now().Add(interval)
	return nil
}
