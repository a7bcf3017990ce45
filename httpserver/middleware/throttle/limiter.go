/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package throttle

import (
	"context"
	"fmt"
	"time"

	"github.com/RussellLuo/slidingwindow"
	"github.com/throttled/throttled/v2"
	"github.com/throttled/throttled/v2/store/memstore"

	"github.com/bigschom/ss-portal/lrucache"
)

// defaultMaxKeys bounds keyed sliding-window zones that do not set maxKeys.
const defaultMaxKeys = 10000

type rateLimiter interface {
	Allow(ctx context.Context, key string) (allow bool, retryAfter time.Duration, err error)
}

// leakyBucketLimiter implements GCRA (Generic Cell Rate Algorithm), a leaky bucket variant.
type leakyBucketLimiter struct {
	limiter *throttled.GCRARateLimiterCtx
}

func newLeakyBucketLimiter(maxRate RateLimitValue, maxBurst, maxKeys int) (*leakyBucketLimiter, error) {
	gcraStore, err := memstore.NewCtx(maxKeys)
	if err != nil {
		return nil, fmt.Errorf("new in-memory store: %w", err)
	}
	quota := throttled.RateQuota{
		MaxRate:  throttled.PerDuration(maxRate.Count, maxRate.Duration),
		MaxBurst: maxBurst,
	}
	gcraLimiter, err := throttled.NewGCRARateLimiterCtx(gcraStore, quota)
	if err != nil {
		return nil, fmt.Errorf("new GCRA rate limiter: %w", err)
	}
	return &leakyBucketLimiter{gcraLimiter}, nil
}

func (l *leakyBucketLimiter) Allow(ctx context.Context, key string) (allow bool, retryAfter time.Duration, err error) {
	limited, res, err := l.limiter.RateLimitCtx(ctx, key, 1)
	if err != nil {
		return false, 0, err
	}
	return !limited, res.RetryAfter, nil
}

// slidingWindowLimiter keeps one sliding window per key, windows of forgotten keys start over.
type slidingWindowLimiter struct {
	maxRate    RateLimitValue
	getLimiter func(key string) *slidingwindow.Limiter
	now        func() time.Time
}

func newSlidingWindowLimiter(maxRate RateLimitValue, keyed bool, maxKeys int) (*slidingWindowLimiter, error) {
	newLimiter := func() *slidingwindow.Limiter {
		lim, _ := slidingwindow.NewLimiter(maxRate.Duration, int64(maxRate.Count),
			func() (slidingwindow.Window, slidingwindow.StopFunc) {
				return slidingwindow.NewLocalWindow()
			})
		return lim
	}
	if !keyed {
		lim := newLimiter()
		return &slidingWindowLimiter{
			maxRate:    maxRate,
			getLimiter: func(string) *slidingwindow.Limiter { return lim },
			now:        time.Now,
		}, nil
	}

	if maxKeys == 0 {
		maxKeys = defaultMaxKeys
	}
	windows, err := lrucache.New[string, *slidingwindow.Limiter](maxKeys, nil)
	if err != nil {
		return nil, fmt.Errorf("new LRU in-memory store for keys: %w", err)
	}
	return &slidingWindowLimiter{
		maxRate: maxRate,
		getLimiter: func(key string) *slidingwindow.Limiter {
			lim, _ := windows.GetOrAdd(key, newLimiter)
			return lim
		},
		now: time.Now,
	}, nil
}

func (l *slidingWindowLimiter) Allow(_ context.Context, key string) (allow bool, retryAfter time.Duration, err error) {
	if l.getLimiter(key).Allow() {
		return true, 0, nil
	}
	now := l.now()
	return false, now.Truncate(l.maxRate.Duration).Add(l.maxRate.Duration).Sub(now), nil
}

func newRateLimiter(zone RateLimitZoneConfig) (rateLimiter, error) {
	switch zone.Alg {
	case RateLimitAlgSlidingWindow:
		return newSlidingWindowLimiter(zone.RateLimit, zone.Key.Type != ZoneKeyTypeNoKey, zone.MaxKeys)
	default:
		return newLeakyBucketLimiter(zone.RateLimit, zone.BurstLimit, zone.MaxKeys)
	}
}
