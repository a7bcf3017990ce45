/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

// Package resultcache provides a time-bounded cache of operation results.
//
// A miss is resolved through a requestqueue.Queue under the "request_"+key key, so concurrent
// misses of one key cause a single operation and the number of operations running against
// the backend stays bounded. Successful results are kept for the TTL. Failures carrying a
// structured response of the remote service (see RemoteError) are kept for a short error
// window, so a failing resource is not hammered. Other failures are never cached.
//
// The outcome is stored by the queued operation itself, so a result is cached even when every
// caller has stopped waiting for it. An operation that was running when its key got invalidated
// does not store its outcome.
//
// Entries expire lazily: a stale entry is dropped when it is read, there is no background sweep.
package resultcache

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/bigschom/ss-portal/log"
	"github.com/bigschom/ss-portal/lrucache"
	"github.com/bigschom/ss-portal/requestqueue"
)

// Default values.
const (
	DefaultTTL         = 5 * time.Minute
	DefaultErrorWindow = 5 * time.Second
	DefaultMaxEntries  = 10000
)

// MinErrorTTL is the lower bound of the lifetime of a cached error.
const MinErrorTTL = time.Millisecond

// QueueKeyPrefix is prepended to cache keys to build the keys of queued operations.
const QueueKeyPrefix = "request_"

// Opts represents options for the Cache.
type Opts struct {
	// TTL is a lifetime of successful results. Zero means DefaultTTL.
	TTL time.Duration

	// ErrorWindow is a lifetime of cached remote errors. Zero means DefaultErrorWindow.
	// It is clamped to [MinErrorTTL, TTL of the request].
	ErrorWindow time.Duration

	// MaxEntries bounds the number of entries, the least recently used entry is evicted first.
	// Zero means DefaultMaxEntries.
	MaxEntries int

	Logger           log.FieldLogger
	MetricsCollector MetricsCollector
}

// EntryInfo describes a cache entry.
type EntryInfo[V any] struct {
	Key       string
	Value     V
	Err       *CachedError
	StoredAt  time.Time
	TTL       time.Duration
	ExpiresAt time.Time
	Fresh     bool
}

// Stats is a snapshot of the cache state. Hits and Misses are counted since the cache was created.
type Stats struct {
	Entries int                `json:"entries"`
	Hits    int64              `json:"hits"`
	Misses  int64              `json:"misses"`
	Queue   requestqueue.Stats `json:"queue"`
}

type entry[V any] struct {
	value    V
	err      *CachedError
	storedAt time.Time
	ttl      time.Duration
}

// flight is an operation resolving a miss. It is marked stale when its key is invalidated while it runs.
type flight struct {
	stale bool
}

// Cache is a time-bounded result cache. It is safe for concurrent use.
type Cache[V any] struct {
	ttl         time.Duration
	errorWindow time.Duration
	queue       *requestqueue.Queue[V]
	logger      log.FieldLogger
	metrics     MetricsCollector
	now         func() time.Time

	hits   atomic.Int64
	misses atomic.Int64

	// mu orders stores of finished operations with invalidations.
	mu      sync.Mutex
	flights map[string]*flight
	entries *lrucache.LRUCache[string, *entry[V]]
}

// New creates a new Cache resolving misses through the queue.
// A queue with default options is created if queue is nil.
func New[V any](queue *requestqueue.Queue[V], opts Opts) (*Cache[V], error) {
	if opts.TTL < 0 {
		return nil, fmt.Errorf("TTL must be >= 0, got %s", opts.TTL)
	}
	if opts.ErrorWindow < 0 {
		return nil, fmt.Errorf("error window must be >= 0, got %s", opts.ErrorWindow)
	}
	if opts.MaxEntries < 0 {
		return nil, fmt.Errorf("max entries must be >= 0, got %d", opts.MaxEntries)
	}
	if opts.TTL == 0 {
		opts.TTL = DefaultTTL
	}
	if opts.ErrorWindow == 0 {
		opts.ErrorWindow = DefaultErrorWindow
	}
	if opts.MaxEntries == 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}
	if opts.MetricsCollector == nil {
		opts.MetricsCollector = disabledMetricsCollector
	}
	if queue == nil {
		var err error
		if queue, err = requestqueue.New[V](requestqueue.Opts{Logger: opts.Logger}); err != nil {
			return nil, fmt.Errorf("create request queue: %w", err)
		}
	}
	c := &Cache[V]{
		ttl:         opts.TTL,
		errorWindow: opts.ErrorWindow,
		queue:       queue,
		logger:      opts.Logger,
		metrics:     opts.MetricsCollector,
		now:         time.Now,
		flights:     make(map[string]*flight),
	}
	var err error
	c.entries, err = lrucache.NewWithOpts[string, *entry[V]](opts.MaxEntries, opts.MetricsCollector, lrucache.Options{
		Now: func() time.Time { return c.now() },
	})
	if err != nil {
		return nil, fmt.Errorf("create entries table: %w", err)
	}
	return c, nil
}

// Get returns the result for the key using the default TTL. See GetWithTTL.
func (c *Cache[V]) Get(ctx context.Context, key string, op requestqueue.Operation[V]) (V, error) {
	return c.GetWithTTL(ctx, key, op, 0)
}

// GetWithTTL returns the fresh cached result for the key or resolves it with op.
//
// A fresh value is returned as is. A fresh cached remote error is returned as *CachedError.
// Otherwise op is run through the queue: its value is stored for ttl (the default TTL if ttl <= 0),
// a RemoteError is stored for the error window, and the outcome of op is returned unchanged.
// If ctx is done first, the error of ctx is returned and op still completes and fills the cache.
func (c *Cache[V]) GetWithTTL(ctx context.Context, key string, op requestqueue.Operation[V], ttl time.Duration) (V, error) {
	var zero V
	if key == "" {
		return zero, requestqueue.ErrEmptyKey
	}
	if op == nil {
		return zero, requestqueue.ErrNilOperation
	}
	if ttl <= 0 {
		ttl = c.ttl
	}

	if e, ok := c.entries.Get(key); ok {
		c.hits.Inc()
		c.logger.Debug("cache hit", log.String("key", key), log.Bool("cached_error", e.err != nil))
		if e.err != nil {
			return zero, e.err
		}
		return e.value, nil
	}
	c.misses.Inc()
	c.logger.Debug("cache miss", log.String("key", key))

	return c.queue.Enqueue(ctx, QueueKeyPrefix+key, c.storingOperation(key, op, ttl))
}

// storingOperation wraps op so the outcome is put into the cache when op completes,
// whether or not anybody still waits for it.
func (c *Cache[V]) storingOperation(key string, op requestqueue.Operation[V], ttl time.Duration) requestqueue.Operation[V] {
	return func(ctx context.Context) (V, error) {
		f := c.beginFlight(key)
		defer c.endFlight(key, f)

		value, err := op(ctx)
		if err == nil {
			c.store(key, f, &entry[V]{value: value, ttl: ttl})
			return value, nil
		}
		if remoteErr, ok := AsRemoteError(err); ok {
			c.storeError(key, f, remoteErr, err, ttl)
		}
		return value, err
	}
}

func (c *Cache[V]) beginFlight(key string) *flight {
	f := &flight{}
	c.mu.Lock()
	c.flights[key] = f
	c.mu.Unlock()
	return f
}

func (c *Cache[V]) endFlight(key string, f *flight) {
	c.mu.Lock()
	if c.flights[key] == f {
		delete(c.flights, key)
	}
	c.mu.Unlock()
}

// store puts the entry unless the key was invalidated while the operation was running.
func (c *Cache[V]) store(key string, f *flight, e *entry[V]) bool {
	e.storedAt = c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if f.stale {
		c.logger.Debug("result of invalidated operation is not cached", log.String("key", key))
		return false
	}
	c.entries.AddWithTTL(key, e, e.ttl)
	return true
}

func (c *Cache[V]) storeError(key string, f *flight, remoteErr RemoteError, err error, ttl time.Duration) {
	errTTL := c.errorTTL(ttl)
	now := c.now()
	stored := c.store(key, f, &entry[V]{
		ttl: errTTL,
		err: &CachedError{
			Key:       key,
			Message:   remoteErr.RemoteErrorMessage(),
			StoredAt:  now,
			ExpiresAt: now.Add(errTTL),
			Err:       err,
		},
	})
	if stored {
		c.metrics.IncErrorsCached()
		c.logger.Debug("remote error cached", log.String("key", key), log.Duration("ttl", errTTL), log.Error(err))
	}
}

// errorTTL keeps a cached error no longer than a successful result would be kept,
// and always positive, so it expires even with tiny or misconfigured windows.
func (c *Cache[V]) errorTTL(ttl time.Duration) time.Duration {
	errTTL := c.errorWindow
	if errTTL > ttl {
		errTTL = ttl
	}
	if errTTL < MinErrorTTL {
		errTTL = MinErrorTTL
	}
	return errTTL
}

// Invalidate removes the entry of the key. It reports whether the entry existed.
// An operation running for the key will not store its outcome.
func (c *Cache[V]) Invalidate(key string) bool {
	c.mu.Lock()
	if f, ok := c.flights[key]; ok {
		f.stale = true
	}
	removed := c.entries.Remove(key)
	c.mu.Unlock()

	if removed {
		c.logger.Debug("cache entry invalidated", log.String("key", key))
	}
	return removed
}

// InvalidatePrefix removes all entries whose keys start with the prefix and returns their number.
// Operations running for such keys will not store their outcomes.
func (c *Cache[V]) InvalidatePrefix(prefix string) int {
	c.mu.Lock()
	for key, f := range c.flights {
		if strings.HasPrefix(key, prefix) {
			f.stale = true
		}
	}
	removed := c.entries.RemoveIf(func(key string, _ *entry[V]) bool {
		return strings.HasPrefix(key, prefix)
	})
	c.mu.Unlock()

	if removed > 0 {
		c.logger.Debug("cache entries invalidated", log.String("prefix", prefix), log.Int("count", removed))
	}
	return removed
}

// Clear removes all entries. Running operations will not store their outcomes.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	for _, f := range c.flights {
		f.stale = true
	}
	n := c.entries.Purge()
	c.mu.Unlock()

	c.logger.Info("cache cleared", log.Int("count", n))
}

// Len returns the number of entries, stale entries not yet read included.
func (c *Cache[V]) Len() int {
	return c.entries.Len()
}

// Lookup describes the entry of the key without touching it: neither the LRU order
// nor the hit/miss counters change and a stale entry is reported instead of being removed.
func (c *Cache[V]) Lookup(key string) (EntryInfo[V], bool) {
	e, expiresAt, ok := c.entries.Peek(key)
	if !ok {
		return EntryInfo[V]{}, false
	}
	return EntryInfo[V]{
		Key:       key,
		Value:     e.value,
		Err:       e.err,
		StoredAt:  e.storedAt,
		TTL:       e.ttl,
		ExpiresAt: expiresAt,
		Fresh:     c.now().Before(expiresAt),
	}, true
}

// Keys returns the sorted keys of fresh entries with the prefix.
func (c *Cache[V]) Keys(prefix string) []string {
	keys := []string{}
	c.entries.Range(func(key string, _ *entry[V]) bool {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return true
	})
	sort.Strings(keys)
	return keys
}

// Stats returns the number of entries, the hit and miss counters and the state of the queue.
func (c *Cache[V]) Stats() Stats {
	return Stats{
		Entries: c.Len(),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Queue:   c.queue.Stats(),
	}
}

// Queue returns the queue used to resolve misses.
func (c *Cache[V]) Queue() *requestqueue.Queue[V] {
	return c.queue
}
