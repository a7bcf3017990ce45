/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

// Package lrucache provides an in-memory LRU cache with per-entry TTL.
// Expired entries are removed lazily, when they are accessed.
package lrucache

import (
	"container/list"
	"fmt"
	"sync"
	"time"
)

type cacheEntry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time // zero means no expiration
}

// expired reports whether the entry is not served anymore. An entry is expired starting from expiresAt.
func (e *cacheEntry[K, V]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// LRUCache represents an LRU cache with eviction mechanism and metrics.
type LRUCache[K comparable, V any] struct {
	maxEntries int
	defaultTTL time.Duration
	now        func() time.Time

	mu      sync.Mutex
	lruList *list.List // front is the most recently used entry
	cache   map[K]*list.Element

	metricsCollector MetricsCollector
}

// Options represents options for the cache.
type Options struct {
	// DefaultTTL is used by Add. Zero means entries never expire.
	DefaultTTL time.Duration

	// Now returns the current time, time.Now is used if nil.
	Now func() time.Time
}

// New creates a new LRUCache with the provided maximum number of entries and metrics collector.
func New[K comparable, V any](maxEntries int, metricsCollector MetricsCollector) (*LRUCache[K, V], error) {
	return NewWithOpts[K, V](maxEntries, metricsCollector, Options{})
}

// NewWithOpts creates a new LRUCache. Metrics are disabled if metricsCollector is nil.
func NewWithOpts[K comparable, V any](maxEntries int, metricsCollector MetricsCollector, opts Options) (*LRUCache[K, V], error) {
	if maxEntries <= 0 {
		return nil, fmt.Errorf("maxEntries must be greater than 0")
	}
	if opts.DefaultTTL < 0 {
		return nil, fmt.Errorf("defaultTTL must be greater or equal to 0 (no expiration)")
	}
	if metricsCollector == nil {
		metricsCollector = disabledMetrics{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &LRUCache[K, V]{
		maxEntries:       maxEntries,
		defaultTTL:       opts.DefaultTTL,
		now:              opts.Now,
		lruList:          list.New(),
		cache:            make(map[K]*list.Element),
		metricsCollector: metricsCollector,
	}, nil
}

// Get returns a non-expired value and marks it as recently used.
// An expired entry is removed. Hits and misses are counted.
func (c *LRUCache[K, V]) Get(key K) (value V, ok bool) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, found := c.cache[key]
	if !found {
		c.metricsCollector.IncMisses()
		return value, false
	}
	entry := elem.Value.(*cacheEntry[K, V])
	if entry.expired(now) {
		c.removeElement(elem)
		c.metricsCollector.SetAmount(len(c.cache))
		c.metricsCollector.IncMisses()
		return value, false
	}
	c.lruList.MoveToFront(elem)
	c.metricsCollector.IncHits()
	return entry.value, true
}

// Peek returns the value and its expiration time, expired entries included.
// Neither the LRU order nor the metrics are changed.
func (c *LRUCache[K, V]) Peek(key K) (value V, expiresAt time.Time, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, found := c.cache[key]
	if !found {
		return value, time.Time{}, false
	}
	entry := elem.Value.(*cacheEntry[K, V])
	return entry.value, entry.expiresAt, true
}

// Add adds a value with the default TTL.
func (c *LRUCache[K, V]) Add(key K, value V) {
	c.AddWithTTL(key, value, c.defaultTTL)
}

// AddWithTTL adds or replaces a value. A non-positive ttl means no expiration.
// If the cache is full, the least recently used entry is evicted.
func (c *LRUCache[K, V]) AddWithTTL(key K, value V, ttl time.Duration) {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry := &cacheEntry[K, V]{key: key, value: value, expiresAt: expiresAt}
	if elem, ok := c.cache[key]; ok {
		elem.Value = entry
		c.lruList.MoveToFront(elem)
		return
	}
	c.cache[key] = c.lruList.PushFront(entry)
	evicted := 0
	for len(c.cache) > c.maxEntries {
		c.removeElement(c.lruList.Back())
		evicted++
	}
	c.metricsCollector.SetAmount(len(c.cache))
	if evicted > 0 {
		c.metricsCollector.AddEvictions(evicted)
	}
}

// GetOrAdd returns a non-expired value or adds the one made by valueProvider with the default TTL.
func (c *LRUCache[K, V]) GetOrAdd(key K, valueProvider func() V) (value V, exists bool) {
	if value, exists = c.Get(key); exists {
		return value, true
	}
	// Another goroutine may add the key in between, the entry added last wins.
	value = valueProvider()
	c.Add(key, value)
	return value, false
}

// Remove removes the entry of the key. It reports whether the entry existed.
func (c *LRUCache[K, V]) Remove(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.cache[key]
	if !ok {
		return false
	}
	c.removeElement(elem)
	c.metricsCollector.SetAmount(len(c.cache))
	return true
}

// RemoveIf removes all entries matching the predicate, expired ones included, and returns their number.
func (c *LRUCache[K, V]) RemoveIf(pred func(key K, value V) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, elem := range c.cache {
		if pred(key, elem.Value.(*cacheEntry[K, V]).value) {
			c.removeElement(elem)
			removed++
		}
	}
	if removed > 0 {
		c.metricsCollector.SetAmount(len(c.cache))
	}
	return removed
}

// Range calls fn for every non-expired entry, from the most to the least recently used one,
// until fn returns false. The LRU order is not changed. fn must not call methods of the cache.
func (c *LRUCache[K, V]) Range(fn func(key K, value V) bool) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for elem := c.lruList.Front(); elem != nil; elem = elem.Next() {
		entry := elem.Value.(*cacheEntry[K, V])
		if entry.expired(now) {
			continue
		}
		if !fn(entry.key, entry.value) {
			return
		}
	}
}

// Purge removes all entries. Removed entries are not counted as evictions.
func (c *LRUCache[K, V]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.cache)
	c.cache = make(map[K]*list.Element)
	c.lruList.Init()
	c.metricsCollector.SetAmount(0)
	return n
}

// Len returns the number of entries, expired ones not yet removed included.
func (c *LRUCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}

// MaxEntries returns the size bound of the cache.
func (c *LRUCache[K, V]) MaxEntries() int {
	return c.maxEntries
}

func (c *LRUCache[K, V]) removeElement(elem *list.Element) {
	c.lruList.Remove(elem)
	delete(c.cache, elem.Value.(*cacheEntry[K, V]).key)
}
