/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package main

import (
	"context"

	"github.com/bigschom/ss-portal/log"
	"github.com/bigschom/ss-portal/resultcache"
)

// statsReporter logs the state of the cache and its queue on every run.
type statsReporter struct {
	cache  *resultcache.Cache[[]byte]
	logger log.FieldLogger
	last   resultcache.Stats
}

func newStatsReporter(cache *resultcache.Cache[[]byte], logger log.FieldLogger) *statsReporter {
	return &statsReporter{cache: cache, logger: logger}
}

func (r *statsReporter) Run(ctx context.Context) error {
	stats := r.cache.Stats()
	fields := []log.Field{
		log.Int("entries", stats.Entries),
		log.Int64("hits", stats.Hits),
		log.Int64("misses", stats.Misses),
		log.Int("running", stats.Queue.Running),
		log.Int("waiting", stats.Queue.Waiting),
		log.Int("max_concurrent", stats.Queue.MaxConcurrent),
	}
	// Idle periods are reported on the debug level only.
	if stats == r.last && stats.Queue.Running == 0 && stats.Queue.Waiting == 0 {
		r.logger.Debug("cache stats", fields...)
	} else {
		r.logger.Info("cache stats", fields...)
	}
	r.last = stats
	return nil
}
