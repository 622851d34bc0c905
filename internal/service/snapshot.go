package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/kjstillabower/commute-dashboard/internal/cache"
	"github.com/kjstillabower/commute-dashboard/internal/client"
	"github.com/kjstillabower/commute-dashboard/internal/observability"
)

// snapshotStore is the cache-aside layer shared by the feed services. Snapshots are
// stored as JSON under "<feed>:<key>", or "<feed>:mock:<key>" for fixture data, so a
// fixture snapshot never stands in for the live feed. Fetches for one key are coalesced.
type snapshotStore[T any] struct {
	feed      string
	cache     cache.Cache
	ttl       time.Duration
	minAge    time.Duration
	clock     clockwork.Clock
	coalescer *requestCoalescer[T]
	logger    *zap.Logger
}

// newSnapshotStore creates a store. With a non-zero pollInterval the TTL is raised to at
// least the interval, and a refresh within the interval of the stored snapshot reuses it
// instead of fetching, using the same slack as the poller's guard.
func newSnapshotStore[T any](feed string, c cache.Cache, ttl, pollInterval, fetchTimeout time.Duration, clock clockwork.Clock, logger *zap.Logger) *snapshotStore[T] {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &snapshotStore[T]{
		feed:      feed,
		cache:     c,
		ttl:       max(ttl, pollInterval),
		minAge:    pollInterval - pollInterval/20,
		clock:     clock,
		coalescer: newRequestCoalescer[T](fetchTimeout),
		logger:    logger,
	}
}

// sourceKey qualifies key with the data source it was fetched from.
func sourceKey(key string, mock bool) string {
	if mock {
		return "mock:" + key
	}
	return key
}

func (s *snapshotStore[T]) cacheKey(key string) string {
	return s.feed + ":" + key
}

// refresh fetches and stores a snapshot. On failure nothing is stored, so the prior
// snapshot stays in place.
func (s *snapshotStore[T]) refresh(ctx context.Context, key string, fetch func(context.Context) (T, error)) (T, error) {
	if s.minAge > 0 {
		lookup, err := cache.GetJSON[T](ctx, s.cache, s.cacheKey(key), s.clock.Now())
		if err == nil && lookup.Found && s.clock.Since(lookup.StoredAt) < s.minAge {
			s.logger.Debug("refresh skipped, snapshot within poll interval",
				zap.String("feed", s.feed),
				zap.String("key", key),
				zap.Duration("age", s.clock.Since(lookup.StoredAt)),
			)
			return lookup.Value, nil
		}
	}
	v, shared, err := s.coalescer.GetOrDo(ctx, key, func(ctx context.Context) (T, error) {
		v, err := fetch(ctx)
		if err != nil {
			return v, err
		}
		if setErr := cache.SetJSON(ctx, s.cache, s.cacheKey(key), v, s.ttl); setErr != nil {
			observability.CacheErrorsTotal.WithLabelValues("set", string(client.ErrorCategoryCache)).Inc()
			s.logger.Warn("snapshot store failed",
				zap.String("feed", s.feed),
				zap.String("key", key),
				zap.Error(setErr),
			)
		}
		return v, nil
	})
	if shared {
		observability.CoalescedRequestsTotal.WithLabelValues(s.feed).Inc()
	}
	if err != nil {
		return v, fmt.Errorf("refresh %s %s: %w", s.feed, key, err)
	}
	return v, nil
}

// current returns the fresh snapshot for key, loading it on a miss or after expiry.
// When the load fails a retained stale snapshot is returned with stale set.
func (s *snapshotStore[T]) current(ctx context.Context, key string, fetch func(context.Context) (T, error)) (v T, stale bool, err error) {
	lookup, getErr := cache.GetJSON[T](ctx, s.cache, s.cacheKey(key), s.clock.Now())
	if getErr != nil {
		observability.CacheErrorsTotal.WithLabelValues("get", string(client.ErrorCategoryCache)).Inc()
		observability.LoggerFrom(ctx, s.logger).Warn("snapshot read failed",
			zap.String("feed", s.feed),
			zap.String("key", key),
			zap.Error(getErr),
		)
	}
	if lookup.Found && lookup.Fresh {
		observability.CacheHitsTotal.WithLabelValues(s.feed).Inc()
		return lookup.Value, false, nil
	}

	v, err = s.refresh(ctx, key, fetch)
	if err == nil {
		return v, false, nil
	}
	if lookup.Found {
		observability.StaleServesTotal.WithLabelValues(s.feed).Inc()
		observability.LoggerFrom(ctx, s.logger).Info("serving stale snapshot",
			zap.String("feed", s.feed),
			zap.String("key", key),
			zap.Duration("age", s.clock.Since(lookup.StoredAt)),
		)
		return lookup.Value, true, nil
	}
	return v, false, err
}

// logFetchFailure logs a failed fetch with its error category and counts it.
func logFetchFailure(ctx context.Context, logger *zap.Logger, upstream, key string, err error) {
	category := client.CategorizeError(err)
	observability.UpstreamErrorsTotal.WithLabelValues(upstream, string(category)).Inc()
	observability.LoggerFrom(ctx, logger).Warn("fetch failed",
		zap.String("upstream", upstream),
		zap.String("key", key),
		zap.String("category", string(category)),
		zap.Error(err),
	)
}
