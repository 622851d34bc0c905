// Package cache stores dashboard snapshots. Entries outlive their TTL for a
// stale window so a failed refresh can keep serving the last good snapshot.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Entry is a cached value with its freshness deadline.
type Entry struct {
	Value     json.RawMessage `json:"value"`
	StoredAt  time.Time       `json:"storedAt"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

// Fresh reports whether the entry's TTL has not yet elapsed at now.
func (e Entry) Fresh(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}

// Cache is implemented by InMemoryCache and MemcachedCache.
// Get returns retained entries whether fresh or stale; callers check Entry.Fresh.
type Cache interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// InMemoryCache implements Cache with a map guarded by a mutex.
// Entries are dropped on access once ttl plus the stale window has elapsed.
type InMemoryCache struct {
	mu       sync.Mutex
	data     map[string]Entry
	clock    clockwork.Clock
	staleFor time.Duration
}

// NewInMemoryCache creates an in-memory cache. A nil clock uses the real clock.
func NewInMemoryCache(clock clockwork.Clock, staleFor time.Duration) *InMemoryCache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &InMemoryCache{
		data:     make(map[string]Entry),
		clock:    clock,
		staleFor: staleFor,
	}
}

func (c *InMemoryCache) Get(ctx context.Context, key string) (Entry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.data[key]
	if !ok {
		return Entry{}, false, nil
	}
	if c.clock.Now().After(entry.ExpiresAt.Add(c.staleFor)) {
		delete(c.data, key)
		return Entry{}, false, nil
	}
	return entry, true, nil
}

func (c *InMemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = Entry{
		Value:     append(json.RawMessage(nil), value...),
		StoredAt:  now,
		ExpiresAt: now.Add(ttl),
	}
	return nil
}

// Lookup is the decoded result of GetJSON.
type Lookup[T any] struct {
	Value    T
	Found    bool
	Fresh    bool
	StoredAt time.Time
}

// GetJSON reads and decodes a snapshot. A decode failure is reported as an error, not a miss.
func GetJSON[T any](ctx context.Context, c Cache, key string, now time.Time) (Lookup[T], error) {
	var out Lookup[T]
	entry, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return out, err
	}
	if err := json.Unmarshal(entry.Value, &out.Value); err != nil {
		return out, fmt.Errorf("cache decode %s: %w", key, err)
	}
	out.Found = true
	out.Fresh = entry.Fresh(now)
	out.StoredAt = entry.StoredAt
	return out, nil
}

// SetJSON encodes and stores a snapshot.
func SetJSON[T any](ctx context.Context, c Cache, key string, value T, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	return c.Set(ctx, key, raw, ttl)
}
