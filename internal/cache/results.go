// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// results.go is the in-process cache of remote read results. Entries are
// keyed by a caller-chosen string and expire after a fixed TTL. Expiry is
// checked lazily when an entry is read; there is no background sweep.
package cache

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultResultTTL is how long a cached read result stays fresh.
const DefaultResultTTL = 5 * time.Minute

// resultEntry is a cached value and the time it was stored.
type resultEntry struct {
	data     any
	storedAt time.Time
}

// Results is a concurrency-safe TTL cache of read results. It is
// constructed explicitly and injected into the services that use it.
type Results struct {
	mu      sync.RWMutex
	entries map[string]resultEntry
	ttl     time.Duration
	now     func() time.Time
	loads   singleflight.Group
}

// NewResults creates an empty result cache.
func NewResults(ttl time.Duration) *Results {
	if ttl <= 0 {
		ttl = DefaultResultTTL
	}
	return &Results{
		entries: make(map[string]resultEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// SetClock replaces the time source. Tests use it to step past the TTL.
func (c *Results) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Get returns a fresh cached value. An expired entry is removed and
// reported as a miss.
func (c *Results) Get(key string) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	now := c.now()
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if now.Sub(e.storedAt) < c.ttl {
		return e.data, true
	}

	c.mu.Lock()
	// Re-check: a concurrent Set may have refreshed the entry.
	if cur, ok := c.entries[key]; ok && cur.storedAt == e.storedAt {
		delete(c.entries, key)
	}
	c.mu.Unlock()
	slog.Debug("result cache entry expired", "key", key)
	return nil, false
}

// Set stores a value under key.
func (c *Results) Set(key string, data any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = resultEntry{data: data, storedAt: c.now()}
}

// Invalidate removes the given keys.
func (c *Results) Invalidate(keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.entries, k)
	}
}

// InvalidatePrefix removes every key starting with prefix.
func (c *Results) InvalidatePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
}

// Len returns the number of stored entries, expired ones included.
func (c *Results) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// GetOrLoad returns the cached value for key or calls load and caches its
// result. Concurrent misses on one key share a single load. Failed loads
// are not cached.
func GetOrLoad[T any](ctx context.Context, c *Results, key string, load func(ctx context.Context) (T, error)) (T, error) {
	if v, ok := c.Get(key); ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
	}

	v, err, _ := c.loads.Do(key, func() (any, error) {
		if v, ok := c.Get(key); ok {
			if typed, ok := v.(T); ok {
				return typed, nil
			}
		}
		loaded, err := load(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(key, loaded)
		return loaded, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}
