// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// sidebar.go keeps the sidebar category listing in Valkey together with
// the time it was cached. The copy is advisory: readers fall back to the
// database on any miss or error, and writers invalidate it whenever
// categories change.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"agora/internal/models"
)

const (
	// sidebarKey is the Valkey key holding the cached listing.
	sidebarKey = "sidebar:categories"

	// DefaultSidebarTTL is how long the sidebar listing stays cached.
	DefaultSidebarTTL = 5 * time.Minute
)

// SidebarListing is the cached payload.
type SidebarListing struct {
	Categories []models.CommunityCategory `json:"categories"`
	CachedAt   time.Time                  `json:"cached_at"`
}

// SidebarCache manages the sidebar category listing in Valkey.
type SidebarCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSidebarCache creates a sidebar cache backed by the given Valkey client.
func NewSidebarCache(client *redis.Client, ttl time.Duration) *SidebarCache {
	if ttl == 0 {
		ttl = DefaultSidebarTTL
	}
	return &SidebarCache{client: client, ttl: ttl}
}

// Get returns the cached listing. Errors and malformed payloads are misses.
func (sc *SidebarCache) Get(ctx context.Context) (*SidebarListing, bool) {
	val, err := sc.client.Get(ctx, sidebarKey).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		slog.Warn("sidebar cache get error", "error", err)
		return nil, false
	}

	var listing SidebarListing
	if err := json.Unmarshal(val, &listing); err != nil {
		slog.Warn("sidebar cache payload invalid", "error", err)
		return nil, false
	}
	slog.Debug("sidebar cache hit", "categories", len(listing.Categories))
	return &listing, true
}

// Set stores the listing stamped with the current time.
func (sc *SidebarCache) Set(ctx context.Context, categories []models.CommunityCategory) {
	payload, err := json.Marshal(SidebarListing{Categories: categories, CachedAt: time.Now().UTC()})
	if err != nil {
		slog.Warn("sidebar cache encode error", "error", err)
		return
	}
	if err := sc.client.Set(ctx, sidebarKey, payload, sc.ttl).Err(); err != nil {
		slog.Warn("sidebar cache set error", "error", err)
	}
}

// Invalidate drops the cached listing so the next read hits the database.
func (sc *SidebarCache) Invalidate(ctx context.Context) {
	if err := sc.client.Del(ctx, sidebarKey).Err(); err != nil {
		slog.Warn("sidebar cache invalidate error", "error", err)
		return
	}
	slog.Debug("sidebar cache invalidated")
}
