// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// cache_log.go keeps the audit trail of category cache invalidations. Each
// row says which listing was dropped and which mutation or reconciliation
// pass caused it.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// CacheLogEntry is one invalidation event. EntityID is nil for events
// that cover the whole table.
type CacheLogEntry struct {
	ID            int64      `json:"id"`
	EntityType    string     `json:"entity_type"`
	EntityID      *uuid.UUID `json:"entity_id"`
	Action        string     `json:"action"`
	InvalidatedAt time.Time  `json:"invalidated_at"`
}

// CacheLogStore reads and writes cache_invalidation_log.
type CacheLogStore struct {
	db *sql.DB
}

// NewCacheLogStore creates a new CacheLogStore.
func NewCacheLogStore(db *sql.DB) *CacheLogStore {
	return &CacheLogStore{db: db}
}

// Log appends an invalidation event. A failed write never reaches the
// caller: the mutation it describes has already happened.
func (s *CacheLogStore) Log(ctx context.Context, entityType string, entityID *uuid.UUID, action string) {
	attrs := []any{"entity_type", entityType, "entity_id", entityID, "action", action}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO cache_invalidation_log (entity_type, entity_id, action) VALUES ($1, $2, $3)`,
		entityType, entityID, action,
	); err != nil {
		slog.Warn("failed to log cache invalidation", append(attrs, "error", err)...)
		return
	}
	slog.Debug("cache invalidation logged", attrs...)
}

// RecentEntries returns up to limit events, newest first. A non-empty
// action keeps only events of that kind.
func (s *CacheLogStore) RecentEntries(ctx context.Context, limit int, action string) ([]CacheLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entity_type, entity_id, action, invalidated_at
		FROM cache_invalidation_log
		WHERE $2::text = '' OR action = $2
		ORDER BY invalidated_at DESC, id DESC
		LIMIT $1
	`, limit, action)
	if err != nil {
		return nil, fmt.Errorf("query cache log: %w", err)
	}
	defer rows.Close()

	var entries []CacheLogEntry
	for rows.Next() {
		var e CacheLogEntry
		if err := rows.Scan(&e.ID, &e.EntityType, &e.EntityID, &e.Action, &e.InvalidatedAt); err != nil {
			return nil, fmt.Errorf("scan cache log: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Prune deletes events older than before and returns how many went.
func (s *CacheLogStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cache_invalidation_log WHERE invalidated_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("prune cache log: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune cache log: %w", err)
	}
	return n, nil
}
