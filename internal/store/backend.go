// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package store implements the PostgreSQL backend: the legacy and
// canonical category tables, communities and the deleted-category audit
// trail.
package store

import (
	"context"
	"database/sql"
	"fmt"
)

// probeTables are the tables a health probe may read, in probe order.
var probeTables = map[string]bool{
	"community_categories": true,
	"categories":           true,
	"communities":          true,
}

// Backend combines the per-table stores into the data service used by the
// catalog, the reconciler and the health monitor.
type Backend struct {
	*CategoryStore
	*CommunityCategoryStore
	*CommunityStore

	db *sql.DB
}

// New returns a Backend over db.
func New(db *sql.DB) *Backend {
	return &Backend{
		CategoryStore:          NewCategoryStore(db),
		CommunityCategoryStore: NewCommunityCategoryStore(db),
		CommunityStore:         NewCommunityStore(db),
		db:                     db,
	}
}

// Probe performs a cheap read against table to prove the database answers.
func (b *Backend) Probe(ctx context.Context, table string) error {
	if !probeTables[table] {
		return fmt.Errorf("probe: unknown table %q", table)
	}
	var one int
	err := b.db.QueryRowContext(ctx, `SELECT 1 FROM `+table+` LIMIT 1`).Scan(&one)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("probe %s: %w", table, err)
	}
	return nil
}

// Ping checks the connection without touching any table.
func (b *Backend) Ping(ctx context.Context) error {
	if err := b.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}
