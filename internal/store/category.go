// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"agora/internal/models"
)

// CategoryStore reads the legacy categories table. The application never
// edits it; reconciliation only reads names and slugs from it.
type CategoryStore struct {
	db *sql.DB
}

// NewCategoryStore returns a new CategoryStore.
func NewCategoryStore(db *sql.DB) *CategoryStore {
	return &CategoryStore{db: db}
}

// ListCategories returns every legacy category ordered by name, so
// reconciliation assigns -N suffixes in a stable order.
func (s *CategoryStore) ListCategories(ctx context.Context) ([]models.Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, slug, created_at FROM categories ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var items []models.Category
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return items, nil
}

// CreateCategory inserts a legacy row. Tests use it to set up drift
// between the two tables.
func (s *CategoryStore) CreateCategory(ctx context.Context, c *models.Category) (*models.Category, error) {
	out := *c
	if out.ID == uuid.Nil {
		out.ID = uuid.New()
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO categories (id, name, slug) VALUES ($1, $2, $3) RETURNING created_at`,
		out.ID, out.Name, out.Slug,
	).Scan(&out.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create category: %w", err)
	}
	return &out, nil
}
