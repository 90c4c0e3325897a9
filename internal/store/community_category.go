// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"agora/internal/models"
)

// CommunityCategoryStore manages the canonical community_categories table
// and its deleted_categories audit trail.
type CommunityCategoryStore struct {
	db *sql.DB
}

// NewCommunityCategoryStore returns a new CommunityCategoryStore.
func NewCommunityCategoryStore(db *sql.DB) *CommunityCategoryStore {
	return &CommunityCategoryStore{db: db}
}

const communityCategoryColumns = `id, name, slug, order_index, created_at, updated_at`

const deletedCategoryColumns = `id, original_id, name, slug, order_index, deleted_at, deleted_by`

func scanCommunityCategory(scanner interface{ Scan(...any) error }) (*models.CommunityCategory, error) {
	var c models.CommunityCategory
	err := scanner.Scan(&c.ID, &c.Name, &c.Slug, &c.OrderIndex, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func scanDeletedCategory(scanner interface{ Scan(...any) error }) (*models.DeletedCategory, error) {
	var d models.DeletedCategory
	err := scanner.Scan(&d.ID, &d.OriginalID, &d.Name, &d.Slug, &d.OrderIndex, &d.DeletedAt, &d.DeletedBy)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListCommunityCategories returns all community categories in display order.
func (s *CommunityCategoryStore) ListCommunityCategories(ctx context.Context) ([]models.CommunityCategory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+communityCategoryColumns+`
		FROM community_categories
		ORDER BY order_index, name
	`)
	if err != nil {
		return nil, fmt.Errorf("list community categories: %w", err)
	}
	defer rows.Close()

	var items []models.CommunityCategory
	for rows.Next() {
		c, err := scanCommunityCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan community category: %w", err)
		}
		items = append(items, *c)
	}
	return items, rows.Err()
}

// FindCommunityCategory retrieves a community category by ID. Returns nil
// if not found.
func (s *CommunityCategoryStore) FindCommunityCategory(ctx context.Context, id uuid.UUID) (*models.CommunityCategory, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+communityCategoryColumns+` FROM community_categories WHERE id = $1`, id)
	c, err := scanCommunityCategory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find community category by id: %w", err)
	}
	return c, nil
}

// CreateCommunityCategory inserts a community category and returns it.
// A zero ID is replaced by a fresh one.
func (s *CommunityCategoryStore) CreateCommunityCategory(ctx context.Context, c *models.CommunityCategory) (*models.CommunityCategory, error) {
	id := c.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO community_categories (id, name, slug, order_index)
		VALUES ($1, $2, $3, $4)
		RETURNING `+communityCategoryColumns,
		id, c.Name, c.Slug, c.OrderIndex,
	)
	result, err := scanCommunityCategory(row)
	if err != nil {
		return nil, fmt.Errorf("create community category: %w", err)
	}
	return result, nil
}

// UpdateCommunityCategory modifies name, slug and order of an existing
// category. Returns false if no row matched.
func (s *CommunityCategoryStore) UpdateCommunityCategory(ctx context.Context, c *models.CommunityCategory) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE community_categories SET
			name = $1, slug = $2, order_index = $3, updated_at = NOW()
		WHERE id = $4
	`, c.Name, c.Slug, c.OrderIndex, c.ID)
	if err != nil {
		return false, fmt.Errorf("update community category: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update community category rows: %w", err)
	}
	return n > 0, nil
}

// ReorderCommunityCategories updates order_index for multiple categories
// in a transaction.
func (s *CommunityCategoryStore) ReorderCommunityCategories(ctx context.Context, items []models.ReorderItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE community_categories SET order_index = $1, updated_at = $2
		WHERE id = $3`)
	if err != nil {
		return fmt.Errorf("prepare reorder: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, item := range items {
		if _, err := stmt.ExecContext(ctx, item.OrderIndex, now, item.ID); err != nil {
			return fmt.Errorf("reorder community category %s: %w", item.ID, err)
		}
	}

	return tx.Commit()
}

// NextOrderIndex returns max(order_index)+1, or 0 for an empty table.
func (s *CommunityCategoryStore) NextOrderIndex(ctx context.Context) (int, error) {
	var maxOrder sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(order_index) FROM community_categories`).Scan(&maxOrder)
	if err != nil {
		return 0, fmt.Errorf("next order index: %w", err)
	}
	if maxOrder.Valid {
		return int(maxOrder.Int64) + 1, nil
	}
	return 0, nil
}

// SoftDeleteCommunityCategory moves a category into deleted_categories and
// clears community references to it, in one transaction. Returns nil if
// the category does not exist.
func (s *CommunityCategoryStore) SoftDeleteCommunityCategory(ctx context.Context, id uuid.UUID, deletedBy *uuid.UUID) (*models.DeletedCategory, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		DELETE FROM community_categories WHERE id = $1
		RETURNING `+communityCategoryColumns, id)
	c, err := scanCommunityCategory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("soft delete community category: %w", err)
	}

	row = tx.QueryRowContext(ctx, `
		INSERT INTO deleted_categories (original_id, name, slug, order_index, deleted_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+deletedCategoryColumns,
		c.ID, c.Name, c.Slug, c.OrderIndex, deletedBy,
	)
	deleted, err := scanDeletedCategory(row)
	if err != nil {
		return nil, fmt.Errorf("record deleted category: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE communities SET category_id = NULL, updated_at = NOW() WHERE category_id = $1`, id,
	); err != nil {
		return nil, fmt.Errorf("detach communities: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit soft delete: %w", err)
	}
	return deleted, nil
}

// ForceDeleteCommunityCategory removes a category without an audit row
// and clears community references. Returns false if nothing was deleted.
func (s *CommunityCategoryStore) ForceDeleteCommunityCategory(ctx context.Context, id uuid.UUID) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE communities SET category_id = NULL, updated_at = NOW() WHERE category_id = $1`, id,
	); err != nil {
		return false, fmt.Errorf("detach communities: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM community_categories WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("force delete community category: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("force delete rows: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit force delete: %w", err)
	}
	return n > 0, nil
}

// ListDeletedCategories returns audit rows, most recently deleted first.
func (s *CommunityCategoryStore) ListDeletedCategories(ctx context.Context) ([]models.DeletedCategory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+deletedCategoryColumns+`
		FROM deleted_categories
		ORDER BY deleted_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list deleted categories: %w", err)
	}
	defer rows.Close()

	var items []models.DeletedCategory
	for rows.Next() {
		d, err := scanDeletedCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan deleted category: %w", err)
		}
		items = append(items, *d)
	}
	return items, rows.Err()
}

// FindDeletedCategory retrieves an audit row by its ID. Returns nil if not found.
func (s *CommunityCategoryStore) FindDeletedCategory(ctx context.Context, id uuid.UUID) (*models.DeletedCategory, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+deletedCategoryColumns+` FROM deleted_categories WHERE id = $1`, id)
	d, err := scanDeletedCategory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find deleted category: %w", err)
	}
	return d, nil
}

// RestoreCommunityCategory reinserts a category and removes its audit row
// in one transaction.
func (s *CommunityCategoryStore) RestoreCommunityCategory(ctx context.Context, deletedID uuid.UUID, c *models.CommunityCategory) (*models.CommunityCategory, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		INSERT INTO community_categories (id, name, slug, order_index)
		VALUES ($1, $2, $3, $4)
		RETURNING `+communityCategoryColumns,
		c.ID, c.Name, c.Slug, c.OrderIndex,
	)
	restored, err := scanCommunityCategory(row)
	if err != nil {
		return nil, fmt.Errorf("restore community category: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM deleted_categories WHERE id = $1`, deletedID); err != nil {
		return nil, fmt.Errorf("remove deleted category: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit restore: %w", err)
	}
	return restored, nil
}
