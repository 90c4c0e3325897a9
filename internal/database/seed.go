package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// seedCategories are the starter categories written to both tables in
// development.
var seedCategories = []struct {
	name string
	slug string
}{
	{"Technology", "technology"},
	{"Beauty", "beauty"},
	{"Sports", "sports"},
	{"Food & Drink", "food-drink"},
	{"Events", "events"},
}

// Seed populates the database with initial development data: the legacy
// and canonical category sets and one community per category. It is a
// no-op when community categories already exist.
func Seed(ctx context.Context, db *sql.DB) error {
	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM community_categories").Scan(&count); err != nil {
		return fmt.Errorf("seed check categories: %w", err)
	}

	if count > 0 {
		slog.Info("database already seeded, skipping")
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("seed begin tx: %w", err)
	}
	defer tx.Rollback()

	for i, c := range seedCategories {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO categories (name, slug) VALUES ($1, $2)`, c.name, c.slug,
		); err != nil {
			return fmt.Errorf("seed insert category %q: %w", c.name, err)
		}

		var id string
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO community_categories (name, slug, order_index)
			VALUES ($1, $2, $3)
			RETURNING id
		`, c.name, c.slug, i).Scan(&id); err != nil {
			return fmt.Errorf("seed insert community category %q: %w", c.name, err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO communities (name, description, category_id)
			VALUES ($1, $2, $3)
		`, c.name+" Lounge", "Talk about "+c.name, id); err != nil {
			return fmt.Errorf("seed insert community %q: %w", c.name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("seed commit: %w", err)
	}

	slog.Info("database seeded with starter categories", "count", len(seedCategories))
	return nil
}
