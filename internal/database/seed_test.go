package database

import (
	"context"
	"testing"
)

func TestSeedIdempotent(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	// Seed only writes into empty tables, so calling it twice must not
	// error or duplicate rows. Other test packages may share the database,
	// so nothing is cleared first.
	if err := Seed(ctx, db); err != nil {
		t.Fatalf("first Seed: %v", err)
	}

	var before int
	if err := db.QueryRow("SELECT COUNT(*) FROM community_categories").Scan(&before); err != nil {
		t.Fatalf("count community categories: %v", err)
	}
	if before < 1 {
		t.Errorf("expected at least 1 community category, got %d", before)
	}

	if err := Seed(ctx, db); err != nil {
		t.Fatalf("second Seed: %v", err)
	}

	var after int
	if err := db.QueryRow("SELECT COUNT(*) FROM community_categories").Scan(&after); err != nil {
		t.Fatalf("count community categories: %v", err)
	}
	if after != before {
		t.Errorf("second Seed changed row count: %d -> %d", before, after)
	}
}
