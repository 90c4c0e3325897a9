package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestCacheLogRecordsCategoryEvents(t *testing.T) {
	db := testDB(t)
	s := NewCacheLogStore(db)
	ctx := context.Background()

	created := uuid.New()
	deleted := uuid.New()
	t.Cleanup(func() {
		db.Exec("DELETE FROM cache_invalidation_log WHERE entity_id IN ($1, $2)", created, deleted)
	})

	s.Log(ctx, "community_categories", &created, "create")
	s.Log(ctx, "community_categories", &deleted, "delete")

	entries, err := s.RecentEntries(ctx, 50, "")
	if err != nil {
		t.Fatalf("RecentEntries: %v", err)
	}

	seen := map[uuid.UUID]string{}
	for i, e := range entries {
		if i > 0 && e.InvalidatedAt.After(entries[i-1].InvalidatedAt) {
			t.Errorf("entry %d is newer than entry %d", i, i-1)
		}
		if e.EntityID != nil {
			seen[*e.EntityID] = e.Action
		}
	}
	if seen[created] != "create" || seen[deleted] != "delete" {
		t.Errorf("logged actions = %v", seen)
	}
}

func TestCacheLogTableWideEvent(t *testing.T) {
	db := testDB(t)
	s := NewCacheLogStore(db)
	ctx := context.Background()

	var before int
	db.QueryRow("SELECT COUNT(*) FROM cache_invalidation_log WHERE entity_id IS NULL AND action = 'sync'").Scan(&before)

	s.Log(ctx, "community_categories", nil, "sync")

	var after int
	if err := db.QueryRow(
		"SELECT COUNT(*) FROM cache_invalidation_log WHERE entity_id IS NULL AND action = 'sync'",
	).Scan(&after); err != nil {
		t.Fatalf("query: %v", err)
	}
	if after != before+1 {
		t.Errorf("sync rows = %d, want %d", after, before+1)
	}
}

func TestCacheLogLimit(t *testing.T) {
	db := testDB(t)
	s := NewCacheLogStore(db)
	ctx := context.Background()

	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for i := range ids {
		s.Log(ctx, "community_categories", &ids[i], "update")
	}
	t.Cleanup(func() {
		for _, id := range ids {
			db.Exec("DELETE FROM cache_invalidation_log WHERE entity_id = $1", id)
		}
	})

	entries, err := s.RecentEntries(ctx, 2, "")
	if err != nil {
		t.Fatalf("RecentEntries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
}

func TestCacheLogSwallowsErrors(t *testing.T) {
	db := testDB(t)
	s := NewCacheLogStore(db)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A failed write is only logged; it must not panic or block.
	id := uuid.New()
	s.Log(ctx, "community_categories", &id, "update")

	var count int
	db.QueryRow("SELECT COUNT(*) FROM cache_invalidation_log WHERE entity_id = $1", id).Scan(&count)
	if count != 0 {
		t.Errorf("cancelled write stored %d rows", count)
	}
}

func TestCacheLogActionFilter(t *testing.T) {
	db := testDB(t)
	s := NewCacheLogStore(db)
	ctx := context.Background()

	restored := uuid.New()
	updated := uuid.New()
	t.Cleanup(func() {
		db.Exec("DELETE FROM cache_invalidation_log WHERE entity_id IN ($1, $2)", restored, updated)
	})
	s.Log(ctx, "community_categories", &restored, "restore")
	s.Log(ctx, "community_categories", &updated, "update")

	entries, err := s.RecentEntries(ctx, 100, "restore")
	if err != nil {
		t.Fatalf("RecentEntries: %v", err)
	}
	var found bool
	for _, e := range entries {
		if e.Action != "restore" {
			t.Errorf("filtered result has action %q", e.Action)
		}
		if e.EntityID != nil && *e.EntityID == restored {
			found = true
		}
	}
	if !found {
		t.Error("restore event missing from filtered result")
	}
}

func TestCacheLogPrune(t *testing.T) {
	db := testDB(t)
	s := NewCacheLogStore(db)
	ctx := context.Background()

	old := uuid.New()
	fresh := uuid.New()
	t.Cleanup(func() {
		db.Exec("DELETE FROM cache_invalidation_log WHERE entity_id IN ($1, $2)", old, fresh)
	})
	s.Log(ctx, "community_categories", &old, "delete")
	s.Log(ctx, "community_categories", &fresh, "delete")
	if _, err := db.Exec(
		"UPDATE cache_invalidation_log SET invalidated_at = NOW() - INTERVAL '90 days' WHERE entity_id = $1", old,
	); err != nil {
		t.Fatalf("age entry: %v", err)
	}

	n, err := s.Prune(ctx, time.Now().Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n < 1 {
		t.Errorf("pruned %d rows, want at least 1", n)
	}

	var remaining int
	db.QueryRow("SELECT COUNT(*) FROM cache_invalidation_log WHERE entity_id IN ($1, $2)", old, fresh).Scan(&remaining)
	if remaining != 1 {
		t.Errorf("remaining = %d, want only the fresh entry", remaining)
	}
}
