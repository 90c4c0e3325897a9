package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"agora/internal/models"
)

type auditEntry struct {
	entityType string
	entityID   *uuid.UUID
	action     string
}

type recordingAudit struct {
	mu      sync.Mutex
	entries []auditEntry
}

func (a *recordingAudit) Log(ctx context.Context, entityType string, entityID *uuid.UUID, action string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, auditEntry{entityType, entityID, action})
}

func TestCategoryInvalidatorDropsResultsAndAudits(t *testing.T) {
	results := NewResults(time.Minute)
	results.Set(KeyCommunityCategories, []models.CommunityCategory{{Name: "Tech"}})
	results.Set("unrelated", 1)
	audit := &recordingAudit{}

	id := uuid.New()
	NewCategoryInvalidator(results, nil, audit).InvalidateCategories(context.Background(), &id, "update")

	if _, ok := results.Get(KeyCommunityCategories); ok {
		t.Error("category listing should be dropped")
	}
	if _, ok := results.Get("unrelated"); !ok {
		t.Error("other keys should survive")
	}
	if len(audit.entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(audit.entries))
	}
	got := audit.entries[0]
	if got.entityType != "community_category" || got.action != "update" || got.entityID == nil || *got.entityID != id {
		t.Errorf("audit entry = %+v", got)
	}
}

func TestCategoryInvalidatorNilParts(t *testing.T) {
	// A pass-level invalidation with nothing configured must not panic.
	NewCategoryInvalidator(nil, nil, nil).InvalidateCategories(context.Background(), nil, "sync")
}

func TestCategoryInvalidatorClearsSidebar(t *testing.T) {
	client := testValkeyClient(t)
	sidebar := NewSidebarCache(client, time.Minute)
	ctx := context.Background()
	sidebar.Set(ctx, []models.CommunityCategory{{ID: uuid.New(), Name: "Tech", Slug: "tech"}})

	NewCategoryInvalidator(nil, sidebar, nil).InvalidateCategories(ctx, nil, "repair")

	if _, ok := sidebar.Get(ctx); ok {
		t.Error("sidebar listing should be dropped")
	}
}
