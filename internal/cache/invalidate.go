package cache

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// KeyCommunityCategories is the Results key of the category listing.
const KeyCommunityCategories = "community_categories"

// AuditLog records invalidation events. store.CacheLogStore satisfies it.
type AuditLog interface {
	Log(ctx context.Context, entityType string, entityID *uuid.UUID, action string)
}

// CategoryInvalidator drops every cached copy of the category listing:
// the in-process result, the Valkey sidebar entry and, when an audit log
// is configured, records why. Any of the three may be nil.
type CategoryInvalidator struct {
	results *Results
	sidebar *SidebarCache
	audit   AuditLog
}

// NewCategoryInvalidator wires the caches that hold category listings.
func NewCategoryInvalidator(results *Results, sidebar *SidebarCache, audit AuditLog) *CategoryInvalidator {
	return &CategoryInvalidator{results: results, sidebar: sidebar, audit: audit}
}

// InvalidateCategories is called after any category mutation. entityID is
// nil when a whole reconciliation pass changed the listing.
func (ci *CategoryInvalidator) InvalidateCategories(ctx context.Context, entityID *uuid.UUID, action string) {
	if ci.results != nil {
		ci.results.Invalidate(KeyCommunityCategories)
	}
	if ci.sidebar != nil {
		ci.sidebar.Invalidate(ctx)
	}
	if ci.audit != nil {
		ci.audit.Log(ctx, "community_category", entityID, action)
	}
	slog.Debug("category caches invalidated", "action", action)
}
