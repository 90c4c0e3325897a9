// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package catalog manages the lifecycle of community categories: listing,
// creation with unique slugs and append ordering, reordering, soft delete
// and restore. Every backend call goes through the retrying executor and
// every mutation invalidates the cached category listings.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"agora/internal/cache"
	"agora/internal/models"
	"agora/internal/resilience"
	"agora/internal/slug"
)

var (
	// ErrNotFound is returned when the addressed category does not exist.
	ErrNotFound = errors.New("catalog: category not found")

	// ErrInvalid is returned for input that fails validation.
	ErrInvalid = errors.New("catalog: invalid category")
)

// Backend is the data access the catalog needs. store.Backend and
// postgrest.Client both satisfy it.
type Backend interface {
	ListCommunityCategories(ctx context.Context) ([]models.CommunityCategory, error)
	FindCommunityCategory(ctx context.Context, id uuid.UUID) (*models.CommunityCategory, error)
	CreateCommunityCategory(ctx context.Context, c *models.CommunityCategory) (*models.CommunityCategory, error)
	UpdateCommunityCategory(ctx context.Context, c *models.CommunityCategory) (bool, error)
	ReorderCommunityCategories(ctx context.Context, items []models.ReorderItem) error
	NextOrderIndex(ctx context.Context) (int, error)
	SoftDeleteCommunityCategory(ctx context.Context, id uuid.UUID, deletedBy *uuid.UUID) (*models.DeletedCategory, error)
	ForceDeleteCommunityCategory(ctx context.Context, id uuid.UUID) (bool, error)
	ListDeletedCategories(ctx context.Context) ([]models.DeletedCategory, error)
	FindDeletedCategory(ctx context.Context, id uuid.UUID) (*models.DeletedCategory, error)
	RestoreCommunityCategory(ctx context.Context, deletedID uuid.UUID, c *models.CommunityCategory) (*models.CommunityCategory, error)
}

// Invalidator drops cached category listings after a mutation.
type Invalidator interface {
	InvalidateCategories(ctx context.Context, entityID *uuid.UUID, action string)
}

// Service is the category catalog.
type Service struct {
	backend     Backend
	exec        *resilience.Executor
	results     *cache.Results
	invalidator Invalidator

	// mu serializes mutations that compute a slug or an order index from
	// the current rows, so two adds in this process never pick the same.
	mu sync.Mutex
}

// New creates a catalog service. results and invalidator may be nil.
func New(backend Backend, exec *resilience.Executor, results *cache.Results, invalidator Invalidator) *Service {
	return &Service{
		backend:     backend,
		exec:        exec,
		results:     results,
		invalidator: invalidator,
	}
}

// FetchCategories returns all community categories in display order,
// served from the result cache while fresh.
func (s *Service) FetchCategories(ctx context.Context) ([]models.CommunityCategory, error) {
	load := func(ctx context.Context) ([]models.CommunityCategory, error) {
		return resilience.Do(ctx, s.exec, s.backend.ListCommunityCategories)
	}
	if s.results == nil {
		return load(ctx)
	}
	cats, err := cache.GetOrLoad(ctx, s.results, cache.KeyCommunityCategories, load)
	if err != nil {
		return nil, fmt.Errorf("fetch categories: %w", err)
	}
	return cats, nil
}

// AddCategory creates a category at the end of the display order. An empty
// preferredSlug derives the slug from name; either way the slug is made
// unique against existing categories.
func (s *Service) AddCategory(ctx context.Context, name, preferredSlug string) (*models.CommunityCategory, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := resilience.Do(ctx, s.exec, s.backend.ListCommunityCategories)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	next, err := resilience.Do(ctx, s.exec, s.backend.NextOrderIndex)
	if err != nil {
		return nil, fmt.Errorf("next order index: %w", err)
	}

	cc := &models.CommunityCategory{
		ID:         uuid.New(),
		Name:       name,
		Slug:       slugsOf(existing).Assign(preferredSlug, name),
		OrderIndex: next,
	}
	if err := models.Validate(cc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	created, err := resilience.Do(ctx, s.exec, func(ctx context.Context) (*models.CommunityCategory, error) {
		return s.backend.CreateCommunityCategory(ctx, cc)
	})
	if err != nil {
		return nil, fmt.Errorf("create category: %w", err)
	}

	slog.Info("category created", "id", created.ID, "slug", created.Slug, "order_index", created.OrderIndex)
	s.invalidate(ctx, &created.ID, "create")
	return created, nil
}

// UpdateCategory renames a category. The slug is regenerated from
// preferredSlug (or the new name) and made unique against the other rows;
// the display position is left alone.
func (s *Service) UpdateCategory(ctx context.Context, id uuid.UUID, name, preferredSlug string) (*models.CommunityCategory, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := resilience.Do(ctx, s.exec, s.backend.ListCommunityCategories)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}

	var current *models.CommunityCategory
	others := make([]models.CommunityCategory, 0, len(existing))
	for i := range existing {
		if existing[i].ID == id {
			current = &existing[i]
			continue
		}
		others = append(others, existing[i])
	}
	if current == nil {
		return nil, ErrNotFound
	}

	updated := *current
	updated.Name = name
	updated.Slug = slugsOf(others).Assign(preferredSlug, name)
	if err := models.Validate(&updated); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	ok, err := resilience.Do(ctx, s.exec, func(ctx context.Context) (bool, error) {
		return s.backend.UpdateCommunityCategory(ctx, &updated)
	})
	if err != nil {
		return nil, fmt.Errorf("update category: %w", err)
	}
	if !ok {
		return nil, ErrNotFound
	}

	s.invalidate(ctx, &id, "update")
	return &updated, nil
}

// ReorderCategories assigns new order indexes in one backend call.
func (s *Service) ReorderCategories(ctx context.Context, items []models.ReorderItem) error {
	if len(items) == 0 {
		return nil
	}
	if err := models.ValidateAll(items); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.exec.Run(ctx, func(ctx context.Context) error {
		return s.backend.ReorderCommunityCategories(ctx, items)
	})
	if err != nil {
		return fmt.Errorf("reorder categories: %w", err)
	}
	s.invalidate(ctx, nil, "reorder")
	return nil
}

// DeleteCategory soft-deletes a category, keeping an audit row it can be
// restored from. Communities pointing at it lose their category. When the
// soft delete fails and force is set, the category is removed without an
// audit row instead.
func (s *Service) DeleteCategory(ctx context.Context, id uuid.UUID, deletedBy *uuid.UUID, force bool) error {
	deleted, err := resilience.Do(ctx, s.exec, func(ctx context.Context) (*models.DeletedCategory, error) {
		return s.backend.SoftDeleteCommunityCategory(ctx, id, deletedBy)
	})
	switch {
	case err == nil && deleted == nil:
		return ErrNotFound
	case err == nil:
		slog.Info("category soft-deleted", "id", id, "audit_id", deleted.ID)
	case !force:
		return fmt.Errorf("delete category: %w", err)
	default:
		slog.Warn("soft delete failed, forcing", "id", id, "error", err)
		if err := s.ForceDeleteCategory(ctx, id); err != nil {
			return err
		}
		return nil
	}

	s.invalidate(ctx, &id, "delete")
	return nil
}

// ForceDeleteCategory removes a category with no audit row.
func (s *Service) ForceDeleteCategory(ctx context.Context, id uuid.UUID) error {
	ok, err := resilience.Do(ctx, s.exec, func(ctx context.Context) (bool, error) {
		return s.backend.ForceDeleteCommunityCategory(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("force delete category: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	slog.Warn("category force-deleted", "id", id)
	s.invalidate(ctx, &id, "force_delete")
	return nil
}

// ListDeleted returns the soft-deleted categories, newest first.
func (s *Service) ListDeleted(ctx context.Context) ([]models.DeletedCategory, error) {
	items, err := resilience.Do(ctx, s.exec, s.backend.ListDeletedCategories)
	if err != nil {
		return nil, fmt.Errorf("list deleted categories: %w", err)
	}
	return items, nil
}

// RestoreCategory brings a soft-deleted category back under its original
// id. If the id, slug or display position has been taken since, a fresh
// one is assigned.
func (s *Service) RestoreCategory(ctx context.Context, deletedID uuid.UUID) (*models.CommunityCategory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted, err := resilience.Do(ctx, s.exec, func(ctx context.Context) (*models.DeletedCategory, error) {
		return s.backend.FindDeletedCategory(ctx, deletedID)
	})
	if err != nil {
		return nil, fmt.Errorf("find deleted category: %w", err)
	}
	if deleted == nil {
		return nil, ErrNotFound
	}

	existing, err := resilience.Do(ctx, s.exec, s.backend.ListCommunityCategories)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}

	cc := &models.CommunityCategory{
		ID:         deleted.OriginalID,
		Name:       deleted.Name,
		Slug:       deleted.Slug,
		OrderIndex: deleted.OrderIndex,
	}

	orderTaken := false
	for _, e := range existing {
		if e.ID == cc.ID {
			cc.ID = uuid.New()
		}
		if e.OrderIndex == cc.OrderIndex {
			orderTaken = true
		}
	}

	uniq := slugsOf(existing)
	if uniq.Taken(cc.Slug) {
		cc.Slug = uniq.Assign(cc.Slug, cc.Name)
	}
	if orderTaken {
		next, err := resilience.Do(ctx, s.exec, s.backend.NextOrderIndex)
		if err != nil {
			return nil, fmt.Errorf("next order index: %w", err)
		}
		cc.OrderIndex = next
	}

	restored, err := resilience.Do(ctx, s.exec, func(ctx context.Context) (*models.CommunityCategory, error) {
		return s.backend.RestoreCommunityCategory(ctx, deletedID, cc)
	})
	if err != nil {
		return nil, fmt.Errorf("restore category: %w", err)
	}

	slog.Info("category restored", "id", restored.ID, "slug", restored.Slug)
	s.invalidate(ctx, &restored.ID, "restore")
	return restored, nil
}

func (s *Service) invalidate(ctx context.Context, id *uuid.UUID, action string) {
	if s.invalidator != nil {
		s.invalidator.InvalidateCategories(ctx, id, action)
	}
}

// slugsOf seeds a Uniquifier with the slugs of cats.
func slugsOf(cats []models.CommunityCategory) *slug.Uniquifier {
	u := slug.NewUniquifier()
	for _, c := range cats {
		u.Reserve(c.Slug)
	}
	return u
}
