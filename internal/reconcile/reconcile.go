// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package reconcile detects and repairs divergence between the legacy
// category table, the canonical community categories and the category
// references held by communities.
//
// Concurrent calls of one operation share a single in-flight pass and
// different operations never overlap, so two triggers cannot create the
// same missing category twice.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"agora/internal/models"
	"agora/internal/resilience"
	"agora/internal/slug"
)

// updateParallelism bounds concurrent community updates within a pass.
const updateParallelism = 4

// Backend is the data access the reconciler needs. store.Backend and
// postgrest.Client both satisfy it.
type Backend interface {
	ListCategories(ctx context.Context) ([]models.Category, error)
	ListCommunityCategories(ctx context.Context) ([]models.CommunityCategory, error)
	CreateCommunityCategory(ctx context.Context, c *models.CommunityCategory) (*models.CommunityCategory, error)
	NextOrderIndex(ctx context.Context) (int, error)
	ListCategorizedCommunities(ctx context.Context) ([]models.Community, error)
	SetCommunityCategory(ctx context.Context, communityID uuid.UUID, categoryID *uuid.UUID) error
}

// Invalidator drops cached category listings after a pass changed them.
type Invalidator interface {
	InvalidateCategories(ctx context.Context, entityID *uuid.UUID, action string)
}

// Report summarizes a TestAndFixCategorySync pass.
type Report struct {
	Success             bool   `json:"success"`
	Message             string `json:"message"`
	OriginalCategories  int    `json:"original_categories"`
	CommunityCategories int    `json:"community_categories"`
	InvalidReferences   int    `json:"invalid_references"`
	Repaired            int    `json:"repaired"`
	Nulled              int    `json:"nulled"`
	Created             int    `json:"created"`
	Failed              int    `json:"failed"`
}

// Reconciler runs the reconciliation passes.
type Reconciler struct {
	backend     Backend
	exec        *resilience.Executor
	invalidator Invalidator

	flights     singleflight.Group
	mu          sync.Mutex
	passTimeout time.Duration
}

// DefaultPassTimeout bounds one reconciliation pass.
const DefaultPassTimeout = 5 * time.Minute

// New creates a Reconciler. invalidator may be nil.
func New(backend Backend, exec *resilience.Executor, invalidator Invalidator) *Reconciler {
	return &Reconciler{backend: backend, exec: exec, invalidator: invalidator, passTimeout: DefaultPassTimeout}
}

// exclusive runs fn as the single in-flight pass for key. Latecomers wait
// for and receive the running pass's result.
//
// The pass keeps the values of the caller that started it but not its
// cancellation: it is bounded by passTimeout alone, so a caller that goes
// away stops waiting without aborting the pass for everyone who joined.
func (r *Reconciler) exclusive(ctx context.Context, key string, fn func(ctx context.Context) (any, error)) (any, error) {
	ch := r.flights.DoChan(key, func() (any, error) {
		passCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.passTimeout)
		defer cancel()

		r.mu.Lock()
		defer r.mu.Unlock()
		return fn(passCtx)
	})
	select {
	case res := <-ch:
		if res.Shared {
			slog.Debug("joined in-flight reconciliation", "operation", key)
		}
		return res.Val, res.Err
	case <-ctx.Done():
		slog.Info("caller left running reconciliation", "operation", key, "error", ctx.Err())
		return nil, ctx.Err()
	}
}

// SyncCategories creates a community category for every legacy category
// whose name has no case-insensitive match. New rows get a unique slug and
// are appended to the display order.
func (r *Reconciler) SyncCategories(ctx context.Context) error {
	_, err := r.exclusive(ctx, "sync", func(ctx context.Context) (any, error) {
		return nil, r.syncCategories(ctx)
	})
	return err
}

func (r *Reconciler) syncCategories(ctx context.Context) error {
	legacy, err := resilience.Do(ctx, r.exec, r.backend.ListCategories)
	if err != nil {
		return fmt.Errorf("list categories: %w", err)
	}
	current, err := resilience.Do(ctx, r.exec, r.backend.ListCommunityCategories)
	if err != nil {
		return fmt.Errorf("list community categories: %w", err)
	}

	names := make(map[string]bool, len(current))
	uniq := slug.NewUniquifier()
	for _, cc := range current {
		names[nameKey(cc.Name)] = true
		uniq.Reserve(cc.Slug)
	}
	orders := &orderAllocator{r: r}

	var (
		created int
		errs    []error
	)
	for _, c := range legacy {
		if names[nameKey(c.Name)] {
			continue
		}
		cc, err := r.createCategory(ctx, c, uniq, orders)
		if err != nil {
			slog.Warn("sync: create community category failed", "category_id", c.ID, "name", c.Name, "error", err)
			errs = append(errs, err)
			continue
		}
		names[nameKey(c.Name)] = true
		created++
		slog.Info("sync: community category created", "name", cc.Name, "slug", cc.Slug, "order_index", cc.OrderIndex)
	}

	if created > 0 {
		r.invalidate(ctx, "sync")
	}
	slog.Info("category sync finished", "legacy", len(legacy), "existing", len(current), "created", created, "failed", len(errs))
	if len(errs) > 0 {
		return fmt.Errorf("sync categories: %d of %d inserts failed: %w", len(errs), len(errs)+created, errors.Join(errs...))
	}
	return nil
}

// CleanupCommunityCategories clears every community reference that points
// at a missing community category and returns how many were cleared. Each
// update is independent; one failure is logged and does not stop the rest.
func (r *Reconciler) CleanupCommunityCategories(ctx context.Context) (int, error) {
	v, err := r.exclusive(ctx, "cleanup", func(ctx context.Context) (any, error) {
		return r.cleanup(ctx)
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

func (r *Reconciler) cleanup(ctx context.Context) (int, error) {
	current, err := resilience.Do(ctx, r.exec, r.backend.ListCommunityCategories)
	if err != nil {
		return 0, fmt.Errorf("list community categories: %w", err)
	}
	communities, err := resilience.Do(ctx, r.exec, r.backend.ListCategorizedCommunities)
	if err != nil {
		return 0, fmt.Errorf("list communities: %w", err)
	}

	valid := validIDs(current)
	var updates []update
	for _, cm := range communities {
		if cm.CategoryID != nil && !valid[*cm.CategoryID] {
			updates = append(updates, update{community: cm.ID, from: *cm.CategoryID})
		}
	}

	nulled, _, failed := r.apply(ctx, updates)
	if nulled > 0 {
		r.invalidate(ctx, "cleanup")
	}
	slog.Info("category cleanup finished", "dangling", len(updates), "nulled", nulled, "failed", failed)
	return nulled, nil
}

// TestAndFixCategorySync repairs dangling community references. A dangling
// reference whose legacy category still exists is pointed at the community
// category with the same name, which is created if needed; one whose
// legacy category is gone is cleared. It never returns an error: load
// failures are reported through Report.Success and Report.Message.
func (r *Reconciler) TestAndFixCategorySync(ctx context.Context) Report {
	v, err := r.exclusive(ctx, "repair", func(ctx context.Context) (any, error) {
		return r.repair(ctx), nil
	})
	if err != nil {
		return Report{Message: err.Error()}
	}
	return v.(Report)
}

func (r *Reconciler) repair(ctx context.Context) Report {
	var rep Report

	legacy, err := resilience.Do(ctx, r.exec, r.backend.ListCategories)
	if err != nil {
		rep.Message = fmt.Sprintf("Failed to load categories: %v", err)
		return rep
	}
	current, err := resilience.Do(ctx, r.exec, r.backend.ListCommunityCategories)
	if err != nil {
		rep.Message = fmt.Sprintf("Failed to load community categories: %v", err)
		return rep
	}
	communities, err := resilience.Do(ctx, r.exec, r.backend.ListCategorizedCommunities)
	if err != nil {
		rep.Message = fmt.Sprintf("Failed to load communities: %v", err)
		return rep
	}
	rep.OriginalCategories = len(legacy)
	rep.CommunityCategories = len(current)

	legacyByID := make(map[uuid.UUID]models.Category, len(legacy))
	for _, c := range legacy {
		legacyByID[c.ID] = c
	}
	byName := make(map[string]uuid.UUID, len(current))
	uniq := slug.NewUniquifier()
	for _, cc := range current {
		if _, dup := byName[nameKey(cc.Name)]; !dup {
			byName[nameKey(cc.Name)] = cc.ID
		}
		uniq.Reserve(cc.Slug)
	}
	valid := validIDs(current)
	orders := &orderAllocator{r: r}

	// Resolve each distinct dangling id once, sequentially: creating a
	// category mutates the slug and order bookkeeping.
	type resolution struct {
		target *uuid.UUID
		ok     bool
	}
	resolved := make(map[uuid.UUID]resolution)
	var updates []update

	for _, cm := range communities {
		if cm.CategoryID == nil || valid[*cm.CategoryID] {
			continue
		}
		rep.InvalidReferences++
		from := *cm.CategoryID

		res, seen := resolved[from]
		if !seen {
			res = resolution{ok: true}
			if orig, found := legacyByID[from]; found {
				if id, match := byName[nameKey(orig.Name)]; match {
					res.target = &id
				} else if cc, err := r.createCategory(ctx, orig, uniq, orders); err != nil {
					slog.Warn("repair: create community category failed", "category_id", from, "name", orig.Name, "error", err)
					res.ok = false
				} else {
					byName[nameKey(orig.Name)] = cc.ID
					res.target = &cc.ID
					rep.Created++
					slog.Info("repair: community category created", "name", cc.Name, "slug", cc.Slug, "order_index", cc.OrderIndex)
				}
			}
			resolved[from] = res
		}

		if !res.ok {
			rep.Failed++
			continue
		}
		updates = append(updates, update{community: cm.ID, from: from, to: res.target})
	}

	nulled, repaired, failed := r.apply(ctx, updates)
	rep.Nulled = nulled
	rep.Repaired = repaired
	rep.Failed += failed

	r.invalidate(ctx, "repair")

	rep.Success = rep.Failed == 0
	rep.Message = fmt.Sprintf(
		"Found %d original categories and %d community categories. %d invalid references: %d repaired, %d cleared, %d categories created.",
		rep.OriginalCategories, rep.CommunityCategories, rep.InvalidReferences, rep.Repaired, rep.Nulled, rep.Created,
	)
	if rep.Failed > 0 {
		rep.Message += fmt.Sprintf(" %d references could not be fixed.", rep.Failed)
	}
	slog.Info("category repair finished",
		"invalid", rep.InvalidReferences,
		"repaired", rep.Repaired,
		"nulled", rep.Nulled,
		"created", rep.Created,
		"failed", rep.Failed,
	)
	return rep
}

// update repoints one community. A nil to clears the reference.
type update struct {
	community uuid.UUID
	from      uuid.UUID
	to        *uuid.UUID
}

// apply runs updates with bounded parallelism. Failures are logged and
// counted; they never cancel the remaining updates.
func (r *Reconciler) apply(ctx context.Context, updates []update) (nulled, repointed, failed int) {
	var n, p, f atomic.Int64

	var g errgroup.Group
	g.SetLimit(updateParallelism)
	for _, u := range updates {
		g.Go(func() error {
			err := r.exec.Run(ctx, func(ctx context.Context) error {
				return r.backend.SetCommunityCategory(ctx, u.community, u.to)
			})
			switch {
			case err != nil:
				f.Add(1)
				slog.Warn("community category update failed",
					"community_id", u.community,
					"dangling_id", u.from,
					"error", err,
				)
			case u.to == nil:
				n.Add(1)
			default:
				p.Add(1)
			}
			return nil
		})
	}
	g.Wait()

	return int(n.Load()), int(p.Load()), int(f.Load())
}

// createCategory inserts a community category mirroring a legacy one.
func (r *Reconciler) createCategory(ctx context.Context, c models.Category, uniq *slug.Uniquifier, orders *orderAllocator) (*models.CommunityCategory, error) {
	order, err := orders.next(ctx)
	if err != nil {
		return nil, err
	}
	cc := &models.CommunityCategory{
		ID:         uuid.New(),
		Name:       strings.TrimSpace(c.Name),
		Slug:       uniq.Assign(c.Slug, c.Name),
		OrderIndex: order,
	}
	if err := models.Validate(cc); err != nil {
		return nil, err
	}
	created, err := resilience.Do(ctx, r.exec, func(ctx context.Context) (*models.CommunityCategory, error) {
		return r.backend.CreateCommunityCategory(ctx, cc)
	})
	if err != nil {
		return nil, err
	}
	orders.used()
	return created, nil
}

func (r *Reconciler) invalidate(ctx context.Context, action string) {
	if r.invalidator != nil {
		r.invalidator.InvalidateCategories(ctx, nil, action)
	}
}

// orderAllocator hands out max+1, max+2, … within one pass. The maximum
// is read from the backend on first use.
type orderAllocator struct {
	r      *Reconciler
	loaded bool
	value  int
}

func (o *orderAllocator) next(ctx context.Context) (int, error) {
	if !o.loaded {
		v, err := resilience.Do(ctx, o.r.exec, o.r.backend.NextOrderIndex)
		if err != nil {
			return 0, fmt.Errorf("next order index: %w", err)
		}
		o.value, o.loaded = v, true
	}
	return o.value, nil
}

// used advances past the index last returned by next.
func (o *orderAllocator) used() {
	o.value++
}

func validIDs(cats []models.CommunityCategory) map[uuid.UUID]bool {
	ids := make(map[uuid.UUID]bool, len(cats))
	for _, c := range cats {
		ids[c.ID] = true
	}
	return ids
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
