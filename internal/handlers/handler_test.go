// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// handler_test.go provides shared test infrastructure for the handler
// tests: an in-memory backend and a router wired the same way as
// production, minus authentication.
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"agora/internal/cache"
	"agora/internal/catalog"
	"agora/internal/health"
	"agora/internal/models"
	"agora/internal/reconcile"
	"agora/internal/resilience"
)

// memBackend implements the catalog and reconcile backends in memory.
type memBackend struct {
	mu          sync.Mutex
	legacy      []models.Category
	cats        map[uuid.UUID]models.CommunityCategory
	deleted     map[uuid.UUID]models.DeletedCategory
	communities map[uuid.UUID]models.Community
	listErr     error
}

func newMemBackend() *memBackend {
	return &memBackend{
		cats:        make(map[uuid.UUID]models.CommunityCategory),
		deleted:     make(map[uuid.UUID]models.DeletedCategory),
		communities: make(map[uuid.UUID]models.Community),
	}
}

func (b *memBackend) ListCategories(ctx context.Context) ([]models.Category, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.Category(nil), b.legacy...), nil
}

func (b *memBackend) ListCommunityCategories(ctx context.Context) ([]models.CommunityCategory, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listErr != nil {
		return nil, b.listErr
	}
	out := make([]models.CommunityCategory, 0, len(b.cats))
	for _, c := range b.cats {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	return out, nil
}

func (b *memBackend) FindCommunityCategory(ctx context.Context, id uuid.UUID) (*models.CommunityCategory, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.cats[id]; ok {
		return &c, nil
	}
	return nil, nil
}

func (b *memBackend) CreateCommunityCategory(ctx context.Context, c *models.CommunityCategory) (*models.CommunityCategory, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cc := *c
	cc.CreatedAt = time.Now()
	b.cats[cc.ID] = cc
	return &cc, nil
}

func (b *memBackend) UpdateCommunityCategory(ctx context.Context, c *models.CommunityCategory) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.cats[c.ID]; !ok {
		return false, nil
	}
	b.cats[c.ID] = *c
	return true, nil
}

func (b *memBackend) ReorderCommunityCategories(ctx context.Context, items []models.ReorderItem) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, it := range items {
		if c, ok := b.cats[it.ID]; ok {
			c.OrderIndex = it.OrderIndex
			b.cats[it.ID] = c
		}
	}
	return nil
}

func (b *memBackend) NextOrderIndex(ctx context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	next := 0
	for _, c := range b.cats {
		next = max(next, c.OrderIndex+1)
	}
	return next, nil
}

func (b *memBackend) SoftDeleteCommunityCategory(ctx context.Context, id uuid.UUID, deletedBy *uuid.UUID) (*models.DeletedCategory, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.cats[id]
	if !ok {
		return nil, nil
	}
	delete(b.cats, id)
	d := models.DeletedCategory{ID: uuid.New(), OriginalID: c.ID, Name: c.Name, Slug: c.Slug, OrderIndex: c.OrderIndex, DeletedAt: time.Now(), DeletedBy: deletedBy}
	b.deleted[d.ID] = d
	return &d, nil
}

func (b *memBackend) ForceDeleteCommunityCategory(ctx context.Context, id uuid.UUID) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.cats[id]
	delete(b.cats, id)
	return ok, nil
}

func (b *memBackend) ListDeletedCategories(ctx context.Context) ([]models.DeletedCategory, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []models.DeletedCategory
	for _, d := range b.deleted {
		out = append(out, d)
	}
	return out, nil
}

func (b *memBackend) FindDeletedCategory(ctx context.Context, id uuid.UUID) (*models.DeletedCategory, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if d, ok := b.deleted[id]; ok {
		return &d, nil
	}
	return nil, nil
}

func (b *memBackend) RestoreCommunityCategory(ctx context.Context, deletedID uuid.UUID, c *models.CommunityCategory) (*models.CommunityCategory, error) {
	cc, _ := b.CreateCommunityCategory(ctx, c)
	b.mu.Lock()
	delete(b.deleted, deletedID)
	b.mu.Unlock()
	return cc, nil
}

func (b *memBackend) ListCategorizedCommunities(ctx context.Context) ([]models.Community, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []models.Community
	for _, cm := range b.communities {
		if cm.CategoryID != nil {
			out = append(out, cm)
		}
	}
	return out, nil
}

func (b *memBackend) SetCommunityCategory(ctx context.Context, communityID uuid.UUID, categoryID *uuid.UUID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cm := b.communities[communityID]
	cm.CategoryID = categoryID
	b.communities[communityID] = cm
	return nil
}

func testExecutor() *resilience.Executor {
	return resilience.New(resilience.Options{
		MaxAttempts:  2,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		Timeout:      time.Second,
	}, nil)
}

// testServer wires the handler groups onto a chi router.
type testServer struct {
	backend *memBackend
	monitor *health.Monitor
	router  chi.Router
}

func newTestServer(t *testing.T, probes ...health.Probe) *testServer {
	t.Helper()

	b := newMemBackend()
	exec := testExecutor()
	results := cache.NewResults(time.Minute)
	inv := cache.NewCategoryInvalidator(results, nil, nil)

	svc := catalog.New(b, exec, results, inv)
	rec := reconcile.New(b, exec, inv)
	mon := health.NewMonitor(health.Config{
		Probes:    probes,
		Executor:  exec,
		Transport: func() bool { return true },
	})
	t.Cleanup(mon.Close)

	cats := NewCategories(svc, nil)
	recon := NewReconcile(rec)
	conn := NewConnection(mon)

	r := chi.NewRouter()
	r.Get("/api/categories", cats.List)
	r.Get("/api/sidebar", cats.Sidebar)
	r.Post("/api/categories", cats.Create)
	r.Put("/api/categories/{id}", cats.Update)
	r.Delete("/api/categories/{id}", cats.Delete)
	r.Post("/api/categories/reorder", cats.Reorder)
	r.Get("/api/categories/deleted", cats.ListDeleted)
	r.Post("/api/categories/deleted/{id}/restore", cats.Restore)
	r.Post("/api/reconcile/sync", recon.Sync)
	r.Post("/api/reconcile/cleanup", recon.Cleanup)
	r.Post("/api/reconcile/repair", recon.Repair)
	r.Get("/api/connection", conn.State)
	r.Post("/api/connection/check", conn.Check)
	r.Get("/api/connection/wait", conn.Wait)
	r.Get("/api/connection/ws", conn.Stream)

	return &testServer{backend: b, monitor: mon, router: r}
}

// do performs a request against the router. body is JSON-encoded unless nil.
func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return v
}

func requireStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("status = %d, want %d (body %s)", rr.Code, want, rr.Body.String())
	}
}

var _ http.Handler = chi.NewRouter()
