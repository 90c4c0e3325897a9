// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"agora/internal/cache"
	"agora/internal/catalog"
	"agora/internal/models"
)

// Categories groups the category listing and administration handlers.
type Categories struct {
	catalog *catalog.Service
	sidebar *cache.SidebarCache
}

// NewCategories creates the category handler group. sidebar may be nil,
// in which case the sidebar listing is always built from the catalog.
func NewCategories(svc *catalog.Service, sidebar *cache.SidebarCache) *Categories {
	return &Categories{catalog: svc, sidebar: sidebar}
}

// List returns every community category in display order.
func (h *Categories) List(w http.ResponseWriter, r *http.Request) {
	cats, err := h.catalog.FetchCategories(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if cats == nil {
		cats = []models.CommunityCategory{}
	}
	writeJSON(w, http.StatusOK, cats)
}

// Sidebar returns the sidebar listing with the time it was assembled.
// It is served from Valkey when cached.
func (h *Categories) Sidebar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.sidebar != nil {
		if listing, ok := h.sidebar.Get(ctx); ok {
			w.Header().Set("X-Cache", "HIT")
			writeJSON(w, http.StatusOK, listing)
			return
		}
	}

	cats, err := h.catalog.FetchCategories(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if cats == nil {
		cats = []models.CommunityCategory{}
	}
	if h.sidebar != nil {
		h.sidebar.Set(ctx, cats)
	}
	w.Header().Set("X-Cache", "MISS")
	writeJSON(w, http.StatusOK, cache.SidebarListing{Categories: cats, CachedAt: time.Now().UTC()})
}

// Create adds a category at the end of the display order.
func (h *Categories) Create(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if msg := decodeJSON(w, r, &req); msg != "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
		return
	}

	cc, err := h.catalog.AddCategory(r.Context(), req.Name, req.Slug)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, cc)
}

// Update renames a category.
func (h *Categories) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req categoryRequest
	if msg := decodeJSON(w, r, &req); msg != "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
		return
	}

	cc, err := h.catalog.UpdateCategory(r.Context(), id, req.Name, req.Slug)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cc)
}

// Reorder assigns new display positions.
func (h *Categories) Reorder(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if msg := decodeJSON(w, r, &req); msg != "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
		return
	}

	if err := h.catalog.ReorderCategories(r.Context(), req.Items); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Delete soft-deletes a category. ?force=true removes it without an audit
// row if the soft delete fails. ?deleted_by=<uuid> records who asked.
func (h *Categories) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))

	var deletedBy *uuid.UUID
	if v := r.URL.Query().Get("deleted_by"); v != "" {
		u, err := uuid.Parse(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "deleted_by must be a UUID."})
			return
		}
		deletedBy = &u
	}

	if err := h.catalog.DeleteCategory(r.Context(), id, deletedBy, force); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListDeleted returns the soft-deleted categories.
func (h *Categories) ListDeleted(w http.ResponseWriter, r *http.Request) {
	items, err := h.catalog.ListDeleted(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []models.DeletedCategory{}
	}
	writeJSON(w, http.StatusOK, items)
}

// Restore brings a soft-deleted category back.
func (h *Categories) Restore(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	cc, err := h.catalog.RestoreCategory(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, cc)
}

// pathID parses the {id} URL parameter, answering 400 when malformed.
func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid id."})
		return uuid.Nil, false
	}
	return id, true
}
