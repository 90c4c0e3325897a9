package handlers

import (
	"net/http"

	"agora/internal/reconcile"
)

// Reconcile exposes the reconciliation passes to operators.
type Reconcile struct {
	reconciler *reconcile.Reconciler
}

// NewReconcile creates the reconciliation handler group.
func NewReconcile(rec *reconcile.Reconciler) *Reconcile {
	return &Reconcile{reconciler: rec}
}

// Sync mirrors legacy categories into community categories.
func (h *Reconcile) Sync(w http.ResponseWriter, r *http.Request) {
	if err := h.reconciler.SyncCategories(r.Context()); err != nil {
		status, msg := classify(err)
		if status == http.StatusInternalServerError {
			// Per-row insert failures: the pass ran but did not finish cleanly.
			status, msg = http.StatusBadGateway, err.Error()
		}
		writeJSON(w, status, map[string]any{"success": false, "error": msg})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// Cleanup clears dangling community category references.
func (h *Reconcile) Cleanup(w http.ResponseWriter, r *http.Request) {
	n, err := h.reconciler.CleanupCommunityCategories(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "nulled": n})
}

// Repair runs the full repair pass and returns its report.
func (h *Reconcile) Repair(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.reconciler.TestAndFixCategorySync(r.Context()))
}
