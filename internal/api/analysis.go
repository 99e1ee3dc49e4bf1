package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Mr-Dark-debug/hilbertmap/internal/analysis"
)

// handleAnalyzeSet returns the full statistics report for one set.
func (h *Handler) handleAnalyzeSet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.ensureStore(w) {
		return
	}

	report, err := analysis.NewAnalyzer(h.store).FullAnalysis(id)
	if err != nil {
		h.storeError(w, err, id, "analyze set")
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

// handleDiffSets compares two sets: GET /api/v1/diff?from=a&to=b.
func (h *Handler) handleDiffSets(w http.ResponseWriter, r *http.Request) {
	if !h.ensureStore(w) {
		return
	}
	from, to := r.URL.Query().Get("from"), r.URL.Query().Get("to")
	if from == "" || to == "" {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "from and to are required", nil)
		return
	}
	for _, id := range []string{from, to} {
		if _, err := h.store.GetSet(id); err != nil {
			h.storeError(w, err, id, "get set")
			return
		}
	}

	d, err := analysis.NewAnalyzer(h.store).DiffSets(from, to)
	if err != nil {
		h.storeError(w, err, to, "diff sets")
		return
	}
	h.writeJSON(w, http.StatusOK, d)
}
