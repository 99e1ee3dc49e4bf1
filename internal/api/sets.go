package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Mr-Dark-debug/hilbertmap/internal/database"
	"github.com/Mr-Dark-debug/hilbertmap/internal/ingestion"
)

// setCreate is the POST /sets body. Either Prefixes or Payload carries the
// data; Payload is parsed according to Source.
type setCreate struct {
	ID       string            `json:"id,omitempty"`
	Name     string            `json:"name,omitempty"`
	Source   string            `json:"source,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Prefixes []string          `json:"prefixes,omitempty"`
	Payload  string            `json:"payload,omitempty"`
}

type setDetail struct {
	*database.PrefixSet
	Stats *database.SetStats `json:"stats"`
}

func (h *Handler) handleListSets(w http.ResponseWriter, r *http.Request) {
	if !h.ensureStore(w) {
		return
	}

	q := r.URL.Query()
	var filter database.SetFilter
	if s := q.Get("source"); s != "" {
		filter.Source = &s
	}
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil || filter.Limit < 0 {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "limit must be a non-negative integer", nil)
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil || filter.Offset < 0 {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "offset must be a non-negative integer", nil)
		return
	}

	sets, err := h.store.ListSets(filter)
	if err != nil {
		h.log.Error().Err(err).Msg("list sets failed")
		h.writeError(w, http.StatusInternalServerError, "db_error", "failed to list sets", nil)
		return
	}
	if sets == nil {
		sets = []*database.PrefixSet{}
	}
	h.writeJSON(w, http.StatusOK, sets)
}

func (h *Handler) handleCreateSet(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req setCreate
	if err := decodeJSONStrict(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid json body", map[string]any{"error": err.Error()})
		return
	}

	source, err := ingestion.ParseSource(req.Source)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", err.Error(), nil)
		return
	}

	var data []byte
	switch {
	case len(req.Prefixes) > 0 && req.Payload != "":
		h.writeError(w, http.StatusBadRequest, "validation_failed", "give either prefixes or payload, not both", nil)
		return
	case len(req.Prefixes) > 0:
		data = []byte(strings.Join(req.Prefixes, "\n"))
		source = ingestion.SourceText
	case req.Payload != "":
		data = []byte(req.Payload)
	default:
		h.writeError(w, http.StatusBadRequest, "validation_failed", "prefixes or payload is required", nil)
		return
	}

	if !h.ensureStore(w) {
		return
	}
	if h.importer == nil {
		h.writeError(w, http.StatusServiceUnavailable, "importer_unavailable", "importer not configured", nil)
		return
	}

	set := &database.PrefixSet{ID: req.ID, Name: req.Name, Metadata: req.Metadata}
	if source != ingestion.SourceAuto {
		set.Source = string(source)
	}
	report, err := h.importer.Import(r.Context(), set, source, data)
	if err != nil {
		h.log.Error().Err(err).Str("set", set.ID).Msg("import failed")
		h.writeError(w, http.StatusUnprocessableEntity, "import_failed", "failed to import prefixes", map[string]any{"error": err.Error()})
		return
	}

	stored, err := h.store.GetSet(set.ID)
	if err != nil {
		h.log.Error().Err(err).Str("set", set.ID).Msg("reload set failed")
		h.writeError(w, http.StatusInternalServerError, "db_error", "failed to load imported set", nil)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]any{"set": stored, "report": report})
}

func (h *Handler) handleGetSet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.ensureStore(w) {
		return
	}

	set, err := h.store.GetSet(id)
	if err != nil {
		h.storeError(w, err, id, "get set")
		return
	}
	stats, err := h.store.GetSetStats(id)
	if err != nil {
		h.storeError(w, err, id, "get set stats")
		return
	}
	h.writeJSON(w, http.StatusOK, setDetail{PrefixSet: set, Stats: stats})
}

func (h *Handler) handleDeleteSet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.ensureStore(w) {
		return
	}

	if err := h.store.DeleteSet(id); err != nil {
		h.storeError(w, err, id, "delete set")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListPrefixes(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.ensureStore(w) {
		return
	}

	family, err := familyParam(r.URL.Query().Get("family"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "family must be 4 or 6", nil)
		return
	}
	if _, err := h.store.GetSet(id); err != nil {
		h.storeError(w, err, id, "get set")
		return
	}

	prefixes, err := h.store.QueryPrefixes(id, family)
	if err != nil {
		h.storeError(w, err, id, "query prefixes")
		return
	}
	out := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		out = append(out, p.String())
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"set_id": id, "family": family, "prefixes": out})
}

func (h *Handler) storeError(w http.ResponseWriter, err error, id, op string) {
	if errors.Is(err, database.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "not_found", "set not found", map[string]any{"id": id})
		return
	}
	h.log.Error().Err(err).Str("id", id).Msg(op + " failed")
	h.writeError(w, http.StatusInternalServerError, "db_error", op+" failed", nil)
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

// familyParam accepts "", "4" or "6"; empty means both.
func familyParam(s string) (int, error) {
	switch s {
	case "":
		return 0, nil
	case "4", "v4", "ipv4":
		return 4, nil
	case "6", "v6", "ipv6":
		return 6, nil
	}
	return 0, errors.New("invalid family")
}
