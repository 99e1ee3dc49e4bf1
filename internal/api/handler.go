// Package api serves prefix sets and computed map layouts over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/Mr-Dark-debug/hilbertmap/internal/database"
	"github.com/Mr-Dark-debug/hilbertmap/internal/ingestion"
	"github.com/Mr-Dark-debug/hilbertmap/internal/metrics"
	"github.com/Mr-Dark-debug/hilbertmap/internal/prefix"
	"github.com/Mr-Dark-debug/hilbertmap/internal/subnet"
	"github.com/Mr-Dark-debug/hilbertmap/internal/viz"
)

// maxBodyBytes caps POST bodies.
const maxBodyBytes = 32 << 20

// Options configures layout defaults.
type Options struct {
	TopV4     prefix.Prefix
	TopV6     prefix.Prefix
	MaxExpand int
	// Width and Height are the default viewport for layout requests.
	Width  float64
	Height float64
}

func (o Options) withDefaults() Options {
	if !o.TopV4.IsValid() {
		o.TopV4 = viz.DefaultTopV4
	}
	if !o.TopV6.IsValid() {
		o.TopV6 = viz.DefaultTopV6
	}
	if o.MaxExpand <= 0 {
		o.MaxExpand = subnet.DefaultMaxExpand
	}
	if o.Width <= 0 {
		o.Width = 800
	}
	if o.Height <= 0 {
		o.Height = 600
	}
	return o
}

// Handler owns the HTTP routes. Any dependency may be nil; routes that need
// a missing one answer 503.
type Handler struct {
	log      zerolog.Logger
	store    database.Store
	importer *ingestion.Importer
	loader   *ingestion.Loader
	metrics  *metrics.Metrics
	opts     Options
}

// NewHandler wires the routes to their dependencies.
func NewHandler(log zerolog.Logger, store database.Store, importer *ingestion.Importer, m *metrics.Metrics, opts Options) *Handler {
	h := &Handler{
		log:      log,
		store:    store,
		importer: importer,
		metrics:  m,
		opts:     opts.withDefaults(),
	}
	if store != nil {
		h.loader = ingestion.NewLoader(store, log)
	}
	return h
}

// Router builds the chi router.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(h.accessLog)

	// Health
	r.Get("/healthz", h.handleHealthz)
	r.Get("/readyz", h.handleReadyZ)
	r.Method(http.MethodGet, "/metrics", h.metrics.Handler())

	// API
	r.Route("/api", func(r chi.Router) {
		r.Route("/v1", func(r chi.Router) {
			r.Route("/sets", func(r chi.Router) {
				r.Get("/", h.handleListSets)
				r.Post("/", h.handleCreateSet)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", h.handleGetSet)
					r.Delete("/", h.handleDeleteSet)
					r.Get("/prefixes", h.handleListPrefixes)
					r.Get("/analysis", h.handleAnalyzeSet)
				})
			})

			r.Get("/diff", h.handleDiffSets)

			r.Get("/layout", h.handleLayout)
		})
	})

	return r
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		elapsed := time.Since(start)
		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		h.metrics.ObserveHTTPRequest(r.Method, route, ww.Status(), elapsed)

		h.log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Int64("duration_ms", elapsed.Milliseconds()).
			Msg("http_request")
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, msg string, details map[string]any) {
	resp := map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": msg,
		},
	}
	if details != nil {
		resp["error"].(map[string]any)["details"] = details
	}
	h.writeJSON(w, status, resp)
}

func decodeJSONStrict(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return errors.New("unexpected extra data after JSON body")
		}
		return err
	}
	return nil
}

func (h *Handler) ensureStore(w http.ResponseWriter) bool {
	if h.store == nil {
		h.writeError(w, http.StatusServiceUnavailable, "db_unavailable", "database not configured", nil)
		return false
	}
	return true
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleReadyZ(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if !h.ensureStore(w) {
		return
	}
	if err := h.store.Ping(ctx); err != nil {
		h.writeError(w, http.StatusServiceUnavailable, "db_unavailable", "database not ready", map[string]any{"error": err.Error()})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"ready": true})
}
