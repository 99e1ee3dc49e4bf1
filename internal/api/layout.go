package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/Mr-Dark-debug/hilbertmap/internal/camera"
	"github.com/Mr-Dark-debug/hilbertmap/internal/database"
	"github.com/Mr-Dark-debug/hilbertmap/internal/hilbert"
	"github.com/Mr-Dark-debug/hilbertmap/internal/pipeline"
	"github.com/Mr-Dark-debug/hilbertmap/internal/prefix"
	"github.com/Mr-Dark-debug/hilbertmap/internal/render"
	"github.com/Mr-Dark-debug/hilbertmap/internal/state"
	"github.com/Mr-Dark-debug/hilbertmap/internal/subnet"
	"github.com/Mr-Dark-debug/hilbertmap/internal/viz"
)

// maxViewport bounds the requested viewport in pixels.
const maxViewport = 16384

type screenRect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

type layoutBlock struct {
	Prefix string           `json:"prefix"`
	First  string           `json:"first"`
	Last   string           `json:"last"`
	Depth  int              `json:"depth"`
	Leaf   bool             `json:"leaf"`
	Box    hilbert.Box      `json:"box"`
	Rect   subnet.Rect      `json:"rect"`
	Screen screenRect       `json:"screen"`
	Config *pipeline.Config `json:"config,omitempty"`
}

type layoutResponse struct {
	Top       string        `json:"top"`
	Order     int           `json:"order"`
	MaxExpand int           `json:"maxExpand"`
	Set       string        `json:"set,omitempty"`
	Zoom      string        `json:"zoom,omitempty"`
	Version   uint64        `json:"version"`
	Camera    camera.State  `json:"camera"`
	Leaves    int           `json:"leaves"`
	Blocks    []layoutBlock `json:"blocks"`
}

// handleLayout builds a fresh map for every request:
//
//	top       top prefix (default per family)
//	family    4 or 6, picks the default top
//	set       color leaves by the coverage of a stored set
//	expand    comma-separated prefixes to split, may repeat
//	expandAll open the first levels below the top
//	zoom      prefix to zoom to
//	maxExpand depth ceiling below the top
//	width     viewport width in pixels
//	height    viewport height in pixels
func (h *Handler) handleLayout(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	family, err := familyParam(q.Get("family"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "family must be 4 or 6", nil)
		return
	}
	top := h.opts.TopV4
	if family == 6 {
		top = h.opts.TopV6
	}
	if s := q.Get("top"); s != "" {
		if top, err = prefix.Parse(s); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_top", "top is not a prefix", map[string]any{"top": s})
			return
		}
	}

	maxExpand := h.opts.MaxExpand
	if s := q.Get("maxExpand"); s != "" {
		if maxExpand, err = strconv.Atoi(s); err != nil || maxExpand < 2 || maxExpand > prefix.WidthV6 {
			h.writeError(w, http.StatusBadRequest, "validation_failed", "maxExpand must be an integer in [2, 128]", nil)
			return
		}
	}

	width, height := h.opts.Width, h.opts.Height
	if width, err = viewportParam(q.Get("width"), width); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", err.Error(), nil)
		return
	}
	if height, err = viewportParam(q.Get("height"), height); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", err.Error(), nil)
		return
	}

	pl := render.Labels()
	setID := q.Get("set")
	if setID != "" {
		if h.loader == nil {
			h.writeError(w, http.StatusServiceUnavailable, "db_unavailable", "database not configured", nil)
			return
		}
		ix, err := h.loader.Index(r.Context(), setID, top.Family())
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				h.writeError(w, http.StatusNotFound, "not_found", "set not found", map[string]any{"id": setID})
				return
			}
			h.log.Error().Err(err).Str("set", setID).Msg("density index failed")
			h.writeError(w, http.StatusInternalServerError, "db_error", "failed to load set", nil)
			return
		}
		pl = render.Default(ix)
	}

	m, err := viz.New(viz.Options{Top: top, MaxExpand: maxExpand, Pipeline: pl, Logger: h.log})
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_top", err.Error(), map[string]any{"top": top.String()})
		return
	}
	m.Bind(width, height)

	if b, _ := strconv.ParseBool(q.Get("expandAll")); b {
		m.ExpandAll()
	}
	if expand := splitList(q["expand"]); len(expand) > 0 {
		m.Store().SetPrefixSplit(state.SplitExpand, expand...)
	}

	zoom := q.Get("zoom")
	if zoom != "" && !m.ZoomToPrefix(zoom) {
		h.writeError(w, http.StatusBadRequest, "invalid_zoom", "zoom target is not a prefix inside the top", map[string]any{"zoom": zoom, "top": top.String()})
		return
	}

	blocks := m.Traverse()
	resp := layoutResponse{
		Top:       m.Top().String(),
		Order:     m.Tree().Order(),
		MaxExpand: m.MaxExpand(),
		Set:       setID,
		Zoom:      zoom,
		Version:   m.Store().Version(),
		Camera:    m.Camera().State(),
		Blocks:    make([]layoutBlock, 0, len(blocks)),
	}
	cam := m.Camera()
	for _, b := range blocks {
		first, last := viz.Range(b.Prefix)
		x0, y0 := cam.Project(b.Rect.X, b.Rect.Y)
		x1, y1 := cam.Project(b.Rect.X+b.Rect.W, b.Rect.Y+b.Rect.H)
		resp.Blocks = append(resp.Blocks, layoutBlock{
			Prefix: b.Prefix.String(),
			First:  first,
			Last:   last,
			Depth:  b.Depth,
			Leaf:   b.Leaf,
			Box:    b.Box,
			Rect:   b.Rect,
			Screen: screenRect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0},
			Config: b.Config,
		})
		if b.Leaf {
			resp.Leaves++
		}
	}
	h.metrics.ObserveLayout(resp.Leaves)

	h.writeJSON(w, http.StatusOK, resp)
}

// splitList flattens repeated, comma-separated query values.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func viewportParam(s string, def float64) (float64, error) {
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || !(v >= 1 && v <= maxViewport) {
		return 0, errors.New("viewport size must be a number in [1, 16384]")
	}
	return v, nil
}
