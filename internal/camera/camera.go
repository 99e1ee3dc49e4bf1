// Package camera owns the pan/zoom transform applied to the map canvas.
package camera

import (
	"math"
	"sync"

	"github.com/Mr-Dark-debug/hilbertmap/internal/hilbert"
	"github.com/Mr-Dark-debug/hilbertmap/internal/prefix"
	"github.com/Mr-Dark-debug/hilbertmap/internal/state"
)

const (
	// BaseSize is the virtual canvas side at the default depth ceiling.
	BaseSize = 100000.0
	// FitFactor is the share of the smaller viewport side the top square
	// fills after a reset.
	FitFactor = 0.8

	// Canvas placement before the viewport size is known.
	initialZoomSide = 800.0
	initialWidth    = 650.0
	initialHeight   = 500.0
)

// VirtualSize is the canvas side for a depth ceiling. Each extra two bits of
// depth doubles it so the deepest cell keeps a usable size.
func VirtualSize(maxExpand int) float64 {
	return BaseSize * math.Exp2(float64(maxExpand-24)/2)
}

// State is a snapshot of the transform.
type State struct {
	PanX   float64 `json:"panX"`
	PanY   float64 `json:"panY"`
	Zoom   float64 `json:"zoom"`
	Size   float64 `json:"size"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Camera maps virtual canvas coordinates to viewport pixels:
//
//	screen = (v - size/2)*zoom + size/2 + pan
type Camera struct {
	mu        sync.Mutex
	store     *state.Store
	top       prefix.Prefix
	maxExpand int
	size      float64

	panX, panY    float64
	zoom          float64
	width, height float64
	bound         bool
}

// New returns an unbound camera for top. The store's camera callbacks stay
// no-ops until Bind.
func New(store *state.Store, top prefix.Prefix, maxExpand int) *Camera {
	size := VirtualSize(maxExpand)
	return &Camera{
		store:     store,
		top:       top,
		maxExpand: maxExpand,
		size:      size,
		zoom:      initialZoomSide / size,
		panX:      -(size/2 - initialWidth/2),
		panY:      -(size/2 - initialHeight/2),
	}
}

// Bind records the viewport size, registers the camera's callbacks in the
// store and fits the top square. Calling it again on resize refits.
func (c *Camera) Bind(width, height float64) {
	c.mu.Lock()
	c.width, c.height = width, height
	first := !c.bound
	c.bound = true
	c.resetLocked()
	c.mu.Unlock()

	if first {
		c.store.SetResetZoom(c.ResetZoom)
		c.store.SetZoomToPrefix(c.ZoomToPrefix)
	}
}

// Bound reports whether the viewport size is known.
func (c *Camera) Bound() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bound
}

// SetTop switches the framed prefix and refits when bound.
func (c *Camera) SetTop(top prefix.Prefix) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.top = top
	if c.bound {
		c.resetLocked()
	}
}

// ResetZoom fits the whole top square in the viewport, centered.
func (c *Camera) ResetZoom() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bound {
		c.resetLocked()
	}
}

func (c *Camera) baseZoom() float64 {
	return math.Min(c.width, c.height) * FitFactor / c.size
}

func (c *Camera) resetLocked() {
	c.zoom = c.baseZoom()
	c.panX = c.width/2 - c.size/2
	c.panY = c.height/2 - c.size/2
}

// ZoomToPrefix expands every ancestor of target in one batch and centers the
// camera on it, zoomed so the target fills the frame the top square fills
// after a reset. It reports false, changing nothing, when target is
// malformed, in another family, deeper than the ceiling, or outside the top.
func (c *Camera) ZoomToPrefix(target string) bool {
	t, err := prefix.Parse(target)
	if err != nil {
		return false
	}

	c.mu.Lock()
	top := c.top
	ok := c.bound &&
		t.Width() == top.Width() &&
		t.Bits() <= c.maxExpand &&
		top.Contains(t)
	c.mu.Unlock()
	if !ok {
		return false
	}

	var chain []string
	for bits := top.Bits(); bits < t.Bits(); bits += 2 {
		chain = append(chain, t.Supernet(bits).String())
	}
	c.store.SetPrefixSplit(state.SplitExpand, chain...)

	order := hilbert.Order(top)
	cx, cy := hilbert.BoxOf(t, top).Center(order)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.zoom = c.baseZoom() * math.Exp2(float64(t.Bits()-top.Bits())/2)
	span := c.zoom * c.size / 2
	c.panX = c.width/2 - c.size/2 + (1-2*cx)*span
	c.panY = c.height/2 - c.size/2 + (1-2*cy)*span
	return true
}

// PanBy moves the canvas by a screen-space offset.
func (c *Camera) PanBy(dx, dy float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.panX += dx
	c.panY += dy
}

// ZoomAt scales the zoom by factor, keeping the canvas point under (sx, sy)
// fixed on screen.
func (c *Camera) ZoomAt(factor, sx, sy float64) {
	if factor <= 0 || math.IsInf(factor, 0) || math.IsNaN(factor) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	half := c.size / 2
	next := c.zoom * factor
	c.panX = sx - half - (sx-half-c.panX)*factor
	c.panY = sy - half - (sy-half-c.panY)*factor
	c.zoom = next
}

// ToScreen maps a virtual canvas point to viewport pixels.
func (c *Camera) ToScreen(vx, vy float64) (sx, sy float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	half := c.size / 2
	return (vx-half)*c.zoom + half + c.panX, (vy-half)*c.zoom + half + c.panY
}

// ToVirtual is the inverse of ToScreen.
func (c *Camera) ToVirtual(sx, sy float64) (vx, vy float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	half := c.size / 2
	return (sx-half-c.panX)/c.zoom + half, (sy-half-c.panY)/c.zoom + half
}

// Project maps a point given as fractions of the top square to pixels.
func (c *Camera) Project(fx, fy float64) (sx, sy float64) {
	return c.ToScreen(fx*c.size, fy*c.size)
}

// Unproject maps pixels back to fractions of the top square.
func (c *Camera) Unproject(sx, sy float64) (fx, fy float64) {
	vx, vy := c.ToVirtual(sx, sy)
	return vx / c.size, vy / c.size
}

// State returns the current transform.
func (c *Camera) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		PanX:   c.panX,
		PanY:   c.panY,
		Zoom:   c.zoom,
		Size:   c.size,
		Width:  c.width,
		Height: c.height,
	}
}
