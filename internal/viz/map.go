// Package viz assembles one interactive map instance: a directive store, the
// subnet tree for the current top prefix, and the camera.
//
// A Map is not safe for concurrent use. The store it owns is, so other
// goroutines may queue directives through Store() while the owner traverses.
package viz

import (
	"errors"
	"fmt"

	"github.com/Mr-Dark-debug/hilbertmap/internal/camera"
	"github.com/Mr-Dark-debug/hilbertmap/internal/pipeline"
	"github.com/Mr-Dark-debug/hilbertmap/internal/prefix"
	"github.com/Mr-Dark-debug/hilbertmap/internal/state"
	"github.com/Mr-Dark-debug/hilbertmap/internal/subnet"

	"github.com/rs/zerolog"
)

var (
	// ErrOddTop is returned when a top prefix has odd length.
	ErrOddTop = subnet.ErrOddTop
	// ErrNoHover is returned by PromoteHovered before anything was hovered.
	ErrNoHover = errors.New("no hovered prefix")
	// ErrLevel is returned when promote or demote would leave the allowed
	// range of top prefix lengths.
	ErrLevel = errors.New("top prefix length out of range")
)

// Default top prefixes.
var (
	DefaultTopV4 = prefix.MustParse("0.0.0.0/0")
	DefaultTopV6 = prefix.MustParse("2000::/4")
)

// v4 blocks at or above this base are multicast and reserved space; expand
// all leaves them folded.
var v4Reserved = prefix.MustParse("224.0.0.0/3").Base()

// Expand-all depth below the top, per family.
const (
	expandAllV4 = 6
	expandAllV6 = 4
)

// Options configures a Map.
type Options struct {
	Top       prefix.Prefix
	MaxExpand int
	// MinLevel is the shortest top prefix length DemoteTop may reach.
	MinLevel int
	// MaxLevel bounds PromoteHovered; 0 means the address width.
	MaxLevel int
	Pipeline pipeline.Pipeline
	Logger   zerolog.Logger
}

// Map is one visualization instance.
type Map struct {
	opts  Options
	store *state.Store
	cam   *camera.Camera
	tree  *subnet.Tree
	log   zerolog.Logger
}

// New builds a map framing opts.Top, or DefaultTopV4 when Top is unset.
func New(opts Options) (*Map, error) {
	if !opts.Top.IsValid() {
		opts.Top = DefaultTopV4
	}
	if opts.MaxExpand <= 0 {
		opts.MaxExpand = subnet.DefaultMaxExpand
	}

	store := state.NewStore(opts.Logger)
	tree, err := subnet.New(opts.Top, opts.Pipeline, store, opts.MaxExpand)
	if err != nil {
		return nil, fmt.Errorf("new map: %w", err)
	}

	return &Map{
		opts:  opts,
		store: store,
		cam:   camera.New(store, opts.Top, opts.MaxExpand),
		tree:  tree,
		log:   opts.Logger.With().Str("component", "viz").Logger(),
	}, nil
}

// Store returns the map's directive store.
func (m *Map) Store() *state.Store { return m.store }

// Camera returns the map's camera.
func (m *Map) Camera() *camera.Camera { return m.cam }

// Tree returns the subnet tree for the current top.
func (m *Map) Tree() *subnet.Tree { return m.tree }

// Top returns the framed prefix.
func (m *Map) Top() prefix.Prefix { return m.tree.Top() }

// MaxExpand returns the depth ceiling.
func (m *Map) MaxExpand() int { return m.opts.MaxExpand }

// Bind records the viewport size and enables the camera callbacks.
func (m *Map) Bind(width, height float64) { m.cam.Bind(width, height) }

// SetTopPrefix reframes the map. All stored state is dropped.
func (m *Map) SetTopPrefix(top prefix.Prefix) error {
	tree, err := subnet.New(top, m.opts.Pipeline, m.store, m.opts.MaxExpand)
	if err != nil {
		return fmt.Errorf("set top: %w", err)
	}
	m.tree = tree
	m.opts.Top = top
	m.store.ClearAllPrefixes()
	m.cam.SetTop(top)

	m.log.Info().Str("top", top.String()).Msg("top prefix changed")
	return nil
}

// SetPipeline swaps the render functions. All stored state is dropped and
// the tree folds back to a single leaf.
func (m *Map) SetPipeline(pl pipeline.Pipeline) {
	m.opts.Pipeline = pl
	m.tree.SetPipeline(pl)
	m.store.ClearAllPrefixes()

	m.log.Debug().Int("functions", len(pl)).Msg("pipeline changed")
}

// ClearAll drops every stored override and directive and collapses the tree.
func (m *Map) ClearAll() {
	m.store.ClearAllPrefixes()
	m.tree.Reset()
}

// Traverse returns the visible blocks.
func (m *Map) Traverse() []subnet.Block { return m.tree.Traverse() }

// Expand splits a leaf. Gated requests are ignored.
func (m *Map) Expand(p prefix.Prefix) bool {
	ok := m.tree.Expand(p)
	if !ok {
		m.log.Debug().Str("prefix", p.String()).Msg("expand ignored")
	}
	return ok
}

// CollapseParent folds the block containing p.
func (m *Map) CollapseParent(p prefix.Prefix) bool { return m.tree.CollapseParent(p) }

// Hover publishes p as the hovered leaf.
func (m *Map) Hover(p prefix.Prefix) *pipeline.Config { return m.tree.Hover(p) }

// HoveredPrefix returns the last hovered leaf.
func (m *Map) HoveredPrefix() (prefix.Prefix, bool) {
	h := m.store.Hover()
	if h.Prefix == "" {
		return prefix.Prefix{}, false
	}
	p, err := prefix.Parse(h.Prefix)
	if err != nil {
		return prefix.Prefix{}, false
	}
	return p, true
}

func (m *Map) maxLevel(width int) int {
	if m.opts.MaxLevel <= 0 || m.opts.MaxLevel > width {
		return width
	}
	return m.opts.MaxLevel
}

// PromoteHovered makes the hovered leaf the new top.
func (m *Map) PromoteHovered() error {
	p, ok := m.HoveredPrefix()
	if !ok {
		return ErrNoHover
	}
	if p.Bits()%2 != 0 {
		return fmt.Errorf("promote %s: %w", p, ErrOddTop)
	}
	if p.Width() != m.Top().Width() || p.Bits() >= m.maxLevel(p.Width()) {
		return fmt.Errorf("promote %s: %w", p, ErrLevel)
	}
	return m.SetTopPrefix(p)
}

// DemoteTop reframes the map on the top's parent two bits up.
func (m *Map) DemoteTop() error {
	top := m.Top()
	if top.Bits() < m.opts.MinLevel+2 {
		return fmt.Errorf("demote %s: %w", top, ErrLevel)
	}
	return m.SetTopPrefix(top.Supernet(top.Bits() - 2))
}

// ExpandAll opens the first few levels below the top in one batch. IPv4
// leaves multicast and reserved space folded.
func (m *Map) ExpandAll() int {
	top := m.Top()
	depth := expandAllV6
	if top.Is4() {
		depth = expandAllV4
	}

	skipReserved := top.Is4() && top.Base().Cmp(v4Reserved) < 0

	var batch []string
	for bits := top.Bits(); bits <= top.Bits()+depth; bits += 2 {
		step := prefix.BlockSize(top.Width(), bits)
		n := uint64(1) << uint(bits-top.Bits())
		for i := uint64(0); i < n; i++ {
			p := prefix.New(top.Base().Add(step.Mul64(i)), bits, top.Width())
			if skipReserved && p.Base().Cmp(v4Reserved) >= 0 {
				continue
			}
			if m.tree.CanExpand(p) {
				batch = append(batch, p.String())
			}
		}
	}
	m.store.SetPrefixSplit(state.SplitExpand, batch...)
	return len(batch)
}

// CollapseAll folds the map back to the top leaf.
func (m *Map) CollapseAll() {
	m.store.SetPrefixSplit(state.SplitCollapse, m.Top().String())
}

// ZoomToPrefix expands the path to target and centers on it. It reports
// false before Bind and for targets the camera rejects.
func (m *Map) ZoomToPrefix(target string) bool {
	ok := m.store.ZoomToPrefix(target)
	m.log.Debug().Str("target", target).Bool("ok", ok).Msg("zoom to prefix")
	return ok
}

// ResetZoom fits the top square in the viewport.
func (m *Map) ResetZoom() { m.store.ResetZoom() }

// LeafAt returns the leaf under a screen point.
func (m *Map) LeafAt(blocks []subnet.Block, sx, sy float64) (subnet.Block, bool) {
	fx, fy := m.cam.Unproject(sx, sy)
	return subnet.LeafAt(blocks, fx, fy)
}

// Range returns the first and last address of p as strings.
func Range(p prefix.Prefix) (first, last string) {
	return p.Addr().String(), p.LastAddr().String()
}
