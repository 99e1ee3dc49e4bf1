// Package subnet turns a top prefix and a set of split flags into the ordered
// list of visible blocks.
//
// Nothing structural survives between traversals. The tree keeps one map of
// local split flags keyed by prefix and rebuilds the block list from it on
// every call to Traverse, draining pending split directives from the store as
// it visits each prefix.
package subnet

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Mr-Dark-debug/hilbertmap/internal/hilbert"
	"github.com/Mr-Dark-debug/hilbertmap/internal/pipeline"
	"github.com/Mr-Dark-debug/hilbertmap/internal/prefix"
	"github.com/Mr-Dark-debug/hilbertmap/internal/state"
)

// DefaultMaxExpand is how many prefix bits below the top a block may be
// split to.
const DefaultMaxExpand = 24

// ErrOddTop is returned for top prefixes whose length is odd. The grid needs
// a square root block.
var ErrOddTop = errors.New("top prefix length must be even")

// Rect is a block's placement as fractions of the top square. It is
// half-open: X <= x < X+W.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Contains reports whether the point lies inside r.
func (r Rect) Contains(fx, fy float64) bool {
	return fx >= r.X && fx < r.X+r.W && fy >= r.Y && fy < r.Y+r.H
}

// Block is one node visited by a traversal.
type Block struct {
	Prefix prefix.Prefix
	Box    hilbert.Box
	Rect   Rect
	Depth  int
	Leaf   bool
	// Config is the resolved annotation. Only leaves carry one.
	Config *pipeline.Config
}

// Tree is the subdivision state for one top prefix.
type Tree struct {
	top       prefix.Prefix
	order     int
	maxExpand int
	pipeline  pipeline.Pipeline
	store     *state.Store
	boxes     *hilbert.Cache

	split map[prefix.Prefix]bool
}

// New returns a tree rooted at top with every block collapsed. maxExpand <= 0
// selects DefaultMaxExpand.
func New(top prefix.Prefix, pl pipeline.Pipeline, store *state.Store, maxExpand int) (*Tree, error) {
	if !top.IsValid() {
		return nil, fmt.Errorf("top %v: %w", top, prefix.ErrInvalid)
	}
	if top.Bits()%2 != 0 {
		return nil, fmt.Errorf("top %s: %w", top, ErrOddTop)
	}
	if store == nil {
		return nil, errors.New("subnet: nil store")
	}
	if maxExpand <= 0 {
		maxExpand = DefaultMaxExpand
	}
	return &Tree{
		top:       top,
		order:     hilbert.Order(top),
		maxExpand: maxExpand,
		pipeline:  pl,
		store:     store,
		boxes:     hilbert.NewCache(),
		split:     make(map[prefix.Prefix]bool),
	}, nil
}

// Top returns the root prefix.
func (t *Tree) Top() prefix.Prefix { return t.top }

// Order returns the Hilbert order of the top grid.
func (t *Tree) Order() int { return t.order }

// MaxExpand returns the depth ceiling in prefix bits below the top.
func (t *Tree) MaxExpand() int { return t.maxExpand }

// Store returns the directive store the tree reads from.
func (t *Tree) Store() *state.Store { return t.store }

// Box returns the grid box of p under the top prefix.
func (t *Tree) Box(p prefix.Prefix) hilbert.Box {
	return t.boxes.Box(p, t.top)
}

// node reports whether p is a block this tree can ever show.
func (t *Tree) node(p prefix.Prefix) bool {
	return p.IsValid() && t.top.Contains(p) && (p.Bits()-t.top.Bits())%2 == 0
}

// CanExpand reports whether p may be split.
func (t *Tree) CanExpand(p prefix.Prefix) bool {
	return t.node(p) &&
		p.Bits() < p.Width() &&
		p.Bits() < t.top.Bits()+t.maxExpand
}

// IsSplit reports p's local split flag.
func (t *Tree) IsSplit(p prefix.Prefix) bool { return t.split[p] }

// Expand splits p. It returns false without changing anything when p cannot
// be split.
func (t *Tree) Expand(p prefix.Prefix) bool {
	if !t.CanExpand(p) {
		return false
	}
	t.split[p] = true
	return true
}

// Collapse folds p back into a single leaf and forgets the split flags of
// everything below it. Store entries under p are left alone.
func (t *Tree) Collapse(p prefix.Prefix) {
	delete(t.split, p)
	for q := range t.split {
		if q.Bits() > p.Bits() && p.Contains(q) {
			delete(t.split, q)
		}
	}
}

// CollapseParent collapses the block containing p one level up. It is a
// no-op at the top.
func (t *Tree) CollapseParent(p prefix.Prefix) bool {
	if !t.node(p) || p.Bits() <= t.top.Bits() {
		return false
	}
	t.Collapse(p.Supernet(p.Bits() - 2))
	return true
}

// Reset collapses the whole tree.
func (t *Tree) Reset() {
	clear(t.split)
}

// SetPipeline swaps the render functions and collapses the tree.
func (t *Tree) SetPipeline(pl pipeline.Pipeline) {
	t.pipeline = pl
	t.Reset()
}

// Resolve computes p's leaf config. A stored override without merge
// replaces the pipeline output; with merge it is layered on top.
func (t *Tree) Resolve(p prefix.Prefix) *pipeline.Config {
	cfg := pipeline.DefaultConfig()
	e, ok := t.store.Entry(p.String())
	if ok && e.Config != nil && !e.Merge {
		cfg.Overlay(e.Config)
		return cfg
	}
	t.pipeline.Run(p, cfg)
	if ok && e.Config != nil {
		cfg.Merge(e.Config)
	}
	return cfg
}

// Hover publishes p and its resolved config as the hovered leaf.
func (t *Tree) Hover(p prefix.Prefix) *pipeline.Config {
	cfg := t.Resolve(p)
	t.store.SetHoverPrefix(p.String(), cfg)
	return cfg
}

// adopt drains p's pending directive into the local flag.
func (t *Tree) adopt(p prefix.Prefix) bool {
	switch t.store.TakeSplit(p.String()) {
	case state.SplitExpand:
		t.Expand(p)
	case state.SplitCollapse:
		t.Collapse(p)
	}
	return t.split[p]
}

// Traverse visits every shown block depth-first, parents before children
// and children in visual order. Only leaves get a resolved config.
func (t *Tree) Traverse() []Block {
	var out []Block
	t.walk(t.top, Rect{W: 1, H: 1}, 0, &out)
	return out
}

func (t *Tree) walk(p prefix.Prefix, r Rect, depth int, out *[]Block) {
	b := Block{
		Prefix: p,
		Box:    t.Box(p),
		Rect:   r,
		Depth:  depth,
	}

	if !t.adopt(p) || p.Bits() >= p.Width() {
		b.Leaf = true
		b.Config = t.Resolve(p)
		*out = append(*out, b)
		return
	}
	*out = append(*out, b)

	kids := t.children(p)
	w, h := r.W/2, r.H/2
	for i, k := range kids {
		cr := Rect{
			X: r.X + float64(i%2)*w,
			Y: r.Y + float64(i/2)*h,
			W: w,
			H: h,
		}
		t.walk(k, cr, depth+1, out)
	}
}

// children returns p's four quarters sorted top-to-bottom, left-to-right by
// their boxes under the top prefix.
func (t *Tree) children(p prefix.Prefix) [4]prefix.Prefix {
	kids, _ := p.Children()
	sort.Slice(kids[:], func(i, j int) bool {
		return t.Box(kids[i]).Less(t.Box(kids[j]))
	})
	return kids
}

// Children exposes the sorted quarters of p.
func (t *Tree) Children(p prefix.Prefix) ([4]prefix.Prefix, bool) {
	if p.Bits() >= p.Width() {
		return [4]prefix.Prefix{}, false
	}
	return t.children(p), true
}

// LeafAt returns the leaf under a point given as fractions of the top square.
func LeafAt(blocks []Block, fx, fy float64) (Block, bool) {
	for _, b := range blocks {
		if b.Leaf && b.Rect.Contains(fx, fy) {
			return b, true
		}
	}
	return Block{}, false
}

// Leaves filters blocks down to leaves.
func Leaves(blocks []Block) []Block {
	out := make([]Block, 0, len(blocks))
	for _, b := range blocks {
		if b.Leaf {
			out = append(out, b)
		}
	}
	return out
}
