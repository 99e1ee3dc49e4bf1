// Package state holds the per-map directive store.
//
// The store is the only channel between callers (keyboard handlers, HTTP
// requests, zoom-to-prefix) and the subnet tree. It keeps three things:
// config overrides and pending split directives keyed by canonical prefix,
// the last hovered leaf, and the late-bound camera callbacks.
//
// Split directives are one-shot. The tree drains a directive the first time
// it visits the prefix and from then on its own local flag is authoritative.
// The store never mirrors the tree's expanded state.
package state

import (
	"sync"

	"github.com/Mr-Dark-debug/hilbertmap/internal/pipeline"
	"github.com/Mr-Dark-debug/hilbertmap/internal/prefix"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Split is a pending split directive.
type Split int8

const (
	// SplitNone means no directive is pending.
	SplitNone Split = iota
	// SplitExpand asks the prefix to subdivide.
	SplitExpand
	// SplitCollapse asks the prefix to fold back into a leaf.
	SplitCollapse
)

// SplitOf converts a boolean split flag into a directive.
func SplitOf(split bool) Split {
	if split {
		return SplitExpand
	}
	return SplitCollapse
}

// Bool returns the split flag a directive requests.
func (s Split) Bool() bool { return s == SplitExpand }

func (s Split) String() string {
	switch s {
	case SplitExpand:
		return "expand"
	case SplitCollapse:
		return "collapse"
	}
	return "none"
}

// Entry is the stored state for one prefix. The zero value means no
// override and no pending directive.
type Entry struct {
	Config *pipeline.Config
	Merge  bool
	Split  Split
}

// Hover is the last leaf the pointer was over.
type Hover struct {
	Prefix string
	Config *pipeline.Config
}

// Store is a directive store for one map instance. All mutations are
// atomic per call; a batch of split directives lands as one transition.
type Store struct {
	mu      sync.Mutex
	id      uuid.UUID
	entries map[string]Entry
	hover   Hover
	version uint64

	resetZoom    func()
	zoomToPrefix func(string) bool

	log zerolog.Logger
}

// NewStore returns an empty store. Camera callbacks start as no-ops.
func NewStore(log zerolog.Logger) *Store {
	id := uuid.New()
	return &Store{
		id:           id,
		entries:      make(map[string]Entry),
		resetZoom:    func() {},
		zoomToPrefix: func(string) bool { return false },
		log:          log.With().Str("store", id.String()).Logger(),
	}
}

// ID identifies this store in logs.
func (s *Store) ID() string { return s.id.String() }

// key canonicalizes a prefix string. Unparseable input is kept verbatim so
// callers can still clear what they set.
func key(p string) string {
	parsed, err := prefix.Parse(p)
	if err != nil {
		return p
	}
	return parsed.String()
}

// SetPrefixConfig stores a config override for p. With merge the override
// is layered on top of pipeline output; without it, it replaces it. A
// pending split directive for p is kept.
func (s *Store) SetPrefixConfig(p string, cfg *pipeline.Config, merge bool) {
	k := key(p)

	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entries[k]
	e.Config = cfg.Clone()
	e.Merge = merge
	s.entries[k] = e
	s.version++
}

// SetPrefixSplit records the same directive for every prefix in one
// transition. SplitNone cancels pending directives.
func (s *Store) SetPrefixSplit(split Split, prefixes ...string) {
	if len(prefixes) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range prefixes {
		k := key(p)
		e := s.entries[k]
		e.Split = split
		s.entries[k] = e
	}
	s.version++

	s.log.Debug().
		Str("split", split.String()).
		Int("prefixes", len(prefixes)).
		Msg("split directive")
}

// TakeSplit returns the pending directive for p and clears it.
func (s *Store) TakeSplit(p string) Split {
	k := key(p)

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[k]
	if !ok || e.Split == SplitNone {
		return SplitNone
	}
	split := e.Split
	e.Split = SplitNone
	s.entries[k] = e
	return split
}

// Entry returns a copy of the stored state for p.
func (s *Store) Entry(p string) (Entry, bool) {
	k := key(p)

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[k]
	if !ok {
		return Entry{}, false
	}
	e.Config = e.Config.Clone()
	return e, true
}

// ClearPrefix removes everything stored for p.
func (s *Store) ClearPrefix(p string) {
	k := key(p)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[k]; ok {
		delete(s.entries, k)
		s.version++
	}
}

// ClearAllPrefixes drops every override and pending directive.
func (s *Store) ClearAllPrefixes() {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.entries)
	s.entries = make(map[string]Entry)
	s.version++

	s.log.Debug().Int("dropped", n).Msg("cleared all prefixes")
}

// SetHoverPrefix records the leaf under the pointer.
func (s *Store) SetHoverPrefix(p string, cfg *pipeline.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hover = Hover{Prefix: p, Config: cfg.Clone()}
}

// Hover returns the last hovered leaf.
func (s *Store) Hover() Hover {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Hover{Prefix: s.hover.Prefix, Config: s.hover.Config.Clone()}
}

// SetResetZoom registers the camera's reset callback. nil restores the
// no-op stand-in.
func (s *Store) SetResetZoom(fn func()) {
	if fn == nil {
		fn = func() {}
	}
	s.mu.Lock()
	s.resetZoom = fn
	s.mu.Unlock()
}

// SetZoomToPrefix registers the camera's zoom-to-prefix callback. nil
// restores the stand-in, which reports false.
func (s *Store) SetZoomToPrefix(fn func(string) bool) {
	if fn == nil {
		fn = func(string) bool { return false }
	}
	s.mu.Lock()
	s.zoomToPrefix = fn
	s.mu.Unlock()
}

// ResetZoom invokes the registered reset callback.
func (s *Store) ResetZoom() {
	s.mu.Lock()
	fn := s.resetZoom
	s.mu.Unlock()
	fn()
}

// ZoomToPrefix invokes the registered zoom callback. The lock is released
// first because the camera writes split directives back into the store.
func (s *Store) ZoomToPrefix(target string) bool {
	s.mu.Lock()
	fn := s.zoomToPrefix
	s.mu.Unlock()
	return fn(target)
}

// Version increases on every mutation visible to a traversal.
func (s *Store) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Len returns the number of prefixes with stored state.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Pending returns the number of undrained split directives.
func (s *Store) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entries {
		if e.Split != SplitNone {
			n++
		}
	}
	return n
}
