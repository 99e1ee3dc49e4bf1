package ingestion

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Mr-Dark-debug/hilbertmap/internal/database"
	"github.com/Mr-Dark-debug/hilbertmap/internal/density"
)

// Loader turns stored prefix sets into density indexes for rendering.
type Loader struct {
	store database.Store
	log   zerolog.Logger
}

// NewLoader creates a loader over store.
func NewLoader(store database.Store, log zerolog.Logger) *Loader {
	return &Loader{store: store, log: log}
}

// Index builds a density index from one set. family 4 or 6 restricts the
// index to that family; 0 loads both.
func (l *Loader) Index(ctx context.Context, setID string, family int) (*density.Index, error) {
	if family != 0 && family != 4 && family != 6 {
		return nil, fmt.Errorf("invalid family %d", family)
	}
	if _, err := l.store.GetSet(setID); err != nil {
		return nil, fmt.Errorf("loading set %s: %w", setID, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefixes, err := l.store.QueryPrefixes(setID, family)
	if err != nil {
		return nil, fmt.Errorf("querying prefixes of %s: %w", setID, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ix := density.Build(prefixes)
	l.log.Debug().
		Str("set", setID).
		Int("family", family).
		Int("prefixes", len(prefixes)).
		Int("slash24s", ix.Slash24s()).
		Int("v6_prefixes", ix.Prefixes6()).
		Msg("density index built")
	return ix, nil
}
