package ingestion

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mr-Dark-debug/hilbertmap/internal/database"
	"github.com/Mr-Dark-debug/hilbertmap/internal/prefix"
)

func TestLoaderIndex(t *testing.T) {
	store := newTestStore(t)
	im := newTestImporter(t, store, 100)
	_, err := im.Import(context.Background(), &database.PrefixSet{ID: "mixed"}, SourceText,
		[]byte("10.0.0.0/16\n10.1.0.0/24\n2001:db8::/32\n2001:db8:1::/48\n"))
	require.NoError(t, err)

	l := NewLoader(store, zerolog.Nop())

	v4, err := l.Index(context.Background(), "mixed", 4)
	require.NoError(t, err)
	assert.Equal(t, 257, v4.Slash24s())
	assert.Zero(t, v4.Prefixes6())
	assert.InDelta(t, 257.0/65536.0, v4.Coverage(prefix.MustParse("10.0.0.0/8")), 1e-12)

	v6, err := l.Index(context.Background(), "mixed", 6)
	require.NoError(t, err)
	assert.Zero(t, v6.Slash24s())
	assert.Equal(t, 1, v6.Prefixes6(), "the /48 folds into the /32")

	both, err := l.Index(context.Background(), "mixed", 0)
	require.NoError(t, err)
	assert.Equal(t, 257, both.Slash24s())
	assert.Equal(t, 1, both.Prefixes6())
}

func TestLoaderErrors(t *testing.T) {
	l := NewLoader(newTestStore(t), zerolog.Nop())

	_, err := l.Index(context.Background(), "missing", 4)
	assert.ErrorIs(t, err, database.ErrNotFound)

	_, err = l.Index(context.Background(), "missing", 5)
	assert.Error(t, err)
}
