package viz

import (
	"testing"

	"github.com/Mr-Dark-debug/hilbertmap/internal/pipeline"
	"github.com/Mr-Dark-debug/hilbertmap/internal/prefix"
	"github.com/Mr-Dark-debug/hilbertmap/internal/state"
	"github.com/Mr-Dark-debug/hilbertmap/internal/subnet"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lukechampine.com/uint128"
)

func newMap(t *testing.T, top string) *Map {
	t.Helper()
	opts := Options{Logger: zerolog.Nop()}
	if top != "" {
		opts.Top = prefix.MustParse(top)
	}
	m, err := New(opts)
	require.NoError(t, err)
	return m
}

func find(blocks []subnet.Block, s string) (subnet.Block, bool) {
	for _, b := range blocks {
		if b.Prefix.String() == s {
			return b, true
		}
	}
	return subnet.Block{}, false
}

func TestNewDefaults(t *testing.T) {
	m := newMap(t, "")
	assert.Equal(t, DefaultTopV4, m.Top())
	assert.Equal(t, subnet.DefaultMaxExpand, m.MaxExpand())

	_, err := New(Options{Top: prefix.MustParse("10.0.0.0/9")})
	assert.ErrorIs(t, err, ErrOddTop)
}

func TestZoomToPrefixEndToEnd(t *testing.T) {
	m := newMap(t, "0.0.0.0/0")
	assert.False(t, m.ZoomToPrefix("10.0.0.0/8"), "camera not bound yet")

	m.Bind(800, 600)
	require.True(t, m.ZoomToPrefix("10.0.0.0/8"))

	blocks := m.Traverse()
	leaf, ok := find(blocks, "10.0.0.0/8")
	require.True(t, ok)
	assert.True(t, leaf.Leaf)

	// The target sits under the viewport center.
	hit, ok := m.LeafAt(blocks, 400, 300)
	require.True(t, ok)
	assert.Equal(t, "10.0.0.0/8", hit.Prefix.String())

	assert.False(t, m.ZoomToPrefix("2000::/3"))
}

func TestSetTopPrefixClearsStore(t *testing.T) {
	m := newMap(t, "0.0.0.0/0")
	m.Store().SetPrefixConfig("10.0.0.0/8", pipeline.NewConfig(), true)
	m.Expand(m.Top())

	require.NoError(t, m.SetTopPrefix(prefix.MustParse("10.0.0.0/8")))
	assert.Equal(t, 0, m.Store().Len())
	assert.Len(t, m.Traverse(), 1)

	assert.ErrorIs(t, m.SetTopPrefix(prefix.MustParse("10.0.0.0/7")), ErrOddTop)
	assert.Equal(t, "10.0.0.0/8", m.Top().String())
}

func TestSetPipelineClearsAndCollapses(t *testing.T) {
	m := newMap(t, "0.0.0.0/0")
	m.Expand(m.Top())
	m.Store().SetPrefixSplit(state.SplitExpand, "0.0.0.0/2")

	m.SetPipeline(pipeline.Pipeline{
		func(s string, _ uint128.Uint128, _ int, cfg *pipeline.Config) {
			cfg.InnerContent = append(cfg.InnerContent, "new:"+s)
		},
	})
	blocks := m.Traverse()
	require.Len(t, blocks, 1)
	assert.Equal(t, []string{"new:0.0.0.0/0"}, blocks[0].Config.InnerContent)
	assert.Equal(t, 0, m.Store().Len())
}

func TestPromoteAndDemote(t *testing.T) {
	m := newMap(t, "0.0.0.0/0")
	assert.ErrorIs(t, m.PromoteHovered(), ErrNoHover)

	m.Hover(prefix.MustParse("10.0.0.0/8"))
	require.NoError(t, m.PromoteHovered())
	assert.Equal(t, "10.0.0.0/8", m.Top().String())

	m.Hover(prefix.MustParse("10.0.0.0/9"))
	assert.ErrorIs(t, m.PromoteHovered(), ErrOddTop)
	assert.Equal(t, "10.0.0.0/8", m.Top().String())

	m.Hover(prefix.MustParse("10.0.0.1/32"))
	assert.ErrorIs(t, m.PromoteHovered(), ErrLevel)

	require.NoError(t, m.DemoteTop())
	assert.Equal(t, "8.0.0.0/6", m.Top().String())

	for m.Top().Bits() > 0 {
		require.NoError(t, m.DemoteTop())
	}
	assert.ErrorIs(t, m.DemoteTop(), ErrLevel)
}

func TestPromoteRespectsMaxLevel(t *testing.T) {
	m, err := New(Options{MaxLevel: 16, Logger: zerolog.Nop()})
	require.NoError(t, err)

	m.Hover(prefix.MustParse("10.0.0.0/16"))
	assert.ErrorIs(t, m.PromoteHovered(), ErrLevel)

	m.Hover(prefix.MustParse("10.0.0.0/14"))
	assert.NoError(t, m.PromoteHovered())
}

func TestExpandAllV4SkipsReserved(t *testing.T) {
	m := newMap(t, "0.0.0.0/0")
	n := m.ExpandAll()

	// 1 + 4 + 14 + 56 blocks; everything at or above 224.0.0.0 stays folded.
	assert.Equal(t, 75, n)
	assert.Equal(t, 75, m.Store().Pending())

	blocks := m.Traverse()
	assert.Equal(t, 0, m.Store().Pending())

	b, ok := find(blocks, "224.0.0.0/4")
	require.True(t, ok)
	assert.True(t, b.Leaf)

	b, ok = find(blocks, "192.0.0.0/4")
	require.True(t, ok)
	assert.False(t, b.Leaf)

	m.CollapseAll()
	assert.Len(t, m.Traverse(), 1)
}

func TestExpandAllInsideReservedTop(t *testing.T) {
	m := newMap(t, "224.0.0.0/4")
	assert.Equal(t, 1+4+16+64, m.ExpandAll())
}

func TestExpandAllV6(t *testing.T) {
	m := newMap(t, "2000::/4")
	assert.Equal(t, 1+4+16, m.ExpandAll())
	assert.Len(t, subnet.Leaves(m.Traverse()), 64)
}

func TestClearAll(t *testing.T) {
	m := newMap(t, "0.0.0.0/0")
	m.Expand(m.Top())
	m.Store().SetPrefixConfig("0.0.0.0/2", pipeline.NewConfig(), false)

	m.ClearAll()
	assert.Equal(t, 0, m.Store().Len())
	assert.Len(t, m.Traverse(), 1)
}

func TestRange(t *testing.T) {
	first, last := Range(prefix.MustParse("10.0.0.0/8"))
	assert.Equal(t, "10.0.0.0", first)
	assert.Equal(t, "10.255.255.255", last)
}
