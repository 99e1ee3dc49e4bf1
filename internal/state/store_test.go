package state

import (
	"testing"

	"github.com/Mr-Dark-debug/hilbertmap/internal/pipeline"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore() *Store {
	return NewStore(zerolog.Nop())
}

func TestMissingEntryIsZero(t *testing.T) {
	s := newTestStore()
	e, ok := s.Entry("10.0.0.0/8")
	assert.False(t, ok)
	assert.Equal(t, Entry{}, e)
	assert.Equal(t, SplitNone, s.TakeSplit("10.0.0.0/8"))
}

func TestSplitDirectiveIsDrainedOnce(t *testing.T) {
	s := newTestStore()
	s.SetPrefixSplit(SplitExpand, "10.0.0.0/8")

	assert.Equal(t, 1, s.Pending())
	assert.Equal(t, SplitExpand, s.TakeSplit("10.0.0.0/8"))
	assert.Equal(t, SplitNone, s.TakeSplit("10.0.0.0/8"))
	assert.Equal(t, 0, s.Pending())
}

func TestKeysAreCanonical(t *testing.T) {
	s := newTestStore()
	s.SetPrefixSplit(SplitExpand, "10.9.8.7/8")
	assert.Equal(t, SplitExpand, s.TakeSplit("10.0.0.0/8"))

	s.SetPrefixConfig("2001:DB8::/32", &pipeline.Config{InnerContent: []string{"x"}}, true)
	_, ok := s.Entry("2001:db8::/32")
	assert.True(t, ok)
}

func TestBatchIsOneTransition(t *testing.T) {
	s := newTestStore()
	before := s.Version()

	s.SetPrefixSplit(SplitExpand, "0.0.0.0/0", "0.0.0.0/2", "0.0.0.0/4", "8.0.0.0/6")

	assert.Equal(t, before+1, s.Version())
	assert.Equal(t, 4, s.Pending())
	assert.Equal(t, 4, s.Len())

	s.SetPrefixSplit(SplitExpand)
	assert.Equal(t, before+1, s.Version(), "empty batch is not a transition")
}

func TestSetPrefixConfigKeepsPendingSplit(t *testing.T) {
	s := newTestStore()
	s.SetPrefixSplit(SplitCollapse, "10.0.0.0/8")
	s.SetPrefixConfig("10.0.0.0/8", &pipeline.Config{Style: map[string]string{"background": "red"}}, false)

	e, ok := s.Entry("10.0.0.0/8")
	require.True(t, ok)
	assert.Equal(t, SplitCollapse, e.Split)
	assert.False(t, e.Merge)
	assert.Equal(t, "red", e.Config.Style["background"])
}

func TestEntryReturnsCopy(t *testing.T) {
	s := newTestStore()
	cfg := &pipeline.Config{Style: map[string]string{"background": "red"}}
	s.SetPrefixConfig("10.0.0.0/8", cfg, true)
	cfg.Style["background"] = "mutated by caller"

	e, _ := s.Entry("10.0.0.0/8")
	e.Config.Style["background"] = "mutated by reader"

	again, _ := s.Entry("10.0.0.0/8")
	assert.Equal(t, "red", again.Config.Style["background"])
}

func TestClearPrefixAndClearAll(t *testing.T) {
	s := newTestStore()
	s.SetPrefixSplit(SplitExpand, "10.0.0.0/8", "11.0.0.0/8")
	s.SetPrefixConfig("12.0.0.0/8", pipeline.NewConfig(), true)

	s.ClearPrefix("10.0.0.0/8")
	assert.Equal(t, 2, s.Len())

	v := s.Version()
	s.ClearPrefix("99.0.0.0/8")
	assert.Equal(t, v, s.Version(), "clearing an absent prefix is not a transition")

	s.ClearAllPrefixes()
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 0, s.Pending())
}

func TestHover(t *testing.T) {
	s := newTestStore()
	assert.Equal(t, "", s.Hover().Prefix)

	cfg := pipeline.DefaultConfig()
	s.SetHoverPrefix("10.0.0.0/8", cfg)
	h := s.Hover()
	assert.Equal(t, "10.0.0.0/8", h.Prefix)
	assert.Equal(t, "rgb(0,0,0)", h.Config.Style[pipeline.StyleBackground])
}

func TestCameraCallbacksDefaultToNoOps(t *testing.T) {
	s := newTestStore()

	assert.NotPanics(t, s.ResetZoom)
	assert.False(t, s.ZoomToPrefix("10.0.0.0/8"))

	resets := 0
	s.SetResetZoom(func() { resets++ })
	s.SetZoomToPrefix(func(target string) bool {
		// Callbacks may write back into the store.
		s.SetPrefixSplit(SplitExpand, target)
		return true
	})

	s.ResetZoom()
	assert.Equal(t, 1, resets)
	assert.True(t, s.ZoomToPrefix("10.0.0.0/8"))
	assert.Equal(t, SplitExpand, s.TakeSplit("10.0.0.0/8"))

	s.SetZoomToPrefix(nil)
	assert.False(t, s.ZoomToPrefix("10.0.0.0/8"))
}

func TestSplitHelpers(t *testing.T) {
	assert.Equal(t, SplitExpand, SplitOf(true))
	assert.Equal(t, SplitCollapse, SplitOf(false))
	assert.True(t, SplitExpand.Bool())
	assert.False(t, SplitCollapse.Bool())
	assert.Equal(t, "none", SplitNone.String())
	assert.NotEmpty(t, newTestStore().ID())
}
