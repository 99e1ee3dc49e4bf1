package tui

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mr-Dark-debug/hilbertmap/internal/pipeline"
	"github.com/Mr-Dark-debug/hilbertmap/internal/prefix"
	"github.com/Mr-Dark-debug/hilbertmap/internal/subnet"
)

// scale projects the top square onto an 8x8 pixel canvas shifted by dx.
func scale(dx float64) projectFunc {
	return func(fx, fy float64) (float64, float64) {
		return fx*8 + dx, fy * 8
	}
}

func halves() []subnet.Block {
	return []subnet.Block{
		{Prefix: prefix.MustParse("0.0.0.0/1"), Rect: subnet.Rect{X: 0, Y: 0, W: 0.5, H: 1}, Leaf: true},
		{Prefix: prefix.MustParse("128.0.0.0/1"), Rect: subnet.Rect{X: 0.5, Y: 0, W: 0.5, H: 1}, Leaf: true},
	}
}

func TestPaintGridSplitsCells(t *testing.T) {
	grid, spans := paintGrid(scale(0), halves(), 8, 4)
	require.Len(t, grid, 4)

	for r := 0; r < 4; r++ {
		assert.Equal(t, []int{0, 0, 0, 0, 1, 1, 1, 1}, grid[r], "row %d", r)
	}
	assert.Equal(t, cellSpan{c0: 0, c1: 4, r0: 0, r1: 4}, spans[0])
	assert.Equal(t, cellSpan{c0: 4, c1: 8, r0: 0, r1: 4}, spans[1])
}

func TestPaintGridClipsAndLeavesGaps(t *testing.T) {
	// Shifted right by two pixels on a 10x5 grid: the first two columns and
	// the last row are uncovered.
	grid, spans := paintGrid(scale(2), halves(), 10, 5)

	assert.Equal(t, []int{-1, -1, 0, 0, 0, 0, 1, 1, 1, 1}, grid[0])
	assert.Equal(t, []int{-1, -1, -1, -1, -1, -1, -1, -1, -1, -1}, grid[4])
	assert.Equal(t, 4, spans[0].r1)
}

func TestSpanOfOffscreen(t *testing.T) {
	s := spanOf(scale(-100), subnet.Rect{X: 0, Y: 0, W: 1, H: 1}, 8, 4)
	assert.True(t, s.empty())
}

func TestLabelGridCentersText(t *testing.T) {
	leaves := halves()
	leaves[0].Config = &pipeline.Config{InnerContent: []string{"ab"}}
	leaves[1].Config = &pipeline.Config{InnerContent: []string{"too wide", "cd"}}

	_, spans := paintGrid(scale(0), leaves, 8, 4)
	text := labelGrid(leaves, spans, 8, 4)

	assert.Equal(t, "        ", string(text[0]))
	assert.Equal(t, " ab     ", string(text[1]))
	// The wide line is dropped, the next one keeps its row.
	assert.Equal(t, "     cd ", string(text[2]))
	assert.Equal(t, "        ", string(text[3]))
}
