package tui

import (
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Mr-Dark-debug/hilbertmap/internal/pipeline"
	"github.com/Mr-Dark-debug/hilbertmap/internal/render"
	"github.com/Mr-Dark-debug/hilbertmap/internal/subnet"
	"github.com/Mr-Dark-debug/hilbertmap/internal/viz"
)

// Each terminal cell covers one pixel across and two down, so a square
// block stays roughly square on screen.
const cellPixelsY = 2

// ────────────────────────────────────────────────────────────
// Grid painting
// ────────────────────────────────────────────────────────────

// projectFunc maps fractions of the top square to map pixels.
type projectFunc func(fx, fy float64) (sx, sy float64)

// cellSpan is the range of cells a leaf covers, half-open on both axes.
type cellSpan struct {
	c0, c1, r0, r1 int
}

func (s cellSpan) empty() bool { return s.c0 >= s.c1 || s.r0 >= s.r1 }

// spanOf returns the cells whose sample point (c+0.5, 2r+1) falls inside the
// projected rect, clipped to the grid.
func spanOf(project projectFunc, r subnet.Rect, cols, rows int) cellSpan {
	x0, y0 := project(r.X, r.Y)
	x1, y1 := project(r.X+r.W, r.Y+r.H)
	return cellSpan{
		c0: clampCell(math.Ceil(x0-0.5), cols),
		c1: clampCell(math.Ceil(x1-0.5), cols),
		r0: clampCell(math.Ceil((y0-1)/cellPixelsY), rows),
		r1: clampCell(math.Ceil((y1-1)/cellPixelsY), rows),
	}
}

func clampCell(v float64, n int) int {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > float64(n) {
		return n
	}
	return int(v)
}

// paintGrid assigns every cell the index of the leaf drawn there, or -1.
func paintGrid(project projectFunc, leaves []subnet.Block, cols, rows int) ([][]int, []cellSpan) {
	grid := make([][]int, rows)
	for r := range grid {
		grid[r] = make([]int, cols)
		for c := range grid[r] {
			grid[r][c] = -1
		}
	}
	spans := make([]cellSpan, len(leaves))
	for i, b := range leaves {
		s := spanOf(project, b.Rect, cols, rows)
		spans[i] = s
		for r := s.r0; r < s.r1; r++ {
			for c := s.c0; c < s.c1; c++ {
				grid[r][c] = i
			}
		}
	}
	return grid, spans
}

// labelGrid writes each leaf's inner content centered in its visible cells.
// Lines that do not fit are dropped.
func labelGrid(leaves []subnet.Block, spans []cellSpan, cols, rows int) [][]rune {
	text := make([][]rune, rows)
	for r := range text {
		text[r] = []rune(strings.Repeat(" ", cols))
	}
	for i, b := range leaves {
		s := spans[i]
		if s.empty() || b.Config == nil {
			continue
		}
		w, h := s.c1-s.c0, s.r1-s.r0
		lines := b.Config.InnerContent
		if len(lines) > h {
			lines = lines[:h]
		}
		top := s.r0 + (h-len(lines))/2
		for j, line := range lines {
			runes := []rune(line)
			if len(runes) > w {
				continue
			}
			start := s.c0 + (w-len(runes))/2
			copy(text[top+j][start:], runes)
		}
	}
	return text
}

// ────────────────────────────────────────────────────────────
// Rendering
// ────────────────────────────────────────────────────────────

// leafStyle turns a leaf's annotation into a cell style. Leaves still on the
// default black background alternate with the surface color so neighbors
// stay distinguishable.
func leafStyle(b subnet.Block, i int, hovered bool) lipgloss.Style {
	def := pipeline.DefaultConfig()
	bgRaw, fgRaw := def.Style[pipeline.StyleBackground], def.Style[pipeline.StyleColor]
	bold := false
	if b.Config != nil {
		if v, ok := b.Config.Style[pipeline.StyleBackground]; ok {
			bgRaw = v
		}
		if v, ok := b.Config.Style[pipeline.StyleColor]; ok {
			fgRaw = v
		}
		bold = b.Config.Style[pipeline.StyleBold] == "true"
	}

	bg := lipgloss.Color(render.HexOf(bgRaw, "#000000"))
	if bgRaw == def.Style[pipeline.StyleBackground] {
		bg = colorBg
		if i%2 == 1 {
			bg = colorBgSurface
		}
	}
	st := lipgloss.NewStyle().
		Background(bg).
		Foreground(lipgloss.Color(render.HexOf(fgRaw, "#ffffff"))).
		Bold(bold)
	if hovered {
		st = st.Reverse(true)
	}
	return st
}

// renderMap draws the visible leaves of vm into a cols x rows block.
func renderMap(vm *viz.Map, blocks []subnet.Block, cols, rows int) string {
	if cols <= 0 || rows <= 0 {
		return ""
	}
	leaves := subnet.Leaves(blocks)
	grid, spans := paintGrid(vm.Camera().Project, leaves, cols, rows)
	text := labelGrid(leaves, spans, cols, rows)

	hover, hasHover := vm.HoveredPrefix()
	styles := make([]lipgloss.Style, len(leaves))
	for i, b := range leaves {
		styles[i] = leafStyle(b, i, hasHover && b.Prefix == hover)
	}

	var sb strings.Builder
	for r := 0; r < rows; r++ {
		if r > 0 {
			sb.WriteByte('\n')
		}
		// Emit one styled run per stretch of the same leaf.
		for c := 0; c < cols; {
			idx := grid[r][c]
			end := c + 1
			for end < cols && grid[r][end] == idx {
				end++
			}
			run := string(text[r][c:end])
			if idx < 0 {
				sb.WriteString(mapEmptyStyle.Render(run))
			} else {
				sb.WriteString(styles[idx].Render(run))
			}
			c = end
		}
	}
	return sb.String()
}
