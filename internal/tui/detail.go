package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Mr-Dark-debug/hilbertmap/internal/camera"
	"github.com/Mr-Dark-debug/hilbertmap/internal/prefix"
	"github.com/Mr-Dark-debug/hilbertmap/internal/render"
	"github.com/Mr-Dark-debug/hilbertmap/internal/subnet"
	"github.com/Mr-Dark-debug/hilbertmap/internal/viz"
)

// renderDetail renders the hovered-block pane (right side).
func renderDetail(m *Model, width, height int) string {
	title := panelTitleStyle.Render("Block")
	vm := m.active()

	p, ok := vm.HoveredPrefix()
	if !ok {
		return title + "\n\n" +
			emptyStateStyle.Render("Hover a block to inspect it.")
	}

	var lines []string
	lines = append(lines, title)
	lines = append(lines, "")

	// ── Addresses ──

	first, last := viz.Range(p)
	lines = append(lines, detailRow("Prefix", p.String()))
	lines = append(lines, detailRow("First", truncate(first, width-8)))
	lines = append(lines, detailRow("Last", truncate(last, width-8)))
	lines = append(lines, detailRow("Depth", fmt.Sprintf("/%d, %d below top", p.Bits(), p.Bits()-vm.Top().Bits())))

	if b, found := findBlock(m.blocks, p); found {
		lines = append(lines, detailRow("Cell", fmt.Sprintf("x %d..%d  y %d..%d", b.Box.XMin, b.Box.XMax, b.Box.YMin, b.Box.YMax)))
	}

	// ── Coverage ──

	hover := vm.Store().Hover()
	if cfg := hover.Config; cfg != nil {
		if _, has := cfg.Properties[render.PropSubnets]; has {
			v := cfg.Float(render.PropSubnets)
			lines = append(lines, "")
			lines = append(lines, detailSectionStyle.Render("Coverage"))
			lines = append(lines, detailRow("Announced", fmt.Sprintf("%.3f%%", v*100)))
			barWidth := min(width-4, 30)
			if barWidth > 4 {
				lines = append(lines, coverageBar(v, barWidth))
			}
		}

		if len(cfg.Style) > 0 {
			lines = append(lines, "")
			lines = append(lines, detailSectionStyle.Render("Style"))
			keys := make([]string, 0, len(cfg.Style))
			for k := range cfg.Style {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				lines = append(lines, detailRow(k, truncate(cfg.Style[k], width-len(k)-4)))
			}
		}
	}

	// ── Map ──

	cam := vm.Camera().State()
	lines = append(lines, "")
	lines = append(lines, detailSectionStyle.Render("Map"))
	lines = append(lines, detailRow("Top", vm.Top().String()))
	lines = append(lines, detailRow("Zoom", fmt.Sprintf("%.3gx", magnification(cam))))
	lines = append(lines, detailRow("Version", fmt.Sprintf("%d", vm.Store().Version())))
	lines = append(lines, detailRow("Overrides", fmt.Sprintf("%d", vm.Store().Len())))

	if len(lines) > height {
		lines = lines[:height]
	}
	return strings.Join(lines, "\n")
}

// renderDetailPanel wraps detail in a styled panel.
func renderDetailPanel(m *Model, width, height int) string {
	content := renderDetail(m, width-4, height-2)
	return panelStyle.Width(width).Height(height).Render(content)
}

// ── helpers ──

func detailRow(label, value string) string {
	return detailLabelStyle.Render(label) + "  " + detailValueStyle.Render(value)
}

func coverageBar(v float64, width int) string {
	filled := int(v*float64(width) + 0.5)
	if filled == 0 && v > 0 {
		filled = 1
	}
	filled = clamp(filled, 0, width)
	return coverageBarStyle.Render(strings.Repeat("█", filled)) +
		coverageEmptyStyle.Render(strings.Repeat("░", width-filled))
}

// magnification is the zoom relative to the fitted view.
func magnification(s camera.State) float64 {
	if s.Size <= 0 {
		return 1
	}
	fit := camera.FitFactor * min(s.Width, s.Height) / s.Size
	if fit <= 0 {
		return 1
	}
	return s.Zoom / fit
}

func findBlock(blocks []subnet.Block, p prefix.Prefix) (subnet.Block, bool) {
	for _, b := range blocks {
		if b.Leaf && b.Prefix == p {
			return b, true
		}
	}
	return subnet.Block{}, false
}
