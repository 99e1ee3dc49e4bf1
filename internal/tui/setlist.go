package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Mr-Dark-debug/hilbertmap/pkg/timeutil"
)

// renderSetList renders the dataset picker.
func renderSetList(m *Model) string {
	height := m.height - headerHeight - footerHeight
	if len(m.sets) == 0 {
		empty := emptyStateStyle.Render(
			"No prefix sets found.\n\n" +
				"Import one with:\n" +
				"  hilbertmap import --name <name> <file>...")
		return lipgloss.Place(m.width, height, lipgloss.Center, lipgloss.Center, empty)
	}

	title := panelTitleStyle.Render("Prefix sets")
	count := dimStyle.Render(fmt.Sprintf("  %d total", len(m.sets)))

	var lines []string
	lines = append(lines, title+count)
	lines = append(lines, "")

	// Visible range for scrolling
	maxVisible := max(height-2, 1)
	startIdx := 0
	if m.selectedSet >= maxVisible {
		startIdx = m.selectedSet - maxVisible + 1
	}
	endIdx := min(startIdx+maxVisible, len(m.sets))

	for i := startIdx; i < endIdx; i++ {
		s := m.sets[i]

		dot := dimStyle.Render("○")
		if s.ID == m.setID {
			dot = setActiveDot.Render("●")
		}
		id := dimStyle.Render(shortID(s.ID, 12))
		meta := dimStyle.Render(fmt.Sprintf("%s  %d prefixes  %s (%s)",
			s.Source, s.PrefixCount,
			timeutil.FormatTimestampFull(s.CreatedAt), timeutil.RelativeTime(s.CreatedAt)))

		content := fmt.Sprintf("%s  %s  %s  %s", dot, truncate(s.Name, 32), id, meta)

		style := setItemStyle
		if i == m.selectedSet {
			style = setSelectedStyle
		}
		lines = append(lines, style.Width(max(m.width-4, 0)).Render(content))
	}

	return strings.Join(lines, "\n")
}
