package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Mr-Dark-debug/hilbertmap/internal/prefix"
	"github.com/Mr-Dark-debug/hilbertmap/internal/subnet"
)

const (
	headerHeight = 1
	footerHeight = 1
)

// renderHeader produces the top bar:
//
//	HILBERTMAP  |  IPv4  |  Top 0.0.0.0/0  |  Set AS64500  |  7 blocks
func renderHeader(m *Model) string {
	brand := headerBrandStyle.Render("HILBERTMAP")
	sep := headerSepStyle.Render(" │ ")
	top := m.active().Top()

	parts := []string{
		brand,
		sep, headerFamilyStyle.Render(familyName(top)),
		sep, headerMetaStyle.Render("Top " + top.String()),
	}
	if m.setID != "" {
		name := m.setName
		if name == "" {
			name = m.setID
		}
		parts = append(parts, sep, headerMetaStyle.Render("Set "+truncate(name, 24)))
	}
	parts = append(parts, sep, headerMetaStyle.Render(
		fmt.Sprintf("%d blocks", len(subnet.Leaves(m.blocks)))))

	return headerBarStyle.Width(m.width).Render(strings.Join(parts, ""))
}

// renderFooter produces the bottom status bar with keyboard hints.
func renderFooter(m *Model) string {
	var left, right string

	switch {
	case m.searchMode:
		cursor := searchCursorStyle.Render(" ")
		left = searchBarStyle.Render(fmt.Sprintf("zoom to %s%s", m.searchQuery, cursor))
		right = renderHints([]hint{
			{"enter", "zoom"},
			{"esc", "cancel"},
		})
	case m.showSets:
		left = renderStatus(m)
		right = renderHints([]hint{
			{"↑↓", "navigate"},
			{"enter", "color by set"},
			{"esc", "back"},
		})
	default:
		left = renderStatus(m)
		right = renderHints([]hint{
			{"enter", "split"},
			{"⌫", "merge"},
			{m.promoteKey + "/" + m.demoteKey, "top"},
			{"+-", "zoom"},
			{"/", "go to"},
			{"tab", "v4/v6"},
			{"s", "sets"},
			{"ctrl+c", "quit"},
		})
	}

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 0 {
		// Hints give way to the status line on narrow terminals.
		right = ""
		gap = max(m.width-lipgloss.Width(left), 0)
	}

	bar := left + strings.Repeat(" ", gap) + right
	return lipgloss.NewStyle().
		Background(colorBgSurface).
		Width(m.width).
		MaxHeight(footerHeight).
		Render(bar)
}

func renderStatus(m *Model) string {
	if m.statusMsg == "" {
		return ""
	}
	if m.err != nil {
		return statusErrStyle.Render(m.statusMsg)
	}
	return statusStyle.Render(m.statusMsg)
}

type hint struct {
	key  string
	desc string
}

func renderHints(hints []hint) string {
	var parts []string
	for _, h := range hints {
		parts = append(parts,
			hintKeyStyle.Render(h.key)+" "+hintDescStyle.Render(h.desc))
	}
	return strings.Join(parts, hintDescStyle.Render("  "))
}

func familyName(p prefix.Prefix) string {
	if p.Is4() {
		return "IPv4"
	}
	return "IPv6"
}
