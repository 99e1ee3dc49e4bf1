package tui

import (
	"testing"
	"unicode/utf8"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mr-Dark-debug/hilbertmap/internal/prefix"
	"github.com/Mr-Dark-debug/hilbertmap/internal/subnet"
	"github.com/Mr-Dark-debug/hilbertmap/internal/viz"
)

func newTestModel(t *testing.T) Model {
	t.Helper()
	m, err := NewModel(Options{Log: zerolog.Nop()})
	require.NoError(t, err)
	return send(t, m, tea.WindowSizeMsg{Width: 100, Height: 40})
}

func send(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestNewModelDefaults(t *testing.T) {
	m := newTestModel(t)

	assert.Equal(t, "0.0.0.0/0", m.active().Top().String())
	assert.Len(t, m.blocks, 1)

	cols, rows := m.mapSize()
	assert.Equal(t, 100-detailWidth, cols)
	assert.Equal(t, 38, rows)

	p, ok := m.active().HoveredPrefix()
	require.True(t, ok)
	assert.Equal(t, "0.0.0.0/0", p.String())
}

func TestNewModelRejectsOddTop(t *testing.T) {
	_, err := NewModel(Options{Log: zerolog.Nop(), TopV4: prefix.MustParse("10.0.0.0/9")})
	assert.ErrorIs(t, err, viz.ErrOddTop)
}

func TestExpandAndCollapseHovered(t *testing.T) {
	m := newTestModel(t)

	m = send(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Len(t, m.blocks, 5)
	assert.Len(t, subnet.Leaves(m.blocks), 4)

	p, ok := m.active().HoveredPrefix()
	require.True(t, ok)
	assert.Equal(t, 2, p.Bits())

	m = send(t, m, tea.KeyMsg{Type: tea.KeyBackspace})
	assert.Len(t, m.blocks, 1)
}

func TestSearchZoomPromoteDemote(t *testing.T) {
	m := newTestModel(t)

	m = send(t, m, runes("/"))
	require.True(t, m.searchMode)
	m = send(t, m, runes("10.0.0.0/8"))
	assert.Equal(t, "10.0.0.0/8", m.searchQuery)
	m = send(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.False(t, m.searchMode)
	assert.Equal(t, "Zoomed to 10.0.0.0/8", m.statusMsg)

	p, ok := m.active().HoveredPrefix()
	require.True(t, ok)
	assert.Equal(t, "10.0.0.0/8", p.String())

	m = send(t, m, runes("e"))
	assert.Equal(t, "10.0.0.0/8", m.active().Top().String())

	m = send(t, m, runes("q"))
	assert.Equal(t, "8.0.0.0/6", m.active().Top().String())
}

func TestSearchRejectsOutsideTop(t *testing.T) {
	m := newTestModel(t)

	m = send(t, m, runes("/"))
	m = send(t, m, runes("10.0.0.0/25"))
	m = send(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Contains(t, m.statusMsg, "Cannot zoom")
	assert.Len(t, m.blocks, 1)
}

func TestSearchSwitchesFamily(t *testing.T) {
	m := newTestModel(t)

	m = send(t, m, runes("/"))
	m = send(t, m, runes("2001::/16"))
	m = send(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, famV6, m.family)
	assert.Equal(t, "Zoomed to 2001::/16", m.statusMsg)
}

func TestFailedSearchKeepsFamilyAndBlocks(t *testing.T) {
	m := newTestModel(t)

	// Deeper than the expand ceiling of 24, so the v6 map refuses it.
	m = send(t, m, runes("/"))
	m = send(t, m, runes("2001:db8::/64"))
	m = send(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.Contains(t, m.statusMsg, "Cannot zoom")
	assert.Equal(t, famV4, m.family)
	assert.Equal(t, "0.0.0.0/0", m.active().Top().String())
	require.Len(t, m.blocks, 1)
	assert.Equal(t, m.active().Top(), m.blocks[0].Prefix)

	m = send(t, m, runes("/"))
	m = send(t, m, runes("2000::/3"))
	m = send(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, famV4, m.family)
	assert.Equal(t, m.active().Top(), m.blocks[0].Prefix)
}

func TestSearchBackspaceRemovesWholeRune(t *testing.T) {
	m := newTestModel(t)

	m = send(t, m, runes("/"))
	m = send(t, m, runes("10é"))
	m = send(t, m, tea.KeyMsg{Type: tea.KeyBackspace})
	assert.Equal(t, "10", m.searchQuery)

	m = send(t, m, runes("ü"))
	m = send(t, m, tea.KeyMsg{Type: tea.KeyBackspace})
	assert.True(t, utf8.ValidString(m.searchQuery))
	assert.Equal(t, "10", m.searchQuery)
}

func TestTabTogglesFamily(t *testing.T) {
	m := newTestModel(t)

	m = send(t, m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, "2000::/4", m.active().Top().String())
	assert.Contains(t, m.View(), "IPv6")

	m = send(t, m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, "0.0.0.0/0", m.active().Top().String())
}

func TestWheelZooms(t *testing.T) {
	m := newTestModel(t)
	before := m.active().Camera().State().Zoom

	m = send(t, m, tea.MouseMsg{X: 30, Y: 20, Button: tea.MouseButtonWheelUp, Action: tea.MouseActionPress})
	assert.InDelta(t, before*zoomStep, m.active().Camera().State().Zoom, 1e-9)

	// Outside the map pane.
	m = send(t, m, tea.MouseMsg{X: 99, Y: 20, Button: tea.MouseButtonWheelUp, Action: tea.MouseActionPress})
	assert.InDelta(t, before*zoomStep, m.active().Camera().State().Zoom, 1e-9)
}

func TestMouseClicksExpandAndCollapse(t *testing.T) {
	m := newTestModel(t)
	// Pane center: 64 cols x 38 rows below a one-line header.
	x, y := 32, 19+headerHeight

	m = send(t, m, tea.MouseMsg{X: x, Y: y, Button: tea.MouseButtonLeft, Action: tea.MouseActionPress})
	assert.Len(t, m.blocks, 5)
	p, ok := m.active().HoveredPrefix()
	require.True(t, ok)
	assert.Equal(t, 2, p.Bits())

	// Releases are ignored.
	m = send(t, m, tea.MouseMsg{X: x, Y: y, Button: tea.MouseButtonLeft, Action: tea.MouseActionRelease})
	assert.Len(t, m.blocks, 5)

	m = send(t, m, tea.MouseMsg{X: x, Y: y, Button: tea.MouseButtonRight, Action: tea.MouseActionPress})
	assert.Len(t, m.blocks, 1)
	p, ok = m.active().HoveredPrefix()
	require.True(t, ok)
	assert.Equal(t, "0.0.0.0/0", p.String())
}

func TestMouseMotionHovers(t *testing.T) {
	m := newTestModel(t)
	m = send(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Len(t, m.blocks, 5)

	// Top-left quadrant of the fitted square is the first /2 on the curve.
	m = send(t, m, tea.MouseMsg{X: 10, Y: 10 + headerHeight, Button: tea.MouseButtonNone, Action: tea.MouseActionMotion})
	p, ok := m.active().HoveredPrefix()
	require.True(t, ok)
	assert.Equal(t, "0.0.0.0/2", p.String())
	assert.Len(t, m.blocks, 5)
}

func TestSetsWithoutStore(t *testing.T) {
	m := newTestModel(t)

	m = send(t, m, runes("s"))
	assert.False(t, m.showSets)
	assert.Equal(t, "No database configured", m.statusMsg)
}

func TestCtrlCQuits(t *testing.T) {
	m := newTestModel(t)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestViewShowsChrome(t *testing.T) {
	m, err := NewModel(Options{Log: zerolog.Nop()})
	require.NoError(t, err)
	assert.Equal(t, "Initializing...", m.View())

	m = send(t, m, tea.WindowSizeMsg{Width: 100, Height: 40})
	v := m.View()
	assert.Contains(t, v, "HILBERTMAP")
	assert.Contains(t, v, "0.0.0.0/0")
	assert.Contains(t, v, "Block")
}
