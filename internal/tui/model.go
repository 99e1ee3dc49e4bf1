package tui

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"

	"github.com/Mr-Dark-debug/hilbertmap/internal/database"
	"github.com/Mr-Dark-debug/hilbertmap/internal/density"
	"github.com/Mr-Dark-debug/hilbertmap/internal/ingestion"
	"github.com/Mr-Dark-debug/hilbertmap/internal/prefix"
	"github.com/Mr-Dark-debug/hilbertmap/internal/render"
	"github.com/Mr-Dark-debug/hilbertmap/internal/subnet"
	"github.com/Mr-Dark-debug/hilbertmap/internal/viz"
)

// ────────────────────────────────────────────────────────────
// Layout constants
// ────────────────────────────────────────────────────────────

const (
	// detailWidth is the width of the right-hand pane.
	detailWidth = 36
	// minSplitWidth is the narrowest terminal that still shows the
	// detail pane.
	minSplitWidth = 80
	// zoomStep is the factor applied per +/- key or wheel notch.
	zoomStep = 1.25
)

// Family slots.
const (
	famV4 = iota
	famV6
)

// ────────────────────────────────────────────────────────────
// Model
// ────────────────────────────────────────────────────────────

// Options configures the TUI.
type Options struct {
	// Store may be nil; the map then runs without datasets.
	Store     database.Store
	Log       zerolog.Logger
	TopV4     prefix.Prefix
	TopV6     prefix.Prefix
	MaxExpand int
	MinLevel  int
	// SetID selects a dataset to color by on startup.
	SetID      string
	PromoteKey string
	DemoteKey  string
}

// Model is the root BubbleTea model for the map.
// State is organized by concern; rendering is delegated
// to component functions in separate files.
type Model struct {
	store  database.Store
	loader *ingestion.Loader
	log    zerolog.Logger

	// Maps, one per family. Each keeps its own tree and camera.
	maps   [2]*viz.Map
	family int
	blocks []subnet.Block

	// Data
	sets    []*database.PrefixSet
	setID   string
	setName string

	// UI state
	width       int
	height      int
	showSets    bool
	selectedSet int
	searchMode  bool
	searchQuery string
	promoteKey  string
	demoteKey   string

	// Status
	statusMsg string
	err       error
}

// NewModel creates the TUI model.
func NewModel(opts Options) (Model, error) {
	if !opts.TopV4.IsValid() {
		opts.TopV4 = viz.DefaultTopV4
	}
	if !opts.TopV6.IsValid() {
		opts.TopV6 = viz.DefaultTopV6
	}
	if opts.PromoteKey == "" {
		opts.PromoteKey = "e"
	}
	if opts.DemoteKey == "" {
		opts.DemoteKey = "q"
	}

	m := Model{
		store:      opts.Store,
		log:        opts.Log,
		setID:      opts.SetID,
		promoteKey: opts.PromoteKey,
		demoteKey:  opts.DemoteKey,
		statusMsg:  "Hover a block, enter to expand",
	}
	if opts.Store != nil {
		m.loader = ingestion.NewLoader(opts.Store, opts.Log)
	}

	for i, top := range []prefix.Prefix{opts.TopV4, opts.TopV6} {
		vm, err := viz.New(viz.Options{
			Top:       top,
			MaxExpand: opts.MaxExpand,
			MinLevel:  opts.MinLevel,
			Pipeline:  render.Labels(),
			Logger:    opts.Log,
		})
		if err != nil {
			return Model{}, fmt.Errorf("top %s: %w", top, err)
		}
		m.maps[i] = vm
	}
	m.blocks = m.active().Traverse()
	return m, nil
}

func (m Model) active() *viz.Map { return m.maps[m.family] }

// ────────────────────────────────────────────────────────────
// Messages
// ────────────────────────────────────────────────────────────

type setsLoadedMsg []*database.PrefixSet

type indexLoadedMsg struct {
	setID   string
	name    string
	indexes [2]*density.Index
}

type errMsg struct{ err error }

func (e errMsg) Error() string { return e.err.Error() }

// ────────────────────────────────────────────────────────────
// Init
// ────────────────────────────────────────────────────────────

func (m Model) Init() tea.Cmd {
	if m.store == nil {
		return nil
	}
	cmds := []tea.Cmd{m.loadSets()}
	if m.setID != "" {
		cmds = append(cmds, m.loadIndex(m.setID))
	}
	return tea.Batch(cmds...)
}

func (m Model) loadSets() tea.Cmd {
	return func() tea.Msg {
		sets, err := m.store.ListSets(database.SetFilter{Limit: 100})
		if err != nil {
			return errMsg{err}
		}
		return setsLoadedMsg(sets)
	}
}

func (m Model) loadIndex(setID string) tea.Cmd {
	return func() tea.Msg {
		set, err := m.store.GetSet(setID)
		if err != nil {
			return errMsg{fmt.Errorf("set %s: %w", setID, err)}
		}
		var msg indexLoadedMsg
		msg.setID, msg.name = set.ID, set.Name
		for i, fam := range []int{4, 6} {
			ix, err := m.loader.Index(context.Background(), setID, fam)
			if err != nil {
				return errMsg{err}
			}
			msg.indexes[i] = ix
		}
		return msg
	}
}

// ────────────────────────────────────────────────────────────
// Update
// ────────────────────────────────────────────────────────────

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		cols, rows := m.mapSize()
		for _, vm := range m.maps {
			vm.Bind(float64(cols), float64(rows*2))
		}
		m.refresh()
		m.hoverCenter()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		return m.handleMouse(msg)

	case setsLoadedMsg:
		m.sets = []*database.PrefixSet(msg)
		if len(m.sets) == 0 && m.setID == "" {
			m.statusMsg = "No datasets; import one with hilbertmap import"
		}
		return m, nil

	case indexLoadedMsg:
		m.setID, m.setName = msg.setID, msg.name
		for i, vm := range m.maps {
			vm.SetPipeline(render.Default(msg.indexes[i]))
		}
		m.refresh()
		m.hoverCenter()
		m.statusMsg = fmt.Sprintf("Coloring by %s (%d /24s, %d v6 prefixes)",
			msg.name, msg.indexes[famV4].Slash24s(), msg.indexes[famV6].Prefixes6())
		m.err = nil
		return m, nil

	case errMsg:
		m.err = msg.err
		m.statusMsg = fmt.Sprintf("Error: %v", msg.err)
		m.log.Error().Err(msg.err).Msg("tui error")
		return m, nil
	}

	return m, nil
}

// handleKey routes keyboard input based on current mode.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	// ── Global ──

	switch key {
	case "ctrl+c":
		return m, tea.Quit

	case "esc":
		m.searchMode = false
		m.searchQuery = ""
		m.showSets = false
		return m, nil
	}

	// ── Search mode ──

	if m.searchMode {
		switch key {
		case "enter":
			m.searchMode = false
			m.zoomTo(m.searchQuery)
			return m, nil
		case "backspace":
			if len(m.searchQuery) > 0 {
				_, size := utf8.DecodeLastRuneInString(m.searchQuery)
				m.searchQuery = m.searchQuery[:len(m.searchQuery)-size]
			}
			return m, nil
		default:
			if msg.Type == tea.KeyRunes {
				m.searchQuery += string(msg.Runes)
			}
			return m, nil
		}
	}

	// ── Set list mode ──

	if m.showSets {
		switch key {
		case "j", "down":
			if m.selectedSet < len(m.sets)-1 {
				m.selectedSet++
			}
		case "k", "up":
			if m.selectedSet > 0 {
				m.selectedSet--
			}
		case "enter":
			if m.selectedSet < len(m.sets) && m.loader != nil {
				m.showSets = false
				set := m.sets[m.selectedSet]
				m.statusMsg = "Loading " + set.Name + "..."
				return m, m.loadIndex(set.ID)
			}
		case "s":
			m.showSets = false
		}
		return m, nil
	}

	// ── Map ──

	cols, rows := m.mapSize()
	step := float64(max(cols/8, 1))
	vm := m.active()

	switch key {
	case "left", "h":
		vm.Camera().PanBy(step, 0)
	case "right", "l":
		vm.Camera().PanBy(-step, 0)
	case "up", "k":
		vm.Camera().PanBy(0, step)
	case "down", "j":
		vm.Camera().PanBy(0, -step)
	case "+", "=":
		vm.Camera().ZoomAt(zoomStep, float64(cols)/2, float64(rows))
	case "-", "_":
		vm.Camera().ZoomAt(1/zoomStep, float64(cols)/2, float64(rows))

	case "enter":
		if p, ok := vm.HoveredPrefix(); ok {
			if !vm.Expand(p) {
				m.statusMsg = fmt.Sprintf("%s cannot be split further", p)
			}
		}
	case "backspace":
		if p, ok := vm.HoveredPrefix(); ok {
			vm.CollapseParent(p)
		}

	case m.promoteKey:
		m.reportErr(vm.PromoteHovered(), "promote")
	case m.demoteKey:
		m.reportErr(vm.DemoteTop(), "demote")

	case "r":
		vm.ResetZoom()
	case "/":
		m.searchMode = true
		m.searchQuery = ""
		return m, nil
	case "a":
		n := vm.ExpandAll()
		m.statusMsg = fmt.Sprintf("Expanded %d blocks", n)
	case "c":
		vm.ClearAll()
		vm.ResetZoom()
		m.statusMsg = "Cleared"
	case "tab":
		m.family = 1 - m.family
		m.statusMsg = "Showing " + familyName(m.active().Top())
	case "s":
		if m.store == nil {
			m.statusMsg = "No database configured"
			return m, nil
		}
		m.showSets = true
		return m, m.loadSets()
	default:
		return m, nil
	}

	m.refresh()
	m.hoverCenter()
	return m, nil
}

// handleMouse maps pointer events onto the map pane.
func (m Model) handleMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	if m.showSets || m.searchMode {
		return m, nil
	}
	cols, rows := m.mapSize()
	col, row := msg.X, msg.Y-headerHeight
	if col < 0 || col >= cols || row < 0 || row >= rows {
		return m, nil
	}
	sx, sy := float64(col)+0.5, float64(row*2)+1
	vm := m.active()

	switch msg.Button {
	case tea.MouseButtonWheelUp:
		vm.Camera().ZoomAt(zoomStep, sx, sy)
	case tea.MouseButtonWheelDown:
		vm.Camera().ZoomAt(1/zoomStep, sx, sy)
	case tea.MouseButtonLeft:
		if msg.Action != tea.MouseActionPress {
			return m, nil
		}
		if b, ok := vm.LeafAt(m.blocks, sx, sy); ok {
			vm.Expand(b.Prefix)
		}
	case tea.MouseButtonRight:
		if msg.Action != tea.MouseActionPress {
			return m, nil
		}
		if b, ok := vm.LeafAt(m.blocks, sx, sy); ok {
			vm.CollapseParent(b.Prefix)
		}
	case tea.MouseButtonNone:
		if msg.Action != tea.MouseActionMotion {
			return m, nil
		}
	default:
		return m, nil
	}

	m.refresh()
	m.hoverAt(sx, sy)
	return m, nil
}

// ────────────────────────────────────────────────────────────
// Map state helpers
// ────────────────────────────────────────────────────────────

// refresh re-traverses the active map, applying queued directives.
func (m *Model) refresh() {
	m.blocks = m.active().Traverse()
}

func (m *Model) hoverAt(sx, sy float64) {
	vm := m.active()
	if b, ok := vm.LeafAt(m.blocks, sx, sy); ok {
		vm.Hover(b.Prefix)
	}
}

// hoverCenter hovers the leaf under the middle of the map pane.
func (m *Model) hoverCenter() {
	cols, rows := m.mapSize()
	if cols == 0 || rows == 0 {
		return
	}
	m.hoverAt(float64(cols)/2, float64(rows))
}

func (m *Model) zoomTo(target string) {
	if target == "" {
		return
	}
	family := m.family
	if p, err := prefix.Parse(target); err == nil && p.Width() != m.maps[family].Top().Width() {
		family = 1 - family
	}
	// The family only switches once the zoom has landed.
	vm := m.maps[family]
	if !vm.ZoomToPrefix(target) {
		m.statusMsg = fmt.Sprintf("Cannot zoom to %q inside %s", target, vm.Top())
		return
	}
	m.family = family
	m.statusMsg = "Zoomed to " + target
	m.refresh()
	m.hoverCenter()
}

func (m *Model) reportErr(err error, op string) {
	switch {
	case err == nil:
		m.statusMsg = "Top is now " + m.active().Top().String()
	case errors.Is(err, viz.ErrNoHover):
		m.statusMsg = "Hover a block first"
	default:
		m.statusMsg = fmt.Sprintf("Cannot %s: %v", op, err)
	}
}

// mapSize returns the map pane in cells.
func (m Model) mapSize() (cols, rows int) {
	cols = m.width
	if m.width >= minSplitWidth {
		cols = m.width - detailWidth
	}
	rows = m.height - headerHeight - footerHeight
	return max(cols, 0), max(rows, 0)
}

// ────────────────────────────────────────────────────────────
// View
// ────────────────────────────────────────────────────────────

func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	header := renderHeader(&m)
	footer := renderFooter(&m)

	var body string
	if m.showSets {
		body = renderSetList(&m)
	} else {
		body = m.renderMainLayout()
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}

// renderMainLayout puts the map beside the detail pane, or alone on narrow
// terminals.
func (m Model) renderMainLayout() string {
	cols, rows := m.mapSize()
	grid := renderMap(m.active(), m.blocks, cols, rows)
	if m.width < minSplitWidth {
		return grid
	}
	detail := renderDetailPanel(&m, detailWidth, rows)
	return lipgloss.JoinHorizontal(lipgloss.Top, grid, detail)
}
