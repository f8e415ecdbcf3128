package panel

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/liman-notify/internal/keys"
	"github.com/nhle/liman-notify/internal/model"
	"github.com/nhle/liman-notify/internal/notify"
	"github.com/nhle/liman-notify/internal/theme"
)

// SelectedMsg is sent when a user selects a notification to view details.
type SelectedMsg struct {
	Notification model.Notification
}

// levelFilters defines the level filters cycled by Tab. Empty shows all.
var levelFilters = []model.Level{
	"",
	model.LevelCritical,
	model.LevelError,
	model.LevelWarning,
	model.LevelSuccess,
	model.LevelInfo,
	model.LevelTrivial,
}

// Model is the notification panel.
type Model struct {
	list        list.Model
	keys        *keys.KeyMap
	snapshot    notify.Snapshot
	levelIndex  int
	query       string
	searchMode  bool
	searchInput textinput.Model
	width       int
	height      int
}

// New creates a new panel model.
func New(k *keys.KeyMap, width, height int) Model {
	l := list.New([]list.Item{}, ItemDelegate{}, width, height-2)
	l.Title = "Notifications"
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = theme.HeaderStyle

	si := textinput.New()
	si.Placeholder = "search notifications..."
	si.Prompt = "/ "
	si.Width = width - 4

	return Model{
		list:        l,
		keys:        k,
		searchInput: si,
		width:       width,
		height:      height,
	}
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return nil
}

// SetSnapshot replaces the displayed notifications.
func (m *Model) SetSnapshot(s notify.Snapshot) tea.Cmd {
	m.snapshot = s
	return m.refresh()
}

// Snapshot returns the last snapshot applied.
func (m Model) Snapshot() notify.Snapshot {
	return m.snapshot
}

// Visible returns the notifications that pass the current filters.
func (m Model) Visible() []model.Notification {
	level := levelFilters[m.levelIndex]
	query := strings.ToLower(m.query)

	var out []model.Notification
	for _, n := range m.snapshot.Items {
		if level != "" && n.Level != level {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(n.Title), query) &&
			!strings.Contains(strings.ToLower(n.Content), query) {
			continue
		}
		out = append(out, n)
	}
	return out
}

func (m *Model) refresh() tea.Cmd {
	visible := m.Visible()
	items := make([]list.Item, len(visible))
	for i, n := range visible {
		items[i] = NotificationItem{Notification: n, Pending: m.snapshot.Pending[n.ID]}
	}

	m.list.Title = "Notifications"
	if level := levelFilters[m.levelIndex]; level != "" {
		m.list.Title += " · " + string(level)
	}
	return m.list.SetItems(items)
}

// Searching reports whether the search input has focus.
func (m Model) Searching() bool {
	return m.searchMode
}

// Update handles messages for the panel.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		if m.searchMode {
			return m.handleSearchKeys(msg)
		}
		return m.handleNormalKeys(msg)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// handleSearchKeys processes key input while in search mode.
func (m Model) handleSearchKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.searchMode = false
		m.query = strings.TrimSpace(m.searchInput.Value())
		return m, m.refresh()

	case "esc":
		m.searchMode = false
		m.searchInput.Reset()
		m.query = ""
		return m, m.refresh()
	}

	var cmd tea.Cmd
	m.searchInput, cmd = m.searchInput.Update(msg)
	return m, cmd
}

// handleNormalKeys processes key input in normal (non-search) mode.
func (m Model) handleNormalKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Select):
		item, ok := m.list.SelectedItem().(NotificationItem)
		if !ok {
			return m, nil
		}
		return m, func() tea.Msg {
			return SelectedMsg{Notification: item.Notification}
		}

	case key.Matches(msg, m.keys.Search):
		m.searchMode = true
		m.searchInput.Reset()
		return m, m.searchInput.Focus()

	case key.Matches(msg, m.keys.CycleLevel):
		m.levelIndex = (m.levelIndex + 1) % len(levelFilters)
		return m, m.refresh()
	}

	// Delegate to the list for navigation keys (up/down/pgup/pgdn)
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the panel.
func (m Model) View() string {
	if m.searchMode {
		searchBar := lipgloss.NewStyle().
			Foreground(theme.ColorWhite).
			Padding(0, 1).
			Render(m.searchInput.View())
		return lipgloss.JoinVertical(lipgloss.Left, searchBar, m.list.View())
	}

	if len(m.list.Items()) == 0 {
		return m.renderEmptyState()
	}

	return m.list.View()
}

// renderEmptyState shows guidance text when nothing is unread.
func (m Model) renderEmptyState() string {
	style := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray)

	switch {
	case !m.snapshot.Loaded:
		return style.Render("Loading notifications...")
	case m.query != "" || levelFilters[m.levelIndex] != "":
		return style.Render("No matching notifications.\nTry adjusting your filters.")
	default:
		return style.Render("No unread notifications.")
	}
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height-2)
	m.searchInput.Width = width - 4
}
