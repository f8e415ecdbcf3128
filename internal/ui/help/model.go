package help

import (
	"github.com/charmbracelet/bubbles/help"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/liman-notify/internal/keys"
	"github.com/nhle/liman-notify/internal/theme"
	"github.com/nhle/liman-notify/internal/ui/command"
)

// Model is the help overlay: key bindings, list markers and palette commands.
type Model struct {
	keys   *keys.KeyMap
	help   help.Model
	width  int
	height int
}

// New creates a new help view model.
func New(keys *keys.KeyMap, width, height int) Model {
	h := help.New()
	h.Width = width
	h.ShowAll = true
	return Model{
		keys:   keys,
		help:   h,
		width:  width,
		height: height,
	}
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the help view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	return m, nil
}

// View renders the help overlay.
func (m Model) View() string {
	section := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginTop(1)

	m.help.Width = m.width - 4

	markers := lipgloss.JoinVertical(lipgloss.Left,
		theme.UnseenMarkerStyle.Render("●")+"  new, not yet acknowledged",
		theme.DimmedStyle.Render("○")+"  acknowledgement pending",
		"   seen on the server, still unread",
	)

	commands := make([]string, 0, len(command.Commands))
	for _, c := range command.Commands {
		commands = append(commands, lipgloss.JoinHorizontal(lipgloss.Top,
			lipgloss.NewStyle().Width(12).Foreground(theme.ColorBlue).Render(":"+c.Name),
			theme.DimmedStyle.Render(c.Summary),
		))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		section.UnsetMarginTop().Render("Keyboard Shortcuts"),
		m.help.View(m.keys),
		section.Render("Markers"),
		markers,
		section.Render("Commands"),
		lipgloss.JoinVertical(lipgloss.Left, commands...),
	)

	return theme.DetailPanelStyle.
		Width(m.width - 4).
		Height(m.height - 4).
		Render(content)
}

// SetSize updates the help view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.help.Width = width - 4
}
