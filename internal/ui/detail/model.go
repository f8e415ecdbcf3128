package detail

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/liman-notify/internal/keys"
	"github.com/nhle/liman-notify/internal/model"
	"github.com/nhle/liman-notify/internal/theme"
	"github.com/nhle/liman-notify/internal/ui/panel"
)

// BackMsg signals the parent to navigate back to the panel.
type BackMsg struct{}

// Model is the notification detail view component.
type Model struct {
	notification *model.Notification
	viewport     viewport.Model
	keys         *keys.KeyMap
	width        int
	height       int
}

// New creates a new detail view model.
func New(keys *keys.KeyMap, width, height int) Model {
	vp := viewport.New(width, height-2)
	vp.Style = lipgloss.NewStyle()

	return Model{
		viewport: vp,
		keys:     keys,
		width:    width,
		height:   height,
	}
}

// Init returns the initial command for the detail view.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the detail view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && key.Matches(msg, m.keys.Back) {
		return m, func() tea.Msg {
			return BackMsg{}
		}
	}

	// Delegate to viewport for scrolling (j/k, up/down, pgup/pgdn)
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the detail view.
func (m Model) View() string {
	if m.notification == nil {
		emptyStyle := lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray)
		return emptyStyle.Render("No notification selected")
	}

	return m.viewport.View()
}

// renderContent builds the full detail content string for the viewport.
func (m Model) renderContent() string {
	if m.notification == nil {
		return ""
	}

	n := m.notification
	var sections []string

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)
	sections = append(sections, titleStyle.Render(n.Title))

	levelBadge := theme.LevelStyle(string(n.Level)).Render(strings.ToUpper(string(n.Level)))
	seen := lipgloss.NewStyle().Foreground(theme.ColorBlue).Render("unseen")
	if n.SeenAt != nil {
		seen = theme.DimmedStyle.Render("seen")
	}
	sections = append(sections, lipgloss.JoinHorizontal(lipgloss.Top, levelBadge, "  ", seen))
	sections = append(sections, "")

	metaStyle := lipgloss.NewStyle().Foreground(theme.ColorGray)
	valStyle := lipgloss.NewStyle().Foreground(theme.ColorWhite)

	if !n.SentAt.IsZero() {
		sent := n.SentAt.Local().Format("2006-01-02 15:04")
		if when := panel.When(*n); when != "" {
			sent += " (" + when + ")"
		}
		sections = append(sections, fmt.Sprintf(
			"%s  %s",
			metaStyle.Render("Sent:"),
			valStyle.Render(sent),
		))
	}
	if n.SeenAt != nil {
		sections = append(sections, fmt.Sprintf(
			"%s  %s",
			metaStyle.Render("Seen:"),
			valStyle.Render(n.SeenAt.Local().Format("2006-01-02 15:04")),
		))
	}
	if n.ID != "" {
		sections = append(sections, fmt.Sprintf(
			"%s    %s",
			metaStyle.Render("ID:"),
			valStyle.Render(n.ID),
		))
	}

	sepStyle := lipgloss.NewStyle().Foreground(theme.ColorSubtle)
	separator := sepStyle.Render(strings.Repeat("─", max(0, min(m.width-4, 80))))
	sections = append(sections, "", separator, "")

	body := n.Content
	if body == "" {
		body = lipgloss.NewStyle().
			Foreground(theme.ColorGray).
			Italic(true).
			Render("No content")
	} else {
		body = lipgloss.NewStyle().Width(max(20, m.width-4)).Render(body)
	}
	sections = append(sections, body)

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// SetNotification updates the notification being displayed.
func (m *Model) SetNotification(n model.Notification) {
	m.notification = &n
	m.viewport.SetContent(m.renderContent())
	m.viewport.GotoTop()
}

// Notification returns the displayed notification.
func (m Model) Notification() (model.Notification, bool) {
	if m.notification == nil {
		return model.Notification{}, false
	}
	return *m.notification, true
}

// SetSize updates the detail view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = height - 2
	if m.notification != nil {
		m.viewport.SetContent(m.renderContent())
	}
}
