package command

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/liman-notify/internal/theme"
)

// CommandMsg is emitted with the canonical name of an executed command.
type CommandMsg string

// Command is a palette entry.
type Command struct {
	Name    string
	Aliases []string
	Summary string
}

// Commands lists what the palette understands.
var Commands = []Command{
	{Name: "read-all", Aliases: []string{"read", "read all", "mark all read"}, Summary: "mark every notification read"},
	{Name: "logout", Aliases: []string{"log out"}, Summary: "end the session and forget the token"},
	{Name: "help", Summary: "show keyboard shortcuts"},
	{Name: "quit", Aliases: []string{"q", "exit"}, Summary: "leave the panel"},
}

// Resolve maps input to a command name. Unknown input is returned as is.
func Resolve(input string) string {
	in := strings.ToLower(strings.TrimSpace(input))
	for _, c := range Commands {
		if in == c.Name {
			return c.Name
		}
		for _, a := range c.Aliases {
			if in == a {
				return c.Name
			}
		}
	}
	return in
}

// Suggest returns the commands whose name starts with prefix.
func Suggest(prefix string) []Command {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	var out []Command
	for _, c := range Commands {
		if strings.HasPrefix(c.Name, prefix) {
			out = append(out, c)
		}
	}
	return out
}

// Model is the command palette view.
type Model struct {
	input  textinput.Model
	width  int
	height int
}

// New creates a new command palette model.
func New(width, height int) Model {
	ti := textinput.New()
	ti.Placeholder = "read-all, logout, help, quit"
	ti.Prompt = ": "
	ti.Focus()
	ti.Width = width - 6

	return Model{
		input:  ti,
		width:  width,
		height: height,
	}
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages for the command palette. Tab completes the
// input when exactly one command matches.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "enter":
			name := Resolve(m.input.Value())
			m.input.Reset()
			if name == "" {
				return m, nil
			}
			return m, func() tea.Msg { return CommandMsg(name) }

		case "tab":
			if s := Suggest(m.input.Value()); len(s) == 1 {
				m.input.SetValue(s[0].Name)
				m.input.CursorEnd()
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the palette with the matching commands below the input.
func (m Model) View() string {
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1).
		Render("Command Palette")

	lines := []string{title, m.input.View(), ""}
	for _, c := range Suggest(m.input.Value()) {
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top,
			lipgloss.NewStyle().Width(12).Foreground(theme.ColorBlue).Render(c.Name),
			theme.DimmedStyle.Render(c.Summary),
		))
	}

	return theme.DetailPanelStyle.
		Width(m.width - 4).
		Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// SetSize updates the command palette dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.input.Width = width - 6
}

// Focus gives keyboard focus to the text input.
func (m *Model) Focus() tea.Cmd {
	m.input.Reset()
	return m.input.Focus()
}
