package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/liman-notify/internal/keys"
	"github.com/nhle/liman-notify/internal/model"
	"github.com/nhle/liman-notify/internal/notify"
	appsync "github.com/nhle/liman-notify/internal/sync"
	"github.com/nhle/liman-notify/internal/ui"
	"github.com/nhle/liman-notify/internal/ui/command"
	"github.com/nhle/liman-notify/internal/ui/detail"
	helpview "github.com/nhle/liman-notify/internal/ui/help"
	"github.com/nhle/liman-notify/internal/ui/panel"
)

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewPanel ViewState = iota
	ViewDetail
	ViewHelp
	ViewCommand
)

// Model is the root Bubble Tea model that manages view routing and layout
// around the notification pipeline.
type Model struct {
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	keys         *keys.KeyMap
	panel        panel.Model
	detail       detail.Model
	helpView     helpview.Model
	commandView  command.Model
	bridge       *appsync.Bridge
	user         model.User
	ready        bool
	statusMsg    string
	endErr       error
	ended        bool
}

// New creates a new root application model.
func New(bridge *appsync.Bridge, user model.User) Model {
	k := keys.DefaultKeyMap()
	return Model{
		currentView: ViewPanel,
		keys:        k,
		panel:       panel.New(k, 80, 24),
		detail:      detail.New(k, 80, 24),
		helpView:    helpview.New(k, 80, 24),
		commandView: command.New(80, 24),
		bridge:      bridge,
		user:        user,
	}
}

// Init starts the notification pipeline.
func (m Model) Init() tea.Cmd {
	return m.bridge.Start()
}

// Ended reports whether the session ended and why.
func (m Model) Ended() (bool, error) {
	return m.ended, m.endErr
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		contentWidth := m.layout.ContentWidth()
		contentHeight := m.layout.ContentHeight()
		m.panel.SetSize(contentWidth, contentHeight)
		m.detail.SetSize(contentWidth, contentHeight)
		m.helpView.SetSize(contentWidth, contentHeight)
		m.commandView.SetSize(contentWidth, contentHeight)
		return m, nil

	case appsync.SnapshotMsg:
		cmd := m.panel.SetSnapshot(msg.Snapshot)
		if n, ok := m.detail.Notification(); ok && m.currentView == ViewDetail {
			for _, item := range msg.Snapshot.Items {
				if item.ID == n.ID {
					m.detail.SetNotification(item)
					break
				}
			}
		}
		return m, tea.Batch(cmd, m.bridge.WaitForNext())

	case appsync.SessionEndedMsg:
		m.ended = true
		m.endErr = msg.Err
		m.bridge.Stop()
		return m, tea.Quit

	case appsync.MarkAllReadResultMsg:
		// Failures are logged by the pipeline and not surfaced here.
		if msg.Err == nil {
			m.statusMsg = "all notifications marked read"
		}
		return m, nil

	case panel.SelectedMsg:
		m.previousView = m.currentView
		m.currentView = ViewDetail
		m.detail.SetNotification(msg.Notification)
		return m, nil

	case detail.BackMsg:
		m.currentView = ViewPanel
		return m, nil

	case command.CommandMsg:
		m.currentView = m.previousView
		return m, m.executeCommand(string(msg))

	case tea.KeyMsg:
		if m.panel.Searching() && m.currentView == ViewPanel {
			break
		}

		switch {
		case msg.String() == "ctrl+c":
			m.bridge.Stop()
			return m, tea.Quit

		case key.Matches(msg, m.keys.Quit):
			if m.currentView == ViewPanel {
				m.bridge.Stop()
				return m, tea.Quit
			}

		case key.Matches(msg, m.keys.Help):
			if m.currentView == ViewCommand {
				break
			}
			if m.currentView == ViewHelp {
				m.currentView = m.previousView
				return m, nil
			}
			m.previousView = m.currentView
			m.currentView = ViewHelp
			return m, nil

		case key.Matches(msg, m.keys.Command):
			if m.currentView == ViewCommand {
				m.currentView = m.previousView
				return m, nil
			}
			m.previousView = m.currentView
			m.currentView = ViewCommand
			return m, m.commandView.Focus()

		case key.Matches(msg, m.keys.MarkAllRead):
			if m.currentView == ViewPanel {
				m.statusMsg = ""
				return m, m.bridge.MarkAllRead()
			}

		case key.Matches(msg, m.keys.Logout):
			if m.currentView == ViewPanel {
				m.bridge.Logout()
				return m, nil
			}

		case key.Matches(msg, m.keys.Back):
			if m.currentView == ViewHelp || m.currentView == ViewCommand {
				m.currentView = m.previousView
				return m, nil
			}
		}
	}

	// Delegate to active sub-view
	return m.updateActiveView(msg)
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewPanel:
		m.panel, cmd = m.panel.Update(msg)
	case ViewDetail:
		m.detail, cmd = m.detail.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	case ViewCommand:
		m.commandView, cmd = m.commandView.Update(msg)
	}

	return m, cmd
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	snap := m.panel.Snapshot()
	header := m.layout.RenderHeader("Liman", m.summary(snap), snap.State.String())
	content := m.renderContent()
	statusBar := m.layout.RenderStatusBar(m.keyHints())

	return m.layout.RenderWithFrame(header, content, statusBar)
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewPanel:
		return m.panel.View()
	case ViewDetail:
		return m.detail.View()
	case ViewHelp:
		return m.helpView.View()
	case ViewCommand:
		return m.commandView.View()
	default:
		return ""
	}
}

// summary returns the header text between the title and the connection state.
func (m Model) summary(snap notify.Snapshot) string {
	var parts []string
	if name := m.user.Name; name != "" {
		parts = append(parts, name)
	}
	if snap.Unseen > 0 {
		parts = append(parts, fmt.Sprintf("%d new", snap.Unseen))
	}
	if len(snap.Items) > 0 {
		parts = append(parts, fmt.Sprintf("%d unread", len(snap.Items)))
	}
	return strings.Join(parts, " · ")
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	switch m.currentView {
	case ViewHelp:
		return "? close help | esc back"
	case ViewCommand:
		return ": close command | tab complete | enter execute | esc back"
	case ViewDetail:
		return "esc back | j/k scroll"
	default:
		if m.statusMsg != "" {
			return m.statusMsg
		}
		return "q quit | ? help | enter open | R mark all read | / search | tab level"
	}
}

// executeCommand runs a palette command by its canonical name.
func (m *Model) executeCommand(name string) tea.Cmd {
	switch name {
	case "read-all":
		m.statusMsg = ""
		return m.bridge.MarkAllRead()
	case "logout":
		m.bridge.Logout()
		return nil
	case "help":
		m.previousView = ViewPanel
		m.currentView = ViewHelp
		return nil
	case "quit":
		m.bridge.Stop()
		return tea.Quit
	default:
		m.statusMsg = fmt.Sprintf("unknown command: %s", name)
		return nil
	}
}

// EndedByUser reports whether the session ended because the user logged out.
func EndedByUser(err error) bool {
	return errors.Is(err, notify.ErrLoggedOut)
}
