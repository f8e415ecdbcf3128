package panel

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/liman-notify/internal/model"
	"github.com/nhle/liman-notify/internal/theme"
)

// NotificationItem wraps a model.Notification so it can be used in a bubbles/list.
type NotificationItem struct {
	Notification model.Notification

	// Pending is true while the seen acknowledgement is scheduled or in flight.
	Pending bool
}

// FilterValue returns the string used for fuzzy filtering.
func (i NotificationItem) FilterValue() string {
	return i.Notification.Title + " " + i.Notification.Content
}

// Title returns the notification title for the list.
func (i NotificationItem) Title() string { return i.Notification.Title }

// Description returns a short summary line for the list.
func (i NotificationItem) Description() string {
	parts := []string{
		string(i.Notification.Level),
		When(i.Notification),
	}
	return strings.Join(parts, " | ")
}

// ItemDelegate implements list.ItemDelegate for rendering notifications.
type ItemDelegate struct{}

// Height returns the number of lines each item takes.
func (d ItemDelegate) Height() int { return 1 }

// Spacing returns the number of blank lines between items.
func (d ItemDelegate) Spacing() int { return 0 }

// Update handles per-item messages (unused for now).
func (d ItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws a single list item line.
func (d ItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	ni, ok := item.(NotificationItem)
	if !ok {
		return
	}
	n := ni.Notification
	isSelected := index == m.Index()

	// Prefix: filled dot for unseen, hollow while the ack is pending
	prefix := " "
	switch {
	case n.SeenAt == nil && ni.Pending:
		prefix = theme.UnseenMarkerStyle.Render("○")
	case n.SeenAt == nil:
		prefix = theme.UnseenMarkerStyle.Render("●")
	}

	levelBadge := theme.LevelStyle(string(n.Level)).Render(levelLabel(n.Level))

	timeStr := lipgloss.NewStyle().
		Foreground(theme.ColorGray).
		Render(When(n))

	line := fmt.Sprintf("%s %s %s  %s", prefix, levelBadge, n.Title, timeStr)

	if n.SeenAt != nil {
		line = theme.DimmedStyle.Render(line)
	}

	if isSelected {
		line = theme.SelectedItemStyle.Render(line)
	} else {
		line = theme.ListItemStyle.Render(line)
	}

	fmt.Fprint(w, line)
}

// When returns the server's humanized send time, or a relative time
// computed locally when the server sent none.
func When(n model.Notification) string {
	if n.SentAtHumanized != "" {
		return n.SentAtHumanized
	}
	return relativeTime(n.SentAt)
}

// relativeTime returns a human-friendly relative time string.
func relativeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		mins := int(d.Minutes())
		if mins == 1 {
			return "1m ago"
		}
		return fmt.Sprintf("%dm ago", mins)
	case d < 24*time.Hour:
		hrs := int(d.Hours())
		if hrs == 1 {
			return "1h ago"
		}
		return fmt.Sprintf("%dh ago", hrs)
	case d < 7*24*time.Hour:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1d ago"
		}
		return fmt.Sprintf("%dd ago", days)
	default:
		weeks := int(d.Hours() / 24 / 7)
		if weeks == 1 {
			return "1w ago"
		}
		return fmt.Sprintf("%dw ago", weeks)
	}
}

// levelLabel returns a short badge for the given level.
func levelLabel(l model.Level) string {
	switch l {
	case model.LevelCritical:
		return "CRIT"
	case model.LevelError:
		return "ERR"
	case model.LevelWarning:
		return "WARN"
	case model.LevelSuccess:
		return "OK"
	case model.LevelTrivial:
		return "LOW"
	default:
		return "INFO"
	}
}
