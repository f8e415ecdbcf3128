package panel

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/liman-notify/internal/keys"
	"github.com/nhle/liman-notify/internal/model"
	"github.com/nhle/liman-notify/internal/notify"
)

func sample() notify.Snapshot {
	return notify.Snapshot{
		Loaded: true,
		Items: []model.Notification{
			{ID: "1", Title: "Disk full on web-01", Content: "/var at 97%", Level: model.LevelError},
			{ID: "2", Title: "Backup finished", Level: model.LevelSuccess},
			{ID: "3", Title: "Certificate expires soon", Content: "web-01 TLS", Level: model.LevelWarning},
		},
		Pending: map[string]bool{"2": true},
	}
}

func visibleIDs(m Model) []string {
	var out []string
	for _, n := range m.Visible() {
		out = append(out, n.ID)
	}
	return out
}

func TestVisible_LevelCycle(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 80, 24)
	m.SetSnapshot(sample())
	assert.Equal(t, []string{"1", "2", "3"}, visibleIDs(m))

	// "" -> critical -> error
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyTab})
	assert.Empty(t, visibleIDs(m))
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, []string{"1"}, visibleIDs(m))
}

func TestVisible_Search(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 80, 24)
	m.SetSnapshot(sample())

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("/")})
	require.True(t, m.Searching())

	for _, r := range "web-01" {
		m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	assert.False(t, m.Searching())
	assert.Equal(t, []string{"1", "3"}, visibleIDs(m))

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("/")})
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, []string{"1", "2", "3"}, visibleIDs(m))
}

func TestSelectEmitsNotification(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 80, 24)
	m.SetSnapshot(sample())

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	require.NotNil(t, cmd)
	msg, ok := cmd().(SelectedMsg)
	require.True(t, ok)
	assert.Equal(t, "1", msg.Notification.ID)
}

func TestRefreshMarksPending(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 80, 24)
	m.SetSnapshot(sample())

	items := m.list.Items()
	require.Len(t, items, 3)
	assert.False(t, items[0].(NotificationItem).Pending)
	assert.True(t, items[1].(NotificationItem).Pending)
}

func TestEmptyStates(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 80, 24)
	assert.Contains(t, m.View(), "Loading notifications")

	m.SetSnapshot(notify.Snapshot{Loaded: true})
	assert.Contains(t, m.View(), "No unread notifications")
}

func TestWhen(t *testing.T) {
	n := model.Notification{SentAtHumanized: "3 minutes ago"}
	assert.Equal(t, "3 minutes ago", When(n))

	n = model.Notification{SentAt: time.Now().Add(-2 * time.Hour)}
	assert.Equal(t, "2h ago", When(n))
}
