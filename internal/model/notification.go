package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Level is the severity of a notification as reported by the server.
type Level string

const (
	LevelTrivial  Level = "trivial"
	LevelInfo     Level = "info"
	LevelSuccess  Level = "success"
	LevelWarning  Level = "warning"
	LevelError    Level = "error"
	LevelCritical Level = "critical"
)

// Urgent reports whether the level should interrupt the user.
func (l Level) Urgent() bool {
	return l == LevelError || l == LevelCritical
}

// Notification is a single entry of the user's notification feed.
type Notification struct {
	// ID is the server-side notification identifier.
	ID string `json:"notification_id"`

	// Title and Content are the display text.
	Title   string `json:"title"`
	Content string `json:"content"`

	// Level drives badge styling and desktop urgency.
	Level Level `json:"level"`

	// SentAt is when the server emitted the notification.
	SentAt time.Time `json:"send_at"`

	// SentAtHumanized is the relative time string computed by the server
	// (e.g. "3 minutes ago").
	SentAtHumanized string `json:"send_at_humanized"`

	// SeenAt is nil until the server has recorded an acknowledgement.
	SeenAt *time.Time `json:"seen_at"`

	// Unparsed holds timestamps the decoder could not read, keyed by their
	// JSON field. An unreadable seen_at still counts as seen.
	Unparsed map[string]string `json:"-"`
}

// Seen reports whether the server has recorded this notification as seen.
func (n Notification) Seen() bool {
	return n.SeenAt != nil
}

// wireNotification mirrors the JSON shape. Timestamps are decoded leniently
// because the server emits both RFC 3339 and "2006-01-02 15:04:05".
type wireNotification struct {
	NotificationID  json.RawMessage `json:"notification_id"`
	ID              json.RawMessage `json:"id"`
	Title           string          `json:"title"`
	Content         string          `json:"content"`
	Level           Level           `json:"level"`
	SendAt          string          `json:"send_at"`
	SendAtHumanized string          `json:"send_at_humanized"`
	SeenAt          *string         `json:"seen_at"`
}

// UnmarshalJSON accepts either notification_id or id as the identifier,
// string or numeric.
func (n *Notification) UnmarshalJSON(data []byte) error {
	var w wireNotification
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	id := rawID(w.NotificationID)
	if id == "" {
		id = rawID(w.ID)
	}

	*n = Notification{
		ID:              id,
		Title:           w.Title,
		Content:         w.Content,
		Level:           w.Level,
		SentAtHumanized: w.SendAtHumanized,
	}

	if w.SendAt != "" {
		if t, err := ParseTimestamp(w.SendAt); err == nil {
			n.SentAt = t
		} else {
			n.unparsed("send_at", w.SendAt)
		}
	}

	if w.SeenAt != nil && *w.SeenAt != "" {
		t, err := ParseTimestamp(*w.SeenAt)
		if err != nil {
			n.unparsed("seen_at", *w.SeenAt)
			t = time.Time{}
		}
		n.SeenAt = &t
	}

	return nil
}

func (n *Notification) unparsed(field, raw string) {
	if n.Unparsed == nil {
		n.Unparsed = make(map[string]string)
	}
	n.Unparsed[field] = raw
}

// rawID renders a JSON string or number as a plain string.
func rawID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses the timestamp formats produced by the Liman API.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
