package model

import "time"

// Source tells how a notification reached the client.
type Source string

const (
	SourceFetch Source = "fetch"
	SourcePush  Source = "push"
)

// Acknowledgement outcomes recorded in the journal.
const (
	AckStatusOK     = "ok"
	AckStatusFailed = "failed"
)

// Delivery is a journal row: one notification received by the client,
// joined with the latest acknowledgement attempt for it.
type Delivery struct {
	ID             string    `db:"id"`
	NotificationID string    `db:"notification_id"`
	Title          string    `db:"title"`
	Level          Level     `db:"level"`
	Source         Source    `db:"source"`
	ReceivedAt     time.Time `db:"received_at"`

	// AckStatus is empty when no acknowledgement was attempted.
	AckStatus string `db:"ack_status"`
	AckError  string `db:"ack_error"`
}
