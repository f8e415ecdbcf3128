package store

import (
	"context"
	"time"

	"github.com/nhle/liman-notify/internal/model"
)

// Journal defines the persistence interface for the local delivery journal.
// The journal is an audit trail only; the unread list always comes from the
// server.
type Journal interface {
	RecordDelivery(ctx context.Context, n model.Notification, source model.Source) error
	RecordAck(ctx context.Context, notificationID string, ackErr error) error
	RecentDeliveries(ctx context.Context, limit int) ([]model.Delivery, error)
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
	Close() error
}
