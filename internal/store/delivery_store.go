package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/liman-notify/internal/model"
)

// RecordDelivery appends a journal row for a received notification.
func (s *SQLiteStore) RecordDelivery(ctx context.Context, n model.Notification, source model.Source) error {
	if strings.TrimSpace(n.ID) == "" {
		return fmt.Errorf("notification id must not be empty")
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO deliveries (id, notification_id, title, level, source, received_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), n.ID, n.Title, string(n.Level), string(source), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording delivery of %s: %w", n.ID, err)
	}
	return nil
}

// RecordAck appends the outcome of an acknowledgement attempt.
func (s *SQLiteStore) RecordAck(ctx context.Context, notificationID string, ackErr error) error {
	status, message := model.AckStatusOK, ""
	if ackErr != nil {
		status, message = model.AckStatusFailed, ackErr.Error()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO acks (id, notification_id, status, error, acked_at)
		 VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), notificationID, status, message, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording ack of %s: %w", notificationID, err)
	}
	return nil
}

// RecentDeliveries returns up to limit deliveries, newest first, each with
// the latest acknowledgement outcome for its notification.
func (s *SQLiteStore) RecentDeliveries(ctx context.Context, limit int) ([]model.Delivery, error) {
	if limit <= 0 {
		limit = 50
	}

	const query = `
		SELECT
			d.id, d.notification_id, d.title, d.level, d.source, d.received_at,
			COALESCE((SELECT a.status FROM acks a
				WHERE a.notification_id = d.notification_id
				ORDER BY a.acked_at DESC LIMIT 1), '') AS ack_status,
			COALESCE((SELECT a.error FROM acks a
				WHERE a.notification_id = d.notification_id
				ORDER BY a.acked_at DESC LIMIT 1), '') AS ack_error
		FROM deliveries d
		ORDER BY d.received_at DESC, d.rowid DESC
		LIMIT ?`

	var deliveries []model.Delivery
	if err := s.db.SelectContext(ctx, &deliveries, query, limit); err != nil {
		return nil, fmt.Errorf("querying deliveries: %w", err)
	}
	return deliveries, nil
}

// Prune removes journal rows older than olderThan and returns how many
// rows were deleted.
func (s *SQLiteStore) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	cutoff := olderThan.UTC()
	var total int64
	for _, q := range []string{
		"DELETE FROM deliveries WHERE received_at < ?",
		"DELETE FROM acks WHERE acked_at < ?",
	} {
		result, err := tx.ExecContext(ctx, q, cutoff)
		if err != nil {
			return 0, fmt.Errorf("pruning journal: %w", err)
		}
		rows, _ := result.RowsAffected()
		total += rows
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing prune: %w", err)
	}
	return total, nil
}
