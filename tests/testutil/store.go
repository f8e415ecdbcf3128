package testutil

import (
	"context"
	"testing"

	"github.com/nhle/liman-notify/internal/model"
	"github.com/nhle/liman-notify/internal/store"
)

// NewTestJournal creates an in-memory journal with all migrations applied.
// It is closed when the test completes.
func NewTestJournal(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("creating test journal: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test journal: %v", err)
		}
	})

	return s
}

// RecordPushes journals one push delivery per id, in order.
func RecordPushes(t *testing.T, j store.Journal, ids ...string) {
	t.Helper()

	for _, id := range ids {
		n := model.Notification{ID: id, Title: "notification " + id, Level: model.LevelInfo}
		if err := j.RecordDelivery(context.Background(), n, model.SourcePush); err != nil {
			t.Fatalf("recording delivery %s: %v", id, err)
		}
	}
}
