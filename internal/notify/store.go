package notify

import (
	"sync"
	"time"

	"github.com/nhle/liman-notify/internal/model"
)

// UnreadStore is the ordered, in-memory list of unread notifications,
// most recent first. Items with a non-empty id are unique.
type UnreadStore struct {
	mu    sync.RWMutex
	items []model.Notification
	ids   map[string]struct{}
}

// NewUnreadStore returns an empty store.
func NewUnreadStore() *UnreadStore {
	return &UnreadStore{ids: make(map[string]struct{})}
}

// Load replaces the contents with list, keeping the first occurrence of
// each id. It returns the number of duplicates dropped.
func (s *UnreadStore) Load(list []model.Notification) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make([]model.Notification, 0, len(list))
	s.ids = make(map[string]struct{}, len(list))

	dropped := 0
	for _, n := range list {
		if n.ID != "" {
			if _, dup := s.ids[n.ID]; dup {
				dropped++
				continue
			}
			s.ids[n.ID] = struct{}{}
		}
		s.items = append(s.items, n)
	}
	return dropped
}

// Prepend inserts n at the front. It reports false, leaving the store
// unchanged, when n's id is already present.
func (s *UnreadStore) Prepend(n model.Notification) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.ID != "" {
		if _, dup := s.ids[n.ID]; dup {
			return false
		}
		s.ids[n.ID] = struct{}{}
	}

	s.items = append(s.items, model.Notification{})
	copy(s.items[1:], s.items)
	s.items[0] = n
	return true
}

// CountUnseen returns how many items have no SeenAt.
func (s *UnreadStore) CountUnseen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, n := range s.items {
		if n.SeenAt == nil {
			count++
		}
	}
	return count
}

// Clear empties the store.
func (s *UnreadStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = nil
	s.ids = make(map[string]struct{})
}

// Items returns a copy of the contents.
func (s *UnreadStore) Items() []model.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Notification, len(s.items))
	copy(out, s.items)
	return out
}

// Len returns the number of items.
func (s *UnreadStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Get returns the item with the given id.
func (s *UnreadStore) Get(id string) (model.Notification, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, n := range s.items {
		if n.ID == id {
			return n, true
		}
	}
	return model.Notification{}, false
}

// IsUnseen reports whether id is present and not yet seen.
func (s *UnreadStore) IsUnseen(id string) bool {
	n, ok := s.Get(id)
	return ok && n.SeenAt == nil
}

// MarkSeen records the server-confirmed seen time of id. SeenAt is set at
// most once; it reports whether the item changed.
func (s *UnreadStore) MarkSeen(id string, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.items {
		if s.items[i].ID != id {
			continue
		}
		if s.items[i].SeenAt != nil {
			return false
		}
		seen := at
		s.items[i].SeenAt = &seen
		return true
	}
	return false
}
