package notify

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nhle/liman-notify/internal/model"
	"github.com/nhle/liman-notify/internal/pusher"
)

// --- transport ---

type fakeSub struct {
	mu     sync.Mutex
	events chan pusher.Event
	closed bool
	err    error
}

func newFakeSub() *fakeSub {
	return &fakeSub{events: make(chan pusher.Event, 16)}
}

func (s *fakeSub) Events() <-chan pusher.Event { return s.events }

func (s *fakeSub) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fakeSub) Close() error {
	s.end(pusher.ErrClosed)
	return nil
}

func (s *fakeSub) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// end terminates the event stream as the server would.
func (s *fakeSub) end(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	close(s.events)
}

func (s *fakeSub) send(name string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.events <- pusher.Event{Name: name, Data: data}
}

func (s *fakeSub) push(t *testing.T, n model.Notification) {
	t.Helper()
	data, err := json.Marshal(map[string]any{
		"notification_id": n.ID,
		"title":           n.Title,
		"content":         n.Content,
		"level":           n.Level,
	})
	require.NoError(t, err)
	s.send(NotificationEvent, data)
}

type fakeTransport struct {
	mu       sync.Mutex
	channels []string
	err      error
	block    bool
	sub      *fakeSub

	subscribed chan *fakeSub
	called     chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		subscribed: make(chan *fakeSub, 4),
		called:     make(chan struct{}, 4),
	}
}

func (f *fakeTransport) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	f.mu.Lock()
	f.channels = append(f.channels, channel)
	err, block := f.err, f.block
	f.mu.Unlock()
	f.called <- struct{}{}

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}

	sub := newFakeSub()
	f.mu.Lock()
	f.sub = sub
	f.mu.Unlock()
	f.subscribed <- sub
	return sub, nil
}

func (f *fakeTransport) Channels() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.channels...)
}

func waitSub(t *testing.T, f *fakeTransport) *fakeSub {
	t.Helper()
	select {
	case sub := <-f.subscribed:
		return sub
	case <-time.After(2 * time.Second):
		t.Fatal("no subscription")
		return nil
	}
}

// --- api ---

type mockAPI struct{ mock.Mock }

func (m *mockAPI) UnreadNotifications(ctx context.Context) ([]model.Notification, error) {
	args := m.Called(ctx)
	list, _ := args.Get(0).([]model.Notification)
	return list, args.Error(1)
}

func (m *mockAPI) MarkSeen(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockAPI) MarkAllRead(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// --- alerter ---

type recordingAlerter struct {
	mu        sync.Mutex
	notified  []string
	announced []string
}

func (a *recordingAlerter) Notify(n model.Notification) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.notified = append(a.notified, n.ID)
}

func (a *recordingAlerter) Announce(n model.Notification) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.announced = append(a.announced, n.ID)
}

func (a *recordingAlerter) Notified() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.notified...)
}

func (a *recordingAlerter) Announced() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.announced...)
}

// --- journal ---

type delivery struct {
	id     string
	source model.Source
}

type recordingJournal struct {
	mu         sync.Mutex
	deliveries []delivery
	acks       map[string]error
}

func newRecordingJournal() *recordingJournal {
	return &recordingJournal{acks: make(map[string]error)}
}

func (j *recordingJournal) RecordDelivery(_ context.Context, n model.Notification, source model.Source) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.deliveries = append(j.deliveries, delivery{id: n.ID, source: source})
	return nil
}

func (j *recordingJournal) RecordAck(_ context.Context, id string, ackErr error) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.acks[id] = ackErr
	return nil
}

func (j *recordingJournal) Deliveries() []delivery {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]delivery(nil), j.deliveries...)
}

func (j *recordingJournal) Acked(id string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	_, ok := j.acks[id]
	return ok
}
