package notify

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/nhle/liman-notify/internal/logging"
	"github.com/nhle/liman-notify/internal/model"
)

// DefaultSeenDelay is how long a notification stays on screen before it is
// acknowledged.
const DefaultSeenDelay = time.Second

// Acknowledger tells the server a notification was observed.
type Acknowledger interface {
	MarkSeen(ctx context.Context, notificationID string) error
}

// SeenChecker reports whether an id still needs an acknowledgement.
type SeenChecker interface {
	IsUnseen(id string) bool
}

// SeenOptions configures a SeenMarker.
type SeenOptions struct {
	// Delay is the debounce before acknowledging. Zero means DefaultSeenDelay;
	// use a negative value to acknowledge immediately.
	Delay time.Duration

	// RatePerSec and Burst pace the acknowledgement calls.
	RatePerSec float64
	Burst      int

	// Timeout bounds each acknowledgement call.
	Timeout time.Duration

	// Checker, when set, is consulted at fire time.
	Checker SeenChecker

	// OnResult is called once per acknowledgement attempt.
	OnResult func(id string, err error)

	Logger logrus.FieldLogger
}

// SeenMarker acknowledges notifications after a debounce. Every id is
// acknowledged at most once per marker, whatever the outcome; failures
// are not retried.
type SeenMarker struct {
	ack      Acknowledger
	delay    time.Duration
	limiter  *rate.Limiter
	timeout  time.Duration
	checker  SeenChecker
	onResult func(id string, err error)
	log      *logrus.Entry

	mu      sync.Mutex
	claimed map[string]struct{}
	pending map[string]struct{}
}

// NewSeenMarker creates a marker that acknowledges through ack.
func NewSeenMarker(ack Acknowledger, opts SeenOptions) *SeenMarker {
	delay := opts.Delay
	if delay == 0 {
		delay = DefaultSeenDelay
	}
	if delay < 0 {
		delay = 0
	}

	limit := rate.Inf
	if opts.RatePerSec > 0 {
		limit = rate.Limit(opts.RatePerSec)
	}
	burst := opts.Burst
	if burst < 1 {
		burst = 1
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &SeenMarker{
		ack:      ack,
		delay:    delay,
		limiter:  rate.NewLimiter(limit, burst),
		timeout:  timeout,
		checker:  opts.Checker,
		onResult: opts.OnResult,
		log:      logging.Component(opts.Logger, "seen"),
		claimed:  make(map[string]struct{}),
		pending:  make(map[string]struct{}),
	}
}

// Schedule arranges an acknowledgement for every unseen notification in
// list that has not been scheduled before. It returns how many ids were
// newly scheduled and never blocks.
func (m *SeenMarker) Schedule(list []model.Notification) int {
	m.mu.Lock()
	var ids []string
	for _, n := range list {
		if n.SeenAt != nil || n.ID == "" {
			continue
		}
		if _, done := m.claimed[n.ID]; done {
			continue
		}
		m.claimed[n.ID] = struct{}{}
		m.pending[n.ID] = struct{}{}
		ids = append(ids, n.ID)
	}
	m.mu.Unlock()

	if len(ids) == 0 {
		return 0
	}

	time.AfterFunc(m.delay, func() { m.fire(ids) })
	return len(ids)
}

// Pending reports whether an acknowledgement for id is scheduled or in flight.
func (m *SeenMarker) Pending(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pending[id]
	return ok
}

// PendingIDs returns the ids whose acknowledgement has not resolved yet.
func (m *SeenMarker) PendingIDs() map[string]bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]bool, len(m.pending))
	for id := range m.pending {
		out[id] = true
	}
	return out
}

func (m *SeenMarker) fire(ids []string) {
	for _, id := range ids {
		if m.checker != nil && !m.checker.IsUnseen(id) {
			m.resolve(id)
			m.log.WithField("notification_id", id).Debug("skipping acknowledgement, no longer unseen")
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		err := m.limiter.Wait(ctx)
		if err == nil {
			err = m.ack.MarkSeen(ctx, id)
		}
		cancel()

		m.resolve(id)
		if err != nil {
			m.log.WithError(err).WithField("notification_id", id).Warn("acknowledgement failed")
		} else {
			m.log.WithField("notification_id", id).Debug("acknowledged")
		}
		if m.onResult != nil {
			m.onResult(id, err)
		}
	}
}

func (m *SeenMarker) resolve(id string) {
	m.mu.Lock()
	delete(m.pending, id)
	m.mu.Unlock()
}
