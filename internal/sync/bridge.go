package sync

import (
	"context"
	gosync "sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/nhle/liman-notify/internal/logging"
	"github.com/nhle/liman-notify/internal/notify"
)

// SnapshotMsg is a tea.Msg carrying the latest notification state.
type SnapshotMsg struct {
	Snapshot notify.Snapshot
}

// SessionEndedMsg is a tea.Msg sent when the notification pipeline stops.
type SessionEndedMsg struct {
	Err error
}

// MarkAllReadResultMsg is a tea.Msg sent when a mark-all-read call returns.
type MarkAllReadResultMsg struct {
	Err error
}

// Runner is the notification pipeline driven by the bridge.
type Runner interface {
	Run(ctx context.Context) error
	Updates() <-chan notify.Snapshot
	MarkAllRead(ctx context.Context) error
}

// Pruner trims old journal rows.
type Pruner interface {
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
}

// requestTimeout bounds user-triggered REST calls.
const requestTimeout = 30 * time.Second

// pruneInterval is how often the journal is trimmed while running.
const pruneInterval = time.Hour

// Options configures a Bridge.
type Options struct {
	// Pruner and Retention enable periodic journal trimming.
	Pruner    Pruner
	Retention time.Duration

	// Logout ends the session on user request.
	Logout func()

	Logger logrus.FieldLogger
}

// Bridge runs a Runner in the background and turns its updates into
// Bubble Tea messages.
type Bridge struct {
	runner    Runner
	pruner    Pruner
	retention time.Duration
	logout    func()
	log       *logrus.Entry

	endedCh chan SessionEndedMsg
	stopCh  chan struct{}
	cancel  context.CancelFunc
	mu      gosync.Mutex
	running bool
	stopped bool
}

// New creates a bridge for r.
func New(r Runner, opts Options) *Bridge {
	return &Bridge{
		runner:    r,
		pruner:    opts.Pruner,
		retention: opts.Retention,
		logout:    opts.Logout,
		log:       logging.Component(opts.Logger, "bridge"),
		endedCh:   make(chan SessionEndedMsg, 1),
		stopCh:    make(chan struct{}),
	}
}

// Start returns a tea.Cmd that starts the pipeline and waits for its first
// message.
func (b *Bridge) Start() tea.Cmd {
	b.mu.Lock()
	if b.running || b.stopped {
		b.mu.Unlock()
		return nil
	}
	b.running = true
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.mu.Unlock()

	go func() {
		err := b.runner.Run(ctx)
		b.endedCh <- SessionEndedMsg{Err: err}
	}()

	if b.pruner != nil && b.retention > 0 {
		go b.pruneLoop(ctx)
	}

	return b.WaitForNext()
}

// Stop cancels the pipeline. It is safe to call more than once.
func (b *Bridge) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return
	}
	b.stopped = true
	close(b.stopCh)
	if b.cancel != nil {
		b.cancel()
	}
}

// Logout ends the session; the pipeline then stops with notify.ErrLoggedOut.
func (b *Bridge) Logout() {
	if b.logout != nil {
		b.logout()
	}
}

// MarkAllRead returns a tea.Cmd that marks everything read server-side.
func (b *Bridge) MarkAllRead() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return MarkAllReadResultMsg{Err: b.runner.MarkAllRead(ctx)}
	}
}

// WaitForNext returns a tea.Cmd that waits for the next snapshot or the
// end of the pipeline. It should be called again after every SnapshotMsg.
func (b *Bridge) WaitForNext() tea.Cmd {
	updates := b.runner.Updates()
	return func() tea.Msg {
		select {
		case snap := <-updates:
			return SnapshotMsg{Snapshot: snap}
		case ended := <-b.endedCh:
			return ended
		case <-b.stopCh:
			return nil
		}
	}
}

// pruneLoop trims the journal at start and then every pruneInterval.
func (b *Bridge) pruneLoop(ctx context.Context) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		b.prune(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (b *Bridge) prune(ctx context.Context) {
	n, err := b.pruner.Prune(ctx, time.Now().Add(-b.retention))
	if err != nil {
		b.log.WithError(err).Warn("pruning journal")
		return
	}
	if n > 0 {
		b.log.WithField("rows", n).Debug("journal pruned")
	}
}
