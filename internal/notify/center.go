package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nhle/liman-notify/internal/liman"
	"github.com/nhle/liman-notify/internal/logging"
	"github.com/nhle/liman-notify/internal/model"
)

// API is the part of the Liman REST API the Center needs.
type API interface {
	Acknowledger
	UnreadNotifications(ctx context.Context) ([]model.Notification, error)
	MarkAllRead(ctx context.Context) error
}

// Alerter raises user-facing alerts. Implementations must not block.
type Alerter interface {
	// Notify shows a silent desktop notification.
	Notify(n model.Notification)
	// Announce plays the sound and shows a desktop notification.
	Announce(n model.Notification)
}

// Journal records deliveries and acknowledgements for later inspection.
type Journal interface {
	RecordDelivery(ctx context.Context, n model.Notification, source model.Source) error
	RecordAck(ctx context.Context, notificationID string, ackErr error) error
}

// Snapshot is a point-in-time view for presentation.
type Snapshot struct {
	Items   []model.Notification
	Unseen  int
	Pending map[string]bool
	State   State
	Loaded  bool
	LoadErr error
}

// Options configures a Center.
type Options struct {
	Session   *Session
	API       API
	Transport Transport
	Alerter   Alerter
	Journal   Journal
	Seen      SeenOptions

	// IsAuthError classifies errors that end the session.
	// Defaults to liman.IsAuthError.
	IsAuthError func(error) bool

	// OnDelivery is called for every notification that enters the store.
	OnDelivery func(n model.Notification, source model.Source)

	Logger logrus.FieldLogger
}

// Center is the notification pipeline of one session.
type Center struct {
	session    *Session
	api        API
	transport  Transport
	alerter    Alerter
	journal    Journal
	isAuth     func(error) bool
	onDelivery func(model.Notification, model.Source)
	logger     logrus.FieldLogger
	log        *logrus.Entry

	store *UnreadStore
	seen  *SeenMarker

	mu       sync.Mutex
	listener *Listener
	loaded   bool
	loadErr  error
	buffered []model.Notification

	updates chan Snapshot
}

// NewCenter wires a Center. Run starts it.
func NewCenter(opts Options) *Center {
	c := &Center{
		session:    opts.Session,
		api:        opts.API,
		transport:  opts.Transport,
		alerter:    opts.Alerter,
		journal:    opts.Journal,
		isAuth:     opts.IsAuthError,
		onDelivery: opts.OnDelivery,
		logger:     opts.Logger,
		log:        logging.Component(opts.Logger, "center"),
		store:      NewUnreadStore(),
		updates:    make(chan Snapshot, 1),
	}
	if c.isAuth == nil {
		c.isAuth = liman.IsAuthError
	}

	seenOpts := opts.Seen
	seenOpts.Checker = c.store
	seenOpts.Logger = opts.Logger
	seenOpts.OnResult = c.acknowledged
	c.seen = NewSeenMarker(c.api, seenOpts)

	return c
}

// Store exposes the unread list.
func (c *Center) Store() *UnreadStore {
	return c.store
}

// Updates delivers snapshots after every change. Only the latest snapshot
// is kept when the reader falls behind.
func (c *Center) Updates() <-chan Snapshot {
	return c.updates
}

// Snapshot returns the current state.
func (c *Center) Snapshot() Snapshot {
	c.mu.Lock()
	state := StateDisconnected
	if c.listener != nil {
		state = c.listener.State()
	}
	loaded, loadErr := c.loaded, c.loadErr
	c.mu.Unlock()

	return Snapshot{
		Items:   c.store.Items(),
		Unseen:  c.store.CountUnseen(),
		Pending: c.seen.PendingIDs(),
		State:   state,
		Loaded:  loaded,
		LoadErr: loadErr,
	}
}

// Run subscribes to the user's channel, fetches the unread list and then
// serves pushes until ctx ends or the session closes. It returns the
// session's close reason, or ctx's error.
func (c *Center) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	listener := NewListener(c.transport, c.session.UserID(), c.receive, c.logger)
	listener.OnStateChange(func(State) { c.publish() })

	c.mu.Lock()
	c.listener = listener
	c.mu.Unlock()

	c.session.OnTeardown(listener.Stop)
	c.session.OnTeardown(cancel)

	go func() {
		if err := listener.Start(runCtx); err != nil && !errors.Is(err, ErrListenerStopped) && runCtx.Err() == nil {
			c.log.WithError(err).Error("push subscription failed")
			c.checkAuth(err)
		}
	}()

	list, err := c.api.UnreadNotifications(runCtx)
	c.load(list, err)

	select {
	case <-runCtx.Done():
	case <-c.session.Done():
	}
	listener.Stop()

	if err := c.session.Err(); err != nil {
		return err
	}
	return ctx.Err()
}

// MarkAllRead marks everything read server-side, then clears the store.
// On failure the store is left unchanged.
func (c *Center) MarkAllRead(ctx context.Context) error {
	if err := c.api.MarkAllRead(ctx); err != nil {
		c.log.WithError(err).Warn("mark all read failed")
		c.checkAuth(err)
		return err
	}
	c.store.Clear()
	c.log.Info("all notifications marked read")
	c.publish()
	return nil
}

// receive handles one pushed notification. Until the initial fetch resolves,
// pushes are buffered.
func (c *Center) receive(n model.Notification) {
	c.mu.Lock()
	if !c.loaded {
		c.buffered = append(c.buffered, n)
		c.mu.Unlock()
		c.log.WithField("notification_id", n.ID).Debug("buffering push until unread list is loaded")
		return
	}
	delivered := c.applyPushLocked(n)
	c.mu.Unlock()

	if delivered {
		c.record(model.SourcePush, n)
	}
	c.publish()
}

func (c *Center) applyPushLocked(n model.Notification) bool {
	if !c.store.Prepend(n) {
		c.log.WithField("notification_id", n.ID).Debug("duplicate push ignored")
		return false
	}
	c.alert(n, true)
	c.seen.Schedule([]model.Notification{n})
	return true
}

// load applies the initial fetch result, then the pushes buffered meanwhile.
func (c *Center) load(list []model.Notification, err error) {
	if err != nil {
		c.log.WithError(err).Warn("unread list unavailable")
		list = nil
	}

	c.mu.Lock()
	c.store.Load(list)
	items := c.store.Items()
	for i := len(items) - 1; i >= 0; i-- {
		if items[i].SeenAt == nil {
			c.alert(items[i], false)
		}
	}
	c.seen.Schedule(items)

	var pushed []model.Notification
	for _, n := range c.buffered {
		if c.applyPushLocked(n) {
			pushed = append(pushed, n)
		}
	}
	c.buffered = nil
	c.loaded = true
	c.loadErr = err
	c.mu.Unlock()

	c.record(model.SourceFetch, items...)
	c.record(model.SourcePush, pushed...)

	c.log.WithField("unread", len(items)).WithField("buffered", len(pushed)).Info("unread list loaded")
	c.checkAuth(err)
	c.publish()
}

func (c *Center) alert(n model.Notification, sound bool) {
	if c.alerter == nil {
		return
	}
	if sound {
		c.alerter.Announce(n)
		return
	}
	c.alerter.Notify(n)
}

// acknowledged is the SeenMarker result hook.
func (c *Center) acknowledged(id string, err error) {
	if c.journal != nil {
		if jerr := c.journal.RecordAck(context.Background(), id, err); jerr != nil {
			c.log.WithError(jerr).Debug("journal ack")
		}
	}
	if err != nil {
		c.checkAuth(err)
		c.publish()
		return
	}
	c.store.MarkSeen(id, time.Now())
	c.publish()
}

func (c *Center) record(source model.Source, list ...model.Notification) {
	for _, n := range list {
		if c.onDelivery != nil {
			c.onDelivery(n, source)
		}
		if c.journal == nil {
			continue
		}
		if err := c.journal.RecordDelivery(context.Background(), n, source); err != nil {
			c.log.WithError(err).Debug("journal delivery")
		}
	}
}

func (c *Center) checkAuth(err error) {
	if err != nil && c.isAuth(err) {
		c.log.WithError(err).Warn("access token rejected, ending session")
		c.session.Close(ErrUnauthorized)
	}
}

func (c *Center) publish() {
	snap := c.Snapshot()
	select {
	case <-c.updates:
	default:
	}
	select {
	case c.updates <- snap:
	default:
	}
}
