package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/nhle/liman-notify/internal/logging"
	"github.com/nhle/liman-notify/internal/model"
	"github.com/nhle/liman-notify/internal/pusher"
)

// NotificationEvent is the broadcast event carrying a new notification.
const NotificationEvent = `Illuminate\Notifications\Events\BroadcastNotificationCreated`

// ChannelFor returns the private channel of a user.
func ChannelFor(userID string) string {
	return "private-App.User." + userID
}

// ErrListenerStopped is returned by Start after Stop.
var ErrListenerStopped = errors.New("listener stopped")

// State is the connection state of a Listener.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateSubscribed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "live"
	default:
		return "offline"
	}
}

// Subscription is a live channel subscription.
type Subscription interface {
	Events() <-chan pusher.Event
	Err() error
	Close() error
}

// Transport opens channel subscriptions.
type Transport interface {
	Subscribe(ctx context.Context, channel string) (Subscription, error)
}

// PusherTransport adapts a pusher.Client to Transport.
type PusherTransport struct {
	Client *pusher.Client
}

func (t PusherTransport) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	sub, err := t.Client.Subscribe(ctx, channel)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// Listener delivers the notifications pushed to one user's channel.
// A stopped listener never subscribes again.
type Listener struct {
	transport Transport
	channel   string
	handler   func(model.Notification)
	log       *logrus.Entry

	mu       sync.Mutex
	state    State
	started  bool
	stopped  bool
	sub      Subscription
	cancel   context.CancelFunc
	err      error
	done     chan struct{}
	onChange func(State)
}

// NewListener creates a listener for userID's channel. handler is called
// sequentially, in arrival order.
func NewListener(t Transport, userID string, handler func(model.Notification), logger logrus.FieldLogger) *Listener {
	channel := ChannelFor(userID)
	return &Listener{
		transport: t,
		channel:   channel,
		handler:   handler,
		log:       logging.Component(logger, "listener").WithField("channel", channel),
		done:      make(chan struct{}),
	}
}

// OnStateChange registers fn to be called on every state transition.
func (l *Listener) OnStateChange(fn func(State)) {
	l.mu.Lock()
	l.onChange = fn
	l.mu.Unlock()
}

// Channel returns the subscribed channel name.
func (l *Listener) Channel() string {
	return l.channel
}

// State returns the current connection state.
func (l *Listener) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Done is closed once the listener has stopped delivering.
func (l *Listener) Done() <-chan struct{} {
	return l.done
}

// Err returns why delivery ended; nil while running or after Stop.
func (l *Listener) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Start subscribes and begins delivering events. It blocks until the
// subscription is confirmed or fails for good.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return ErrListenerStopped
	}
	if l.started {
		l.mu.Unlock()
		return errors.New("listener already started")
	}
	l.started = true
	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.setStateLocked(StateConnecting)
	l.mu.Unlock()

	sub, err := l.transport.Subscribe(ctx, l.channel)

	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		if sub != nil {
			sub.Close()
		}
		close(l.done)
		return ErrListenerStopped
	}
	if err != nil {
		l.err = err
		l.setStateLocked(StateDisconnected)
		l.mu.Unlock()
		cancel()
		close(l.done)
		return err
	}
	l.sub = sub
	l.setStateLocked(StateSubscribed)
	l.mu.Unlock()

	l.log.Info("subscribed")
	go l.pump(sub)
	return nil
}

// Stop unsubscribes. It is safe to call at any time and more than once.
func (l *Listener) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	sub := l.sub
	l.sub = nil
	cancel := l.cancel
	started := l.started
	l.setStateLocked(StateDisconnected)
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if sub != nil {
		if err := sub.Close(); err != nil {
			l.log.WithError(err).Debug("closing subscription")
		}
	}
	if !started {
		close(l.done)
	}
	l.log.Debug("stopped")
}

func (l *Listener) pump(sub Subscription) {
	defer close(l.done)

	for ev := range sub.Events() {
		if ev.Name != NotificationEvent {
			l.log.WithField("event", ev.Name).Debug("ignoring event")
			continue
		}

		var n model.Notification
		if err := json.Unmarshal(ev.Data, &n); err != nil {
			l.log.WithError(err).Warn("undecodable notification event")
			continue
		}
		for field, raw := range n.Unparsed {
			l.log.WithField("notification_id", n.ID).WithField(field, raw).Warn("unrecognized timestamp")
		}

		l.mu.Lock()
		stopped := l.stopped
		l.mu.Unlock()
		if stopped {
			return
		}
		l.handler(n)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return
	}
	if err := sub.Err(); err != nil && !errors.Is(err, pusher.ErrClosed) {
		l.err = err
		l.log.WithError(err).Error("push delivery ended")
	}
	l.setStateLocked(StateDisconnected)
}

func (l *Listener) setStateLocked(s State) {
	if l.state == s {
		return
	}
	l.state = s
	if l.onChange != nil {
		go l.onChange(s)
	}
}
