package pusher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"github.com/nhle/liman-notify/internal/logging"
)

// Authorizer signs private-channel subscriptions.
type Authorizer interface {
	AuthorizeChannel(ctx context.Context, socketID, channel string) (string, error)
}

// Config configures a Client.
type Config struct {
	// URL is the websocket endpoint, e.g. wss://liman.example.com/app/liman-key.
	URL string

	// Authorizer is required for private- and presence- channels.
	Authorizer Authorizer

	// IsPermanent classifies authorizer errors that must not be retried
	// (e.g. a rejected access token).
	IsPermanent func(error) bool

	// ActivityTimeout is how long the connection may stay silent before a
	// ping is sent. The server's connection_established value wins.
	ActivityTimeout time.Duration

	// PongTimeout is how long to wait for any frame after a ping.
	PongTimeout time.Duration

	// MinBackoff and MaxBackoff bound the reconnection delay.
	MinBackoff time.Duration
	MaxBackoff time.Duration

	HTTPClient *http.Client
	Logger     logrus.FieldLogger
}

// Event is a channel event delivered to a subscriber.
type Event struct {
	Channel string
	Name    string
	Data    json.RawMessage
}

// Client dials Pusher-protocol servers such as Soketi or laravel-websockets.
type Client struct {
	cfg Config
	log *logrus.Entry
}

// New creates a client; defaults are filled for zero durations.
func New(cfg Config) *Client {
	if cfg.ActivityTimeout <= 0 {
		cfg.ActivityTimeout = 120 * time.Second
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = 30 * time.Second
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	return &Client{cfg: cfg, log: logging.Component(cfg.Logger, "pusher")}
}

// ErrClosed is reported by Subscription.Err after Close.
var ErrClosed = errors.New("subscription closed")

// eventBufferSize is the channel buffer for delivered events.
const eventBufferSize = 64

// Subscribe connects, subscribes to channel and returns once the server has
// confirmed the subscription. Transient failures are retried with backoff
// until ctx ends; permanent ones are returned. After Subscribe returns, the
// subscription reconnects on its own until Close is called or ctx ends.
func (c *Client) Subscribe(ctx context.Context, channel string) (*Subscription, error) {
	runCtx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		client:  c,
		channel: channel,
		events:  make(chan Event, eventBufferSize),
		cancel:  cancel,
		done:    make(chan struct{}),
		log:     c.log.WithField("channel", channel),
	}

	sess, err := c.connectWithRetry(runCtx, channel, s.log)
	if err != nil {
		cancel()
		return nil, err
	}

	s.setConn(sess)
	go s.run(runCtx, sess)

	return s, nil
}

// session is one live, subscribed websocket connection.
type session struct {
	conn            *websocket.Conn
	socketID        string
	activityTimeout time.Duration
}

// connectWithRetry dials until a subscription succeeds, ctx ends, or a
// permanent error occurs.
func (c *Client) connectWithRetry(ctx context.Context, channel string, log *logrus.Entry) (*session, error) {
	attempt := 0
	for {
		sess, err := c.connect(ctx, channel)
		if err == nil {
			return sess, nil
		}
		if c.permanent(err) {
			return nil, err
		}

		wait := c.backoff(attempt, err)
		attempt++
		log.WithError(err).WithField("retry_in", wait).Warn("push connection failed")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (c *Client) permanent(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Permanent()
	}
	if c.cfg.IsPermanent != nil && c.cfg.IsPermanent(err) {
		return true
	}
	return false
}

// backoff returns the delay before reconnection attempt n.
func (c *Client) backoff(attempt int, err error) time.Duration {
	var pe *Error
	if errors.As(err, &pe) && pe.Immediate() {
		return 0
	}
	wait := c.cfg.MinBackoff << uint(attempt)
	if wait <= 0 || wait > c.cfg.MaxBackoff {
		wait = c.cfg.MaxBackoff
	}
	return wait
}

// endpoint returns the websocket URL with protocol query parameters.
func (c *Client) endpoint() (string, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parsing push url: %w", err)
	}
	q := u.Query()
	q.Set("protocol", protocolVersion)
	q.Set("client", "liman-notify")
	q.Set("version", "1.0")
	q.Set("flash", "false")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// connect performs the handshake: dial, wait for connection_established,
// authorize, subscribe, wait for subscription_succeeded.
func (c *Client) connect(ctx context.Context, channel string) (*session, error) {
	endpoint, err := c.endpoint()
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.Dial(ctx, endpoint, &websocket.DialOptions{
		HTTPClient: c.cfg.HTTPClient,
	})
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", c.cfg.URL, err)
	}

	sess, err := c.handshake(ctx, conn, channel)
	if err != nil {
		conn.CloseNow()
		return nil, err
	}
	return sess, nil
}

func (c *Client) handshake(ctx context.Context, conn *websocket.Conn, channel string) (*session, error) {
	f, err := readFrame(ctx, conn)
	if err != nil {
		return nil, err
	}
	if f.Event == eventError {
		return nil, decodeError(f)
	}
	if f.Event != eventConnectionEstablished {
		return nil, fmt.Errorf("expected %s, got %s", eventConnectionEstablished, f.Event)
	}

	var est connectionEstablished
	if err := json.Unmarshal(f.payload(), &est); err != nil {
		return nil, fmt.Errorf("decoding connection_established: %w", err)
	}

	sess := &session{
		conn:            conn,
		socketID:        est.SocketID,
		activityTimeout: c.cfg.ActivityTimeout,
	}
	if est.ActivityTimeout > 0 {
		sess.activityTimeout = time.Duration(est.ActivityTimeout) * time.Second
	}

	sub := subscribeData{Channel: channel}
	if needsAuth(channel) {
		if c.cfg.Authorizer == nil {
			return nil, fmt.Errorf("channel %s requires an authorizer", channel)
		}
		auth, err := c.cfg.Authorizer.AuthorizeChannel(ctx, est.SocketID, channel)
		if err != nil {
			return nil, err
		}
		sub.Auth = auth
	}

	if err := writeFrame(ctx, conn, eventSubscribe, "", sub); err != nil {
		return nil, err
	}

	for {
		f, err := readFrame(ctx, conn)
		if err != nil {
			return nil, err
		}
		switch f.Event {
		case eventSubscriptionSucceeded:
			if f.Channel == channel {
				return sess, nil
			}
		case eventSubscriptionError:
			return nil, fmt.Errorf("subscribing to %s: %s", channel, string(f.payload()))
		case eventError:
			return nil, decodeError(f)
		case eventPing:
			if err := writeFrame(ctx, conn, eventPong, "", struct{}{}); err != nil {
				return nil, err
			}
		}
	}
}

func readFrame(ctx context.Context, conn *websocket.Conn) (frame, error) {
	_, data, err := conn.Read(ctx)
	if err != nil {
		return frame{}, closeError(err)
	}
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return frame{}, fmt.Errorf("decoding frame: %w", err)
	}
	return f, nil
}

func writeFrame(ctx context.Context, conn *websocket.Conn, event, channel string, data interface{}) error {
	raw, err := encodeFrame(event, channel, data)
	if err != nil {
		return err
	}
	if err := conn.Write(ctx, websocket.MessageText, raw); err != nil {
		return fmt.Errorf("writing %s: %w", event, err)
	}
	return nil
}

// closeError maps a websocket close in the Pusher range to *Error.
func closeError(err error) error {
	code := websocket.CloseStatus(err)
	if code >= 4000 && code < 4300 {
		var ce websocket.CloseError
		errors.As(err, &ce)
		return &Error{Code: int(code), Message: ce.Reason}
	}
	return err
}

func decodeError(f frame) error {
	var pe Error
	if err := json.Unmarshal(f.payload(), &pe); err != nil {
		return fmt.Errorf("undecodable pusher error: %s", string(f.Data))
	}
	return &pe
}

// Subscription is a live channel subscription.
type Subscription struct {
	client  *Client
	channel string
	events  chan Event
	cancel  context.CancelFunc
	done    chan struct{}
	log     *logrus.Entry

	mu       sync.Mutex
	conn     *websocket.Conn
	socketID string
	err      error

	closing   atomic.Bool
	closeOnce sync.Once
}

// Events returns the delivered events in arrival order. The channel is
// closed when the subscription ends.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Err returns why the subscription ended; nil while it is running.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// SocketID returns the server-assigned id of the current connection.
func (s *Subscription) SocketID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.socketID
}

// Done is closed once the subscription has fully stopped.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Close unsubscribes and closes the connection. It is safe to call
// multiple times and from multiple goroutines.
func (s *Subscription) Close() error {
	s.closeOnce.Do(func() {
		s.closing.Store(true)
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()

		if conn != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := writeFrame(ctx, conn, eventUnsubscribe, "", unsubscribeData{Channel: s.channel}); err != nil {
				s.log.WithError(err).Debug("unsubscribe not delivered")
			}
			cancel()
			conn.Close(websocket.StatusNormalClosure, "client closed")
		}
		s.cancel()
	})
	<-s.done
	return nil
}

func (s *Subscription) setConn(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = sess.conn
	s.socketID = sess.socketID
}

func (s *Subscription) finish(err error) {
	s.mu.Lock()
	s.err = err
	s.conn = nil
	s.mu.Unlock()
	close(s.events)
	close(s.done)
}

// run serves the connection and reconnects until ctx ends or a permanent
// error occurs.
func (s *Subscription) run(ctx context.Context, sess *session) {
	for {
		err := s.serve(ctx, sess)
		sess.conn.CloseNow()

		if ctx.Err() != nil || s.closing.Load() {
			s.finish(ErrClosed)
			return
		}
		if s.client.permanent(err) {
			s.log.WithError(err).Error("push subscription ended")
			s.finish(err)
			return
		}

		s.log.WithError(err).Info("push connection lost, reconnecting")
		var pe *Error
		if !errors.As(err, &pe) || !pe.Immediate() {
			select {
			case <-ctx.Done():
				s.finish(ErrClosed)
				return
			case <-time.After(s.client.cfg.MinBackoff):
			}
		}

		next, err := s.client.connectWithRetry(ctx, s.channel, s.log)
		if err != nil {
			if ctx.Err() != nil {
				err = ErrClosed
			}
			s.finish(err)
			return
		}
		s.setConn(next)
		sess = next
	}
}

type readResult struct {
	frame frame
	err   error
}

// serve pumps frames from one connection until it fails.
func (s *Subscription) serve(ctx context.Context, sess *session) error {
	frames := make(chan readResult, 1)
	readCtx, stopReader := context.WithCancel(ctx)
	defer stopReader()

	go func() {
		for {
			f, err := readFrame(readCtx, sess.conn)
			select {
			case frames <- readResult{frame: f, err: err}:
			case <-readCtx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	idle := time.NewTimer(sess.activityTimeout)
	defer idle.Stop()
	awaitingPong := false

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-idle.C:
			if awaitingPong {
				return errors.New("no pong within timeout")
			}
			if err := writeFrame(ctx, sess.conn, eventPing, "", struct{}{}); err != nil {
				return err
			}
			awaitingPong = true
			idle.Reset(s.client.cfg.PongTimeout)

		case r := <-frames:
			if r.err != nil {
				return r.err
			}
			awaitingPong = false
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(sess.activityTimeout)

			if err := s.handle(ctx, sess, r.frame); err != nil {
				return err
			}
		}
	}
}

func (s *Subscription) handle(ctx context.Context, sess *session, f frame) error {
	switch f.Event {
	case eventPing:
		return writeFrame(ctx, sess.conn, eventPong, "", struct{}{})
	case eventPong, eventSubscriptionSucceeded:
		return nil
	case eventError:
		return decodeError(f)
	}

	if f.Channel != s.channel {
		return nil
	}

	ev := Event{Channel: f.Channel, Name: f.Event, Data: f.payload()}
	select {
	case s.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
