package pusher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAuthorizer struct {
	err      error
	socketID string
	channel  string
}

func (a *stubAuthorizer) AuthorizeChannel(_ context.Context, socketID, channel string) (string, error) {
	a.socketID, a.channel = socketID, channel
	if a.err != nil {
		return "", a.err
	}
	return "app-key:signature", nil
}

// fakeServer speaks just enough of the Pusher protocol for one channel.
type fakeServer struct {
	t           *testing.T
	connections atomic.Int32
	subscribed  chan *websocket.Conn
	rejectCode  websocket.StatusCode
}

func newFakeServer(t *testing.T) (*fakeServer, string) {
	fs := &fakeServer{t: t, subscribed: make(chan *websocket.Conn, 4)}
	srv := httptest.NewServer(http.HandlerFunc(fs.serve))
	t.Cleanup(srv.Close)
	return fs, "ws" + strings.TrimPrefix(srv.URL, "http") + "/app/liman-key"
}

func (fs *fakeServer) serve(w http.ResponseWriter, r *http.Request) {
	assert.Equal(fs.t, "7", r.URL.Query().Get("protocol"))
	fs.connections.Add(1)

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.CloseNow()
	ctx := r.Context()

	if fs.rejectCode != 0 {
		conn.Close(fs.rejectCode, "rejected")
		return
	}

	est, _ := json.Marshal(connectionEstablished{SocketID: "123.456", ActivityTimeout: 30})
	send(ctx, conn, frame{Event: eventConnectionEstablished, Data: quote(est)})

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var f frame
		if json.Unmarshal(data, &f) != nil {
			continue
		}
		switch f.Event {
		case eventSubscribe:
			var sub subscribeData
			_ = json.Unmarshal(f.Data, &sub)
			assert.Equal(fs.t, "app-key:signature", sub.Auth)
			send(ctx, conn, frame{Event: eventSubscriptionSucceeded, Channel: sub.Channel, Data: quote([]byte("{}"))})
			fs.subscribed <- conn
		case eventPing:
			send(ctx, conn, frame{Event: eventPong, Data: json.RawMessage("{}")})
		}
	}
}

func send(ctx context.Context, conn *websocket.Conn, f frame) {
	data, _ := json.Marshal(f)
	_ = conn.Write(ctx, websocket.MessageText, data)
}

// quote encodes raw as a JSON string, the way Pusher servers send data.
func quote(raw []byte) json.RawMessage {
	q, _ := json.Marshal(string(raw))
	return q
}

func (fs *fakeServer) waitSubscribed(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-fs.subscribed:
		return conn
	case <-time.After(3 * time.Second):
		t.Fatal("client never subscribed")
		return nil
	}
}

func newTestClient(url string, auth Authorizer) *Client {
	return New(Config{
		URL:        url,
		Authorizer: auth,
		MinBackoff: 10 * time.Millisecond,
		MaxBackoff: 50 * time.Millisecond,
	})
}

func TestSubscribe_DeliversChannelEvents(t *testing.T) {
	fs, url := newFakeServer(t)
	auth := &stubAuthorizer{}
	c := newTestClient(url, auth)

	sub, err := c.Subscribe(t.Context(), "private-App.User.1")
	require.NoError(t, err)
	defer sub.Close()

	assert.Equal(t, "123.456", auth.socketID)
	assert.Equal(t, "private-App.User.1", auth.channel)
	assert.Equal(t, "123.456", sub.SocketID())

	conn := fs.waitSubscribed(t)
	ctx := t.Context()
	send(ctx, conn, frame{Event: "other-event", Channel: "private-App.User.2", Data: quote([]byte(`{}`))})
	send(ctx, conn, frame{Event: "created", Channel: "private-App.User.1", Data: quote([]byte(`{"title":"hi"}`))})

	select {
	case ev := <-sub.Events():
		assert.Equal(t, "created", ev.Name)
		assert.Equal(t, "private-App.User.1", ev.Channel)
		assert.JSONEq(t, `{"title":"hi"}`, string(ev.Data))
	case <-time.After(3 * time.Second):
		t.Fatal("no event delivered")
	}
}

func TestSubscribe_CloseIsIdempotent(t *testing.T) {
	fs, url := newFakeServer(t)
	c := newTestClient(url, &stubAuthorizer{})

	sub, err := c.Subscribe(t.Context(), "private-App.User.1")
	require.NoError(t, err)
	fs.waitSubscribed(t)

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())

	_, open := <-sub.Events()
	assert.False(t, open)
	assert.ErrorIs(t, sub.Err(), ErrClosed)
}

func TestSubscribe_ReconnectsAfterDrop(t *testing.T) {
	fs, url := newFakeServer(t)
	c := newTestClient(url, &stubAuthorizer{})

	sub, err := c.Subscribe(t.Context(), "private-App.User.1")
	require.NoError(t, err)
	defer sub.Close()

	first := fs.waitSubscribed(t)
	first.Close(websocket.StatusCode(4200), "reconnect")

	second := fs.waitSubscribed(t)
	send(t.Context(), second, frame{Event: "created", Channel: "private-App.User.1", Data: quote([]byte(`{}`))})

	select {
	case ev := <-sub.Events():
		assert.Equal(t, "created", ev.Name)
	case <-time.After(3 * time.Second):
		t.Fatal("no event after reconnect")
	}
	assert.Equal(t, int32(2), fs.connections.Load())
}

func TestSubscribe_PermanentCloseCode(t *testing.T) {
	fs, url := newFakeServer(t)
	fs.rejectCode = websocket.StatusCode(4001)
	c := newTestClient(url, &stubAuthorizer{})

	_, err := c.Subscribe(t.Context(), "private-App.User.1")

	var pe *Error
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 4001, pe.Code)
	assert.True(t, pe.Permanent())
	assert.Equal(t, int32(1), fs.connections.Load())
}

func TestSubscribe_PermanentAuthorizerError(t *testing.T) {
	errRejected := errors.New("token rejected")
	_, url := newFakeServer(t)
	c := New(Config{
		URL:         url,
		Authorizer:  &stubAuthorizer{err: errRejected},
		IsPermanent: func(err error) bool { return errors.Is(err, errRejected) },
	})

	_, err := c.Subscribe(t.Context(), "private-App.User.1")
	assert.ErrorIs(t, err, errRejected)
}

func TestSubscribe_PrivateChannelNeedsAuthorizer(t *testing.T) {
	_, url := newFakeServer(t)
	c := New(Config{URL: url, MinBackoff: 10 * time.Millisecond})

	ctx, cancel := context.WithTimeout(t.Context(), 200*time.Millisecond)
	defer cancel()

	_, err := c.Subscribe(ctx, "private-App.User.1")
	assert.Error(t, err)
}

func TestErrorRanges(t *testing.T) {
	assert.True(t, (&Error{Code: 4009}).Permanent())
	assert.False(t, (&Error{Code: 4100}).Permanent())
	assert.True(t, (&Error{Code: 4201}).Immediate())
	assert.False(t, (&Error{Code: 4100}).Immediate())
}

func TestFramePayload(t *testing.T) {
	quoted := frame{Data: json.RawMessage(`"{\"a\":1}"`)}
	assert.JSONEq(t, `{"a":1}`, string(quoted.payload()))

	object := frame{Data: json.RawMessage(`{"a":1}`)}
	assert.JSONEq(t, `{"a":1}`, string(object.payload()))
}

func TestNeedsAuth(t *testing.T) {
	assert.True(t, needsAuth("private-App.User.1"))
	assert.True(t, needsAuth("presence-room"))
	assert.False(t, needsAuth("public-feed"))
}
