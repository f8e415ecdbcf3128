package alert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/liman-notify/internal/model"
)

type fakeDesktop struct {
	mu    sync.Mutex
	shown []string
	err   error
}

func (f *fakeDesktop) Show(_ context.Context, n model.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shown = append(f.shown, n.ID)
	return f.err
}

func (f *fakeDesktop) Shown() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.shown...)
}

type fakeSound struct {
	mu    sync.Mutex
	plays int
	panic bool
}

func (f *fakeSound) Play(context.Context) error {
	f.mu.Lock()
	f.plays++
	p := f.panic
	f.mu.Unlock()
	if p {
		panic("audio device gone")
	}
	return nil
}

func (f *fakeSound) Plays() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.plays
}

func TestDispatcher_NotifyIsSilent(t *testing.T) {
	desktop := &fakeDesktop{}
	sound := &fakeSound{}
	d := NewDispatcher(desktop, sound, nil)
	t.Cleanup(d.Close)

	d.Notify(model.Notification{ID: "a"})

	assert.Eventually(t, func() bool { return len(desktop.Shown()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, sound.Plays())
}

func TestDispatcher_AnnouncePlaysAndShows(t *testing.T) {
	desktop := &fakeDesktop{}
	sound := &fakeSound{}
	d := NewDispatcher(desktop, sound, nil)
	t.Cleanup(d.Close)

	d.Announce(model.Notification{ID: "a"})

	assert.Eventually(t, func() bool {
		return sound.Plays() == 1 && len(desktop.Shown()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestDispatcher_FailuresStayInside(t *testing.T) {
	desktop := &fakeDesktop{err: errors.New("no notification daemon")}
	sound := &fakeSound{panic: true}
	d := NewDispatcher(desktop, sound, nil)
	t.Cleanup(d.Close)

	assert.NotPanics(t, func() { d.Announce(model.Notification{ID: "a"}) })
	assert.Eventually(t, func() bool {
		return sound.Plays() == 1 && len(desktop.Shown()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestDispatcher_NilOutputs(t *testing.T) {
	d := NewDispatcher(nil, nil, nil)

	assert.NotPanics(t, func() {
		d.Notify(model.Notification{ID: "a"})
		d.Announce(model.Notification{ID: "a"})
		d.Close()
		d.Close()
	})
}

// lazyDesktop connects on first use under a lock, like DBusNotifier.
type lazyDesktop struct {
	fakeDesktop
	connMu    sync.Mutex
	connected bool
}

func (l *lazyDesktop) Show(ctx context.Context, n model.Notification) error {
	l.connMu.Lock()
	if !l.connected {
		time.Sleep(10 * time.Millisecond)
		l.connected = true
	}
	l.connMu.Unlock()
	return l.fakeDesktop.Show(ctx, n)
}

func TestDispatcher_ShowsInRequestOrder(t *testing.T) {
	desktop := &lazyDesktop{}
	d := NewDispatcher(desktop, &fakeSound{}, nil)
	t.Cleanup(d.Close)

	var want []string
	for i := range 40 {
		id := fmt.Sprintf("n%d", i)
		want = append(want, id)
		if i%2 == 0 {
			d.Notify(model.Notification{ID: id})
		} else {
			d.Announce(model.Notification{ID: id})
		}
	}

	require.Eventually(t, func() bool { return len(desktop.Shown()) == len(want) }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, want, desktop.Shown())
}

type blockingDesktop struct {
	fakeDesktop
	started chan struct{}
	release chan struct{}
}

func (b *blockingDesktop) Show(ctx context.Context, n model.Notification) error {
	select {
	case b.started <- struct{}{}:
	default:
	}
	<-b.release
	return b.fakeDesktop.Show(ctx, n)
}

func TestDispatcher_FullQueueDrops(t *testing.T) {
	desktop := &blockingDesktop{started: make(chan struct{}, 1), release: make(chan struct{})}
	d := newDispatcher(desktop, nil, nil, 1)
	t.Cleanup(d.Close)

	d.Notify(model.Notification{ID: "a"})
	<-desktop.started

	returned := make(chan struct{})
	go func() {
		d.Notify(model.Notification{ID: "b"})
		d.Notify(model.Notification{ID: "c"})
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a full queue")
	}

	close(desktop.release)
	require.Eventually(t, func() bool { return len(desktop.Shown()) == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []string{"a", "b"}, desktop.Shown())
}

func TestDispatcher_CloseDropsLaterAlerts(t *testing.T) {
	desktop := &fakeDesktop{}
	d := NewDispatcher(desktop, nil, nil)
	d.Close()

	d.Notify(model.Notification{ID: "a"})

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, desktop.Shown())
}

func TestCommandPlayer_RingsBellWithoutFile(t *testing.T) {
	var out bytes.Buffer
	p := &CommandPlayer{Player: "paplay", Bell: &out}

	require.NoError(t, p.Play(context.Background()))
	assert.Equal(t, "\a", out.String())
}

func TestCommandPlayer_FallsBackWhenPlayerMissing(t *testing.T) {
	var out bytes.Buffer
	p := &CommandPlayer{
		Player:   "paplay",
		File:     "/usr/share/sounds/bell.oga",
		Bell:     &out,
		lookPath: func(string) (string, error) { return "", errors.New("executable file not found") },
	}

	err := p.Play(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "sound player paplay not found")
	assert.Equal(t, "\a", out.String())
}

func TestUrgency(t *testing.T) {
	tests := []struct {
		level model.Level
		want  byte
	}{
		{model.LevelTrivial, urgencyLow},
		{model.LevelInfo, urgencyNormal},
		{model.LevelSuccess, urgencyNormal},
		{model.LevelWarning, urgencyNormal},
		{model.LevelError, urgencyCritical},
		{model.LevelCritical, urgencyCritical},
		{model.Level("unknown"), urgencyNormal},
	}
	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			assert.Equal(t, tt.want, urgency(tt.level))
		})
	}
}

func TestDBusNotifier_ConnectFailure(t *testing.T) {
	d := NewDBusNotifier("Liman")
	d.Connect = func() (*dbus.Conn, error) { return nil, errors.New("no session bus") }

	err := d.Show(context.Background(), model.Notification{Title: "x"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "connecting to session bus")
	assert.NoError(t, d.Close())
}
