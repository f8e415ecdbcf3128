// Package alert raises desktop notifications and sound cues for new
// notifications. Every alert is best effort: failures are logged and never
// reach the caller.
package alert

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nhle/liman-notify/internal/logging"
	"github.com/nhle/liman-notify/internal/model"
)

// Desktop shows a desktop notification.
type Desktop interface {
	Show(ctx context.Context, n model.Notification) error
}

// Sound plays an audible cue.
type Sound interface {
	Play(ctx context.Context) error
}

const (
	// alertTimeout bounds a single desktop call or sound.
	alertTimeout = 5 * time.Second

	// queueSize is how many alerts of one kind may wait before new ones
	// are dropped.
	queueSize = 64
)

// Dispatcher fans alerts out to the configured outputs. Either output may
// be nil, which disables it. Desktop notifications are shown one at a time
// in the order they were requested; sounds run on their own lane so a long
// cue never holds a notification back.
type Dispatcher struct {
	desktop Desktop
	sound   Sound
	log     *logrus.Entry
	timeout time.Duration

	desktopQ chan job
	soundQ   chan job
	done     chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

type job struct {
	kind string
	id   string
	fn   func(context.Context) error
}

// NewDispatcher returns a dispatcher using the given outputs. Call Close to
// stop its workers.
func NewDispatcher(desktop Desktop, sound Sound, logger logrus.FieldLogger) *Dispatcher {
	return newDispatcher(desktop, sound, logger, queueSize)
}

func newDispatcher(desktop Desktop, sound Sound, logger logrus.FieldLogger, size int) *Dispatcher {
	d := &Dispatcher{
		desktop:  desktop,
		sound:    sound,
		log:      logging.Component(logger, "alert"),
		timeout:  alertTimeout,
		desktopQ: make(chan job, size),
		soundQ:   make(chan job, size),
		done:     make(chan struct{}),
	}
	if desktop != nil {
		d.wg.Add(1)
		go d.work(d.desktopQ)
	}
	if sound != nil {
		d.wg.Add(1)
		go d.work(d.soundQ)
	}
	return d
}

// Notify raises a desktop notification without sound.
func (d *Dispatcher) Notify(n model.Notification) {
	if d.desktop == nil {
		return
	}
	d.enqueue(d.desktopQ, job{kind: "desktop", id: n.ID, fn: func(ctx context.Context) error {
		return d.desktop.Show(ctx, n)
	}})
}

// Announce plays the sound cue and raises a desktop notification.
func (d *Dispatcher) Announce(n model.Notification) {
	if d.sound != nil {
		d.enqueue(d.soundQ, job{kind: "sound", id: n.ID, fn: d.sound.Play})
	}
	d.Notify(n)
}

// Close stops the workers after the alert in progress finishes. Queued
// alerts are discarded. Close is safe to call more than once.
func (d *Dispatcher) Close() {
	d.once.Do(func() { close(d.done) })
	d.wg.Wait()
}

// enqueue never blocks: a full queue drops the alert.
func (d *Dispatcher) enqueue(q chan job, j job) {
	select {
	case <-d.done:
		return
	default:
	}

	select {
	case q <- j:
	default:
		d.log.WithField("kind", j.kind).WithField("notification_id", j.id).Warn("alert queue full, dropping alert")
	}
}

func (d *Dispatcher) work(q chan job) {
	defer d.wg.Done()
	for {
		select {
		case <-d.done:
			return
		case j := <-q:
			d.run(j)
		}
	}
}

func (d *Dispatcher) run(j job) {
	defer func() {
		if r := recover(); r != nil {
			d.log.WithField("kind", j.kind).Errorf("alert panicked: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := j.fn(ctx); err != nil {
		d.log.WithError(err).WithField("kind", j.kind).WithField("notification_id", j.id).Debug("alert failed")
	}
}
