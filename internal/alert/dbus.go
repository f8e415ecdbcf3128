package alert

import (
	"context"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/nhle/liman-notify/internal/model"
)

const (
	notificationsDest   = "org.freedesktop.Notifications"
	notificationsPath   = "/org/freedesktop/Notifications"
	notificationsNotify = notificationsDest + ".Notify"
)

// Freedesktop urgency hints.
const (
	urgencyLow      byte = 0
	urgencyNormal   byte = 1
	urgencyCritical byte = 2
)

// DBusNotifier raises desktop notifications through the session bus.
// The connection is opened on first use.
type DBusNotifier struct {
	AppName string
	Icon    string

	// Connect opens the bus; defaults to dbus.ConnectSessionBus.
	Connect func() (*dbus.Conn, error)

	mu   sync.Mutex
	conn *dbus.Conn
}

// NewDBusNotifier returns a notifier that identifies itself as appName.
func NewDBusNotifier(appName string) *DBusNotifier {
	return &DBusNotifier{AppName: appName, Icon: "dialog-information"}
}

// Show displays n. Expiration is left to the notification server.
func (d *DBusNotifier) Show(ctx context.Context, n model.Notification) error {
	conn, err := d.bus()
	if err != nil {
		return err
	}

	hints := map[string]dbus.Variant{
		"urgency": dbus.MakeVariant(urgency(n.Level)),
	}

	obj := conn.Object(notificationsDest, dbus.ObjectPath(notificationsPath))
	call := obj.CallWithContext(ctx, notificationsNotify, 0,
		d.AppName, uint32(0), d.Icon, n.Title, n.Content, []string{}, hints, int32(-1))
	if call.Err != nil {
		d.reset()
		return fmt.Errorf("sending desktop notification: %w", call.Err)
	}
	return nil
}

// Close releases the bus connection.
func (d *DBusNotifier) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	return err
}

func (d *DBusNotifier) bus() (*dbus.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn != nil && d.conn.Connected() {
		return d.conn, nil
	}

	connect := d.Connect
	if connect == nil {
		connect = func() (*dbus.Conn, error) { return dbus.ConnectSessionBus() }
	}
	conn, err := connect()
	if err != nil {
		return nil, fmt.Errorf("connecting to session bus: %w", err)
	}
	d.conn = conn
	return conn, nil
}

func (d *DBusNotifier) reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn != nil && !d.conn.Connected() {
		d.conn = nil
	}
}

func urgency(level model.Level) byte {
	switch level {
	case model.LevelTrivial:
		return urgencyLow
	case model.LevelError, model.LevelCritical:
		return urgencyCritical
	default:
		return urgencyNormal
	}
}
