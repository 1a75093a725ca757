// Package notify sends desktop notifications over the session bus
// using org.freedesktop.Notifications. Notification failures are
// logged and swallowed; dictation does not depend on a notification
// daemon being present.
package notify

import (
	"fmt"

	"github.com/godbus/dbus/v5"

	"voiced/internal/logging"
)

const (
	busName    = "org.freedesktop.Notifications"
	objectPath = "/org/freedesktop/Notifications"
	method     = "org.freedesktop.Notifications.Notify"

	appName       = "voiced"
	defaultExpiry = int32(4000) // ms
)

// Notifier posts desktop notifications.
type Notifier struct {
	conn    *dbus.Conn
	enabled bool
	log     *logging.Logger
}

// New connects to the session bus. When disabled, or when the bus is
// unreachable, Notify becomes a no-op.
func New(enabled bool, log *logging.Logger) *Notifier {
	n := &Notifier{enabled: enabled, log: log}
	if !enabled {
		return n
	}
	conn, err := dbus.SessionBus()
	if err != nil {
		log.Warn("session bus unavailable, notifications disabled", "error", err)
		n.enabled = false
		return n
	}
	n.conn = conn
	return n
}

// Notify posts a notification with the given summary and body.
func (n *Notifier) Notify(summary, body string) {
	if !n.enabled || n.conn == nil {
		return
	}
	obj := n.conn.Object(busName, objectPath)
	call := obj.Call(method, 0,
		appName,
		uint32(0), // replaces_id
		"audio-input-microphone",
		summary,
		body,
		[]string{},             // actions
		map[string]dbus.Variant{},
		defaultExpiry,
	)
	if call.Err != nil {
		n.log.Warn("notification failed", "error", call.Err, "summary", summary)
	}
}

// Close releases the bus connection.
func (n *Notifier) Close() error {
	if n.conn == nil {
		return nil
	}
	if err := n.conn.Close(); err != nil {
		return fmt.Errorf("close session bus: %w", err)
	}
	return nil
}
