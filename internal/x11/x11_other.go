//go:build !linux || !cgo

package x11

import (
	"errors"

	"voiced/internal/clipboard"
	"voiced/internal/gesture"
)

var errUnsupported = errors.New("x11 support requires linux and cgo")

type Display struct{}

func Open() (*Display, error) { return nil, errUnsupported }

func (d *Display) Close()               {}
func (d *Display) CurrentFocus() uint64 { return 0 }

type KeyPoller struct{}

func (d *Display) KeyPoller(keyName string) (*KeyPoller, error) { return nil, errUnsupported }

func (p *KeyPoller) Snapshot() (gesture.KeyState, error) {
	return gesture.KeyState{}, errUnsupported
}

type SelectionConn struct{}

func (d *Display) SelectionConn() *SelectionConn { return &SelectionConn{} }

func (c *SelectionConn) AcquireOwnership() error              { return errUnsupported }
func (c *SelectionConn) RestoreFocus(window uint64) error     { return errUnsupported }
func (c *SelectionConn) SendPasteChord(withShift bool) error  { return errUnsupported }
func (c *SelectionConn) PollEvent() (clipboard.Event, bool, error) {
	return clipboard.Event{}, false, errUnsupported
}
func (c *SelectionConn) ServeTargets(req clipboard.Request) error          { return errUnsupported }
func (c *SelectionConn) ServeText(req clipboard.Request, text []byte) error { return errUnsupported }
func (c *SelectionConn) Refuse(req clipboard.Request) error                { return errUnsupported }
