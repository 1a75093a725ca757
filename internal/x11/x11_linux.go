//go:build linux && cgo

// Package x11 provides the Xlib-backed input, focus, and selection
// services for voiced: key-state snapshots for the gesture detector,
// focus capture and restore, selection ownership, and synthesized paste
// chords via XTest.
package x11

/*
#cgo pkg-config: x11 xtst
#include <stdlib.h>
#include <X11/Xlib.h>
#include <X11/Xatom.h>
#include <X11/keysym.h>
#include <X11/extensions/XTest.h>

static int key_pair_down(Display *dpy, KeyCode left, KeyCode right, int *l, int *r) {
    char keys[32];
    if (!XQueryKeymap(dpy, keys)) {
        return 0;
    }
    *l = (keys[left / 8] >> (left % 8)) & 1;
    *r = (keys[right / 8] >> (right % 8)) & 1;
    return 1;
}

static Window current_focus(Display *dpy) {
    Window focus;
    int revert;
    XGetInputFocus(dpy, &focus, &revert);
    return focus;
}

static void restore_focus(Display *dpy, Window win) {
    XSetInputFocus(dpy, win, RevertToParent, CurrentTime);
    XFlush(dpy);
}

static void fake_paste_chord(Display *dpy, int with_shift) {
    KeyCode ctrl = XKeysymToKeycode(dpy, XK_Control_L);
    KeyCode shift = XKeysymToKeycode(dpy, XK_Shift_L);
    KeyCode v = XKeysymToKeycode(dpy, XK_v);

    XTestFakeKeyEvent(dpy, ctrl, True, 0);
    if (with_shift) {
        XTestFakeKeyEvent(dpy, shift, True, 0);
    }
    XTestFakeKeyEvent(dpy, v, True, 0);
    XTestFakeKeyEvent(dpy, v, False, 0);
    if (with_shift) {
        XTestFakeKeyEvent(dpy, shift, False, 0);
    }
    XTestFakeKeyEvent(dpy, ctrl, False, 0);
    XFlush(dpy);
}

// poll_selection_event drains at most one SelectionRequest or
// SelectionClear aimed at win. Returns 1 for a request, 2 for a clear,
// 0 for nothing pending.
static int poll_selection_event(Display *dpy, Window win, XSelectionRequestEvent *req) {
    XEvent e;
    if (XCheckTypedWindowEvent(dpy, win, SelectionRequest, &e)) {
        *req = e.xselectionrequest;
        return 1;
    }
    if (XCheckTypedWindowEvent(dpy, win, SelectionClear, &e)) {
        return 2;
    }
    return 0;
}

static void send_selection_notify(Display *dpy, Window requestor, Atom selection,
                                  Atom target, Atom property, Time time) {
    XSelectionEvent s;
    s.type = SelectionNotify;
    s.display = dpy;
    s.requestor = requestor;
    s.selection = selection;
    s.target = target;
    s.property = property;
    s.time = time;
    XSendEvent(dpy, requestor, True, 0, (XEvent *)&s);
    XFlush(dpy);
}

static void answer_targets(Display *dpy, Window requestor, Atom property,
                           Atom utf8, Atom xa_string) {
    Atom supported[2];
    supported[0] = utf8;
    supported[1] = xa_string;
    XChangeProperty(dpy, requestor, property, XA_ATOM, 32, PropModeReplace,
                    (unsigned char *)supported, 2);
}

static void answer_text(Display *dpy, Window requestor, Atom property,
                        Atom target, const char *text, int len) {
    XChangeProperty(dpy, requestor, property, target, 8, PropModeReplace,
                    (const unsigned char *)text, len);
}
*/
import "C"

import (
	"errors"
	"fmt"
	"unsafe"

	"voiced/internal/clipboard"
	"voiced/internal/gesture"
)

// Display is an open connection to the X server plus the invisible
// window that owns selections on our behalf.
type Display struct {
	dpy *C.Display
	win C.Window

	clipboardAtom C.Atom
	targetsAtom   C.Atom
	utf8Atom      C.Atom
	stringAtom    C.Atom
}

// Open connects to the default X display.
func Open() (*Display, error) {
	dpy := C.XOpenDisplay(nil)
	if dpy == nil {
		return nil, errors.New("cannot open X display")
	}

	root := C.XDefaultRootWindow(dpy)
	win := C.XCreateSimpleWindow(dpy, root, 0, 0, 1, 1, 0, 0, 0)

	d := &Display{dpy: dpy, win: win}
	d.clipboardAtom = d.atom("CLIPBOARD")
	d.targetsAtom = d.atom("TARGETS")
	d.utf8Atom = d.atom("UTF8_STRING")
	d.stringAtom = C.XA_STRING
	return d, nil
}

func (d *Display) atom(name string) C.Atom {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	return C.XInternAtom(d.dpy, cname, C.False)
}

// Close destroys the selection window and disconnects.
func (d *Display) Close() {
	if d.dpy != nil {
		C.XDestroyWindow(d.dpy, d.win)
		C.XCloseDisplay(d.dpy)
		d.dpy = nil
	}
}

// CurrentFocus returns the window that currently has input focus.
func (d *Display) CurrentFocus() uint64 {
	return uint64(C.current_focus(d.dpy))
}

// keysym pairs for the supported trigger keys.
var triggerKeysyms = map[string][2]C.KeySym{
	"Shift":   {C.XK_Shift_L, C.XK_Shift_R},
	"Control": {C.XK_Control_L, C.XK_Control_R},
	"Alt":     {C.XK_Alt_L, C.XK_Alt_R},
	"Super":   {C.XK_Super_L, C.XK_Super_R},
}

// KeyPoller polls the pressed state of a trigger key's left and right
// physical variants. It implements gesture.Poller.
type KeyPoller struct {
	d     *Display
	left  C.KeyCode
	right C.KeyCode
}

// KeyPoller resolves the named trigger key to its two physical keycodes.
func (d *Display) KeyPoller(keyName string) (*KeyPoller, error) {
	syms, ok := triggerKeysyms[keyName]
	if !ok {
		return nil, fmt.Errorf("unsupported trigger key: %s", keyName)
	}
	left := C.XKeysymToKeycode(d.dpy, syms[0])
	right := C.XKeysymToKeycode(d.dpy, syms[1])
	if left == 0 && right == 0 {
		return nil, fmt.Errorf("trigger key %s has no keycode on this keyboard", keyName)
	}
	return &KeyPoller{d: d, left: left, right: right}, nil
}

// Snapshot reads the current key state.
func (p *KeyPoller) Snapshot() (gesture.KeyState, error) {
	var l, r C.int
	if C.key_pair_down(p.d.dpy, p.left, p.right, &l, &r) == 0 {
		return gesture.KeyState{}, errors.New("XQueryKeymap failed")
	}
	return gesture.KeyState{Left: l != 0, Right: r != 0}, nil
}

// SelectionConn adapts the display to the clipboard handoff protocol.
// It implements clipboard.Conn.
type SelectionConn struct {
	d *Display
}

// SelectionConn returns the display's selection connection.
func (d *Display) SelectionConn() *SelectionConn {
	return &SelectionConn{d: d}
}

// AcquireOwnership claims the CLIPBOARD selection and verifies the claim.
func (c *SelectionConn) AcquireOwnership() error {
	d := c.d
	C.XSetSelectionOwner(d.dpy, d.clipboardAtom, d.win, C.CurrentTime)
	if C.XGetSelectionOwner(d.dpy, d.clipboardAtom) != d.win {
		return errors.New("XSetSelectionOwner did not stick")
	}
	return nil
}

// RestoreFocus gives input focus back to the given window.
func (c *SelectionConn) RestoreFocus(window uint64) error {
	C.restore_focus(c.d.dpy, C.Window(window))
	return nil
}

// SendPasteChord synthesizes ctrl+v, or ctrl+shift+v when withShift is
// set.
func (c *SelectionConn) SendPasteChord(withShift bool) error {
	shift := C.int(0)
	if withShift {
		shift = 1
	}
	C.fake_paste_chord(c.d.dpy, shift)
	return nil
}

// PollEvent drains at most one pending selection event.
func (c *SelectionConn) PollEvent() (clipboard.Event, bool, error) {
	var req C.XSelectionRequestEvent
	switch C.poll_selection_event(c.d.dpy, c.d.win, &req) {
	case 1:
		if req.selection != c.d.clipboardAtom {
			// A request for a selection we do not own; ignore.
			return clipboard.Event{}, false, nil
		}
		kind := clipboard.KindOther
		switch req.target {
		case c.d.targetsAtom:
			kind = clipboard.KindTargets
		case c.d.utf8Atom, c.d.stringAtom:
			kind = clipboard.KindText
		}
		return clipboard.Event{Request: &clipboard.Request{
			Kind:      kind,
			Requestor: uint64(req.requestor),
			Target:    uint64(req.target),
			Property:  uint64(req.property),
			Time:      uint64(req.time),
		}}, true, nil
	case 2:
		return clipboard.Event{OwnershipLost: true}, true, nil
	default:
		return clipboard.Event{}, false, nil
	}
}

// ServeTargets declares the supported text encodings.
func (c *SelectionConn) ServeTargets(req clipboard.Request) error {
	d := c.d
	C.answer_targets(d.dpy, C.Window(req.Requestor), C.Atom(req.Property), d.utf8Atom, d.stringAtom)
	c.notify(req, C.Atom(req.Property))
	return nil
}

// ServeText answers a data request with the raw text bytes.
func (c *SelectionConn) ServeText(req clipboard.Request, text []byte) error {
	d := c.d
	var ptr *C.char
	if len(text) > 0 {
		ptr = (*C.char)(unsafe.Pointer(&text[0]))
	}
	C.answer_text(d.dpy, C.Window(req.Requestor), C.Atom(req.Property), C.Atom(req.Target), ptr, C.int(len(text)))
	c.notify(req, C.Atom(req.Property))
	return nil
}

// Refuse answers a request for an unsupported format with property None.
func (c *SelectionConn) Refuse(req clipboard.Request) error {
	c.notify(req, C.None)
	return nil
}

func (c *SelectionConn) notify(req clipboard.Request, property C.Atom) {
	d := c.d
	C.send_selection_notify(d.dpy, C.Window(req.Requestor), d.clipboardAtom,
		C.Atom(req.Target), property, C.Time(req.Time))
}
