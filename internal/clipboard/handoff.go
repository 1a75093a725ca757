// Package clipboard implements the selection-ownership handoff protocol
// that delivers text into an arbitrary, uncooperative foreign application.
//
// The sequence is: take ownership of the CLIPBOARD selection, restore
// focus to the target window, synthesize a paste chord, then serve the
// foreign application's selection requests under a deadline. Serving is a
// bounded polling loop driven by a non-blocking event poll, so the whole
// exchange stays on the calling thread and is testable against a fake
// connection and clock.
package clipboard

import (
	"errors"
	"fmt"
	"time"

	"voiced/internal/clock"
	"voiced/internal/logging"
)

// ErrOwnership means ownership of the selection was not confirmed; the
// paste step is abandoned.
var ErrOwnership = errors.New("clipboard ownership not confirmed")

// RequestKind classifies a foreign selection request.
type RequestKind int

const (
	// KindTargets is a capability query: which formats can we convert to.
	KindTargets RequestKind = iota
	// KindText asks for the text in a supported encoding.
	KindText
	// KindOther asks for a format we do not support.
	KindOther
)

// Request is one selection request from a foreign process. The numeric
// fields are opaque protocol tokens the connection needs to reply; the
// handoff only inspects Kind.
type Request struct {
	Kind      RequestKind
	Requestor uint64
	Target    uint64
	Property  uint64
	Time      uint64
}

// Event is one polled selection event.
type Event struct {
	// Request is set for selection requests.
	Request *Request

	// OwnershipLost is set when a competing claimant took the selection.
	OwnershipLost bool
}

// Conn is the selection connection. The X11 implementation lives in
// internal/x11; tests use a scripted fake.
type Conn interface {
	// AcquireOwnership claims the CLIPBOARD selection and confirms the
	// claim stuck.
	AcquireOwnership() error

	// RestoreFocus gives input focus back to the window that had it
	// before the session began.
	RestoreFocus(window uint64) error

	// SendPasteChord synthesizes ctrl+v, or ctrl+shift+v when withShift
	// is set.
	SendPasteChord(withShift bool) error

	// PollEvent returns the next pending selection event, if any,
	// without blocking.
	PollEvent() (Event, bool, error)

	// ServeTargets answers a capability query with the supported text
	// encodings.
	ServeTargets(req Request) error

	// ServeText answers a data request with the text bytes in the
	// requested encoding.
	ServeText(req Request, text []byte) error

	// Refuse answers a request for an unsupported format.
	Refuse(req Request) error
}

// Config tunes the handoff timing.
type Config struct {
	// Settle is the wait after focus restoration before the paste chord,
	// giving the window manager time to propagate focus.
	Settle time.Duration

	// ServeDeadline bounds the request-serving loop.
	ServeDeadline time.Duration

	// PollInterval is the sleep between event polls.
	PollInterval time.Duration
}

// DefaultConfig returns the standard timing.
func DefaultConfig() Config {
	return Config{
		Settle:        100 * time.Millisecond,
		ServeDeadline: 2 * time.Second,
		PollInterval:  10 * time.Millisecond,
	}
}

// Handoff performs paste deliveries over a selection connection.
type Handoff struct {
	conn Conn
	cfg  Config
	clk  clock.Clock
	log  *logging.Logger
}

// New creates a handoff over the given connection.
func New(conn Conn, cfg Config, clk clock.Clock, log *logging.Logger) *Handoff {
	if cfg.ServeDeadline <= 0 {
		cfg.ServeDeadline = DefaultConfig().ServeDeadline
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if clk == nil {
		clk = clock.System()
	}
	if log == nil {
		log = logging.Default()
	}
	return &Handoff{conn: conn, cfg: cfg, clk: clk, log: log}
}

// Paste delivers text to the focused application. Empty text is a no-op:
// no ownership is acquired and no keystroke is synthesized. A nil return
// does not guarantee the foreign application fetched the data; if no
// request arrives before the deadline the caller proceeds regardless.
func (h *Handoff) Paste(text string, target uint64, altChord bool) error {
	if text == "" {
		return nil
	}

	if err := h.conn.AcquireOwnership(); err != nil {
		return fmt.Errorf("%w: %v", ErrOwnership, err)
	}

	if target != 0 {
		if err := h.conn.RestoreFocus(target); err != nil {
			h.log.Warn("focus restore failed", "window", target, "error", err)
		}
	}
	// Let focus propagate before the chord lands.
	h.clk.Sleep(h.cfg.Settle)

	if err := h.conn.SendPasteChord(altChord); err != nil {
		return fmt.Errorf("synthesize paste chord: %w", err)
	}

	return h.serve([]byte(text))
}

// serve answers selection requests until one genuine data request is
// satisfied, ownership is revoked, or the deadline elapses.
func (h *Handoff) serve(text []byte) error {
	deadline := h.clk.Now().Add(h.cfg.ServeDeadline)

	for h.clk.Now().Before(deadline) {
		ev, ok, err := h.conn.PollEvent()
		if err != nil {
			return fmt.Errorf("poll selection event: %w", err)
		}
		if !ok {
			h.clk.Sleep(h.cfg.PollInterval)
			continue
		}

		if ev.OwnershipLost {
			h.log.Debug("selection ownership revoked")
			return nil
		}
		if ev.Request == nil {
			continue
		}

		req := *ev.Request
		switch req.Kind {
		case KindTargets:
			// Capability query; keep serving until a data request.
			if err := h.conn.ServeTargets(req); err != nil {
				return fmt.Errorf("serve targets: %w", err)
			}
		case KindText:
			if err := h.conn.ServeText(req, text); err != nil {
				return fmt.Errorf("serve text: %w", err)
			}
			return nil
		default:
			if err := h.conn.Refuse(req); err != nil {
				return fmt.Errorf("refuse request: %w", err)
			}
		}
	}

	h.log.Debug("paste serve deadline elapsed without a data request")
	return nil
}
