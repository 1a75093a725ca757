// Package gesture recognizes the double-tap hotkey that arms a dictation
// session.
//
// The detector polls a key-state source at a fixed interval and runs a
// four-state machine: a first press of either physical variant of the
// trigger key arms it, a release opens a short re-press window, and a
// second press of the same variant inside the window fires the trigger.
// Letting the window lapse disarms back to idle.
package gesture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"voiced/internal/clock"
	"voiced/internal/logging"
)

// ErrInputSystem marks a fatal inability to reach the input subsystem.
// The caller should treat it as terminal.
var ErrInputSystem = errors.New("input subsystem unavailable")

// State identifies a phase of the double-tap recognition.
type State int

const (
	// StateIdle means no press has been seen.
	StateIdle State = iota
	// StateArmedPressed means the first press was observed.
	StateArmedPressed
	// StateArmedReleased means the trigger key was released and the
	// re-press window is open.
	StateArmedReleased
	// StateTriggered means the same variant was pressed again in time.
	StateTriggered
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateArmedPressed:
		return "ArmedPressed"
	case StateArmedReleased:
		return "ArmedReleased"
	case StateTriggered:
		return "Triggered"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Variant identifies which physical key fired the gesture.
type Variant int

const (
	// VariantLeft is the left-hand physical key.
	VariantLeft Variant = iota
	// VariantRight is the right-hand physical key.
	VariantRight
)

// KeyState is one snapshot of the trigger key's two physical variants.
type KeyState struct {
	Left  bool
	Right bool
}

func (ks KeyState) pressed(v Variant) bool {
	if v == VariantLeft {
		return ks.Left
	}
	return ks.Right
}

// Poller reads the current trigger-key state from the input subsystem.
type Poller interface {
	Snapshot() (KeyState, error)
}

// Config tunes the detector.
type Config struct {
	// DoubleTap is the window between release and re-press.
	DoubleTap time.Duration

	// PollInterval is how often the key state is sampled. Smaller values
	// reduce latency at the cost of CPU.
	PollInterval time.Duration
}

// DefaultConfig returns the standard timing.
func DefaultConfig() Config {
	return Config{
		DoubleTap:    400 * time.Millisecond,
		PollInterval: 10 * time.Millisecond,
	}
}

// Detector recognizes the double-tap gesture. Single consumer; not
// reentrant.
type Detector struct {
	poller Poller
	cfg    Config
	clk    clock.Clock
	log    *logging.Logger
}

// New creates a detector over the given key-state source.
func New(p Poller, cfg Config, clk clock.Clock, log *logging.Logger) *Detector {
	if cfg.DoubleTap <= 0 {
		cfg.DoubleTap = DefaultConfig().DoubleTap
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
	return &Detector{poller: p, cfg: cfg, clk: clk, log: log}
}

// Wait blocks until a double-tap is observed and the triggering key is
// physically released again, so the trigger cannot immediately re-fire
// from the same key-down. It returns ctx.Err() on cancellation and an
// error wrapping ErrInputSystem if the key state cannot be read.
func (d *Detector) Wait(ctx context.Context) error {
	state := StateIdle
	var variant Variant
	var releasedAt time.Time

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		ks, err := d.poller.Snapshot()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInputSystem, err)
		}
		now := d.clk.Now()

		switch state {
		case StateIdle:
			if ks.Left {
				state = StateArmedPressed
				variant = VariantLeft
			} else if ks.Right {
				state = StateArmedPressed
				variant = VariantRight
			}

		case StateArmedPressed:
			if !ks.pressed(variant) {
				state = StateArmedReleased
				releasedAt = now
			}

		case StateArmedReleased:
			if now.Sub(releasedAt) > d.cfg.DoubleTap {
				state = StateIdle
			} else if ks.pressed(variant) {
				state = StateTriggered
			}
		}

		if state == StateTriggered {
			d.log.Debug("double-tap trigger detected", "variant", variant)
			return d.waitForRelease(ctx, variant)
		}

		d.clk.Sleep(d.cfg.PollInterval)
	}
}

// waitForRelease blocks until the triggering variant is up.
func (d *Detector) waitForRelease(ctx context.Context, v Variant) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ks, err := d.poller.Snapshot()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInputSystem, err)
		}
		if !ks.pressed(v) {
			return nil
		}
		d.clk.Sleep(d.cfg.PollInterval)
	}
}
