package gesture

import (
	"context"
	"errors"
	"testing"
	"time"

	"voiced/internal/clock"
)

// scriptPoller replays a fixed sequence of snapshots, then repeats the
// last one forever.
type scriptPoller struct {
	states []KeyState
	pos    int
	err    error
}

func (p *scriptPoller) Snapshot() (KeyState, error) {
	if p.err != nil {
		return KeyState{}, p.err
	}
	if p.pos < len(p.states) {
		s := p.states[p.pos]
		p.pos++
		return s, nil
	}
	if len(p.states) == 0 {
		return KeyState{}, nil
	}
	return p.states[len(p.states)-1], nil
}

// hold returns n copies of the same snapshot, one per 10ms poll.
func hold(s KeyState, n int) []KeyState {
	out := make([]KeyState, n)
	for i := range out {
		out[i] = s
	}
	return out
}

func newTestDetector(p Poller) (*Detector, *clock.Fake) {
	clk := clock.NewFake(time.Unix(1000, 0))
	d := New(p, DefaultConfig(), clk, nil)
	return d, clk
}

func TestWaitTriggersOnDoubleTap(t *testing.T) {
	var states []KeyState
	states = append(states, hold(KeyState{Left: true}, 3)...)  // first press
	states = append(states, hold(KeyState{}, 5)...)            // release, 50ms
	states = append(states, hold(KeyState{Left: true}, 3)...)  // re-press
	states = append(states, hold(KeyState{}, 2)...)            // final release

	d, _ := newTestDetector(&scriptPoller{states: states})
	if err := d.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestWaitIgnoresSlowSecondTap(t *testing.T) {
	var states []KeyState
	states = append(states, hold(KeyState{Right: true}, 2)...)
	// 50 polls at 10ms = 500ms of silence, past the 400ms window.
	states = append(states, hold(KeyState{}, 50)...)
	states = append(states, hold(KeyState{Right: true}, 2)...)
	states = append(states, hold(KeyState{}, 1)...)

	d, _ := newTestDetector(&scriptPoller{states: states})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Wait(ctx) }()

	// The late re-press re-arms rather than triggering, so Wait keeps
	// blocking until we cancel.
	time.Sleep(20 * time.Millisecond)
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Wait = %v, want context.Canceled", err)
	}
}

func TestWaitRequiresSameVariant(t *testing.T) {
	// Left press+release followed by a right press must not trigger.
	var states []KeyState
	states = append(states, hold(KeyState{Left: true}, 2)...)
	states = append(states, hold(KeyState{}, 3)...)
	states = append(states, hold(KeyState{Right: true}, 3)...)
	states = append(states, hold(KeyState{}, 60)...)

	d, _ := newTestDetector(&scriptPoller{states: states})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Wait(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Wait = %v, want context.Canceled", err)
	}
}

func TestWaitBlocksUntilRelease(t *testing.T) {
	// The second press is held for many polls; Wait must only return
	// after the release snapshot.
	press := KeyState{Left: true}
	var states []KeyState
	states = append(states, press)
	states = append(states, KeyState{})
	states = append(states, press) // triggers here
	states = append(states, hold(press, 20)...)
	states = append(states, KeyState{})

	p := &scriptPoller{states: states}
	d, _ := newTestDetector(p)
	if err := d.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	// All the held snapshots must have been consumed before returning.
	if p.pos < len(states) {
		t.Errorf("returned before the key was released (consumed %d of %d snapshots)", p.pos, len(states))
	}
}

func TestWaitReportsInputFailure(t *testing.T) {
	d, _ := newTestDetector(&scriptPoller{err: errors.New("display gone")})
	err := d.Wait(context.Background())
	if !errors.Is(err, ErrInputSystem) {
		t.Fatalf("Wait = %v, want ErrInputSystem", err)
	}
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{
		StateIdle:          "Idle",
		StateArmedPressed:  "ArmedPressed",
		StateArmedReleased: "ArmedReleased",
		StateTriggered:     "Triggered",
	} {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}
