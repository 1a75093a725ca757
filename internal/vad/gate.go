// Package vad classifies a smoothed audio level signal into voice and
// silence events.
//
// The gate consumes decayed peak samples in [0, 1] produced by the
// capture layer. It has no debounce of its own beyond the silence timeout:
// any sample above the threshold re-arms the timer immediately.
package vad

import (
	"time"

	"voiced/internal/clock"
)

// Event is an edge emitted by the gate.
type Event int

const (
	// EventNone means no state change.
	EventNone Event = iota
	// EventVoice is emitted the first time a sample exceeds the
	// threshold after a period of silence.
	EventVoice
	// EventSilence is emitted once no sample has exceeded the threshold
	// for the full timeout window.
	EventSilence
)

// Gate tracks the voice/silence state of the level stream. The silence
// timer runs from Reset, so a session in which nobody ever speaks still
// produces a silence event after the timeout.
type Gate struct {
	threshold float64
	timeout   time.Duration
	clk       clock.Clock

	speaking     bool
	silenceFired bool
	lastVoice    time.Time
}

// New creates a gate with the given threshold in [0, 1] and silence
// timeout.
func New(threshold float64, timeout time.Duration, clk clock.Clock) *Gate {
	if clk == nil {
		clk = clock.System()
	}
	g := &Gate{threshold: threshold, timeout: timeout, clk: clk}
	g.Reset()
	return g
}

// Reset returns the gate to the silent state with a freshly armed timer.
func (g *Gate) Reset() {
	g.speaking = false
	g.silenceFired = false
	g.lastVoice = g.clk.Now()
}

// Observe feeds one level sample and returns the resulting edge, if any.
func (g *Gate) Observe(level float64) Event {
	now := g.clk.Now()

	if level > g.threshold {
		g.lastVoice = now
		if !g.speaking {
			g.speaking = true
			g.silenceFired = false
			return EventVoice
		}
		return EventNone
	}

	if !g.silenceFired && now.Sub(g.lastVoice) >= g.timeout {
		g.silenceFired = true
		g.speaking = false
		return EventSilence
	}
	return EventNone
}

// Speaking reports whether the gate currently considers the stream voiced.
func (g *Gate) Speaking() bool {
	return g.speaking
}
