// Package session contains the dictation session state machine and its
// active-time accounting.
package session

import (
	"fmt"
	"time"

	"voiced/internal/clock"
)

// PauseReason tags one of the three mutually exclusive pause sources.
type PauseReason int

const (
	// PauseManual is a user-requested pause via the 'p' key.
	PauseManual PauseReason = iota
	// PauseTimeout is the pause entered when the time budget runs out.
	PauseTimeout
	// PauseAuto is the silence-driven auto pause.
	PauseAuto

	pauseReasonCount
)

// pauseNone means no pause reason is live.
const pauseNone PauseReason = -1

// String returns the reason name.
func (r PauseReason) String() string {
	switch r {
	case PauseManual:
		return "manual"
	case PauseTimeout:
		return "timeout"
	case PauseAuto:
		return "auto"
	default:
		return fmt.Sprintf("PauseReason(%d)", int(r))
	}
}

// Accountant tracks active-recording time against a budget while up to
// three pause sources overlap in caller order but never in accounted
// time. A single live (reason, since) pair makes the mutual-exclusion
// invariant structural: entering one pause reason first credits the
// elapsed slice of whichever reason was live.
//
// All arithmetic uses the injected monotonic clock; wall-calendar time
// never enters the accounting.
type Accountant struct {
	clk clock.Clock

	initialBudget time.Duration
	budget        time.Duration
	start         time.Time
	totals        [pauseReasonCount]time.Duration
	active        PauseReason
	since         time.Time
	extensions    int
	began         bool
}

// NewAccountant creates an accountant with the given time budget.
func NewAccountant(budget time.Duration, clk clock.Clock) *Accountant {
	if clk == nil {
		clk = clock.System()
	}
	return &Accountant{
		clk:           clk,
		initialBudget: budget,
		budget:        budget,
		active:        pauseNone,
	}
}

// Begin starts (or restarts) the session clock, clearing all accumulators,
// extensions, and any live pause.
func (a *Accountant) Begin() {
	a.start = a.clk.Now()
	a.budget = a.initialBudget
	a.totals = [pauseReasonCount]time.Duration{}
	a.active = pauseNone
	a.extensions = 0
	a.began = true
}

// Pause starts accounting time against the given reason. If another
// reason is live its elapsed slice is credited into its own total first,
// so at most one reason accumulates at any instant. Pausing for the
// already-live reason is a no-op.
func (a *Accountant) Pause(reason PauseReason) {
	if !a.began || reason == a.active {
		return
	}
	now := a.clk.Now()
	if a.active != pauseNone {
		a.totals[a.active] += now.Sub(a.since)
	}
	a.active = reason
	a.since = now
}

// Resume ends the pause for the given reason, crediting its elapsed slice.
// Resuming a reason that is not live is a no-op; callers may issue
// pause/resume out of naive order.
func (a *Accountant) Resume(reason PauseReason) {
	if !a.began || reason != a.active {
		return
	}
	a.totals[reason] += a.clk.Now().Sub(a.since)
	a.active = pauseNone
}

// Extend adds d to the time budget and counts the extension.
func (a *Accountant) Extend(d time.Duration) {
	a.budget += d
	a.extensions++
}

// ElapsedActive returns wall-clock-since-start minus all pause time,
// including the live slice of a current pause. Never negative.
func (a *Accountant) ElapsedActive() time.Duration {
	if !a.began {
		return 0
	}
	now := a.clk.Now()
	paused := a.pausedTotal(now)
	elapsed := now.Sub(a.start) - paused
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// Remaining returns the unconsumed part of the budget. May be negative
// once the budget is exceeded.
func (a *Accountant) Remaining() time.Duration {
	return a.budget - a.ElapsedActive()
}

func (a *Accountant) pausedTotal(now time.Time) time.Duration {
	total := time.Duration(0)
	for _, t := range a.totals {
		total += t
	}
	if a.active != pauseNone {
		total += now.Sub(a.since)
	}
	return total
}

// Active returns the live pause reason, if any.
func (a *Accountant) Active() (PauseReason, bool) {
	if a.active == pauseNone {
		return 0, false
	}
	return a.active, true
}

// Total returns the accumulated pause time for one reason, including the
// live slice if that reason is currently active.
func (a *Accountant) Total(reason PauseReason) time.Duration {
	t := a.totals[reason]
	if a.active == reason {
		t += a.clk.Now().Sub(a.since)
	}
	return t
}

// Extensions returns how many times the budget has been extended.
func (a *Accountant) Extensions() int {
	return a.extensions
}

// StartedAt returns the session start instant.
func (a *Accountant) StartedAt() time.Time {
	return a.start
}
