// Package clock abstracts the monotonic time source used by the polling
// loops so they can run against a simulated clock in tests.
//
// All elapsed-time arithmetic in voiced goes through a Clock. time.Time
// values returned by the system clock carry Go's monotonic reading, so
// wall-clock adjustments never affect session accounting.
package clock

import (
	"sync"
	"time"
)

// Clock provides the current time and a way to sleep.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type systemClock struct{}

func (systemClock) Now() time.Time        { return time.Now() }
func (systemClock) Sleep(d time.Duration) { time.Sleep(d) }

// System returns the real clock.
func System() Clock {
	return systemClock{}
}

// Fake is a manually advanced clock for tests. Sleep advances the clock
// instead of blocking, which lets polling loops run to completion
// deterministically.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake returns a Fake starting at the given instant.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// Now returns the fake's current instant.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Sleep advances the fake clock by d without blocking.
func (f *Fake) Sleep(d time.Duration) {
	f.Advance(d)
}

// Advance moves the fake clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}
