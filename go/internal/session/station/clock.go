package station

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultDriftTolerance is how far the local countdown may stray from the
// host value before a snapshot corrects it.
const DefaultDriftTolerance = time.Second

// LocalClock is the per-station countdown between snapshots. It owns its one
// ticker; Start and Stop replace or cancel it.
//
// Not safe for concurrent use; the station loop owns it.
type LocalClock struct {
	clock     clockwork.Clock
	tolerance time.Duration
	remaining time.Duration
	ticker    clockwork.Ticker
}

func NewLocalClock(clock clockwork.Clock, tolerance time.Duration) *LocalClock {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if tolerance <= 0 {
		tolerance = DefaultDriftTolerance
	}
	return &LocalClock{clock: clock, tolerance: tolerance}
}

// Start begins ticking once per second. A clock at zero stays stopped.
func (c *LocalClock) Start() {
	if c.ticker != nil || c.remaining <= 0 {
		return
	}
	c.ticker = c.clock.NewTicker(time.Second)
}

// Stop freezes the countdown.
func (c *LocalClock) Stop() {
	if c.ticker == nil {
		return
	}
	c.ticker.Stop()
	c.ticker = nil
}

func (c *LocalClock) Running() bool {
	return c.ticker != nil
}

// C is nil while stopped, which blocks its select case.
func (c *LocalClock) C() <-chan time.Time {
	if c.ticker == nil {
		return nil
	}
	return c.ticker.Chan()
}

// Tick decrements one second. Reaching zero stops the ticker; the clock then
// waits for the host to move on.
func (c *LocalClock) Tick() {
	c.remaining -= time.Second
	if c.remaining <= 0 {
		c.remaining = 0
		c.Stop()
	}
}

// Set hard-syncs the countdown.
func (c *LocalClock) Set(d time.Duration) {
	if d < 0 {
		d = 0
	}
	c.remaining = d
	if d == 0 {
		c.Stop()
	}
}

// Reconcile corrects toward the authoritative value only when drift exceeds
// the tolerance. It reports whether a correction happened.
func (c *LocalClock) Reconcile(authoritative time.Duration) bool {
	drift := c.remaining - authoritative
	if drift < 0 {
		drift = -drift
	}
	if drift <= c.tolerance {
		return false
	}
	c.Set(authoritative)
	return true
}

// Remaining returns the countdown in whole seconds, rounded up.
func (c *LocalClock) Remaining() int {
	if c.remaining <= 0 {
		return 0
	}
	return int((c.remaining + time.Second - 1) / time.Second)
}

// RemainingDuration returns the exact countdown value.
func (c *LocalClock) RemainingDuration() time.Duration {
	return c.remaining
}
