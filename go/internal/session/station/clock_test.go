package station

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestLocalClockTicksAndClamps(t *testing.T) {
	c := NewLocalClock(clockwork.NewFakeClock(), 0)
	c.Set(2500 * time.Millisecond)
	c.Start()

	if !c.Running() {
		t.Fatal("clock not running after Start")
	}
	if c.Remaining() != 3 {
		t.Errorf("Remaining() = %d, want 3", c.Remaining())
	}

	c.Tick()
	c.Tick()
	c.Tick()
	if c.Remaining() != 0 {
		t.Errorf("Remaining() = %d, want 0", c.Remaining())
	}
	if c.Running() {
		t.Error("clock still running at zero")
	}
	if c.RemainingDuration() < 0 {
		t.Error("clock went negative")
	}
}

func TestLocalClockStartAtZeroStaysStopped(t *testing.T) {
	c := NewLocalClock(clockwork.NewFakeClock(), 0)
	c.Start()
	if c.Running() || c.C() != nil {
		t.Error("zero clock started ticking")
	}
}

func TestLocalClockReconcileTolerance(t *testing.T) {
	c := NewLocalClock(clockwork.NewFakeClock(), time.Second)
	c.Set(20 * time.Second)

	if c.Reconcile(19200 * time.Millisecond) {
		t.Error("corrected drift within tolerance")
	}
	if c.RemainingDuration() != 20*time.Second {
		t.Errorf("value changed to %v", c.RemainingDuration())
	}

	if !c.Reconcile(17 * time.Second) {
		t.Error("did not correct 3s drift")
	}
	if c.Remaining() != 17 {
		t.Errorf("Remaining() = %d, want 17", c.Remaining())
	}

	if !c.Reconcile(-5 * time.Second) {
		t.Error("did not correct negative authoritative value")
	}
	if c.Remaining() != 0 {
		t.Errorf("Remaining() = %d, want 0", c.Remaining())
	}
}

func TestLocalClockTickerFiresOnFakeClock(t *testing.T) {
	fc := clockwork.NewFakeClock()
	c := NewLocalClock(fc, 0)
	c.Set(5 * time.Second)
	c.Start()
	defer c.Stop()

	fc.Advance(time.Second)
	select {
	case <-c.C():
	case <-time.After(time.Second):
		t.Fatal("ticker did not fire")
	}
}
