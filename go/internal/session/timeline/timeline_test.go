package timeline

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/circuitcast/go/internal/models"
)

func testWorkout(n int) models.Workout {
	w := models.Workout{ID: "w1", Name: "Circuit"}
	for i := 0; i < n; i++ {
		w.Modules = append(w.Modules, models.WorkoutModule{
			ID:         string(rune('a' + i)),
			ExerciseID: "ex-jacks",
			DisplayID:  "s1",
		})
	}
	return w
}

func newTimeline(t *testing.T, durations ...int) (*Timeline, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	tl, err := New(testWorkout(len(durations)), durations, clock)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return tl, clock
}

func TestNewStartsFirstModule(t *testing.T) {
	tl, clock := newTimeline(t, 30, 45)

	if tl.Index() != 0 {
		t.Errorf("Index() = %d, want 0", tl.Index())
	}
	if !tl.EndsAt().Equal(clock.Now().Add(30 * time.Second)) {
		t.Errorf("EndsAt() = %v, want now+30s", tl.EndsAt())
	}
	if tl.Remaining() != 30 {
		t.Errorf("Remaining() = %d, want 30", tl.Remaining())
	}
}

func TestNewRejectsEmptyWorkout(t *testing.T) {
	if _, err := New(models.Workout{}, nil, clockwork.NewFakeClock()); err == nil {
		t.Fatal("expected error for empty workout")
	}
	if _, err := New(testWorkout(2), []int{10}, clockwork.NewFakeClock()); err == nil {
		t.Fatal("expected error for duration count mismatch")
	}
}

func TestRemainingRoundsUpAndClamps(t *testing.T) {
	tl, clock := newTimeline(t, 10)

	clock.Advance(1500 * time.Millisecond)
	if got := tl.Remaining(); got != 9 {
		t.Errorf("Remaining() after 1.5s = %d, want 9", got)
	}

	clock.Advance(20 * time.Second)
	if got := tl.Remaining(); got != 0 {
		t.Errorf("Remaining() past end = %d, want 0", got)
	}
	if !tl.Expired() {
		t.Error("Expired() = false past end")
	}
}

func TestPauseResumeShiftsEndByPausedDuration(t *testing.T) {
	for _, p := range []time.Duration{0, time.Second, 7 * time.Second, 90*time.Second + 250*time.Millisecond} {
		tl, clock := newTimeline(t, 60)
		clock.Advance(12 * time.Second)
		oldEnd := tl.EndsAt()

		if !tl.Pause() {
			t.Fatal("Pause() = false")
		}
		clock.Advance(p)
		if tl.Remaining() != 48 {
			t.Errorf("paused Remaining() = %d, want 48", tl.Remaining())
		}
		if !tl.Resume() {
			t.Fatal("Resume() = false")
		}

		if want := oldEnd.Add(p); !tl.EndsAt().Equal(want) {
			t.Errorf("P=%v: resumed EndsAt = %v, want %v", p, tl.EndsAt(), want)
		}
	}
}

func TestPauseIsIdempotent(t *testing.T) {
	tl, _ := newTimeline(t, 10)
	tl.Pause()
	if tl.Pause() {
		t.Error("second Pause() = true, want false")
	}
	tl.Resume()
	if tl.Resume() {
		t.Error("second Resume() = true, want false")
	}
}

func TestNavigationBounds(t *testing.T) {
	tl, clock := newTimeline(t, 10, 20, 30)

	if tl.Previous() {
		t.Error("Previous() on first module = true")
	}

	clock.Advance(4 * time.Second)
	if !tl.Advance() {
		t.Fatal("Advance() = false")
	}
	if !tl.EndsAt().Equal(clock.Now().Add(20 * time.Second)) {
		t.Errorf("EndsAt after advance = %v, want now+20s", tl.EndsAt())
	}

	tl.Advance()
	if tl.Advance() {
		t.Error("Advance() past last module = true")
	}
	if tl.Index() != 2 {
		t.Errorf("Index() = %d, want 2", tl.Index())
	}
	if tl.JumpTo(5) || tl.JumpTo(-1) {
		t.Error("JumpTo out of range accepted")
	}
}

func TestJumpWhilePausedKeepsPausedWithFullDuration(t *testing.T) {
	tl, clock := newTimeline(t, 10, 25)
	clock.Advance(3 * time.Second)
	tl.Pause()

	tl.Advance()
	if !tl.Paused() {
		t.Fatal("navigation unpaused the timeline")
	}
	if tl.Remaining() != 25 {
		t.Errorf("Remaining() = %d, want 25", tl.Remaining())
	}

	clock.Advance(time.Minute)
	tl.Resume()
	if tl.Remaining() != 25 {
		t.Errorf("Remaining() after resume = %d, want 25", tl.Remaining())
	}
}

func TestSnapshot(t *testing.T) {
	tl, clock := newTimeline(t, 30, 40)
	clock.Advance(5 * time.Second)

	s := tl.Snapshot("sess")
	if s.SessionID != "sess" || *s.CurrentIndex != 0 || *s.Paused {
		t.Errorf("unexpected snapshot header: %+v", s)
	}
	if got, _ := s.Remaining(); got != 25*time.Second {
		t.Errorf("snapshot Remaining() = %v, want 25s", got)
	}
	if len(s.Durations) != 2 || s.Durations[1] != 40 {
		t.Errorf("Durations = %v, want [30 40]", s.Durations)
	}

	tl.Pause()
	clock.Advance(time.Minute)
	s = tl.Snapshot("sess")
	if s.PausedRemainingMs == nil || *s.PausedRemainingMs != 25_000 {
		t.Errorf("PausedRemainingMs = %v, want 25000", s.PausedRemainingMs)
	}

	s.Workout.Modules[0].DisplayID = "mutated"
	if tl.Current().DisplayID != "s1" {
		t.Error("snapshot shares module storage with the timeline")
	}
}

func TestCeilSeconds(t *testing.T) {
	cases := map[time.Duration]int{
		-time.Second:            0,
		0:                       0,
		time.Millisecond:        1,
		time.Second:             1,
		time.Second + 1:         2,
		59*time.Second + 999999: 60,
	}
	for d, want := range cases {
		if got := CeilSeconds(d); got != want {
			t.Errorf("CeilSeconds(%v) = %d, want %d", d, got, want)
		}
	}
}
