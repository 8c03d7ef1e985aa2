package timeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/circuitcast/go/internal/models"
	"github.com/mcdev12/circuitcast/go/internal/session/events"
)

var ErrEmptyWorkout = errors.New("workout has no modules")

// Timeline is the authoritative position of a running workout. Remaining time
// is always derived from an absolute end timestamp, never decremented.
//
// A Timeline is not safe for concurrent use; the host loop owns it.
type Timeline struct {
	clock     clockwork.Clock
	workout   models.Workout
	durations []time.Duration

	index           int
	endsAt          time.Time
	paused          bool
	pausedRemaining time.Duration
}

// New clones the workout and starts its first module at clock.Now().
// durations holds the resolved seconds for each module.
func New(workout models.Workout, durations []int, clock clockwork.Clock) (*Timeline, error) {
	if len(workout.Modules) == 0 {
		return nil, ErrEmptyWorkout
	}
	if len(durations) != len(workout.Modules) {
		return nil, fmt.Errorf("got %d durations for %d modules", len(durations), len(workout.Modules))
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	t := &Timeline{
		clock:     clock,
		workout:   workout.Clone(),
		durations: make([]time.Duration, len(durations)),
	}
	for i, d := range durations {
		if d < 0 {
			d = 0
		}
		t.durations[i] = time.Duration(d) * time.Second
	}
	t.rebase(0)
	return t, nil
}

func (t *Timeline) Workout() models.Workout { return t.workout }
func (t *Timeline) Index() int              { return t.index }
func (t *Timeline) Len() int                { return len(t.workout.Modules) }
func (t *Timeline) Paused() bool            { return t.paused }
func (t *Timeline) EndsAt() time.Time       { return t.endsAt }

// Current returns the module at the current index.
func (t *Timeline) Current() models.WorkoutModule {
	return t.workout.Modules[t.index]
}

// ModuleDuration returns the resolved duration of module i.
func (t *Timeline) ModuleDuration(i int) time.Duration {
	if i < 0 || i >= len(t.durations) {
		return 0
	}
	return t.durations[i]
}

// RemainingDuration is endsAt - now while running and the captured value while paused.
func (t *Timeline) RemainingDuration() time.Duration {
	if t.paused {
		return t.pausedRemaining
	}
	d := t.endsAt.Sub(t.clock.Now())
	if d < 0 {
		return 0
	}
	return d
}

// Remaining returns whole seconds left in the current module, rounded up.
func (t *Timeline) Remaining() int {
	return CeilSeconds(t.RemainingDuration())
}

// Expired reports whether a running module has reached its end timestamp.
func (t *Timeline) Expired() bool {
	return !t.paused && !t.clock.Now().Before(t.endsAt)
}

// Pause freezes the remaining time. It returns false if already paused.
func (t *Timeline) Pause() bool {
	if t.paused {
		return false
	}
	t.pausedRemaining = t.RemainingDuration()
	t.paused = true
	return true
}

// Resume rebases endsAt to now plus the remaining time captured at pause.
func (t *Timeline) Resume() bool {
	if !t.paused {
		return false
	}
	t.endsAt = t.clock.Now().Add(t.pausedRemaining)
	t.paused = false
	t.pausedRemaining = 0
	return true
}

// Advance moves to the next module. It returns false on the last module.
func (t *Timeline) Advance() bool {
	return t.JumpTo(t.index + 1)
}

// Previous moves to the prior module. It returns false on the first module.
func (t *Timeline) Previous() bool {
	return t.JumpTo(t.index - 1)
}

// JumpTo sets the index and rebases the end timestamp to the module's full
// duration. Out of range indexes are rejected.
func (t *Timeline) JumpTo(i int) bool {
	if i < 0 || i >= len(t.workout.Modules) {
		return false
	}
	t.rebase(i)
	return true
}

func (t *Timeline) rebase(i int) {
	t.index = i
	d := t.durations[i]
	if t.paused {
		t.pausedRemaining = d
	}
	t.endsAt = t.clock.Now().Add(d)
}

// Snapshot builds the full SYNC message for the current state.
func (t *Timeline) Snapshot(sessionID string) events.Sync {
	now := t.clock.Now()
	workout := t.workout.Clone()
	index := t.index
	paused := t.paused
	remaining := t.Remaining()

	durations := make([]int, len(t.durations))
	for i, d := range t.durations {
		durations[i] = int(d / time.Second)
	}

	endsAt := t.endsAt
	if t.paused {
		endsAt = now.Add(t.pausedRemaining)
	}

	s := events.Sync{
		SessionID:    sessionID,
		SentAt:       now,
		Workout:      &workout,
		Durations:    durations,
		CurrentIndex: &index,
		EndsAt:       &endsAt,
		Paused:       &paused,
		RemainingSec: &remaining,
	}
	if t.paused {
		ms := t.pausedRemaining.Milliseconds()
		s.PausedRemainingMs = &ms
	}
	return s
}

// CeilSeconds rounds a positive duration up to whole seconds.
func CeilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
