package station

import (
	"time"

	"github.com/mcdev12/circuitcast/go/internal/models"
	"github.com/mcdev12/circuitcast/go/internal/session/events"
)

// SessionState is the field-by-field merge of every SYNC received for one
// session. Absent fields never overwrite known ones.
type SessionState struct {
	SessionID    string
	Workout      *models.Workout
	Durations    []int
	CurrentIndex int
	HasIndex     bool
	Paused       bool

	// Remaining is the host's authoritative value as of ReceivedAt (local clock).
	Remaining  time.Duration
	HasTiming  bool
	ReceivedAt time.Time
}

// Merge applies a snapshot received at now. It returns true when the
// snapshot belongs to a different session and replaced the state.
func (st *SessionState) Merge(s events.Sync, now time.Time) bool {
	replaced := false
	if s.SessionID != "" && st.SessionID != "" && s.SessionID != st.SessionID {
		*st = SessionState{}
		replaced = true
	}
	if s.SessionID != "" {
		st.SessionID = s.SessionID
	}
	if s.Workout != nil {
		w := s.Workout.Clone()
		st.Workout = &w
	}
	if s.Durations != nil {
		st.Durations = append([]int(nil), s.Durations...)
	}
	if s.CurrentIndex != nil {
		st.CurrentIndex = *s.CurrentIndex
		st.HasIndex = true
	}
	if s.Paused != nil {
		st.Paused = *s.Paused
	}
	if rem, ok := s.Remaining(); ok {
		st.Remaining = rem
		st.HasTiming = true
		st.ReceivedAt = now
	}
	return replaced
}

// AuthoritativeRemaining projects the host's remaining time to now.
func (st *SessionState) AuthoritativeRemaining(now time.Time) time.Duration {
	if !st.HasTiming {
		return 0
	}
	if st.Paused {
		return st.Remaining
	}
	d := st.Remaining - now.Sub(st.ReceivedAt)
	if d < 0 {
		return 0
	}
	return d
}

// ModuleDuration returns the resolved duration of module i in seconds.
func (st *SessionState) ModuleDuration(i int, exercises map[string]models.Exercise) int {
	if i >= 0 && i < len(st.Durations) {
		return st.Durations[i]
	}
	if st.Workout == nil || i < 0 || i >= len(st.Workout.Modules) {
		return 0
	}
	return models.ResolveDuration(st.Workout.Modules[i], exercises)
}
