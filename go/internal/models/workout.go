package models

import (
	"time"
)

// LocalDisplayID assigns a module to the host device itself.
const LocalDisplayID = "local"

// WorkoutModule is one exercise segment of a workout.
type WorkoutModule struct {
	ID          string `json:"id" yaml:"id"`
	ExerciseID  string `json:"exercise_id" yaml:"exercise_id"`
	DisplayID   string `json:"display_id" yaml:"display_id"`                     // station address, alias, or LocalDisplayID
	DurationSec *int   `json:"duration,omitempty" yaml:"duration,omitempty"` // overrides the exercise default
}

// IsLocal reports whether the module plays on the host device.
func (m WorkoutModule) IsLocal() bool {
	return NormalizeIdentity(m.DisplayID) == LocalDisplayID
}

// Workout is an ordered list of modules.
type Workout struct {
	ID            string          `json:"id" yaml:"id"`
	Name          string          `json:"name" yaml:"name"`
	Modules       []WorkoutModule `json:"modules" yaml:"modules"`
	LastModified  time.Time       `json:"last_modified" yaml:"last_modified"`
	ScheduledDays []int           `json:"scheduled_days,omitempty" yaml:"scheduled_days,omitempty"` // 0-6 for Sun-Sat
}

// Folder groups workouts for the operator's library.
type Folder struct {
	ID         string   `json:"id" yaml:"id"`
	Name       string   `json:"name" yaml:"name"`
	WorkoutIDs []string `json:"workout_ids" yaml:"workout_ids"`
}

// Clone returns a deep copy so a running session never shares module state with the catalog.
func (w Workout) Clone() Workout {
	out := w
	if w.Modules != nil {
		out.Modules = make([]WorkoutModule, len(w.Modules))
		for i, m := range w.Modules {
			out.Modules[i] = m
			if m.DurationSec != nil {
				d := *m.DurationSec
				out.Modules[i].DurationSec = &d
			}
		}
	}
	if w.ScheduledDays != nil {
		out.ScheduledDays = append([]int(nil), w.ScheduledDays...)
	}
	return out
}

// RemoteDisplayIDs returns the unique non-host station identities referenced by
// any module, normalized, in first-seen order.
func (w Workout) RemoteDisplayIDs() []string {
	seen := make(map[string]bool)
	var ids []string
	for _, m := range w.Modules {
		id := NormalizeIdentity(m.DisplayID)
		if id == "" || id == LocalDisplayID || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

// ResolveDuration returns the module's override, else the exercise default, else 0.
func ResolveDuration(m WorkoutModule, exercises map[string]Exercise) int {
	if m.DurationSec != nil {
		if *m.DurationSec < 0 {
			return 0
		}
		return *m.DurationSec
	}
	if ex, ok := exercises[m.ExerciseID]; ok && ex.DurationSec > 0 {
		return ex.DurationSec
	}
	return 0
}

// ResolveDurations resolves every module duration in order.
func ResolveDurations(w Workout, exercises map[string]Exercise) []int {
	durations := make([]int, len(w.Modules))
	for i, m := range w.Modules {
		durations[i] = ResolveDuration(m, exercises)
	}
	return durations
}
