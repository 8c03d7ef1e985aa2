package station

import (
	"github.com/mcdev12/circuitcast/go/internal/models"
)

// Status is what the station is showing.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusUpcoming Status = "UPCOMING"
	StatusIdle     Status = "IDLE"
)

// ClockAction tells the station loop what to do with its local clock after
// a resolution.
type ClockAction int

const (
	ClockKeep ClockAction = iota
	ClockHardSync
	ClockReconcile
	ClockResetFull
	ClockClear
)

// View is the station's derived render state. It is never sent anywhere.
type View struct {
	Status       Status                `json:"status"`
	ModuleIndex  int                   `json:"module_index"`
	Module       *models.WorkoutModule `json:"module,omitempty"`
	Exercise     *models.Exercise      `json:"exercise,omitempty"`
	DurationSec  int                   `json:"duration_sec"`
	RemainingSec int                   `json:"remaining_sec"`
	Paused       bool                  `json:"paused"`
	HostIndex    int                   `json:"host_index"`
	TotalModules int                   `json:"total_modules"`
}

// IdleView is shown with no session or no assignment.
func IdleView() View {
	return View{Status: StatusIdle, ModuleIndex: -1, HostIndex: -1}
}

// Resolver decides which module, if any, belongs to this station.
type Resolver struct {
	Exercises map[string]models.Exercise
}

// Resolve computes the next view from the merged state. prev is the view
// before this snapshot arrived.
func (r Resolver) Resolve(id models.StationIdentity, prev View, st *SessionState) (View, ClockAction) {
	if st == nil || st.Workout == nil || !st.HasIndex || len(st.Workout.Modules) == 0 {
		if prev.Status == "" {
			return IdleView(), ClockClear
		}
		// partial snapshot: nothing to resolve against yet
		return prev, ClockKeep
	}

	modules := st.Workout.Modules
	cur := st.CurrentIndex
	if cur < 0 {
		cur = 0
	}
	if cur >= len(modules) {
		cur = len(modules) - 1
	}

	if id.Matches(modules[cur].DisplayID) {
		v := r.view(StatusActive, cur, st)
		if prev.Status == StatusActive && prev.ModuleIndex == cur {
			return v, ClockReconcile
		}
		return v, ClockHardSync
	}

	next := -1
	for i := cur + 1; i < len(modules); i++ {
		if id.Matches(modules[i].DisplayID) {
			next = i
			break
		}
	}
	if next < 0 {
		v := IdleView()
		v.HostIndex = cur
		v.TotalModules = len(modules)
		return v, ClockClear
	}

	v := r.view(StatusUpcoming, next, st)
	if (prev.Status == StatusActive || prev.Status == StatusUpcoming) && prev.ModuleIndex == next {
		return v, ClockKeep
	}
	return v, ClockResetFull
}

func (r Resolver) view(status Status, idx int, st *SessionState) View {
	m := st.Workout.Modules[idx]
	v := View{
		Status:       status,
		ModuleIndex:  idx,
		Module:       &m,
		DurationSec:  st.ModuleDuration(idx, r.Exercises),
		Paused:       st.Paused,
		HostIndex:    st.CurrentIndex,
		TotalModules: len(st.Workout.Modules),
	}
	if ex, ok := r.Exercises[m.ExerciseID]; ok {
		v.Exercise = &ex
	}
	return v
}
