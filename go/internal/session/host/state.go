package host

import (
	"time"

	"github.com/mcdev12/circuitcast/go/internal/models"
)

// State is the broadcaster's lifecycle position.
type State string

const (
	StateLoading   State = "LOADING"
	StateRunning   State = "RUNNING"
	StatePaused    State = "PAUSED"
	StateAdvancing State = "ADVANCING"
	StateComplete  State = "COMPLETE"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateComplete
}

// Status is a read-only view of a session for the control API.
type Status struct {
	SessionID    string                `json:"session_id"`
	WorkoutID    string                `json:"workout_id"`
	WorkoutName  string                `json:"workout_name"`
	State        State                 `json:"state"`
	EndReason    string                `json:"end_reason,omitempty"`
	ModuleIndex  int                   `json:"module_index"`
	TotalModules int                   `json:"total_modules"`
	Progress     string                `json:"progress"`
	Module       *models.WorkoutModule `json:"module,omitempty"`
	Exercise     *models.Exercise      `json:"exercise,omitempty"`
	DurationSec  int                   `json:"duration_sec"`
	RemainingSec int                   `json:"remaining_sec"`
	EndsAt       time.Time             `json:"ends_at"`
	Paused       bool                  `json:"paused"`
	CanPrevious  bool                  `json:"can_previous"`
	CanNext      bool                  `json:"can_next"`
	Stations     []string              `json:"stations"`
	StartedAt    time.Time             `json:"started_at"`
}
