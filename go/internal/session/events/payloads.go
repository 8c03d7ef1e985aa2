package events

import (
	"time"
)

// Lifecycle event types published by the host outside the station wire protocol.
const (
	EventSessionStarted      = "session.started"
	EventModuleStarted       = "module.started"
	EventSessionPaused       = "session.paused"
	EventSessionResumed      = "session.resumed"
	EventSessionCompleted    = "session.completed"
	EventSessionEnded        = "session.ended"
	EventStationConnected    = "station.connected"
	EventStationDisconnected = "station.disconnected"
)

// SessionStartedPayload is the payload for a session.started event
type SessionStartedPayload struct {
	SessionID     string    `json:"session_id"`
	WorkoutID     string    `json:"workout_id"`
	WorkoutName   string    `json:"workout_name"`
	TotalModules  int       `json:"total_modules"`
	TotalDuration int       `json:"total_duration_sec"`
	Stations      []string  `json:"stations"`
	StartedAt     time.Time `json:"started_at"`
}

// ModuleStartedPayload is the payload for a module.started event
type ModuleStartedPayload struct {
	SessionID   string    `json:"session_id"`
	ModuleIndex int       `json:"module_index"`
	ModuleID    string    `json:"module_id"`
	ExerciseID  string    `json:"exercise_id"`
	DisplayID   string    `json:"display_id"`
	DurationSec int       `json:"duration_sec"`
	EndsAt      time.Time `json:"ends_at"`
	Manual      bool      `json:"manual"` // operator skip rather than expiry
}

// SessionPausedPayload is the payload for a session.paused event
type SessionPausedPayload struct {
	SessionID    string    `json:"session_id"`
	ModuleIndex  int       `json:"module_index"`
	RemainingSec int       `json:"remaining_sec"`
	PausedAt     time.Time `json:"paused_at"`
}

// SessionResumedPayload is the payload for a session.resumed event
type SessionResumedPayload struct {
	SessionID   string    `json:"session_id"`
	ModuleIndex int       `json:"module_index"`
	EndsAt      time.Time `json:"ends_at"`
	ResumedAt   time.Time `json:"resumed_at"`
}

// SessionFinishedPayload is shared by session.completed and session.ended
type SessionFinishedPayload struct {
	SessionID   string    `json:"session_id"`
	ModuleIndex int       `json:"module_index"`
	FinishedAt  time.Time `json:"finished_at"`
	Duration    string    `json:"duration"`
}

// StationPayload is shared by station.connected and station.disconnected
type StationPayload struct {
	SessionID    string    `json:"session_id"`
	StationID    string    `json:"station_id"`
	ConnectionID string    `json:"connection_id"`
	Inbound      bool      `json:"inbound"`
	At           time.Time `json:"at"`
}
