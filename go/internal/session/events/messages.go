package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mcdev12/circuitcast/go/internal/models"
)

// MessageType tags every host to station message on the wire.
type MessageType string

const (
	TypeSync       MessageType = "SYNC"
	TypeEndSession MessageType = "END_SESSION"
)

// ErrUnknownMessage is returned by Decode for any type outside the closed set.
var ErrUnknownMessage = errors.New("unknown message type")

// Envelope is the JSON frame written to a station channel.
type Envelope struct {
	Type      MessageType     `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	SentAt    time.Time       `json:"sent_at"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Message is implemented only by Sync and EndSession.
type Message interface {
	Type() MessageType
	Session() string
	isMessage()
}

// Sync is one snapshot of the host timeline. Every field is optional on
// receipt: an absent field means "no change", never "reset".
type Sync struct {
	SessionID string    `json:"-"`
	SentAt    time.Time `json:"-"`

	Workout      *models.Workout `json:"workout,omitempty"`
	Durations    []int           `json:"durations,omitempty"` // resolved seconds per module
	CurrentIndex *int            `json:"current_index,omitempty"`
	EndsAt       *time.Time      `json:"ends_at,omitempty"` // authoritative end of the current module, host clock
	Paused       *bool           `json:"paused,omitempty"`

	PausedRemainingMs *int64 `json:"paused_remaining_ms,omitempty"`
	RemainingSec      *int   `json:"remaining_sec,omitempty"` // convenience copy derived from EndsAt at send time
}

func (Sync) Type() MessageType { return TypeSync }
func (s Sync) Session() string { return s.SessionID }
func (Sync) isMessage() {}

// HasTiming reports whether the snapshot carries enough to derive remaining time.
func (s Sync) HasTiming() bool {
	_, ok := s.Remaining()
	return ok
}

// Remaining returns the module time left at the moment the host sent the
// snapshot. It is derived from EndsAt and SentAt, both host clock, so station
// clock skew never enters the calculation.
func (s Sync) Remaining() (time.Duration, bool) {
	if s.Paused != nil && *s.Paused && s.PausedRemainingMs != nil {
		return clampDuration(time.Duration(*s.PausedRemainingMs) * time.Millisecond), true
	}
	if s.EndsAt != nil && !s.SentAt.IsZero() {
		return clampDuration(s.EndsAt.Sub(s.SentAt)), true
	}
	if s.RemainingSec != nil {
		return clampDuration(time.Duration(*s.RemainingSec) * time.Second), true
	}
	return 0, false
}

// EndSession tells a station to drop all session state.
type EndSession struct {
	SessionID string
	SentAt    time.Time
}

func (EndSession) Type() MessageType { return TypeEndSession }
func (e EndSession) Session() string { return e.SessionID }
func (EndSession) isMessage() {}

// Encode frames a message for the wire.
func Encode(msg Message) ([]byte, error) {
	env := Envelope{Type: msg.Type(), SessionID: msg.Session()}

	switch m := msg.(type) {
	case Sync:
		env.SentAt = m.SentAt
		data, err := json.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("marshal sync payload: %w", err)
		}
		env.Data = data
	case EndSession:
		env.SentAt = m.SentAt
	}

	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return b, nil
}

// Decode parses a wire frame into one of the closed message variants.
func Decode(b []byte) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	switch env.Type {
	case TypeSync:
		var s Sync
		if len(env.Data) > 0 && string(env.Data) != "null" {
			if err := json.Unmarshal(env.Data, &s); err != nil {
				return nil, fmt.Errorf("unmarshal sync payload: %w", err)
			}
		}
		s.SessionID = env.SessionID
		s.SentAt = env.SentAt
		return s, nil
	case TypeEndSession:
		return EndSession{SessionID: env.SessionID, SentAt: env.SentAt}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, env.Type)
	}
}

func clampDuration(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
