package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event is one lifecycle notification handed off by a session.
type Event struct {
	ID        uuid.UUID       `json:"id"`
	SessionID string          `json:"session_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewEvent marshals payload into a fresh event.
func NewEvent(sessionID, eventType string, payload any, now time.Time) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{
		ID:        uuid.New(),
		SessionID: sessionID,
		EventType: eventType,
		Payload:   data,
		CreatedAt: now,
	}, nil
}

type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}
