package outbox

import (
	"context"

	"github.com/rs/zerolog/log"
)

// LogPublisher writes events to the log. Used when no NATS URL is configured.
type LogPublisher struct{}

func NewLogPublisher() *LogPublisher {
	return &LogPublisher{}
}

func (p *LogPublisher) Publish(_ context.Context, event Event) error {
	log.Info().
		Str("event_id", event.ID.String()).
		Str("event_type", event.EventType).
		Str("session_id", event.SessionID).
		RawJSON("payload", event.Payload).
		Msg("session event")
	return nil
}
