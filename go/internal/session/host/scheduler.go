package host

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// The heartbeat is a single one-shot timer re-armed after every tick and on
// every transition, so at most one is ever pending.

// replaceTimer cancels any pending heartbeat and arms a new one.
func (s *Session) replaceTimer(d time.Duration) {
	if s.timer != nil {
		stopAndDrainTimer(s.timer)
	}
	s.timer = s.clock.NewTimer(d)
	log.Debug().
		Str("session_id", s.ID).
		Dur("next_heartbeat", d).
		Msg("heartbeat armed")
}

// cancelTimer stops the heartbeat entirely.
func (s *Session) cancelTimer() {
	if s.timer == nil {
		return
	}
	stopAndDrainTimer(s.timer)
	s.timer = nil
}

// timerC is nil while no heartbeat is armed, which blocks its select case.
func (s *Session) timerC() <-chan time.Time {
	if s.timer == nil {
		return nil
	}
	return s.timer.Chan()
}

// nextHeartbeat lines ticks up with whole remaining intervals so the tick
// that observes expiry lands on the end timestamp.
func (s *Session) nextHeartbeat() time.Duration {
	interval := s.config.HeartbeatInterval
	rem := s.timeline.RemainingDuration()
	if rem <= 0 {
		return interval
	}
	if frac := rem % interval; frac > 0 {
		return frac
	}
	return interval
}

// stopAndDrainTimer safely stops a timer and drains its channel.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
