package host

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/circuitcast/go/internal/models"
	"github.com/mcdev12/circuitcast/go/internal/session/events"
	"github.com/mcdev12/circuitcast/go/internal/session/gateway"
	"github.com/mcdev12/circuitcast/go/internal/session/outbox"
	"github.com/mcdev12/circuitcast/go/internal/session/timeline"
)

var (
	ErrSessionOver   = errors.New("session is over")
	ErrSessionActive = errors.New("a session is already running")
)

// Connections is the transport a session drives.
type Connections interface {
	Connect(ctx context.Context, identities []string)
	Accept(w http.ResponseWriter, r *http.Request) error
	Events() <-chan gateway.Event
	CloseAll()
	Stats() gateway.Stats
}

// Publisher receives lifecycle events. Enqueue must not block.
type Publisher interface {
	Enqueue(event outbox.Event) bool
}

type Config struct {
	HeartbeatInterval time.Duration
	Clock             clockwork.Clock
}

func DefaultConfig() Config {
	return Config{HeartbeatInterval: time.Second}
}

// Session owns one workout run. All state below the mutex divider is owned
// by the Run goroutine and must not be touched elsewhere.
type Session struct {
	ID string

	workout   models.Workout
	exercises map[string]models.Exercise
	conns     Connections
	publisher Publisher
	clock     clockwork.Clock
	config    Config
	logger    zerolog.Logger

	commands chan command
	done     chan struct{}

	statusMu sync.RWMutex
	status   Status

	// loop-owned
	state     State
	endReason string
	timeline  *timeline.Timeline
	timer     clockwork.Timer
	active    map[string]gateway.Channel
	startedAt time.Time
}

// NewSession prepares a session in LOADING. exercises is the read-only
// catalog map used to resolve module durations.
func NewSession(workout models.Workout, exercises map[string]models.Exercise, conns Connections, publisher Publisher, cfg Config) *Session {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultConfig().HeartbeatInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}

	id := uuid.New().String()
	s := &Session{
		ID:        id,
		workout:   workout.Clone(),
		exercises: exercises,
		conns:     conns,
		publisher: publisher,
		clock:     cfg.Clock,
		config:    cfg,
		logger:    log.With().Str("session_id", id).Str("workout_id", workout.ID).Logger(),
		commands:  make(chan command),
		done:      make(chan struct{}),
		state:     StateLoading,
		active:    make(map[string]gateway.Channel),
	}
	s.status = Status{
		SessionID:    id,
		WorkoutID:    workout.ID,
		WorkoutName:  workout.Name,
		State:        StateLoading,
		TotalModules: len(workout.Modules),
	}
	return s
}

// Done is closed when the loop has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Accept hands an inbound station connection to this session's transport.
func (s *Session) Accept(w http.ResponseWriter, r *http.Request) error {
	select {
	case <-s.done:
		http.Error(w, "session is no longer running", http.StatusGone)
		return ErrSessionOver
	default:
	}
	return s.conns.Accept(w, r)
}

// Stations reports the transport's open channels.
func (s *Session) Stations() gateway.Stats {
	return s.conns.Stats()
}

// Run starts the workout and processes ticks, commands and channel events
// until the session completes, is ended, or ctx is cancelled.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)

	if err := s.start(ctx); err != nil {
		s.conns.CloseAll()
		s.setState(StateComplete)
		return err
	}

	for {
		select {
		case <-ctx.Done():
			s.end("cancelled")
			return ctx.Err()

		case <-s.timerC():
			s.timer = nil
			s.onHeartbeat()

		case cmd := <-s.commands:
			s.handle(cmd)

		case ev := <-s.conns.Events():
			s.onChannel(ev)
		}

		if s.state.Terminal() {
			return nil
		}
	}
}

func (s *Session) start(ctx context.Context) error {
	durations := models.ResolveDurations(s.workout, s.exercises)
	tl, err := timeline.New(s.workout, durations, s.clock)
	if err != nil {
		return fmt.Errorf("building timeline: %w", err)
	}
	s.timeline = tl
	s.startedAt = s.clock.Now()

	stations := s.workout.RemoteDisplayIDs()
	total := 0
	for _, d := range durations {
		total += d
	}

	s.setState(StateRunning)
	s.logger.Info().
		Int("modules", tl.Len()).
		Int("total_duration_sec", total).
		Strs("stations", stations).
		Msg("session started")

	s.publish(events.EventSessionStarted, events.SessionStartedPayload{
		SessionID:     s.ID,
		WorkoutID:     s.workout.ID,
		WorkoutName:   s.workout.Name,
		TotalModules:  tl.Len(),
		TotalDuration: total,
		Stations:      stations,
		StartedAt:     s.startedAt,
	})
	s.publishModuleStarted(false)

	s.conns.Connect(ctx, stations)
	s.replaceTimer(s.nextHeartbeat())
	return nil
}

// onHeartbeat runs once per interval while RUNNING.
func (s *Session) onHeartbeat() {
	if s.state != StateRunning {
		return
	}

	if s.timeline.Expired() {
		s.setState(StateAdvancing)
		if !s.timeline.Advance() {
			s.complete()
			return
		}
		s.setState(StateRunning)
		s.logger.Info().Int("module_index", s.timeline.Index()).Msg("module advanced")
		s.publishModuleStarted(false)
	}

	s.broadcastSync()
	s.replaceTimer(s.nextHeartbeat())
}

func (s *Session) pause() bool {
	if s.state != StateRunning || !s.timeline.Pause() {
		return false
	}
	s.cancelTimer()
	s.setState(StatePaused)
	s.broadcastSync()

	s.logger.Info().Int("remaining_sec", s.timeline.Remaining()).Msg("session paused")
	s.publish(events.EventSessionPaused, events.SessionPausedPayload{
		SessionID:    s.ID,
		ModuleIndex:  s.timeline.Index(),
		RemainingSec: s.timeline.Remaining(),
		PausedAt:     s.clock.Now(),
	})
	return true
}

func (s *Session) resume() bool {
	if s.state != StatePaused || !s.timeline.Resume() {
		return false
	}
	s.setState(StateRunning)
	s.broadcastSync()
	s.replaceTimer(s.nextHeartbeat())

	s.logger.Info().Time("ends_at", s.timeline.EndsAt()).Msg("session resumed")
	s.publish(events.EventSessionResumed, events.SessionResumedPayload{
		SessionID:   s.ID,
		ModuleIndex: s.timeline.Index(),
		EndsAt:      s.timeline.EndsAt(),
		ResumedAt:   s.clock.Now(),
	})
	return true
}

// navigate applies an operator skip. Out of range skips are no-ops.
func (s *Session) navigate(step func() bool) bool {
	if s.state != StateRunning && s.state != StatePaused {
		return false
	}
	if !step() {
		return false
	}
	if s.state == StateRunning {
		s.replaceTimer(s.nextHeartbeat())
	}
	s.broadcastSync()
	s.syncStatus()

	s.logger.Info().Int("module_index", s.timeline.Index()).Msg("module skipped")
	s.publishModuleStarted(true)
	return true
}

// complete is the natural end: every module has run.
func (s *Session) complete() {
	s.finish("completed", events.EventSessionCompleted)
}

// end is the operator (or shutdown) end.
func (s *Session) end(reason string) {
	s.finish(reason, events.EventSessionEnded)
}

// finish stops the heartbeat, tells every open channel the session is over
// and closes them all before the loop exits.
func (s *Session) finish(reason, eventType string) {
	if s.state.Terminal() {
		return
	}
	s.cancelTimer()
	s.endReason = reason

	s.broadcast(events.EndSession{SessionID: s.ID, SentAt: s.clock.Now()})
	s.conns.CloseAll()
	for k := range s.active {
		delete(s.active, k)
	}

	s.setState(StateComplete)
	s.logger.Info().Str("reason", reason).Msg("session finished")
	s.publish(eventType, events.SessionFinishedPayload{
		SessionID:   s.ID,
		ModuleIndex: s.timeline.Index(),
		FinishedAt:  s.clock.Now(),
		Duration:    s.clock.Since(s.startedAt).Round(time.Second).String(),
	})
}

func (s *Session) onChannel(ev gateway.Event) {
	ch := ev.Channel
	switch ev.Kind {
	case gateway.Opened:
		for _, key := range ch.Identities() {
			if prev, ok := s.active[key]; ok && prev.ConnID() != ch.ConnID() {
				s.dropChannel(prev)
				prev.Close()
			}
			s.active[key] = ch
		}
		s.logger.Info().
			Strs("identities", ch.Identities()).
			Str("connection_id", ch.ConnID()).
			Msg("station connected")

		// a late or returning station gets state now, not at the next heartbeat
		s.sendTo(ch, s.timeline.Snapshot(s.ID))
		s.publishStation(events.EventStationConnected, ch)

	case gateway.Closed:
		if !s.dropChannel(ch) {
			return
		}
		s.logger.Info().
			Err(ev.Err).
			Strs("identities", ch.Identities()).
			Str("connection_id", ch.ConnID()).
			Msg("station disconnected")
		s.publishStation(events.EventStationDisconnected, ch)
	}
	s.syncStatus()
}

// dropChannel removes every key that points at ch.
func (s *Session) dropChannel(ch gateway.Channel) bool {
	removed := false
	for k, c := range s.active {
		if c.ConnID() == ch.ConnID() {
			delete(s.active, k)
			removed = true
		}
	}
	return removed
}

func (s *Session) broadcastSync() {
	s.broadcast(s.timeline.Snapshot(s.ID))
}

// broadcast sends msg once to every distinct open channel.
func (s *Session) broadcast(msg events.Message) {
	data, err := events.Encode(msg)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to encode message")
		return
	}

	sent := make(map[string]bool, len(s.active))
	delivered := 0
	for _, ch := range s.active {
		if sent[ch.ConnID()] {
			continue
		}
		sent[ch.ConnID()] = true
		if ch.Send(data) {
			delivered++
		}
	}

	s.logger.Debug().
		Str("type", string(msg.Type())).
		Int("channels", len(sent)).
		Int("delivered", delivered).
		Msg("broadcast")
}

func (s *Session) sendTo(ch gateway.Channel, msg events.Message) {
	data, err := events.Encode(msg)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to encode message")
		return
	}
	ch.Send(data)
}

func (s *Session) publish(eventType string, payload any) {
	if s.publisher == nil {
		return
	}
	ev, err := outbox.NewEvent(s.ID, eventType, payload, s.clock.Now())
	if err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("failed to build event")
		return
	}
	s.publisher.Enqueue(ev)
}

func (s *Session) publishModuleStarted(manual bool) {
	m := s.timeline.Current()
	s.publish(events.EventModuleStarted, events.ModuleStartedPayload{
		SessionID:   s.ID,
		ModuleIndex: s.timeline.Index(),
		ModuleID:    m.ID,
		ExerciseID:  m.ExerciseID,
		DisplayID:   m.DisplayID,
		DurationSec: int(s.timeline.ModuleDuration(s.timeline.Index()) / time.Second),
		EndsAt:      s.timeline.EndsAt(),
		Manual:      manual,
	})
}

func (s *Session) publishStation(eventType string, ch gateway.Channel) {
	ids := ch.Identities()
	stationID := ""
	if len(ids) > 0 {
		stationID = ids[0]
	}
	inbound := false
	if p, ok := ch.(*gateway.Peer); ok {
		inbound = p.Inbound
	}
	s.publish(eventType, events.StationPayload{
		SessionID:    s.ID,
		StationID:    stationID,
		ConnectionID: ch.ConnID(),
		Inbound:      inbound,
		At:           s.clock.Now(),
	})
}

func (s *Session) setState(state State) {
	s.state = state
	s.syncStatus()
}

// syncStatus copies loop-owned state into the snapshot read by Status.
func (s *Session) syncStatus() {
	st := Status{
		SessionID:    s.ID,
		WorkoutID:    s.workout.ID,
		WorkoutName:  s.workout.Name,
		State:        s.state,
		EndReason:    s.endReason,
		TotalModules: len(s.workout.Modules),
		StartedAt:    s.startedAt,
	}

	seen := make(map[string]bool)
	for _, ch := range s.active {
		if !seen[ch.ConnID()] {
			seen[ch.ConnID()] = true
			st.Stations = append(st.Stations, ch.Identities()...)
		}
	}

	if s.timeline != nil {
		idx := s.timeline.Index()
		m := s.timeline.Current()
		st.ModuleIndex = idx
		st.Progress = fmt.Sprintf("%d/%d", idx+1, s.timeline.Len())
		st.Module = &m
		if ex, ok := s.exercises[m.ExerciseID]; ok {
			st.Exercise = &ex
		}
		st.DurationSec = int(s.timeline.ModuleDuration(idx) / time.Second)
		st.Paused = s.timeline.Paused()
		st.EndsAt = s.timeline.EndsAt()
		st.RemainingSec = s.timeline.Remaining()
		st.CanPrevious = idx > 0 && !s.state.Terminal()
		st.CanNext = idx < s.timeline.Len()-1 && !s.state.Terminal()
		if s.state.Terminal() {
			st.RemainingSec = 0
		}
	}

	s.statusMu.Lock()
	s.status = st
	s.statusMu.Unlock()
}

// Status returns the latest snapshot with remaining time computed now.
func (s *Session) Status() Status {
	s.statusMu.RLock()
	st := s.status
	s.statusMu.RUnlock()

	if st.State == StateRunning && !st.EndsAt.IsZero() {
		st.RemainingSec = timeline.CeilSeconds(st.EndsAt.Sub(s.clock.Now()))
	}
	return st
}
