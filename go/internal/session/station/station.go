package station

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/circuitcast/go/internal/models"
	"github.com/mcdev12/circuitcast/go/internal/session/events"
)

var ErrStopped = errors.New("station stopped")

type Config struct {
	Identity       models.StationIdentity
	Exercises      map[string]models.Exercise
	DriftTolerance time.Duration
	Clock          clockwork.Clock
}

// Snapshot is the station's published state for HTTP readers.
type Snapshot struct {
	View
	SessionID    string  `json:"session_id,omitempty"`
	Address      string  `json:"address"`
	Alias        string  `json:"alias,omitempty"`
	Connected    bool    `json:"connected"`
	ClockRunning bool    `json:"clock_running"`
	Progress     float64 `json:"progress"` // remaining / duration of the shown module
}

type linkKind int

const (
	linkMessage linkKind = iota
	linkUp
	linkDown
)

// linkEvent is one host link change or frame, tagged with the connection it
// came from. An empty conn marks a message raised by the station itself.
type linkEvent struct {
	kind linkKind
	conn string
	msg  events.Message
}

type aliasChange struct {
	alias string
	done  chan struct{}
}

// Station runs one event loop owning the merged session state, the derived
// view and the local clock.
type Station struct {
	clock    clockwork.Clock
	resolver Resolver
	local    *LocalClock
	logger   zerolog.Logger

	inbox   chan linkEvent // link events in arrival order
	aliases chan aliasChange
	done    chan struct{}

	// loop-owned
	link      string // connection id of the current host link
	identity  models.StationIdentity
	state     *SessionState
	view      View
	connected bool

	mu       sync.RWMutex
	snapshot Snapshot
}

func New(cfg Config) *Station {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	s := &Station{
		clock:    cfg.Clock,
		resolver: Resolver{Exercises: cfg.Exercises},
		local:    NewLocalClock(cfg.Clock, cfg.DriftTolerance),
		logger:   log.With().Str("station_id", cfg.Identity.Address).Logger(),
		inbox:    make(chan linkEvent, 16),
		aliases:  make(chan aliasChange),
		done:     make(chan struct{}),
		identity: cfg.Identity,
		view:     IdleView(),
	}
	s.publish()
	return s
}

// Run processes messages, clock ticks and connection changes until ctx ends.
func (s *Station) Run(ctx context.Context) {
	defer close(s.done)
	defer s.local.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev := <-s.inbox:
			s.onLink(ev)

		case <-s.local.C():
			s.onTick()

		case a := <-s.aliases:
			s.onAlias(a.alias)
			close(a.done)
		}
	}
}

// onLink drops disconnects and frames from a connection that has already
// been replaced.
func (s *Station) onLink(ev linkEvent) {
	switch ev.kind {
	case linkUp:
		s.link = ev.conn
		s.onConnected()
	case linkDown:
		if ev.conn != s.link {
			s.logger.Debug().Str("connection_id", ev.conn).Msg("ignoring disconnect of replaced link")
			return
		}
		s.link = ""
		s.onDisconnected()
	case linkMessage:
		if ev.conn != "" && ev.conn != s.link {
			s.logger.Debug().Str("connection_id", ev.conn).Msg("ignoring frame from replaced link")
			return
		}
		s.onMessage(ev.msg)
	}
}

func (s *Station) onTick() {
	s.local.Tick()
	s.refresh()
}

func (s *Station) onConnected() {
	s.connected = true
	s.refresh()
}

// onDisconnected keeps showing the last state, frozen.
func (s *Station) onDisconnected() {
	s.connected = false
	s.local.Stop()
	s.logger.Info().Bool("in_session", s.state != nil).Msg("host connection lost")
	s.refresh()
}

func (s *Station) onAlias(alias string) {
	s.identity.Alias = alias
	s.logger.Info().Str("alias", alias).Msg("alias changed")
	s.resolve()
}

// Deliver hands a message raised by the station itself to the loop.
func (s *Station) Deliver(ctx context.Context, msg events.Message) error {
	return s.send(ctx, linkEvent{kind: linkMessage, msg: msg})
}

// DeliverFrom hands a decoded host frame received on conn to the loop.
func (s *Station) DeliverFrom(ctx context.Context, conn string, msg events.Message) error {
	return s.send(ctx, linkEvent{kind: linkMessage, conn: conn, msg: msg})
}

// Connected makes conn the current host link.
func (s *Station) Connected(ctx context.Context, conn string) error {
	return s.send(ctx, linkEvent{kind: linkUp, conn: conn})
}

// Disconnected reports that conn dropped. It is ignored once another link
// has connected.
func (s *Station) Disconnected(ctx context.Context, conn string) error {
	return s.send(ctx, linkEvent{kind: linkDown, conn: conn})
}

func (s *Station) send(ctx context.Context, ev linkEvent) error {
	select {
	case s.inbox <- ev:
		return nil
	case <-s.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetAlias changes the identity used for matching and re-resolves.
func (s *Station) SetAlias(ctx context.Context, alias string) error {
	a := aliasChange{alias: alias, done: make(chan struct{})}
	select {
	case s.aliases <- a:
	case <-s.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the latest published state.
func (s *Station) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// InSession reports whether the station holds state for a session.
func (s *Station) InSession() (string, bool) {
	snap := s.Snapshot()
	return snap.SessionID, snap.SessionID != ""
}

func (s *Station) onMessage(msg events.Message) {
	switch m := msg.(type) {
	case events.Sync:
		s.connected = true
		if s.state == nil {
			s.state = &SessionState{}
			s.logger.Info().Str("session_id", m.SessionID).Msg("joined session")
		}
		if s.state.Merge(m, s.clock.Now()) {
			s.logger.Info().Str("session_id", m.SessionID).Msg("new session replaced previous state")
			s.local.Stop()
			s.local.Set(0)
			s.view = IdleView()
		}
		s.resolve()

	case events.EndSession:
		if s.state != nil && m.SessionID != "" && s.state.SessionID != "" && m.SessionID != s.state.SessionID {
			s.logger.Debug().Str("session_id", m.SessionID).Msg("ignoring end for another session")
			return
		}
		s.state = nil
		s.local.Stop()
		s.local.Set(0)
		s.view = IdleView()
		s.logger.Info().Msg("session ended")
		s.refresh()
	}
}

// resolve recomputes the view and applies the resulting clock action.
func (s *Station) resolve() {
	v, action := s.resolver.Resolve(s.identity, s.view, s.state)

	switch action {
	case ClockHardSync:
		s.local.Set(s.authoritative(v))
	case ClockReconcile:
		auth := s.authoritative(v)
		if v.Paused {
			s.local.Set(auth)
		} else if s.local.Reconcile(auth) {
			s.logger.Debug().
				Int("module_index", v.ModuleIndex).
				Dur("authoritative", auth).
				Msg("local clock corrected")
		}
	case ClockResetFull:
		s.local.Set(time.Duration(v.DurationSec) * time.Second)
	case ClockClear:
		s.local.Set(0)
	case ClockKeep:
	}

	if v.Status == StatusActive && !v.Paused && s.connected {
		s.local.Start()
	} else {
		s.local.Stop()
	}

	if v.Status != s.view.Status || v.ModuleIndex != s.view.ModuleIndex {
		s.logger.Info().
			Str("status", string(v.Status)).
			Int("module_index", v.ModuleIndex).
			Int("host_index", v.HostIndex).
			Msg("view changed")
	}
	s.view = v
	s.refresh()
}

func (s *Station) authoritative(v View) time.Duration {
	if s.state == nil || !s.state.HasTiming {
		return time.Duration(v.DurationSec) * time.Second
	}
	return s.state.AuthoritativeRemaining(s.clock.Now())
}

// refresh updates the remaining seconds from the local clock and publishes.
func (s *Station) refresh() {
	if s.view.Status == StatusIdle {
		s.view.RemainingSec = 0
	} else {
		s.view.RemainingSec = s.local.Remaining()
	}
	s.publish()
}

func (s *Station) publish() {
	snap := Snapshot{
		View:         s.view,
		Address:      s.identity.Address,
		Alias:        s.identity.Alias,
		Connected:    s.connected,
		ClockRunning: s.local.Running(),
	}
	if s.state != nil {
		snap.SessionID = s.state.SessionID
	}
	if s.view.DurationSec > 0 {
		snap.Progress = float64(s.view.RemainingSec) / float64(s.view.DurationSec)
	}

	s.mu.Lock()
	s.snapshot = snap
	s.mu.Unlock()
}
