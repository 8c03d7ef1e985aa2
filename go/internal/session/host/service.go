package host

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/circuitcast/go/internal/models"
)

// Catalog is what the service needs to go live with a workout.
type Catalog interface {
	GetWorkout(ctx context.Context, id string) (*models.Workout, error)
	Lookup(ctx context.Context, w models.Workout) (map[string]models.Exercise, error)
}

// ConnectionsFactory builds the transport for a new session.
type ConnectionsFactory func(sessionID string) Connections

// Service runs at most one session at a time.
type Service struct {
	catalog        Catalog
	newConnections ConnectionsFactory
	publisher      Publisher
	config         Config

	mu      sync.Mutex
	current *Session
	cancel  context.CancelFunc
}

func NewService(catalog Catalog, newConnections ConnectionsFactory, publisher Publisher, cfg Config) *Service {
	return &Service{
		catalog:        catalog,
		newConnections: newConnections,
		publisher:      publisher,
		config:         cfg,
	}
}

// Start loads the workout and goes live. It fails with ErrSessionActive while
// another session is still running.
func (s *Service) Start(ctx context.Context, workoutID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil && !isDone(s.current) {
		return nil, ErrSessionActive
	}

	w, err := s.catalog.GetWorkout(ctx, workoutID)
	if err != nil {
		return nil, fmt.Errorf("loading workout: %w", err)
	}
	exercises, err := s.catalog.Lookup(ctx, *w)
	if err != nil {
		return nil, fmt.Errorf("loading exercises: %w", err)
	}

	sess := NewSession(*w, exercises, nil, s.publisher, s.config)
	sess.conns = s.newConnections(sess.ID)

	runCtx, cancel := context.WithCancel(context.Background())
	s.current = sess
	s.cancel = cancel

	go func() {
		if err := sess.Run(runCtx); err != nil && runCtx.Err() == nil {
			log.Error().Err(err).Str("session_id", sess.ID).Msg("session stopped with error")
		}
		cancel()
	}()

	return sess, nil
}

// Current returns the running or most recently finished session, or nil.
func (s *Service) Current() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Stop ends the running session, if any.
func (s *Service) Stop(ctx context.Context) error {
	sess := s.Current()
	if sess == nil || isDone(sess) {
		return ErrSessionOver
	}
	return sess.End(ctx)
}

// Shutdown cancels the running session without waiting on operator commands.
func (s *Service) Shutdown(ctx context.Context) {
	s.mu.Lock()
	sess, cancel := s.current, s.cancel
	s.mu.Unlock()

	if sess == nil {
		return
	}
	cancel()
	select {
	case <-sess.Done():
	case <-ctx.Done():
	}
}

// AcceptStation routes an inbound station connection to the running session.
func (s *Service) AcceptStation(w http.ResponseWriter, r *http.Request) {
	sess := s.Current()
	if sess == nil || isDone(sess) {
		http.Error(w, "no session running", http.StatusConflict)
		return
	}
	if err := sess.Accept(w, r); err != nil {
		log.Warn().Err(err).Str("session_id", sess.ID).Msg("rejected station connection")
	}
}

func isDone(sess *Session) bool {
	select {
	case <-sess.Done():
		return true
	default:
		return false
	}
}
