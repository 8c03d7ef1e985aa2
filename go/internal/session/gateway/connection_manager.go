package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/circuitcast/go/internal/models"
)

// Header names carried on host to station dials.
const (
	HeaderCallback = "X-Circuitcast-Callback"
	HeaderSession  = "X-Circuitcast-Session"
)

// EventKind says whether a channel opened or closed.
type EventKind int

const (
	Opened EventKind = iota + 1
	Closed
)

func (k EventKind) String() string {
	switch k {
	case Opened:
		return "opened"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Channel is the view of a Peer the session loop works with.
type Channel interface {
	ConnID() string
	Identities() []string
	Send(msg []byte) bool
	Close()
}

// Event reports a channel transition to the session loop.
type Event struct {
	Kind    EventKind
	Channel Channel
	Err     error
}

// ConnectionManager opens and tracks the channels for one session. It never
// retries a failed dial; a station that drops comes back by dialing Accept.
type ConnectionManager struct {
	sessionID   string
	callbackURL string

	config   ConnectionConfig
	locator  Locator
	upgrader websocket.Upgrader
	dialer   *websocket.Dialer

	events chan Event
	closed chan struct{} // closed under mu by CloseAll

	mu       sync.RWMutex
	shutdown bool
	peers    map[string]*Peer // by connection id
}

// NewConnectionManager creates a manager for one session. callbackURL is the
// host's inbound station endpoint; stations dial it after a drop.
func NewConnectionManager(sessionID, callbackURL string, locator Locator, config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		sessionID:   sessionID,
		callbackURL: callbackURL,
		config:      config,
		locator:     locator,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		dialer: &websocket.Dialer{
			HandshakeTimeout: config.DialTimeout,
			ReadBufferSize:   config.ReadBufferSize,
			WriteBufferSize:  config.WriteBufferSize,
		},
		events: make(chan Event, 64),
		closed: make(chan struct{}),
		peers:  make(map[string]*Peer),
	}
}

// Events is consumed by the session loop.
func (cm *ConnectionManager) Events() <-chan Event {
	return cm.events
}

// Connect dials every identity concurrently. Failures are logged; the
// station is simply absent from broadcasts.
func (cm *ConnectionManager) Connect(ctx context.Context, identities []string) {
	for _, id := range identities {
		go cm.dial(ctx, id)
	}
}

func (cm *ConnectionManager) dial(ctx context.Context, identity string) {
	logger := log.With().
		Str("session_id", cm.sessionID).
		Str("station_id", identity).
		Logger()

	if cm.locator == nil {
		logger.Warn().Msg("no station locator configured, waiting for inbound connection")
		return
	}

	url, err := cm.locator.Locate(ctx, identity)
	if err != nil {
		logger.Warn().Err(err).Msg("station not located")
		return
	}

	header := http.Header{}
	header.Set(HeaderSession, cm.sessionID)
	if cm.callbackURL != "" {
		header.Set(HeaderCallback, cm.callbackURL)
	}

	conn, _, err := cm.dialer.DialContext(ctx, url, header)
	if err != nil {
		logger.Warn().Err(err).Str("url", url).Msg("station dial failed")
		return
	}

	logger.Info().Str("url", url).Msg("station channel opened")
	cm.register(conn, identity, "", false)
}

// Accept upgrades an inbound station connection. The station identifies
// itself with station_id and an optional alias.
func (cm *ConnectionManager) Accept(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()
	stationID := models.NormalizeIdentity(q.Get("station_id"))
	if stationID == "" {
		http.Error(w, "station_id is required", http.StatusBadRequest)
		return fmt.Errorf("station_id is required")
	}
	if sid := q.Get("session_id"); sid != "" && sid != cm.sessionID {
		http.Error(w, "session is no longer running", http.StatusGone)
		return fmt.Errorf("station %s asked for session %s", stationID, sid)
	}

	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	log.Info().
		Str("session_id", cm.sessionID).
		Str("station_id", stationID).
		Msg("station reconnected")
	cm.register(conn, stationID, models.NormalizeIdentity(q.Get("alias")), true)
	return nil
}

func (cm *ConnectionManager) register(conn *websocket.Conn, stationID, alias string, inbound bool) {
	peer := NewPeer(conn, stationID, inbound, cm.config, PeerHandler{
		OnMessage: func(p *Peer, msg []byte) {
			log.Debug().
				Str("connection_id", p.ID).
				Str("station_id", p.StationID).
				Int("bytes", len(msg)).
				Msg("ignoring station frame")
		},
		OnClose: func(p *Peer, err error) {
			cm.mu.Lock()
			delete(cm.peers, p.ID)
			cm.mu.Unlock()
			cm.emit(Event{Kind: Closed, Channel: p, Err: err})
		},
	})
	peer.Alias = alias

	cm.mu.Lock()
	if cm.shutdown {
		cm.mu.Unlock()
		conn.Close()
		return
	}
	cm.peers[peer.ID] = peer
	cm.mu.Unlock()

	// Opened must reach the loop before any Closed for the same peer.
	cm.emit(Event{Kind: Opened, Channel: peer})
	peer.Start()
}

func (cm *ConnectionManager) emit(ev Event) {
	select {
	case cm.events <- ev:
	case <-cm.closed:
	}
}

// CloseAll closes every channel and stops reporting events.
func (cm *ConnectionManager) CloseAll() {
	cm.mu.Lock()
	if !cm.shutdown {
		cm.shutdown = true
		close(cm.closed)
	}
	peers := make([]*Peer, 0, len(cm.peers))
	for _, p := range cm.peers {
		peers = append(peers, p)
	}
	cm.mu.Unlock()

	for _, p := range peers {
		p.Close()
	}
}

// PeerInfo describes one open channel.
type PeerInfo struct {
	ConnectionID string `json:"connection_id"`
	StationID    string `json:"station_id"`
	Alias        string `json:"alias,omitempty"`
	Inbound      bool   `json:"inbound"`
	ConnectedAt  string `json:"connected_at"`
}

// Stats summarizes open channels
type Stats struct {
	TotalConnections int        `json:"total_connections"`
	Inbound          int        `json:"inbound"`
	Outbound         int        `json:"outbound"`
	Peers            []PeerInfo `json:"peers"`
}

func (cm *ConnectionManager) Stats() Stats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	s := Stats{TotalConnections: len(cm.peers), Peers: make([]PeerInfo, 0, len(cm.peers))}
	for _, p := range cm.peers {
		if p.Inbound {
			s.Inbound++
		} else {
			s.Outbound++
		}
		s.Peers = append(s.Peers, PeerInfo{
			ConnectionID: p.ID,
			StationID:    p.StationID,
			Alias:        p.Alias,
			Inbound:      p.Inbound,
			ConnectedAt:  p.ConnectedAt.UTC().Format(time.RFC3339),
		})
	}
	return s
}
