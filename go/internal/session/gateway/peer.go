package gateway

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ConnectionConfig holds configuration for station channels
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	DialTimeout     time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		DialTimeout:     5 * time.Second,
		MaxMessageSize:  64 * 1024, // a SYNC carries the whole workout
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		SendBufferSize:  16,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// PeerHandler receives a peer's inbound frames and its single close notification.
type PeerHandler struct {
	OnMessage func(p *Peer, msg []byte)
	OnClose   func(p *Peer, err error)
}

// Peer is one websocket channel between the host and a station.
type Peer struct {
	ID        string
	StationID string
	Alias     string
	Inbound   bool // station dialed us

	ConnectedAt time.Time

	conn    *websocket.Conn
	send    chan []byte
	config  ConnectionConfig
	handler PeerHandler

	closeOnce  sync.Once
	finishOnce sync.Once
	done       chan struct{}
	finished   chan struct{}

	mu       sync.Mutex
	lastPong time.Time
}

// NewPeer wraps an established connection. Call Start to run its pumps.
func NewPeer(conn *websocket.Conn, stationID string, inbound bool, cfg ConnectionConfig, handler PeerHandler) *Peer {
	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = DefaultConnectionConfig().SendBufferSize
	}
	now := time.Now()
	return &Peer{
		ID:          uuid.New().String(),
		StationID:   stationID,
		Inbound:     inbound,
		ConnectedAt: now,
		conn:        conn,
		send:        make(chan []byte, cfg.SendBufferSize),
		config:      cfg,
		handler:     handler,
		done:        make(chan struct{}),
		finished:    make(chan struct{}),
		lastPong:    now,
	}
}

func (p *Peer) ConnID() string { return p.ID }

// Identities returns the station id followed by the alias, when distinct.
func (p *Peer) Identities() []string {
	ids := []string{p.StationID}
	if p.Alias != "" && p.Alias != p.StationID {
		ids = append(ids, p.Alias)
	}
	return ids
}

// Start launches the read and write pumps.
func (p *Peer) Start() {
	go p.writePump()
	go p.readPump()
}

// Send queues a frame without blocking. A full buffer or closed peer skips
// the frame; it is never retried.
func (p *Peer) Send(msg []byte) bool {
	select {
	case <-p.done:
		return false
	default:
	}

	select {
	case p.send <- msg:
		return true
	default:
		log.Warn().
			Str("connection_id", p.ID).
			Str("station_id", p.StationID).
			Msg("send buffer full, skipping frame")
		return false
	}
}

// Close flushes frames already queued, sends a close frame and tears down
// the connection. Safe to call more than once.
func (p *Peer) Close() {
	p.closeOnce.Do(func() { close(p.done) })
}

// Done is closed once both pumps have exited and OnClose has run.
func (p *Peer) Done() <-chan struct{} {
	return p.finished
}

// LastPong reports when the remote side last answered a ping.
func (p *Peer) LastPong() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastPong
}

func (p *Peer) finish(err error) {
	p.finishOnce.Do(func() {
		if p.handler.OnClose != nil {
			p.handler.OnClose(p, err)
		}
		close(p.finished)
	})
}

// writePump handles sending messages to the WebSocket connection
func (p *Peer) writePump() {
	ticker := time.NewTicker(p.config.PingInterval)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case message := <-p.send:
			if err := p.write(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", p.ID).
					Msg("failed to write message to WebSocket")
				p.Close()
				return
			}

		case <-ticker.C:
			if err := p.write(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", p.ID).
					Msg("failed to send ping")
				p.Close()
				return
			}

		case <-p.done:
			p.flush()
			_ = p.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (p *Peer) flush() {
	for {
		select {
		case message := <-p.send:
			if err := p.write(websocket.TextMessage, message); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (p *Peer) write(messageType int, data []byte) error {
	p.conn.SetWriteDeadline(time.Now().Add(p.config.WriteTimeout))
	return p.conn.WriteMessage(messageType, data)
}

// readPump handles reading messages from the WebSocket connection
func (p *Peer) readPump() {
	var readErr error
	defer func() {
		p.Close()
		p.finish(readErr)
	}()

	p.conn.SetReadLimit(p.config.MaxMessageSize)
	p.conn.SetReadDeadline(time.Now().Add(p.config.ReadTimeout))
	p.conn.SetPongHandler(func(string) error {
		p.conn.SetReadDeadline(time.Now().Add(p.config.ReadTimeout))
		p.mu.Lock()
		p.lastPong = time.Now()
		p.mu.Unlock()
		return nil
	})

	for {
		_, message, err := p.conn.ReadMessage()
		if err != nil {
			select {
			case <-p.done:
				// closed locally
			default:
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Warn().
						Err(err).
						Str("connection_id", p.ID).
						Str("station_id", p.StationID).
						Msg("unexpected WebSocket close")
					readErr = err
				}
			}
			return
		}

		if p.handler.OnMessage != nil {
			p.handler.OnMessage(p, message)
		}
		p.conn.SetReadDeadline(time.Now().Add(p.config.ReadTimeout))
	}
}
