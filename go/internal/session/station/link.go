package station

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/circuitcast/go/internal/session/events"
	"github.com/mcdev12/circuitcast/go/internal/session/gateway"
)

// Link owns the station's single channel to the host. The most recent
// connection wins; an older one is closed when a newer one attaches.
type Link struct {
	ctx     context.Context
	station *Station
	config  gateway.ConnectionConfig
	policy  ReconnectPolicy
	clock   clockwork.Clock

	upgrader websocket.Upgrader
	dialer   *websocket.Dialer

	mu       sync.Mutex
	current  *gateway.Peer
	callback string
	redial   context.CancelFunc
}

// NewLink binds a link to ctx; dial-back attempts stop when ctx ends.
func NewLink(ctx context.Context, st *Station, cfg gateway.ConnectionConfig, policy ReconnectPolicy, clock clockwork.Clock) *Link {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Link{
		ctx:     ctx,
		station: st,
		config:  cfg,
		policy:  policy,
		clock:   clock,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     cfg.CheckOrigin,
		},
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.DialTimeout,
			ReadBufferSize:   cfg.ReadBufferSize,
			WriteBufferSize:  cfg.WriteBufferSize,
		},
	}
}

// Accept upgrades a connection dialed by the host.
func (l *Link) Accept(w http.ResponseWriter, r *http.Request) error {
	callback := r.Header.Get(gateway.HeaderCallback)
	sessionID := r.Header.Get(gateway.HeaderSession)

	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	log.Info().
		Str("session_id", sessionID).
		Str("remote_addr", r.RemoteAddr).
		Msg("host connected")
	l.attach(conn, true, callback)
	return nil
}

// Connected reports whether a host channel is open.
func (l *Link) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current != nil
}

// Close drops the current channel and any dial-back in progress.
func (l *Link) Close() {
	l.mu.Lock()
	cur := l.current
	l.current = nil
	if l.redial != nil {
		l.redial()
		l.redial = nil
	}
	l.mu.Unlock()

	if cur != nil {
		cur.Close()
	}
}

func (l *Link) attach(conn *websocket.Conn, inbound bool, callback string) {
	peer := gateway.NewPeer(conn, l.station.Snapshot().Address, inbound, l.config, gateway.PeerHandler{
		OnMessage: l.onMessage,
		OnClose:   l.onClose,
	})

	l.mu.Lock()
	prev := l.current
	l.current = peer
	if callback != "" {
		l.callback = callback
	}
	if l.redial != nil {
		l.redial()
		l.redial = nil
	}
	l.mu.Unlock()

	if prev != nil {
		log.Info().Str("connection_id", prev.ID).Msg("replacing previous host connection")
		prev.Close()
	}
	if err := l.station.Connected(l.ctx, peer.ID); err != nil {
		log.Debug().Err(err).Msg("station not accepting link changes")
	}
	peer.Start()
}

func (l *Link) onMessage(p *gateway.Peer, frame []byte) {
	msg, err := events.Decode(frame)
	if err != nil {
		if errors.Is(err, events.ErrUnknownMessage) {
			log.Debug().Err(err).Str("connection_id", p.ID).Msg("ignoring frame")
		} else {
			log.Warn().Err(err).Str("connection_id", p.ID).Msg("malformed frame")
		}
		return
	}
	if err := l.station.DeliverFrom(l.ctx, p.ID, msg); err != nil {
		log.Debug().Err(err).Msg("station not accepting messages")
	}
}

func (l *Link) onClose(p *gateway.Peer, err error) {
	l.mu.Lock()
	if l.current != p {
		// superseded or closed locally
		l.mu.Unlock()
		return
	}
	l.current = nil
	callback := l.callback
	l.mu.Unlock()

	if derr := l.station.Disconnected(l.ctx, p.ID); derr != nil {
		log.Debug().Err(derr).Msg("station not accepting link changes")
	}
	if err == nil {
		log.Info().Str("connection_id", p.ID).Msg("host closed connection")
		return
	}

	sessionID, inSession := l.station.InSession()
	if !inSession || callback == "" {
		return
	}
	l.startRedial(callback, sessionID)
}

func (l *Link) startRedial(callback, sessionID string) {
	ctx, cancel := context.WithCancel(l.ctx)
	l.mu.Lock()
	if l.redial != nil {
		l.redial()
	}
	l.redial = cancel
	l.mu.Unlock()

	go l.dialBack(ctx, callback, sessionID)
}

// dialBack retries the host's callback until a channel is open again, the
// session is gone or the policy gives up.
func (l *Link) dialBack(ctx context.Context, callback, sessionID string) {
	logger := log.With().Str("session_id", sessionID).Str("callback", callback).Logger()

	for attempt := 1; !l.policy.exhausted(attempt); attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-l.clock.After(l.policy.Backoff(attempt)):
		}

		if l.Connected() {
			return
		}
		if _, ok := l.station.InSession(); !ok {
			return
		}

		snap := l.station.Snapshot()
		target, err := DialBackURL(callback, snap.Address, snap.Alias, sessionID)
		if err != nil {
			logger.Error().Err(err).Msg("cannot dial back")
			return
		}

		conn, resp, err := l.dialer.DialContext(ctx, target, nil)
		if err != nil {
			if resp != nil && (resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusConflict) {
				logger.Info().Int("status", resp.StatusCode).Msg("session over, clearing state")
				_ = l.station.Deliver(ctx, events.EndSession{SessionID: sessionID})
				return
			}
			logger.Warn().Err(err).Int("attempt", attempt).Msg("dial back failed")
			continue
		}

		select {
		case <-ctx.Done():
			// a newer connection won while dialing
			conn.Close()
			return
		default:
		}
		logger.Info().Int("attempt", attempt).Msg("reconnected to host")
		l.attach(conn, false, "")
		return
	}
	logger.Error().Msg("gave up reconnecting to host")
}
