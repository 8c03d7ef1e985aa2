package station

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/circuitcast/go/internal/models"
	"github.com/mcdev12/circuitcast/go/internal/session/gateway"
)

// Announcer answers host locate requests for this station's address and
// alias with its public websocket URL.
type Announcer struct {
	nc     *nats.Conn
	prefix string
	url    string

	mu       sync.Mutex
	identity models.StationIdentity
	subs     []*nats.Subscription
}

func NewAnnouncer(nc *nats.Conn, prefix, publicURL string) *Announcer {
	return &Announcer{nc: nc, prefix: prefix, url: publicURL}
}

// Announce (re)subscribes for every identity key.
func (a *Announcer) Announce(identity models.StationIdentity) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.unsubscribeLocked()
	a.identity = identity

	for _, key := range identity.Keys() {
		subject := gateway.LocateSubject(a.prefix, key)
		sub, err := a.nc.Subscribe(subject, a.reply)
		if err != nil {
			a.unsubscribeLocked()
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		a.subs = append(a.subs, sub)
		log.Debug().Str("subject", subject).Msg("answering locate requests")
	}
	return nil
}

// UpdateAlias resubscribes after an alias change.
func (a *Announcer) UpdateAlias(alias string) error {
	a.mu.Lock()
	id := a.identity
	a.mu.Unlock()
	id.Alias = alias
	return a.Announce(id)
}

func (a *Announcer) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.unsubscribeLocked()
}

func (a *Announcer) unsubscribeLocked() {
	for _, sub := range a.subs {
		if err := sub.Unsubscribe(); err != nil {
			log.Warn().Err(err).Str("subject", sub.Subject).Msg("unsubscribe failed")
		}
	}
	a.subs = nil
}

func (a *Announcer) reply(msg *nats.Msg) {
	a.mu.Lock()
	id := a.identity
	a.mu.Unlock()

	data, err := json.Marshal(gateway.LocateReply{
		URL:       a.url,
		StationID: id.Address,
		Alias:     id.Alias,
	})
	if err != nil {
		log.Error().Err(err).Msg("marshal locate reply")
		return
	}
	if err := msg.Respond(data); err != nil {
		log.Warn().Err(err).Str("subject", msg.Subject).Msg("locate reply failed")
	}
}
