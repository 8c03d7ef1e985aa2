package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/mcdev12/circuitcast/go/internal/models"
)

// ErrStationUnknown means no locator could resolve the identity.
var ErrStationUnknown = errors.New("station not found")

// DefaultLocateSubjectPrefix is the NATS subject root stations answer on.
const DefaultLocateSubjectPrefix = "circuitcast.stations.locate"

// Locator resolves a station identity to the websocket URL the host dials.
type Locator interface {
	Locate(ctx context.Context, identity string) (string, error)
}

// StaticLocator resolves from a fixed identity to URL table.
type StaticLocator struct {
	urls map[string]string
}

func NewStaticLocator(urls map[string]string) *StaticLocator {
	m := make(map[string]string, len(urls))
	for id, u := range urls {
		m[models.NormalizeIdentity(id)] = u
	}
	return &StaticLocator{urls: m}
}

func (l *StaticLocator) Locate(_ context.Context, identity string) (string, error) {
	if u, ok := l.urls[models.NormalizeIdentity(identity)]; ok {
		return u, nil
	}
	return "", fmt.Errorf("%w: %s", ErrStationUnknown, identity)
}

// LocateReply is what a station answers to a locate request.
type LocateReply struct {
	URL       string `json:"url"`
	StationID string `json:"station_id"`
	Alias     string `json:"alias,omitempty"`
}

// LocateSubject builds the request subject for an identity. Characters NATS
// does not allow in a token are replaced with '_'.
func LocateSubject(prefix, identity string) string {
	if prefix == "" {
		prefix = DefaultLocateSubjectPrefix
	}
	id := models.NormalizeIdentity(identity)
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return prefix + "." + b.String()
}

// NATSLocator asks stations over NATS request/reply.
type NATSLocator struct {
	nc      *nats.Conn
	prefix  string
	timeout time.Duration
}

func NewNATSLocator(nc *nats.Conn, prefix string, timeout time.Duration) *NATSLocator {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &NATSLocator{nc: nc, prefix: prefix, timeout: timeout}
}

func (l *NATSLocator) Locate(ctx context.Context, identity string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	msg, err := l.nc.RequestWithContext(ctx, LocateSubject(l.prefix, identity), nil)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) || errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %s", ErrStationUnknown, identity)
		}
		return "", fmt.Errorf("locate request: %w", err)
	}

	var reply LocateReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return "", fmt.Errorf("decode locate reply: %w", err)
	}
	if reply.URL == "" {
		return "", fmt.Errorf("%w: %s returned empty url", ErrStationUnknown, identity)
	}
	return reply.URL, nil
}

// ChainLocator tries each locator in order and returns the first hit.
type ChainLocator []Locator

func (c ChainLocator) Locate(ctx context.Context, identity string) (string, error) {
	var lastErr error = fmt.Errorf("%w: %s", ErrStationUnknown, identity)
	for _, l := range c {
		if l == nil {
			continue
		}
		u, err := l.Locate(ctx, identity)
		if err == nil {
			return u, nil
		}
		lastErr = err
	}
	return "", lastErr
}
