package station

import (
	"fmt"
	"net/url"
	"time"
)

// ReconnectPolicy controls dial-back after an unexpected drop. Attempt n
// waits n*Delay, capped at MaxDelay.
type ReconnectPolicy struct {
	MaxAttempts int           `yaml:"max_attempts"` // 0 retries until the session ends
	Delay       time.Duration `yaml:"delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		MaxAttempts: 20,
		Delay:       time.Second,
		MaxDelay:    10 * time.Second,
	}
}

// Backoff returns the wait before attempt (1-based).
func (p ReconnectPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(attempt) * p.Delay
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

func (p ReconnectPolicy) exhausted(attempt int) bool {
	return p.MaxAttempts > 0 && attempt > p.MaxAttempts
}

// DialBackURL adds the station's identity and session to the host's
// callback URL.
func DialBackURL(callback, stationID, alias, sessionID string) (string, error) {
	u, err := url.Parse(callback)
	if err != nil {
		return "", fmt.Errorf("parse callback url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("callback url %q: unsupported scheme", callback)
	}

	q := u.Query()
	q.Set("station_id", stationID)
	if alias != "" {
		q.Set("alias", alias)
	}
	if sessionID != "" {
		q.Set("session_id", sessionID)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
