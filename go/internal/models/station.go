package models

import (
	"strings"
	"time"
)

// Display is a paired station the operator can assign modules to.
type Display struct {
	ID       string    `json:"id" yaml:"id"`
	Name     string    `json:"name" yaml:"name"`
	IsActive bool      `json:"is_active" yaml:"is_active"`
	PairedAt time.Time `json:"paired_at" yaml:"paired_at"`
}

// NormalizeIdentity trims and lower-cases a station identity for matching.
func NormalizeIdentity(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// StationIdentity is how a station knows itself: the connection address it was
// given at start plus an optional persisted alias.
type StationIdentity struct {
	Address string `json:"address"`
	Alias   string `json:"alias,omitempty"`
}

// Matches reports whether a module assignment refers to this station.
func (s StationIdentity) Matches(assignment string) bool {
	a := NormalizeIdentity(assignment)
	if a == "" || a == LocalDisplayID {
		return false
	}
	if addr := NormalizeIdentity(s.Address); addr != "" && addr == a {
		return true
	}
	if alias := NormalizeIdentity(s.Alias); alias != "" && alias == a {
		return true
	}
	return false
}

// Keys returns the normalized identities this station answers to.
func (s StationIdentity) Keys() []string {
	var keys []string
	if addr := NormalizeIdentity(s.Address); addr != "" {
		keys = append(keys, addr)
	}
	if alias := NormalizeIdentity(s.Alias); alias != "" && alias != NormalizeIdentity(s.Address) {
		keys = append(keys, alias)
	}
	return keys
}
