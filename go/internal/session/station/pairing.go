package station

import (
	"strings"

	"github.com/google/uuid"
)

const pairingAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// PairingCodeLength is the number of characters shown on the ready screen.
const PairingCodeLength = 6

// NewPairingCode derives a short upper-case code from a random uuid. It
// doubles as the station's connection address for the session.
func NewPairingCode() string {
	return pairingCode(uuid.New())
}

func pairingCode(id uuid.UUID) string {
	var b strings.Builder
	b.Grow(PairingCodeLength)
	for i := 0; i < PairingCodeLength; i++ {
		b.WriteByte(pairingAlphabet[int(id[i])%len(pairingAlphabet)])
	}
	return b.String()
}
