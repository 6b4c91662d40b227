package token

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/gematik/zero-op/oauth2"
)

// DefaultIdentifierBytes is the number of random bytes in a token
// identifier before hex encoding.
const DefaultIdentifierBytes = 40

// GenerateIdentifier returns a hex-encoded identifier of numBytes of
// cryptographically secure randomness. Failure to obtain secure randomness
// is a fatal server fault, never silently downgraded to a weaker source.
func GenerateIdentifier(numBytes int) string {
	buf := make([]byte, numBytes)
	if _, err := rand.Read(buf); err != nil {
		oauth2.Faultf("secure randomness unavailable: %v", err)
	}
	return hex.EncodeToString(buf)
}
