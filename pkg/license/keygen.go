package license

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"
)

// Key prefixes make the kind of a leaked credential obvious in logs and
// support without revealing anything else.
const (
	PrefixAPIKey     = "oak_"
	PrefixLicenseKey = "olk_"
)

// randomBytes per key; 20 bytes is 160 bits of entropy, well past the
// point where collisions are a practical concern. The uniqueness check
// in the issuer exists for the database's sake, not the math's.
const randomBytes = 20

var keyEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewKey returns a fresh opaque key with the given prefix. The body is
// lowercase base32 so keys survive case-insensitive channels such as
// email and manual entry.
func NewKey(prefix string) (string, error) {
	buf := make([]byte, randomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("license: read random: %w", err)
	}
	return prefix + strings.ToLower(keyEncoding.EncodeToString(buf)), nil
}
