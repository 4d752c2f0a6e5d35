// Package sha256 provides the content digest used for location facts.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// fieldSeparator joins digest inputs.
const fieldSeparator = "|"

// Hasher implements ingest.Hasher using SHA-256.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the hex digest of data.
func (h *Hasher) Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashFields joins fields with "|" and returns the hex digest.
func (h *Hasher) HashFields(fields ...string) string {
	return h.Hash([]byte(strings.Join(fields, fieldSeparator)))
}
