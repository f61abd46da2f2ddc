// Package sha256 names listing snapshots by their SHA-256 digest.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher derives content-addressed snapshot names. It satisfies gazette.Hasher.
type Hasher struct{}

// New returns a Hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the lowercase hex SHA-256 digest of a page body. Identical
// listings map to the same snapshot object.
func (*Hasher) Hash(body []byte) (string, error) {
	digest := sha256.Sum256(body)
	return hex.EncodeToString(digest[:]), nil
}
