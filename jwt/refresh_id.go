package jwt

import (
	"crypto/rand"
	"encoding/base64"
)

// RefreshIDBytes is the entropy of a refresh identifier (256 bits).
const RefreshIDBytes = 32

// NewRefreshID returns a base64url (unpadded) encoding of RefreshIDBytes
// bytes from crypto/rand.
func NewRefreshID() (string, error) {
	var raw [RefreshIDBytes]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// ValidRefreshID reports whether id has the shape produced by NewRefreshID.
// It lets callers reject garbage before a store round-trip.
func ValidRefreshID(id string) bool {
	raw, err := base64.RawURLEncoding.DecodeString(id)
	return err == nil && len(raw) == RefreshIDBytes
}
