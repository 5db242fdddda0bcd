package session

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalid is the umbrella for every refresh id that must not be honoured.
	ErrInvalid = errors.New("invalid refresh token")
	// ErrNotFound means no record exists (never issued or already evicted).
	ErrNotFound = fmt.Errorf("%w: not found", ErrInvalid)
	// ErrExpired means the record exists but its expiry has passed.
	ErrExpired = fmt.Errorf("%w: expired", ErrInvalid)
	// ErrReused means the record was already rotated to a successor.
	ErrReused = fmt.Errorf("%w: reused", ErrInvalid)
	// ErrRevoked means the record was ended by logout or revoke-all.
	ErrRevoked = fmt.Errorf("%w: revoked", ErrInvalid)
	// ErrUnavailable wraps transport and server failures of the backing store.
	ErrUnavailable = errors.New("session store unavailable")
	// ErrCorrupt is returned when a stored record cannot be decoded.
	ErrCorrupt = errors.New("session record corrupt")
)

// RefreshToken is the registry's record for one refresh identifier.
type RefreshToken struct {
	ID        string
	AccountID string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Revoked   bool
	RotatedTo string
}

// Expired reports whether the record is dead at now.
func (t RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// ReuseError is returned by Rotate when the presented id was already rotated. It identifies the affected account so the caller can raise a
// security event and, if configured, revoke the account's other sessions.
type ReuseError struct {
	TokenID   string
	AccountID string
}

func (e *ReuseError) Error() string {
	return "refresh token reuse detected"
}

func (e *ReuseError) Unwrap() error {
	return ErrReused
}
