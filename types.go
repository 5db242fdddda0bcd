package authcore

import (
	"context"
	"errors"
	"time"
)

// AccountStatus is the lifecycle state of a directory account.
type AccountStatus uint8

const (
	// AccountActive accounts may log in.
	AccountActive AccountStatus = iota
	// AccountDisabled accounts are refused with InvalidCredentials.
	AccountDisabled
)

func (s AccountStatus) String() string {
	switch s {
	case AccountActive:
		return "active"
	case AccountDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// ErrAccountNotFound is returned by a Directory when no account matches.
var ErrAccountNotFound = errors.New("account not found")

// Account is the identity record owned by the directory service. The core
// reads it and writes back only LastLogin and the failure fields.
type Account struct {
	ID             string
	Email          string
	Username       string
	PasswordHash   string
	Status         AccountStatus
	FailedAttempts int
	LockedUntil    *time.Time
	LastLogin      *time.Time
}

// Directory is the credential store adapter. Implementations must return
// ErrAccountNotFound (possibly wrapped) for unknown identifiers; any other
// error is treated as a transient infrastructure failure.
type Directory interface {
	GetAccountByEmail(ctx context.Context, email string) (Account, error)
	GetAccountByUsername(ctx context.Context, username string) (Account, error)
	UpdateLastLogin(ctx context.Context, accountID string, at time.Time) error
	UpdateFailedAttempts(ctx context.Context, accountID string, count int, lockedUntil *time.Time) error
}

// LoginResult is the token pair issued by a successful Login.
type LoginResult struct {
	AccountID        string
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// RefreshResult is the rotated token pair issued by a successful Refresh.
type RefreshResult struct {
	AccountID        string
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// AccessClaims is the validated content of an access token.
type AccessClaims struct {
	AccountID string
	TokenID   string
	KeyID     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
