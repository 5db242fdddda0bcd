package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/session"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureMalformed
	RefreshFailureNotFound
	RefreshFailureExpired
	RefreshFailureReuse
	RefreshFailureRevoked
	RefreshFailureRotate
	RefreshFailureIssueAccess
)

// RefreshResult carries either the rotated credentials or failure metadata.
type RefreshResult struct {
	Failure   RefreshFailureKind
	Err       error
	AccountID string
	Access    jwt.AccessToken
	Refresh   session.RefreshToken
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	Now         func() time.Time
	ValidID     func(string) bool
	Rotate      func(ctx context.Context, oldID string, now time.Time) (session.RefreshToken, error)
	IssueAccess func(accountID string, now time.Time) (jwt.AccessToken, error)
	// OnReuse runs after an already rotated id was presented again.
	OnReuse func(ctx context.Context, accountID string)
}

// RunRefresh rotates refreshID and issues an access token for the account
// bound to the rotated record. Lockout state is not consulted.
func RunRefresh(ctx context.Context, refreshID string, deps RefreshDeps) RefreshResult {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.ValidID != nil && !deps.ValidID(refreshID) {
		return RefreshResult{Failure: RefreshFailureMalformed}
	}

	now := deps.Now()
	next, err := deps.Rotate(ctx, refreshID, now)
	if err != nil {
		var reuse *session.ReuseError
		switch {
		case errors.As(err, &reuse):
			if deps.OnReuse != nil {
				deps.OnReuse(ctx, reuse.AccountID)
			}
			return RefreshResult{Failure: RefreshFailureReuse, Err: err, AccountID: reuse.AccountID}
		case errors.Is(err, session.ErrRevoked):
			return RefreshResult{Failure: RefreshFailureRevoked, Err: err}
		case errors.Is(err, session.ErrExpired):
			return RefreshResult{Failure: RefreshFailureExpired, Err: err}
		case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrCorrupt):
			return RefreshResult{Failure: RefreshFailureNotFound, Err: err}
		default:
			return RefreshResult{Failure: RefreshFailureRotate, Err: err}
		}
	}

	access, err := deps.IssueAccess(next.AccountID, now)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureIssueAccess, Err: err, AccountID: next.AccountID}
	}

	return RefreshResult{
		Failure:   RefreshFailureNone,
		AccountID: next.AccountID,
		Access:    access,
		Refresh:   next,
	}
}
