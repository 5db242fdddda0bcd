package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/lockout"
	"github.com/MrEthical07/authcore/session"
)

// LoginFailureKind classifies login flow failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureUnknownAccount
	LoginFailureLocked
	LoginFailureBadSecret
	LoginFailureDisabled
	LoginFailureLookup
	LoginFailureLockCheck
	LoginFailureRecordFailure
	LoginFailureRecordSuccess
	LoginFailureIssueAccess
	LoginFailureCreateSession
)

// Transient reports whether the failure came from a backing store rather
// than from an authentication decision.
func (k LoginFailureKind) Transient() bool {
	switch k {
	case LoginFailureLookup,
		LoginFailureLockCheck,
		LoginFailureRecordFailure,
		LoginFailureRecordSuccess,
		LoginFailureCreateSession:
		return true
	default:
		return false
	}
}

// LoginAccount is the flow-local view of a directory account.
type LoginAccount struct {
	ID           string
	PasswordHash string
	Disabled     bool
}

// LoginResult carries either the issued credentials or failure metadata.
type LoginResult struct {
	Failure   LoginFailureKind
	Err       error
	AccountID string
	// Lockout is the policy state observed or produced by this attempt.
	Lockout    lockout.State
	RetryAfter time.Duration
	// NewlyLocked is set when this attempt's failure reached the threshold.
	NewlyLocked bool
	Access      jwt.AccessToken
	Refresh     session.RefreshToken
}

// LoginDeps captures login dependencies.
type LoginDeps struct {
	Now func() time.Time

	LookupAccount func(ctx context.Context, identifier string) (LoginAccount, error)
	NotFound      error

	IsLocked      func(ctx context.Context, accountID string, now time.Time) (bool, lockout.State, error)
	RecordFailure func(ctx context.Context, accountID string, now time.Time) (lockout.State, error)
	RecordSuccess func(ctx context.Context, accountID string) error

	VerifyPassword func(secret, hash string) bool
	DummyVerify    func(secret string)

	IssueAccess   func(accountID string, now time.Time) (jwt.AccessToken, error)
	CreateRefresh func(ctx context.Context, accountID string, now time.Time) (session.RefreshToken, error)

	// AfterFailure and AfterSuccess are best-effort directory writes. They
	// must not fail the login.
	AfterFailure func(ctx context.Context, accountID string, state lockout.State)
	AfterSuccess func(ctx context.Context, accountID string, at time.Time)
}

// RunLogin walks lookup, lock check, verification and issuance for one
// attempt. Tokens are produced only on the final state.
func RunLogin(ctx context.Context, identifier, secret string, deps LoginDeps) LoginResult {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.DummyVerify == nil {
		deps.DummyVerify = func(string) {}
	}
	if deps.AfterFailure == nil {
		deps.AfterFailure = func(context.Context, string, lockout.State) {}
	}
	if deps.AfterSuccess == nil {
		deps.AfterSuccess = func(context.Context, string, time.Time) {}
	}

	if identifier == "" || secret == "" {
		deps.DummyVerify(secret)
		return LoginResult{Failure: LoginFailureUnknownAccount}
	}

	// LOOKUP
	acct, err := deps.LookupAccount(ctx, identifier)
	if err != nil {
		if deps.NotFound != nil && errors.Is(err, deps.NotFound) {
			deps.DummyVerify(secret)
			return LoginResult{Failure: LoginFailureUnknownAccount}
		}
		return LoginResult{Failure: LoginFailureLookup, Err: err}
	}

	// LOCK_CHECK
	now := deps.Now()
	locked, state, err := deps.IsLocked(ctx, acct.ID, now)
	if err != nil {
		return LoginResult{Failure: LoginFailureLockCheck, Err: err, AccountID: acct.ID}
	}
	if locked {
		return LoginResult{
			Failure:    LoginFailureLocked,
			AccountID:  acct.ID,
			Lockout:    state,
			RetryAfter: state.Remaining(now),
		}
	}

	// VERIFY
	if !deps.VerifyPassword(secret, acct.PasswordHash) {
		next, err := deps.RecordFailure(ctx, acct.ID, now)
		if err != nil {
			return LoginResult{Failure: LoginFailureRecordFailure, Err: err, AccountID: acct.ID}
		}
		deps.AfterFailure(ctx, acct.ID, next)
		return LoginResult{
			Failure:     LoginFailureBadSecret,
			AccountID:   acct.ID,
			Lockout:     next,
			NewlyLocked: next.Locked(now),
		}
	}
	if acct.Disabled {
		return LoginResult{Failure: LoginFailureDisabled, AccountID: acct.ID}
	}

	// ISSUE
	if err := deps.RecordSuccess(ctx, acct.ID); err != nil {
		return LoginResult{Failure: LoginFailureRecordSuccess, Err: err, AccountID: acct.ID}
	}

	access, err := deps.IssueAccess(acct.ID, now)
	if err != nil {
		return LoginResult{Failure: LoginFailureIssueAccess, Err: err, AccountID: acct.ID}
	}

	refresh, err := deps.CreateRefresh(ctx, acct.ID, now)
	if err != nil {
		return LoginResult{Failure: LoginFailureCreateSession, Err: err, AccountID: acct.ID}
	}

	deps.AfterSuccess(ctx, acct.ID, now)

	return LoginResult{
		Failure:   LoginFailureNone,
		AccountID: acct.ID,
		Access:    access,
		Refresh:   refresh,
	}
}
