package authcore

import (
	"context"
	"errors"
	"strings"
	"time"

	internalaudit "github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/lockout"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/session"
	"go.uber.org/zap"
)

// Engine is the authentication orchestrator. It holds no per-request state
// and is safe for concurrent use; all mutable state lives in Redis and the
// directory.
type Engine struct {
	config    Config
	directory Directory
	verifier  *password.Verifier
	tokens    *jwt.Manager
	sessions  *session.Store
	lockout   *lockout.Policy
	audit     *internalaudit.Dispatcher
	metrics   *Metrics
	logger    *zap.Logger
	now       func() time.Time
	flows     flows.Deps
}

// Close flushes and stops the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns how many audit events were dropped under
// backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot copies the current counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return emptySnapshot()
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// PasswordHasher exposes the argon2id hasher for seeding accounts.
func (e *Engine) PasswordHasher() *password.Argon2 {
	return e.verifier.Hasher()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// Login authenticates identifier and secret. Identifiers containing "@" are
// looked up by email, anything else by username.
//
// Failures are *Error with kind InvalidCredentials, AccountLocked,
// TransientStore or Configuration. Unknown accounts, wrong secrets and
// disabled accounts are indistinguishable to the caller.
func (e *Engine) Login(ctx context.Context, identifier, secret string) (*LoginResult, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	defer func() { e.metrics.Observe(MetricLoginLatency, time.Since(start)) }()

	res := flows.RunLogin(ctx, identifier, secret, e.flows.Login)

	switch res.Failure {
	case flows.LoginFailureNone:
		e.metricInc(MetricLoginSuccess)
		e.metricInc(MetricSessionCreated)
		e.emitAudit(ctx, AuditLoginSuccess, true, res.AccountID, nil, nil)
		return &LoginResult{
			AccountID:        res.AccountID,
			AccessToken:      res.Access.Token,
			AccessExpiresAt:  res.Access.ExpiresAt,
			RefreshToken:     res.Refresh.ID,
			RefreshExpiresAt: res.Refresh.ExpiresAt,
		}, nil

	case flows.LoginFailureLocked:
		e.metricInc(MetricLoginLocked)
		e.emitAudit(ctx, AuditLoginLocked, false, res.AccountID, ErrAccountLocked, nil)
		return nil, &Error{Kind: KindAccountLocked, RetryAfter: res.RetryAfter}

	case flows.LoginFailureUnknownAccount, flows.LoginFailureBadSecret, flows.LoginFailureDisabled:
		e.metricInc(MetricLoginFailure)
		if res.NewlyLocked {
			e.metricInc(MetricAccountLocked)
			e.emitAudit(ctx, AuditAccountLocked, false, res.AccountID, nil, func() map[string]string {
				return map[string]string{"locked_until": res.Lockout.LockedUntil.UTC().Format(time.RFC3339)}
			})
		}
		e.emitAudit(ctx, AuditLoginFailure, false, res.AccountID, ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"reason": loginFailureReason(res.Failure)}
		})
		return nil, newError(KindInvalidCredentials, nil)

	case flows.LoginFailureIssueAccess:
		e.metricInc(MetricLoginFailure)
		e.logger.Error("access token signing failed",
			zap.String("account_id", res.AccountID),
			zap.Error(res.Err),
		)
		return nil, newError(KindConfiguration, res.Err)

	default:
		e.metricInc(MetricLoginFailure)
		return nil, e.transient(ctx, "login", res.AccountID, res.Err)
	}
}

// Refresh rotates refreshToken and returns a new access token and refresh
// token for the same account. A refresh token succeeds at most once.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	if e == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	defer func() { e.metrics.Observe(MetricRefreshLatency, time.Since(start)) }()

	res := flows.RunRefresh(ctx, refreshToken, e.flows.Refresh)

	switch res.Failure {
	case flows.RefreshFailureNone:
		e.metricInc(MetricRefreshSuccess)
		e.emitAudit(ctx, AuditRefreshSuccess, true, res.AccountID, nil, nil)
		return &RefreshResult{
			AccountID:        res.AccountID,
			AccessToken:      res.Access.Token,
			AccessExpiresAt:  res.Access.ExpiresAt,
			RefreshToken:     res.Refresh.ID,
			RefreshExpiresAt: res.Refresh.ExpiresAt,
		}, nil

	case flows.RefreshFailureMalformed, flows.RefreshFailureNotFound, flows.RefreshFailureExpired,
		flows.RefreshFailureReuse, flows.RefreshFailureRevoked:
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, AuditRefreshFailure, false, res.AccountID, ErrInvalidRefreshToken, func() map[string]string {
			return map[string]string{"reason": refreshFailureReason(res.Failure)}
		})
		return nil, newError(KindInvalidRefreshToken, nil)

	case flows.RefreshFailureIssueAccess:
		e.metricInc(MetricRefreshFailure)
		e.logger.Error("access token signing failed",
			zap.String("account_id", res.AccountID),
			zap.Error(res.Err),
		)
		return nil, newError(KindConfiguration, res.Err)

	default:
		e.metricInc(MetricRefreshFailure)
		return nil, e.transient(ctx, "refresh", res.AccountID, res.Err)
	}
}

// Logout revokes refreshToken. It succeeds for tokens that are unknown,
// expired or already revoked; only store failures are reported.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}
	if err := flows.RunLogout(ctx, refreshToken, e.flows.Logout); err != nil {
		return e.transient(ctx, "logout", "", err)
	}
	e.metricInc(MetricLogout)
	e.emitAudit(ctx, AuditLogout, true, "", nil, nil)
	return nil
}

// LogoutAll revokes every refresh token of accountID and reports how many
// were live.
func (e *Engine) LogoutAll(ctx context.Context, accountID string) (int, error) {
	if e == nil || e.sessions == nil {
		return 0, ErrEngineNotReady
	}
	n, err := flows.RunLogoutAll(ctx, accountID, e.flows.Logout)
	if err != nil {
		return 0, e.transient(ctx, "logout_all", accountID, err)
	}
	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, AuditLogoutAll, true, accountID, nil, func() map[string]string {
		return map[string]string{"revoked": itoa(n)}
	})
	return n, nil
}

// ValidateAccess verifies an access token's signature and expiry against the
// engine clock. It is stateless.
func (e *Engine) ValidateAccess(ctx context.Context, token string) (*AccessClaims, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	res := flows.RunValidate(token, e.flows.Validate)
	e.metrics.Observe(MetricValidateLatency, time.Since(start))

	if res.Err != nil {
		e.metricInc(MetricValidateFailure)
		return nil, ErrInvalidAccessToken
	}
	e.metricInc(MetricValidateSuccess)
	return &AccessClaims{
		AccountID: res.Claims.AccountID,
		TokenID:   res.Claims.TokenID,
		KeyID:     res.Claims.KeyID,
		IssuedAt:  res.Claims.IssuedAt,
		ExpiresAt: res.Claims.ExpiresAt,
	}, nil
}

// Health pings Redis and reports the round trip.
func (e *Engine) Health(ctx context.Context) (time.Duration, error) {
	if e == nil || e.sessions == nil {
		return 0, ErrEngineNotReady
	}
	cctx, cancel := context.WithTimeout(ctx, e.config.Store.OperationTimeout)
	defer cancel()
	d, err := e.sessions.Ping(cctx)
	if err != nil {
		return d, newError(KindTransientStore, err)
	}
	return d, nil
}

func (e *Engine) transient(ctx context.Context, op, accountID string, err error) error {
	e.metricInc(MetricTransientStoreError)
	e.logger.Error("store failure",
		zap.String("op", op),
		zap.String("account_id", accountID),
		zap.String("request_id", RequestIDFromContext(ctx)),
		zap.Error(err),
	)
	return newError(KindTransientStore, err)
}

// lookupAccount resolves an identifier against the directory.
func (e *Engine) lookupAccount(ctx context.Context, identifier string) (flows.LoginAccount, error) {
	var acct Account
	err := e.callIdempotent(ctx, func(cctx context.Context) error {
		var err error
		if strings.Contains(identifier, "@") {
			acct, err = e.directory.GetAccountByEmail(cctx, strings.ToLower(strings.TrimSpace(identifier)))
		} else {
			acct, err = e.directory.GetAccountByUsername(cctx, strings.TrimSpace(identifier))
		}
		return err
	})
	if err != nil {
		return flows.LoginAccount{}, err
	}
	return flows.LoginAccount{
		ID:           acct.ID,
		PasswordHash: acct.PasswordHash,
		Disabled:     acct.Status == AccountDisabled,
	}, nil
}

func loginFailureReason(k flows.LoginFailureKind) string {
	switch k {
	case flows.LoginFailureUnknownAccount:
		return "unknown_account"
	case flows.LoginFailureBadSecret:
		return "bad_secret"
	case flows.LoginFailureDisabled:
		return "disabled"
	default:
		return "other"
	}
}

func refreshFailureReason(k flows.RefreshFailureKind) string {
	switch k {
	case flows.RefreshFailureMalformed:
		return "malformed"
	case flows.RefreshFailureNotFound:
		return "not_found"
	case flows.RefreshFailureExpired:
		return "expired"
	case flows.RefreshFailureReuse:
		return "reused"
	case flows.RefreshFailureRevoked:
		return "revoked"
	default:
		return "other"
	}
}

func isDecision(err error) bool {
	return errors.Is(err, ErrAccountNotFound) || errors.Is(err, session.ErrInvalid)
}
