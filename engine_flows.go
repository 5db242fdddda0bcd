package authcore

import (
	"context"
	"time"

	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/lockout"
	"github.com/MrEthical07/authcore/session"
	"go.uber.org/zap"
)

func (e *Engine) buildFlowDeps() flows.Deps {
	return flows.Deps{
		Login: flows.LoginDeps{
			Now:           e.now,
			LookupAccount: e.lookupAccount,
			NotFound:      ErrAccountNotFound,
			IsLocked: func(ctx context.Context, accountID string, now time.Time) (bool, lockout.State, error) {
				var (
					locked bool
					state  lockout.State
				)
				err := e.callIdempotent(ctx, func(cctx context.Context) error {
					var err error
					locked, state, err = e.lockout.IsLocked(cctx, accountID, now)
					return err
				})
				return locked, state, err
			},
			RecordFailure: func(ctx context.Context, accountID string, now time.Time) (lockout.State, error) {
				var state lockout.State
				err := e.callOnce(ctx, func(cctx context.Context) error {
					var err error
					state, err = e.lockout.RecordFailure(cctx, accountID, now)
					return err
				})
				return state, err
			},
			RecordSuccess: func(ctx context.Context, accountID string) error {
				return e.callIdempotent(ctx, func(cctx context.Context) error {
					return e.lockout.RecordSuccess(cctx, accountID)
				})
			},
			VerifyPassword: e.verifier.Verify,
			DummyVerify:    e.verifier.DummyVerify,
			IssueAccess:    e.tokens.IssueAccess,
			CreateRefresh: func(ctx context.Context, accountID string, now time.Time) (session.RefreshToken, error) {
				var rec session.RefreshToken
				err := e.callOnce(ctx, func(cctx context.Context) error {
					var err error
					rec, err = e.sessions.Create(cctx, accountID, e.config.JWT.RefreshTTL, now)
					return err
				})
				return rec, err
			},
			AfterFailure: e.mirrorFailure,
			AfterSuccess: e.recordLogin,
		},
		Refresh: flows.RefreshDeps{
			Now:     e.now,
			ValidID: jwt.ValidRefreshID,
			Rotate: func(ctx context.Context, oldID string, now time.Time) (session.RefreshToken, error) {
				var rec session.RefreshToken
				err := e.callOnce(ctx, func(cctx context.Context) error {
					var err error
					rec, err = e.sessions.Rotate(cctx, oldID, e.config.JWT.RefreshTTL, now)
					return err
				})
				return rec, err
			},
			IssueAccess: e.tokens.IssueAccess,
			OnReuse:     e.handleReuse,
		},
		Logout: flows.LogoutDeps{
			ValidID: jwt.ValidRefreshID,
			Revoke: func(ctx context.Context, refreshID string) error {
				return e.callIdempotent(ctx, func(cctx context.Context) error {
					return e.sessions.Revoke(cctx, refreshID)
				})
			},
			RevokeAll: e.revokeAll,
		},
		Validate: flows.ValidateDeps{
			Now:         e.now,
			ParseAccess: e.tokens.ValidateAccess,
		},
	}
}

func (e *Engine) revokeAll(ctx context.Context, accountID string) (int, error) {
	var n int
	err := e.callIdempotent(ctx, func(cctx context.Context) error {
		var err error
		n, err = e.sessions.RevokeAllForAccount(cctx, accountID)
		return err
	})
	return n, err
}

// handleReuse raises the security signal for a replayed refresh token.
func (e *Engine) handleReuse(ctx context.Context, accountID string) {
	e.metricInc(MetricRefreshReuseDetected)
	e.logger.Warn("refresh token reuse detected",
		zap.String("account_id", accountID),
		zap.String("ip", clientIPFromContext(ctx)),
		zap.String("request_id", RequestIDFromContext(ctx)),
		zap.Bool("revoke_all", e.config.Security.RevokeAllOnReuse),
	)

	revoked := 0
	if e.config.Security.RevokeAllOnReuse && accountID != "" {
		n, err := e.revokeAll(ctx, accountID)
		if err != nil {
			e.logger.Error("revoke sessions after reuse failed",
				zap.String("account_id", accountID),
				zap.Error(err),
			)
		} else {
			revoked = n
			e.metricInc(MetricSessionsRevokedOnReuse)
		}
	}

	e.emitAudit(ctx, AuditRefreshReuse, false, accountID, ErrInvalidRefreshToken, func() map[string]string {
		return map[string]string{"sessions_revoked": itoa(revoked)}
	})
}

func (e *Engine) mirrorFailure(ctx context.Context, accountID string, state lockout.State) {
	if !e.config.Security.MirrorFailuresToDirectory {
		return
	}
	var lockedUntil *time.Time
	if !state.LockedUntil.IsZero() {
		t := state.LockedUntil
		lockedUntil = &t
	}
	err := e.callOnce(ctx, func(cctx context.Context) error {
		return e.directory.UpdateFailedAttempts(cctx, accountID, state.FailedAttempts, lockedUntil)
	})
	if err != nil {
		e.directoryWriteFailed(ctx, "update_failed_attempts", accountID, err)
	}
}

func (e *Engine) recordLogin(ctx context.Context, accountID string, at time.Time) {
	err := e.callOnce(ctx, func(cctx context.Context) error {
		return e.directory.UpdateLastLogin(cctx, accountID, at)
	})
	if err != nil {
		e.directoryWriteFailed(ctx, "update_last_login", accountID, err)
	}

	if !e.config.Security.MirrorFailuresToDirectory {
		return
	}
	err = e.callOnce(ctx, func(cctx context.Context) error {
		return e.directory.UpdateFailedAttempts(cctx, accountID, 0, nil)
	})
	if err != nil {
		e.directoryWriteFailed(ctx, "update_failed_attempts", accountID, err)
	}
}

func (e *Engine) directoryWriteFailed(ctx context.Context, op, accountID string, err error) {
	e.metricInc(MetricDirectoryWriteFailure)
	e.logger.Warn("directory write failed",
		zap.String("op", op),
		zap.String("account_id", accountID),
		zap.Error(err),
	)
	e.emitAudit(ctx, AuditDirectoryWriteError, false, accountID, err, func() map[string]string {
		return map[string]string{"op": op}
	})
}
