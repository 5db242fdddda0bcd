package authcore

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func TestLoginRoundTrip(t *testing.T) {
	env := newTestEngine(t, testConfig(), nil)
	ctx := context.Background()

	res := mustLogin(t, env)
	if res.AccountID != testAccount {
		t.Fatalf("expected account %q, got %q", testAccount, res.AccountID)
	}
	if res.AccessToken == "" || res.RefreshToken == "" {
		t.Fatal("expected both tokens")
	}
	if !res.AccessExpiresAt.Equal(testStart.Add(15 * time.Minute)) {
		t.Fatalf("unexpected access expiry %v", res.AccessExpiresAt)
	}
	if !res.RefreshExpiresAt.Equal(testStart.Add(24 * time.Hour)) {
		t.Fatalf("unexpected refresh expiry %v", res.RefreshExpiresAt)
	}

	claims, err := env.engine.ValidateAccess(ctx, res.AccessToken)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if claims.AccountID != testAccount {
		t.Fatalf("claims decode to %q, want %q", claims.AccountID, testAccount)
	}

	acct := env.dir.get(testAccount)
	if acct.LastLogin == nil || !acct.LastLogin.Equal(testStart) {
		t.Fatalf("expected last login to be recorded, got %v", acct.LastLogin)
	}
}

func TestLoginByUsername(t *testing.T) {
	env := newTestEngine(t, testConfig(), nil)

	res, err := env.engine.Login(context.Background(), testUsername, testPassword)
	if err != nil {
		t.Fatalf("login by username failed: %v", err)
	}
	if res.AccountID != testAccount {
		t.Fatalf("unexpected account %q", res.AccountID)
	}
}

func TestLoginEmailIsCaseInsensitive(t *testing.T) {
	env := newTestEngine(t, testConfig(), nil)

	if _, err := env.engine.Login(context.Background(), "  Alice@Example.com ", testPassword); err != nil {
		t.Fatalf("expected normalized email login to succeed: %v", err)
	}
}

func TestLoginBcryptHash(t *testing.T) {
	env := newTestEngine(t, testConfig(), nil)

	hash, err := bcrypt.GenerateFromPassword([]byte("legacy-secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	env.dir.add(Account{ID: "u2", Email: "bob@example.com", Username: "bob", PasswordHash: string(hash)})

	if _, err := env.engine.Login(context.Background(), "bob", "legacy-secret"); err != nil {
		t.Fatalf("bcrypt login failed: %v", err)
	}
}

func TestLoginUnknownAndWrongSecretLookIdentical(t *testing.T) {
	env := newTestEngine(t, testConfig(), nil)
	ctx := context.Background()

	_, unknownErr := env.engine.Login(ctx, "nobody@example.com", testPassword)
	_, wrongErr := env.engine.Login(ctx, testEmail, "wrong-password")

	requireKind(t, unknownErr, KindInvalidCredentials)
	requireKind(t, wrongErr, KindInvalidCredentials)
	if unknownErr.Error() != wrongErr.Error() {
		t.Fatalf("error messages differ: %q vs %q", unknownErr, wrongErr)
	}
	if !errors.Is(unknownErr, ErrInvalidCredentials) {
		t.Fatal("expected errors.Is ErrInvalidCredentials")
	}
}

func TestLoginEmptyInputs(t *testing.T) {
	env := newTestEngine(t, testConfig(), nil)
	ctx := context.Background()

	_, err := env.engine.Login(ctx, "", testPassword)
	requireKind(t, err, KindInvalidCredentials)
	_, err = env.engine.Login(ctx, testEmail, "")
	requireKind(t, err, KindInvalidCredentials)

	if env.dir.lookupCalls != 0 {
		t.Fatalf("expected no directory lookups, got %d", env.dir.lookupCalls)
	}
}

func TestLoginDisabledAccount(t *testing.T) {
	env := newTestEngine(t, testConfig(), nil)
	acct := env.dir.get(testAccount)
	acct.Status = AccountDisabled
	env.dir.add(acct)

	_, err := env.engine.Login(context.Background(), testEmail, testPassword)
	requireKind(t, err, KindInvalidCredentials)
}

func TestFourFailuresThenSuccessResetsCounter(t *testing.T) {
	env := newTestEngine(t, testConfig(), nil)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := env.engine.Login(ctx, testEmail, "wrong-password")
		requireKind(t, err, KindInvalidCredentials)
	}
	if got := env.dir.get(testAccount).FailedAttempts; got != 4 {
		t.Fatalf("expected mirrored failed attempts 4, got %d", got)
	}

	mustLogin(t, env)

	_, state, err := env.engine.lockout.IsLocked(ctx, testAccount, env.clock.Now())
	if err != nil {
		t.Fatalf("is locked: %v", err)
	}
	if state.FailedAttempts != 0 {
		t.Fatalf("expected counter reset, got %d", state.FailedAttempts)
	}
	if got := env.dir.get(testAccount).FailedAttempts; got != 0 {
		t.Fatalf("expected mirrored counter reset, got %d", got)
	}
}

func TestLockoutAfterMaxAttempts(t *testing.T) {
	env := newTestEngine(t, testConfig(), nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := env.engine.Login(ctx, testEmail, "wrong-password")
		requireKind(t, err, KindInvalidCredentials)
	}

	_, err := env.engine.Login(ctx, testEmail, testPassword)
	requireKind(t, err, KindAccountLocked)
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatal("expected errors.Is ErrAccountLocked")
	}
	if d, ok := RetryAfter(err); !ok || d != 30*time.Minute {
		t.Fatalf("expected 30m remaining, got %v (ok=%v)", d, ok)
	}

	_, err = env.engine.Login(ctx, testEmail, "wrong-password")
	requireKind(t, err, KindAccountLocked)

	_, state, err := env.engine.lockout.IsLocked(ctx, testAccount, env.clock.Now())
	if err != nil {
		t.Fatalf("is locked: %v", err)
	}
	if state.FailedAttempts != 5 {
		t.Fatalf("expected no increment while locked, got %d", state.FailedAttempts)
	}

	acct := env.dir.get(testAccount)
	if acct.LockedUntil == nil || !acct.LockedUntil.Equal(testStart.Add(30*time.Minute)) {
		t.Fatalf("expected locked_until mirrored, got %v", acct.LockedUntil)
	}
	if env.engine.MetricsSnapshot().Counters[MetricAccountLocked] != 1 {
		t.Fatal("expected one account-locked metric")
	}
}

func TestSpacedFailuresStillLock(t *testing.T) {
	env := newTestEngine(t, testConfig(), nil)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := env.engine.Login(ctx, testEmail, "wrong-password")
		requireKind(t, err, KindInvalidCredentials)
		env.mr.FastForward(31 * time.Minute)
		env.clock.Advance(31 * time.Minute)
	}

	_, err := env.engine.Login(ctx, testEmail, "wrong-password")
	requireKind(t, err, KindInvalidCredentials)

	_, err = env.engine.Login(ctx, testEmail, testPassword)
	requireKind(t, err, KindAccountLocked)
}

func TestLockBoundary(t *testing.T) {
	env := newTestEngine(t, testConfig(), nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		env.engine.Login(ctx, testEmail, "wrong-password")
	}
	lockedUntil := testStart.Add(30 * time.Minute)

	env.clock.Set(lockedUntil.Add(-time.Second))
	_, err := env.engine.Login(ctx, testEmail, testPassword)
	requireKind(t, err, KindAccountLocked)
	if d, _ := RetryAfter(err); d != time.Second {
		t.Fatalf("expected 1s remaining, got %v", d)
	}

	env.clock.Set(lockedUntil.Add(time.Second))
	if _, err := env.engine.Login(ctx, testEmail, testPassword); err != nil {
		t.Fatalf("expected login after lock expiry to succeed: %v", err)
	}
}

func TestLoginDirectoryLookupRetriedOnce(t *testing.T) {
	env := newTestEngine(t, testConfig(), nil)
	env.dir.lookupErr = errDirectoryDown
	env.dir.lookupFailures = 1

	if _, err := env.engine.Login(context.Background(), testEmail, testPassword); err != nil {
		t.Fatalf("expected retry to recover: %v", err)
	}
	if env.dir.lookupCalls != 2 {
		t.Fatalf("expected 2 lookups, got %d", env.dir.lookupCalls)
	}
	if env.engine.MetricsSnapshot().Counters[MetricStoreRetry] != 1 {
		t.Fatal("expected one retry metric")
	}
}

func TestLoginDirectoryDownIsTransient(t *testing.T) {
	env := newTestEngine(t, testConfig(), nil)
	env.dir.lookupErr = errDirectoryDown
	env.dir.lookupFailures = -1

	_, err := env.engine.Login(context.Background(), testEmail, testPassword)
	requireKind(t, err, KindTransientStore)

	var e *Error
	if !errors.As(err, &e) || !e.Retryable() {
		t.Fatalf("expected retryable error, got %#v", err)
	}
	if !errors.Is(err, errDirectoryDown) {
		t.Fatal("expected cause to be preserved")
	}
	if env.dir.lookupCalls != 2 {
		t.Fatalf("expected exactly one retry, got %d calls", env.dir.lookupCalls)
	}
}

func TestLoginNoRetryWhenDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Store.RetryTransient = false
	env := newTestEngine(t, cfg, nil)
	env.dir.lookupErr = errDirectoryDown
	env.dir.lookupFailures = -1

	_, err := env.engine.Login(context.Background(), testEmail, testPassword)
	requireKind(t, err, KindTransientStore)
	if env.dir.lookupCalls != 1 {
		t.Fatalf("expected a single lookup, got %d", env.dir.lookupCalls)
	}
}

func TestLoginRedisDownIsTransient(t *testing.T) {
	env := newTestEngine(t, testConfig(), nil)
	env.mr.Close()

	_, err := env.engine.Login(context.Background(), testEmail, testPassword)
	requireKind(t, err, KindTransientStore)
	if env.engine.MetricsSnapshot().Counters[MetricTransientStoreError] == 0 {
		t.Fatal("expected transient error metric")
	}
}

func TestLoginDirectoryWriteFailureIsBestEffort(t *testing.T) {
	env := newTestEngine(t, testConfig(), nil)
	env.dir.updateErr = errDirectoryDown

	if _, err := env.engine.Login(context.Background(), testEmail, testPassword); err != nil {
		t.Fatalf("expected login to succeed despite directory write failure: %v", err)
	}
	_, err := env.engine.Login(context.Background(), testEmail, "wrong-password")
	requireKind(t, err, KindInvalidCredentials)

	if got := env.engine.MetricsSnapshot().Counters[MetricDirectoryWriteFailure]; got != 3 {
		t.Fatalf("expected 3 failed directory writes, got %d", got)
	}
}

func TestMirrorDisabledSkipsFailureWrites(t *testing.T) {
	cfg := testConfig()
	cfg.Security.MirrorFailuresToDirectory = false
	env := newTestEngine(t, cfg, nil)

	env.engine.Login(context.Background(), testEmail, "wrong-password")
	mustLogin(t, env)

	if env.dir.failedWriteCalls != 0 {
		t.Fatalf("expected no failed-attempt writes, got %d", env.dir.failedWriteCalls)
	}
	if env.dir.lastLoginCalls != 1 {
		t.Fatalf("expected last login write, got %d", env.dir.lastLoginCalls)
	}
}

func TestRefreshRotates(t *testing.T) {
	env := newTestEngine(t, testConfig(), nil)
	ctx := context.Background()
	login := mustLogin(t, env)

	env.clock.Advance(time.Minute)
	res, err := env.engine.Refresh(ctx, login.RefreshToken)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if res.RefreshToken == login.RefreshToken {
		t.Fatal("expected a new refresh token")
	}
	if res.AccountID != testAccount {
		t.Fatalf("unexpected account %q", res.AccountID)
	}
	if !res.AccessExpiresAt.Equal(testStart.Add(16 * time.Minute)) {
		t.Fatalf("unexpected access expiry %v", res.AccessExpiresAt)
	}
	claims, err := env.engine.ValidateAccess(ctx, res.AccessToken)
	if err != nil || claims.AccountID != testAccount {
		t.Fatalf("rotated access token invalid: %v", err)
	}

	if _, err := env.engine.Refresh(ctx, res.RefreshToken); err != nil {
		t.Fatalf("second-generation refresh failed: %v", err)
	}
}

func TestRefreshNoReplay(t *testing.T) {
	env := newTestEngine(t, testConfig(), nil)
	ctx := context.Background()
	login := mustLogin(t, env)

	if _, err := env.engine.Refresh(ctx, login.RefreshToken); err != nil {
		t.Fatalf("first refresh failed: %v", err)
	}
	_, err := env.engine.Refresh(ctx, login.RefreshToken)
	requireKind(t, err, KindInvalidRefreshToken)
	if !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatal("expected errors.Is ErrInvalidRefreshToken")
	}
	if env.engine.MetricsSnapshot().Counters[MetricRefreshReuseDetected] != 1 {
		t.Fatal("expected reuse metric")
	}
}

func TestRefreshExpired(t *testing.T) {
	env := newTestEngine(t, testConfig(), nil)
	login := mustLogin(t, env)

	env.clock.Advance(24 * time.Hour)
	_, err := env.engine.Refresh(context.Background(), login.RefreshToken)
	requireKind(t, err, KindInvalidRefreshToken)
}

func TestRefreshGarbage(t *testing.T) {
	env := newTestEngine(t, testConfig(), nil)

	for _, token := range []string{"", "not-a-token", "AAAA"} {
		_, err := env.engine.Refresh(context.Background(), token)
		requireKind(t, err, KindInvalidRefreshToken)
	}
}

func TestRefreshIgnoresLockout(t *testing.T) {
	env := newTestEngine(t, testConfig(), nil)
	ctx := context.Background()
	login := mustLogin(t, env)

	for i := 0; i < 5; i++ {
		env.engine.Login(ctx, testEmail, "wrong-password")
	}
	if _, err := env.engine.Refresh(ctx, login.RefreshToken); err != nil {
		t.Fatalf("refresh must not be affected by lockout: %v", err)
	}
	_, err := env.engine.Login(ctx, testEmail, testPassword)
	requireKind(t, err, KindAccountLocked)
}

func TestReuseRevokesAllWhenConfigured(t *testing.T) {
	cfg := testConfig()
	cfg.Security.RevokeAllOnReuse = true
	env := newTestEngine(t, cfg, nil)
	ctx := context.Background()

	first := mustLogin(t, env)
	second := mustLogin(t, env)

	rotated, err := env.engine.Refresh(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	_, err = env.engine.Refresh(ctx, first.RefreshToken)
	requireKind(t, err, KindInvalidRefreshToken)

	for _, token := range []string{second.RefreshToken, rotated.RefreshToken} {
		_, err := env.engine.Refresh(ctx, token)
		requireKind(t, err, KindInvalidRefreshToken)
	}
}

func TestReuseKeepsOtherSessionsByDefault(t *testing.T) {
	env := newTestEngine(t, testConfig(), nil)
	ctx := context.Background()

	first := mustLogin(t, env)
	second := mustLogin(t, env)

	if _, err := env.engine.Refresh(ctx, first.RefreshToken); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	env.engine.Refresh(ctx, first.RefreshToken)

	if _, err := env.engine.Refresh(ctx, second.RefreshToken); err != nil {
		t.Fatalf("unrelated session must survive: %v", err)
	}
}

func TestRefreshAfterLogoutIsNotReuse(t *testing.T) {
	cfg := testConfig()
	cfg.Security.RevokeAllOnReuse = true
	env := newTestEngine(t, cfg, nil)
	ctx := context.Background()

	first := mustLogin(t, env)
	second := mustLogin(t, env)

	if err := env.engine.Logout(ctx, first.RefreshToken); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	_, err := env.engine.Refresh(ctx, first.RefreshToken)
	requireKind(t, err, KindInvalidRefreshToken)

	if n := env.engine.MetricsSnapshot().Counters[MetricRefreshReuseDetected]; n != 0 {
		t.Fatalf("stale retry after logout counted as reuse %d times", n)
	}
	if _, err := env.engine.Refresh(ctx, second.RefreshToken); err != nil {
		t.Fatalf("other sessions must survive a stale retry: %v", err)
	}
}

func TestLogoutIdempotent(t *testing.T) {
	env := newTestEngine(t, testConfig(), nil)
	ctx := context.Background()
	login := mustLogin(t, env)

	for i := 0; i < 2; i++ {
		if err := env.engine.Logout(ctx, login.RefreshToken); err != nil {
			t.Fatalf("logout %d failed: %v", i, err)
		}
	}
	if err := env.engine.Logout(ctx, "garbage"); err != nil {
		t.Fatalf("logout of garbage failed: %v", err)
	}

	_, err := env.engine.Refresh(ctx, login.RefreshToken)
	requireKind(t, err, KindInvalidRefreshToken)
}

func TestLogoutRedisDown(t *testing.T) {
	env := newTestEngine(t, testConfig(), nil)
	login := mustLogin(t, env)
	env.mr.Close()

	err := env.engine.Logout(context.Background(), login.RefreshToken)
	requireKind(t, err, KindTransientStore)
}

func TestLogoutAll(t *testing.T) {
	env := newTestEngine(t, testConfig(), nil)
	ctx := context.Background()

	a := mustLogin(t, env)
	b := mustLogin(t, env)

	n, err := env.engine.LogoutAll(ctx, testAccount)
	if err != nil {
		t.Fatalf("logout all: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 revoked sessions, got %d", n)
	}
	for _, token := range []string{a.RefreshToken, b.RefreshToken} {
		_, err := env.engine.Refresh(ctx, token)
		requireKind(t, err, KindInvalidRefreshToken)
	}
}

func TestAccessTokenValidityWindow(t *testing.T) {
	env := newTestEngine(t, testConfig(), nil)
	ctx := context.Background()
	login := mustLogin(t, env)

	env.clock.Set(testStart.Add(15 * time.Minute))
	if _, err := env.engine.ValidateAccess(ctx, login.AccessToken); err != nil {
		t.Fatalf("token must be valid at expiry instant: %v", err)
	}

	env.clock.Set(testStart.Add(15*time.Minute + time.Second))
	if _, err := env.engine.ValidateAccess(ctx, login.AccessToken); !errors.Is(err, ErrInvalidAccessToken) {
		t.Fatalf("expected invalid after expiry, got %v", err)
	}
}

func TestAccessTokenIssuedMidSecond(t *testing.T) {
	env := newTestEngine(t, testConfig(), nil)
	ctx := context.Background()

	issued := testStart.Add(700 * time.Millisecond)
	env.clock.Set(issued)
	login := mustLogin(t, env)

	end := issued.Add(15 * time.Minute)
	if !login.AccessExpiresAt.Equal(end) {
		t.Fatalf("expected access expiry %v, got %v", end, login.AccessExpiresAt)
	}

	for _, at := range []time.Time{end.Add(-100 * time.Millisecond), end} {
		env.clock.Set(at)
		if _, err := env.engine.ValidateAccess(ctx, login.AccessToken); err != nil {
			t.Fatalf("token must be valid at %v: %v", at, err)
		}
	}

	env.clock.Set(end.Add(time.Millisecond))
	if _, err := env.engine.ValidateAccess(ctx, login.AccessToken); !errors.Is(err, ErrInvalidAccessToken) {
		t.Fatalf("expected invalid after expiry, got %v", err)
	}
}

func TestValidateAccessTouchesNoStore(t *testing.T) {
	env := newTestEngine(t, testConfig(), nil)
	login := mustLogin(t, env)
	env.mr.Close()
	calls := env.dir.lookupCalls

	if _, err := env.engine.ValidateAccess(context.Background(), login.AccessToken); err != nil {
		t.Fatalf("validate must not need redis: %v", err)
	}
	if env.dir.lookupCalls != calls {
		t.Fatal("validate must not call the directory")
	}
}

func TestHealth(t *testing.T) {
	env := newTestEngine(t, testConfig(), nil)
	if _, err := env.engine.Health(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
	env.mr.Close()
	_, err := env.engine.Health(context.Background())
	requireKind(t, err, KindTransientStore)
}

func TestNilEngine(t *testing.T) {
	var e *Engine
	if _, err := e.Login(context.Background(), testEmail, testPassword); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if err := e.Logout(context.Background(), "x"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	e.Close()
}
