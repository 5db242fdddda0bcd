package authcore

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const (
	testPassword = "correct-password-123"
	testEmail    = "alice@example.com"
	testUsername = "alice"
	testAccount  = "u1"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

var testStart = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: testStart}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeDirectory struct {
	mu       sync.Mutex
	accounts map[string]*Account

	lookupErr      error
	lookupFailures int
	updateErr      error

	lookupCalls      int
	lastLoginCalls   int
	failedWriteCalls int
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{accounts: map[string]*Account{}}
}

func (d *fakeDirectory) add(a Account) {
	d.mu.Lock()
	defer d.mu.Unlock()
	acct := a
	d.accounts[a.ID] = &acct
}

func (d *fakeDirectory) find(match func(*Account) bool) (Account, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lookupCalls++
	if d.lookupErr != nil && (d.lookupFailures < 0 || d.lookupCalls <= d.lookupFailures) {
		return Account{}, d.lookupErr
	}
	for _, a := range d.accounts {
		if match(a) {
			return *a, nil
		}
	}
	return Account{}, ErrAccountNotFound
}

func (d *fakeDirectory) GetAccountByEmail(_ context.Context, email string) (Account, error) {
	return d.find(func(a *Account) bool { return strings.EqualFold(a.Email, email) })
}

func (d *fakeDirectory) GetAccountByUsername(_ context.Context, username string) (Account, error) {
	return d.find(func(a *Account) bool { return a.Username == username })
}

func (d *fakeDirectory) UpdateLastLogin(_ context.Context, id string, at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastLoginCalls++
	if d.updateErr != nil {
		return d.updateErr
	}
	if a, ok := d.accounts[id]; ok {
		t := at
		a.LastLogin = &t
	}
	return nil
}

func (d *fakeDirectory) UpdateFailedAttempts(_ context.Context, id string, count int, lockedUntil *time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failedWriteCalls++
	if d.updateErr != nil {
		return d.updateErr
	}
	if a, ok := d.accounts[id]; ok {
		a.FailedAttempts = count
		a.LockedUntil = lockedUntil
	}
	return nil
}

func (d *fakeDirectory) get(id string) Account {
	d.mu.Lock()
	defer d.mu.Unlock()
	return *d.accounts[id]
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = testKey
	cfg.JWT.AccessTTL = 15 * time.Minute
	cfg.JWT.RefreshTTL = 24 * time.Hour
	cfg.Lockout.MaxAttempts = 5
	cfg.Lockout.LockDuration = 30 * time.Minute
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Store.OperationTimeout = time.Second
	cfg.Store.RetryDelay = time.Millisecond
	cfg.Metrics.Enabled = true
	return cfg
}

type testEnv struct {
	engine *Engine
	mr     *miniredis.Miniredis
	rdb    *redis.Client
	dir    *fakeDirectory
	clock  *testClock
}

func newTestEngine(t *testing.T, cfg Config, sink AuditSink) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	dir := newFakeDirectory()
	clock := newTestClock()

	b := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithDirectory(dir).
		WithClock(clock.Now)
	if sink != nil {
		b = b.WithAuditSink(sink)
	}
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(func() {
		engine.Close()
		rdb.Close()
	})

	hash, err := engine.PasswordHasher().Hash(testPassword)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	dir.add(Account{
		ID:           testAccount,
		Email:        testEmail,
		Username:     testUsername,
		PasswordHash: hash,
		Status:       AccountActive,
	})

	return &testEnv{engine: engine, mr: mr, rdb: rdb, dir: dir, clock: clock}
}

func mustLogin(t *testing.T, env *testEnv) *LoginResult {
	t.Helper()
	res, err := env.engine.Login(context.Background(), testEmail, testPassword)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	return res
}

func requireKind(t *testing.T, err error, want Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	if got := KindOf(err); got != want {
		t.Fatalf("expected kind %s, got %s (%v)", want, got, err)
	}
}

var errDirectoryDown = errors.New("directory connection refused")
