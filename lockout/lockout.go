package lockout

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable indicates the lockout backend is unreachable.
var ErrUnavailable = errors.New("lockout backend unavailable")

// KEYS: state. ARGV: now_ms, max attempts, lock_ms.
const recordFailureScript = `
local f = redis.call("HMGET", KEYS[1], "failed", "locked_until")
local failed = tonumber(f[1]) or 0
local locked = tonumber(f[2]) or 0
local now = tonumber(ARGV[1])
if locked > now then
  return {failed, locked}
end
if locked > 0 then
  failed = 0
  locked = 0
  redis.call("PERSIST", KEYS[1])
end
failed = failed + 1
if failed >= tonumber(ARGV[2]) then
  locked = now + tonumber(ARGV[3])
end
redis.call("HSET", KEYS[1], "failed", failed, "locked_until", locked)
if locked > 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[3])
end
return {failed, locked}
`

var recordFailureLua = redis.NewScript(recordFailureScript)

// Config holds the lockout threshold and duration.
type Config struct {
	MaxAttempts  int
	LockDuration time.Duration
	Prefix       string
}

// State is an account's failure streak. LockedUntil is zero when the account
// has not reached the threshold.
type State struct {
	FailedAttempts int
	LockedUntil    time.Time
}

// Locked reports whether the state denies logins at now.
func (s State) Locked(now time.Time) bool {
	return !s.LockedUntil.IsZero() && now.Before(s.LockedUntil)
}

// Remaining is the lock time left at now, or zero.
func (s State) Remaining(now time.Time) time.Duration {
	if !s.Locked(now) {
		return 0
	}
	return s.LockedUntil.Sub(now)
}

// Policy is the Redis-backed lockout policy.
type Policy struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a lockout policy.
func New(client redis.UniversalClient, cfg Config) (*Policy, error) {
	if client == nil {
		return nil, errors.New("lockout requires a redis client")
	}
	if cfg.MaxAttempts < 1 {
		return nil, errors.New("lockout max attempts must be >= 1")
	}
	if cfg.LockDuration <= 0 {
		return nil, errors.New("lockout duration must be > 0")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "ac"
	}
	return &Policy{redis: client, config: cfg}, nil
}

func (p *Policy) key(accountID string) string {
	return p.config.Prefix + ":lo:" + accountID
}

// RecordFailure counts one failed login and returns the resulting state.
// Failures against a still-locked account do not increment; the first
// failure after a lock elapses starts a new streak. A streak below the
// threshold never expires on its own; only RecordSuccess or a lock clears it.
func (p *Policy) RecordFailure(ctx context.Context, accountID string, now time.Time) (State, error) {
	if accountID == "" {
		return State{}, errors.New("empty account id")
	}

	res, err := recordFailureLua.Run(
		ctx,
		p.redis,
		[]string{p.key(accountID)},
		now.UnixMilli(),
		p.config.MaxAttempts,
		p.config.LockDuration.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(res) != 2 {
		return State{}, fmt.Errorf("%w: malformed lockout response", ErrUnavailable)
	}
	return toState(res[0], res[1]), nil
}

// RecordSuccess clears the failure streak and any lock.
func (p *Policy) RecordSuccess(ctx context.Context, accountID string) error {
	if accountID == "" {
		return nil
	}
	if err := p.redis.Del(ctx, p.key(accountID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// IsLocked reads the current state. An elapsed lock reads as unlocked even
// if Redis has not evicted the key yet.
func (p *Policy) IsLocked(ctx context.Context, accountID string, now time.Time) (bool, State, error) {
	if accountID == "" {
		return false, State{}, nil
	}

	fields, err := p.redis.HMGet(ctx, p.key(accountID), "failed", "locked_until").Result()
	if err != nil {
		return false, State{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	failed := parseField(fields, 0)
	lockedUntil := parseField(fields, 1)
	state := toState(failed, lockedUntil)
	if lockedUntil > 0 && !state.Locked(now) {
		return false, State{}, nil
	}
	return state.Locked(now), state, nil
}

// Config returns the policy configuration.
func (p *Policy) Config() Config {
	return p.config
}

func toState(failed, lockedUntil int64) State {
	st := State{FailedAttempts: int(failed)}
	if lockedUntil > 0 {
		st.LockedUntil = time.UnixMilli(lockedUntil)
	}
	return st
}

func parseField(fields []interface{}, i int) int64 {
	if i >= len(fields) {
		return 0
	}
	s, ok := fields[i].(string)
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
