package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	rotateStatusNotFound  int64 = 0
	rotateStatusExpired   int64 = 1
	rotateStatusReused    int64 = 2
	rotateStatusRotated   int64 = 3
	rotateStatusCorrupt   int64 = 4
	rotateStatusCollision int64 = 5
	rotateStatusRevoked   int64 = 6

	maxIDAttempts = 3
)

// KEYS: record, account index. ARGV: account, issued_at, expires_at, ttl_ms, id.
const createScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1], "account_id", ARGV[1], "issued_at", ARGV[2], "expires_at", ARGV[3], "revoked", "0")
redis.call("PEXPIRE", KEYS[1], ARGV[4])
redis.call("SADD", KEYS[2], ARGV[5])
if redis.call("PTTL", KEYS[2]) < tonumber(ARGV[4]) then
  redis.call("PEXPIRE", KEYS[2], ARGV[4])
end
return 1
`

// KEYS: old record, new record.
// ARGV: old id, new id, now, new expires_at, ttl_ms, index prefix.
const rotateScript = `
local fields = redis.call("HMGET", KEYS[1], "account_id", "expires_at", "revoked", "rotated_to")
local account = fields[1]
if not account then
  return {0}
end
local expires_at = tonumber(fields[2])
if not expires_at then
  return {4}
end
if fields[3] == "1" then
  if fields[4] then
    return {2, account}
  end
  return {6, account}
end
if expires_at <= tonumber(ARGV[3]) then
  return {1, account}
end
if redis.call("EXISTS", KEYS[2]) == 1 then
  return {5}
end

redis.call("HSET", KEYS[1], "revoked", "1", "rotated_to", ARGV[2])
redis.call("HSET", KEYS[2], "account_id", account, "issued_at", ARGV[3], "expires_at", ARGV[4], "revoked", "0")
redis.call("PEXPIRE", KEYS[2], ARGV[5])

local index = ARGV[6] .. account
redis.call("SREM", index, ARGV[1])
redis.call("SADD", index, ARGV[2])
if redis.call("PTTL", index) < tonumber(ARGV[5]) then
  redis.call("PEXPIRE", index, ARGV[5])
end
return {3, account}
`

// KEYS: record. ARGV: index prefix, id.
const revokeScript = `
local account = redis.call("HGET", KEYS[1], "account_id")
if not account then
  return 0
end
redis.call("HSET", KEYS[1], "revoked", "1")
redis.call("SREM", ARGV[1] .. account, ARGV[2])
return 1
`

// KEYS: account index. ARGV: record prefix.
const revokeAllScript = `
local ids = redis.call("SMEMBERS", KEYS[1])
local revoked = 0
for _, id in ipairs(ids) do
  local key = ARGV[1] .. id
  if redis.call("EXISTS", key) == 1 then
    redis.call("HSET", key, "revoked", "1")
    revoked = revoked + 1
  end
end
redis.call("DEL", KEYS[1])
return revoked
`

var (
	createLua    = redis.NewScript(createScript)
	rotateLua    = redis.NewScript(rotateScript)
	revokeLua    = redis.NewScript(revokeScript)
	revokeAllLua = redis.NewScript(revokeAllScript)
)

// Config wires a Store. NewID must return unguessable identifiers.
type Config struct {
	Prefix string
	NewID  func() (string, error)
}

// Store is the Redis-backed refresh-token registry. It is safe for
// concurrent use; all mutable state lives in Redis.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	newID  func() (string, error)
}

// NewStore builds a registry over client.
func NewStore(client redis.UniversalClient, cfg Config) (*Store, error) {
	if client == nil {
		return nil, errors.New("session store requires a redis client")
	}
	if cfg.NewID == nil {
		return nil, errors.New("session store requires an id generator")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "ac"
	}
	return &Store{
		redis:  client,
		prefix: hashTag(cfg.Prefix),
		newID:  cfg.NewID,
	}, nil
}

// hashTag wraps prefix in braces so every registry key hashes to one
// Redis Cluster slot. The Lua scripts derive index and record keys at run
// time, which is only legal when they share the slot of their KEYS.
func hashTag(prefix string) string {
	if strings.HasPrefix(prefix, "{") && strings.HasSuffix(prefix, "}") {
		return prefix
	}
	return "{" + prefix + "}"
}

func (s *Store) recordPrefix() string {
	return s.prefix + ":rt:"
}

func (s *Store) indexPrefix() string {
	return s.prefix + ":acct:"
}

func (s *Store) key(id string) string {
	return s.recordPrefix() + id
}

func (s *Store) indexKey(accountID string) string {
	return s.indexPrefix() + accountID
}

// Create stores a fresh record for accountID living ttl from now.
func (s *Store) Create(ctx context.Context, accountID string, ttl time.Duration, now time.Time) (RefreshToken, error) {
	if accountID == "" {
		return RefreshToken{}, errors.New("empty account id")
	}
	if ttl <= 0 {
		return RefreshToken{}, errors.New("refresh ttl must be > 0")
	}

	expiresAt := now.Add(ttl)

	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id, err := s.newID()
		if err != nil {
			return RefreshToken{}, fmt.Errorf("generate refresh id: %w", err)
		}

		created, err := createLua.Run(
			ctx,
			s.redis,
			[]string{s.key(id), s.indexKey(accountID)},
			accountID,
			unixMilli(now),
			unixMilli(expiresAt),
			ttl.Milliseconds(),
			id,
		).Int64()
		if err != nil {
			return RefreshToken{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if created == 1 {
			return RefreshToken{
				ID:        id,
				AccountID: accountID,
				IssuedAt:  now,
				ExpiresAt: expiresAt,
			}, nil
		}
	}

	return RefreshToken{}, errors.New("refresh id collision")
}

// Rotate atomically retires oldID and issues its successor for the same
// account. Absent, expired, revoked and already rotated ids fail with an
// error wrapping ErrInvalid; only the already rotated case is a *ReuseError.
func (s *Store) Rotate(ctx context.Context, oldID string, ttl time.Duration, now time.Time) (RefreshToken, error) {
	if oldID == "" {
		return RefreshToken{}, ErrNotFound
	}
	if ttl <= 0 {
		return RefreshToken{}, errors.New("refresh ttl must be > 0")
	}

	expiresAt := now.Add(ttl)
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		newID, err := s.newID()
		if err != nil {
			return RefreshToken{}, fmt.Errorf("generate refresh id: %w", err)
		}

		result, err := rotateLua.Run(
			ctx,
			s.redis,
			[]string{s.key(oldID), s.key(newID)},
			oldID,
			newID,
			unixMilli(now),
			unixMilli(expiresAt),
			ttl.Milliseconds(),
			s.indexPrefix(),
		).Slice()
		if err != nil {
			return RefreshToken{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if len(result) == 0 {
			return RefreshToken{}, fmt.Errorf("%w: empty rotate response", ErrUnavailable)
		}
		status, ok := result[0].(int64)
		if !ok {
			return RefreshToken{}, fmt.Errorf("%w: invalid rotate status", ErrUnavailable)
		}

		switch status {
		case rotateStatusNotFound:
			return RefreshToken{}, ErrNotFound
		case rotateStatusExpired:
			return RefreshToken{}, ErrExpired
		case rotateStatusReused:
			return RefreshToken{}, &ReuseError{TokenID: oldID, AccountID: stringAt(result, 1)}
		case rotateStatusRevoked:
			return RefreshToken{}, ErrRevoked
		case rotateStatusCorrupt:
			return RefreshToken{}, ErrCorrupt
		case rotateStatusCollision:
			continue
		case rotateStatusRotated:
			return RefreshToken{
				ID:        newID,
				AccountID: stringAt(result, 1),
				IssuedAt:  now,
				ExpiresAt: expiresAt,
			}, nil
		default:
			return RefreshToken{}, fmt.Errorf("%w: unknown rotate status %d", ErrUnavailable, status)
		}
	}

	return RefreshToken{}, errors.New("refresh id collision")
}

// Revoke marks id revoked. It is idempotent: unknown ids are not an error.
func (s *Store) Revoke(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := revokeLua.Run(ctx, s.redis, []string{s.key(id)}, s.indexPrefix(), id).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// RevokeAllForAccount revokes every live refresh record of accountID and
// returns how many were revoked.
func (s *Store) RevokeAllForAccount(ctx context.Context, accountID string) (int, error) {
	if accountID == "" {
		return 0, nil
	}
	n, err := revokeAllLua.Run(ctx, s.redis, []string{s.indexKey(accountID)}, s.recordPrefix()).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return int(n), nil
}

// Get returns the record for id without mutating it. Expired records yield
// ErrExpired even if Redis has not evicted them yet; revoked records are
// returned with Revoked set.
func (s *Store) Get(ctx context.Context, id string, now time.Time) (RefreshToken, error) {
	fields, err := s.redis.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		return RefreshToken{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(fields) == 0 {
		return RefreshToken{}, ErrNotFound
	}

	rec, err := decodeRecord(id, fields)
	if err != nil {
		return RefreshToken{}, err
	}
	if rec.Expired(now) {
		return RefreshToken{}, ErrExpired
	}
	return rec, nil
}

// Ping reports store reachability and round-trip latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return time.Since(start), nil
}

func decodeRecord(id string, fields map[string]string) (RefreshToken, error) {
	issued, err := strconv.ParseInt(fields["issued_at"], 10, 64)
	if err != nil {
		return RefreshToken{}, ErrCorrupt
	}
	expires, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return RefreshToken{}, ErrCorrupt
	}
	if fields["account_id"] == "" {
		return RefreshToken{}, ErrCorrupt
	}
	return RefreshToken{
		ID:        id,
		AccountID: fields["account_id"],
		IssuedAt:  time.UnixMilli(issued),
		ExpiresAt: time.UnixMilli(expires),
		Revoked:   fields["revoked"] == "1",
		RotatedTo: fields["rotated_to"],
	}, nil
}

func stringAt(parts []interface{}, i int) string {
	if i >= len(parts) {
		return ""
	}
	switch v := parts[i].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}

func unixMilli(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
