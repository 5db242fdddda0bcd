// Package lockout tracks consecutive failed logins per account in Redis and
// locks an account for a fixed duration once the configured threshold is
// reached.
//
// State lives in one hash per account, <prefix>:lo:<account>, with fields
// failed and locked_until (unix milliseconds). Every mutation runs as a
// single Lua script so concurrent failures cannot lose increments. A streak
// below the threshold has no TTL and survives until a successful login; the
// key gets a TTL of one lock duration only when the lock is applied.
package lockout
