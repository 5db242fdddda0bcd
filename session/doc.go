// Package session is the refresh-token registry: a Redis-backed map from an
// opaque refresh identifier to {account, issued-at, expires-at, revoked}.
//
// # Storage layout
//
//	{<prefix>}:rt:<id>          hash  account_id, issued_at, expires_at, revoked, rotated_to
//	{<prefix>}:acct:<account>   set   live refresh ids of the account
//
// Timestamps are unix milliseconds. Record keys carry a Redis TTL equal to the
// token lifetime, so dead records are garbage-collected by Redis itself; every
// read still compares expires_at with the registry clock, so an expired but
// not yet evicted record is never honoured.
//
// # Atomicity
//
// Create, Rotate, Revoke and RevokeAllForAccount are single Lua scripts.
// Rotate in particular checks and flips the old record and writes the new one
// in one step, so two concurrent rotations of the same id cannot both succeed.
// Scripts derive index keys from the record, so the prefix is hash-tagged and
// every registry key lands in one Redis Cluster slot.
//
// # Reuse
//
// A rotated record keeps rotated_to. Presenting it again is reuse
// (*ReuseError). A record ended by Revoke or RevokeAllForAccount has no
// successor and fails with ErrRevoked instead.
package session
