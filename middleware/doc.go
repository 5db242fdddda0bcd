// Package middleware exposes HTTP middleware built on authcore.Engine.
//
// # Guards
//
//   - [Guard] verifies a bearer access token with Engine.ValidateAccess and
//     injects the claims into the request context. It never touches Redis.
//
// # Request plumbing
//
//   - [RequestID] assigns or propagates X-Request-ID and the client IP so
//     audit events and logs can be correlated.
//   - [Logging] writes one zap entry per request.
//
// This package translates HTTP semantics into Engine calls. It does not parse
// JWTs itself; every decision is delegated to the Engine.
package middleware
