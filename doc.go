// Package authcore is the authentication core of an IAM service: credential
// verification, JWT access tokens, rotating opaque refresh tokens backed by
// Redis, and account lockout after repeated failed logins.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config],
// the [Directory] adapter interface and the tagged [Error] type. Flow
// orchestration and audit dispatch live under internal/. The password, jwt,
// session and lockout packages are usable on their own.
//
// # Errors
//
// Every failed Engine call returns an [*Error] whose [Kind] is one of
// InvalidCredentials, AccountLocked, InvalidRefreshToken, TransientStore or
// Configuration. Use [KindOf] or errors.Is with the matching sentinel.
// Only TransientStore is retryable.
//
// # What this package must NOT do
//
//   - Log or audit secrets, access tokens or refresh identifiers.
//   - Keep per-account state in process memory.
//   - Retry rotations, session creation or failure recording.
package authcore
