// Package jwt issues and validates short-lived access tokens and generates the
// opaque identifiers used for refresh tokens.
//
// Access tokens are stateless: validity is decided by signature, key version
// (the "kid" header) and expiry against a caller-supplied clock. Refresh
// identifiers carry no claims at all; they are random indexes into the session
// registry.
package jwt
