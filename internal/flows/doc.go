// Package flows contains pure-function orchestrators for every Engine
// operation.
//
// Each flow function (RunLogin, RunRefresh, RunLogout, RunValidate) accepts a
// typed dependency struct and returns a result carrying a failure kind. The
// root package maps failure kinds to its public error taxonomy, metrics and
// audit events.
//
// # Architecture boundaries
//
// Flow functions coordinate the directory, lockout policy, password
// verifier, token issuer and session registry. They do NOT own any of these
// resources; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import authcore (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency functions.
package flows
