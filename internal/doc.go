// Package internal holds the engine's private building blocks.
//
// # Sub-packages
//
//   - audit: asynchronous event dispatch (Dispatcher and Sink implementations)
//   - flows: pure-function orchestration of login, refresh, logout and validate
//
// Nothing here appears in the public authcore API.
package internal
