// Package audit implements async event dispatching for login, refresh and
// logout outcomes.
//
// # Components
//
//   - [Sink] is the consumer interface (channel, JSON writer, fan-out, no-op).
//   - [Dispatcher] is a buffered async relay with drop-if-full or
//     block-if-full semantics.
//   - [Event] is the structured record: timestamp, type, account, IP, metadata.
//
// This package owns buffering and delivery. Which events to emit is decided
// by the Engine.
package audit
