// Package connstate models the lifecycle of a single device-side streaming
// connection as an explicit state record plus pure transition functions.
//
// This package is internal to miclink and holds no I/O of its own. A [State]
// value is the full bookkeeping for one device stream (status, timestamps,
// error and reconnect counters); transitions such as [State.MarkConnected]
// take the current value and a timestamp and return the updated value without
// touching the original. Persistence is deliberately separate: [Machine]
// binds a State to a [Saver] and a [Clock] so that every applied transition
// is written out, while the transition logic itself stays side-effect free
// and trivially testable.
//
// The main components are:
//
//   - [State]: per-device connection record with pure transition methods
//   - [Status]: connection lifecycle states (connecting, connected, ...)
//   - [ConnType]: upstream transport kind (SSE or WebSocket)
//   - [Machine]: applies transitions, persists each result, guards access
//
// Users of the miclink library should not need to interact with this package
// directly. Connection records are surfaced through the main miclink package.
package connstate
