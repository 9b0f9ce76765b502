// Package session manages browser viewer connections.
//
// This package is internal to miclink. It adapts one WebSocket connection
// into a hub subscriber: envelopes published to the session's topics are
// written to the socket, and the small viewer command vocabulary (currently
// just ping) is answered in-band. A viewer that disconnects, misbehaves at
// the protocol level, or cannot keep up is detached from the hub and its
// socket closed; other viewers are unaffected.
//
// Users of the miclink library should not need to interact with this
// package directly.
package session
