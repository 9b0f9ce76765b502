// Package stream dials and reads the vendor-side device streams.
//
// This package is internal to miclink. It hides the two upstream transports
// behind one pair of interfaces: a [Dialer] opens a connection to a device's
// stream endpoint and a [Stream] yields raw payloads one at a time until the
// stream ends. The ingest loop owns retry and state bookkeeping; this
// package only moves bytes.
//
// The main components are:
//
//   - [Dialer]: opens a [Stream] for a [Target]
//   - [SSEDialer]: Server-Sent Events transport over net/http
//   - [WSDialer]: WebSocket transport over gorilla/websocket
//   - [Target]: a device's stream endpoint (ID, URL, extra headers)
//
// Both implementations read in a background goroutine and hand payloads
// over a channel, so [Stream.Next] honors context cancellation and
// deadlines even though the underlying reads block.
//
// Users of the miclink library should not need to interact with this
// package directly.
package stream
