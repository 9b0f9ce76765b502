package miclink

import (
	"time"

	"github.com/justprosound/miclink/internal/connstate"
)

// Status represents the lifecycle state of a device connection.
//
// Status is a string type that can hold one of five predefined values:
// [StatusConnecting], [StatusConnected], [StatusDisconnected],
// [StatusError], or [StatusStopped]. Using a string type allows for easy
// JSON serialization and human-readable logging while maintaining type
// safety through the defined constants.
type Status string

const (
	// StatusConnecting indicates a dial attempt is in progress.
	StatusConnecting Status = "connecting"

	// StatusConnected indicates a live stream is established and
	// payloads are flowing.
	StatusConnected Status = "connected"

	// StatusDisconnected indicates the connection dropped cleanly and
	// a reconnect is pending.
	StatusDisconnected Status = "disconnected"

	// StatusError indicates the last attempt failed. The device may
	// still be retrying, or it may have exhausted its reconnect budget
	// and be waiting for an operator resume.
	StatusError Status = "error"

	// StatusStopped indicates the device was shut down deliberately
	// and will not reconnect until resumed.
	StatusStopped Status = "stopped"
)

// String returns the string representation of the status.
// This implements the fmt.Stringer interface.
func (s Status) String() string {
	return string(s)
}

// Transport identifies the streaming protocol used to reach a device.
type Transport string

const (
	// TransportSSE streams telemetry over Server-Sent Events.
	TransportSSE Transport = "sse"

	// TransportWebSocket streams telemetry over a WebSocket.
	TransportWebSocket Transport = "websocket"
)

// String returns the string representation of the transport.
func (t Transport) String() string {
	return string(t)
}

// ConnState is a snapshot of one device's connection lifecycle.
//
// ConnState values are delivered to callbacks registered with
// [WithStateCallback] and returned by [Monitor.Snapshot]. They are
// immutable: timestamps are shared pointers but the pointed-to values
// are never modified after a transition is recorded.
type ConnState struct {
	// DeviceID identifies the device this snapshot describes.
	DeviceID string

	// Transport is the streaming protocol in use.
	Transport Transport

	// Status is the current lifecycle state.
	Status Status

	// ConnectedAt is when the current connection was established.
	// Nil while not connected.
	ConnectedAt *time.Time

	// LastMessageAt is when the last payload arrived on the current
	// connection. Nil if none has arrived yet.
	LastMessageAt *time.Time

	// DisconnectedAt is when the connection was last lost.
	// Nil if it has never been lost.
	DisconnectedAt *time.Time

	// ErrorMessage describes the most recent failure.
	// Empty after a successful connect.
	ErrorMessage string

	// ErrorCount is the number of consecutive failures since the last
	// successful connect.
	ErrorCount int

	// LastErrorAt is when the most recent failure occurred.
	// Nil if none has occurred since the last successful connect.
	LastErrorAt *time.Time

	// ReconnectAttempts counts the reconnects consumed since the last
	// successful connect.
	ReconnectAttempts int

	// MaxReconnectAttempts is the reconnect budget for this device.
	// Once ReconnectAttempts reaches it, the device parks until an
	// operator resumes it.
	MaxReconnectAttempts int
}

// toConnState converts an internal state record to its public form.
// Timestamp pointers are shared rather than copied: transitions always
// allocate fresh values, so the pointed-to times never change.
func toConnState(s connstate.State) ConnState {
	return ConnState{
		DeviceID:             s.DeviceID,
		Transport:            Transport(s.ConnType),
		Status:               Status(s.Status),
		ConnectedAt:          s.ConnectedAt,
		LastMessageAt:        s.LastMessageAt,
		DisconnectedAt:       s.DisconnectedAt,
		ErrorMessage:         s.ErrorMessage,
		ErrorCount:           s.ErrorCount,
		LastErrorAt:          s.LastErrorAt,
		ReconnectAttempts:    s.ReconnectAttempts,
		MaxReconnectAttempts: s.MaxReconnectAttempts,
	}
}
