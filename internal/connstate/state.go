package connstate

import "time"

// Status represents the lifecycle state of a device stream connection.
//
// Status is a string type that can hold one of five predefined values:
// [StatusConnecting], [StatusConnected], [StatusDisconnected], [StatusError],
// or [StatusStopped]. Using a string type allows for easy JSON serialization
// and human-readable logging while maintaining type safety through the
// defined constants.
type Status string

const (
	// StatusConnecting indicates a connection attempt is in flight.
	StatusConnecting Status = "connecting"

	// StatusConnected indicates the stream is open and healthy.
	StatusConnected Status = "connected"

	// StatusDisconnected indicates the stream ended or was never opened.
	// This is also the initial status of a freshly registered device.
	StatusDisconnected Status = "disconnected"

	// StatusError indicates the stream failed with a recorded error.
	StatusError Status = "error"

	// StatusStopped indicates deliberate operator shutdown. Stopped is
	// terminal for the automatic reconnect path; only an explicit resume
	// re-arms the connection.
	StatusStopped Status = "stopped"
)

// String returns the string representation of the status.
// This implements the fmt.Stringer interface.
func (s Status) String() string {
	return string(s)
}

// ConnType identifies the upstream transport used for a device stream.
type ConnType string

const (
	// ConnTypeSSE streams telemetry over Server-Sent Events.
	ConnTypeSSE ConnType = "sse"

	// ConnTypeWebSocket streams telemetry over a WebSocket.
	ConnTypeWebSocket ConnType = "websocket"
)

// String returns the string representation of the connection type.
func (c ConnType) String() string {
	return string(c)
}

// DefaultMaxReconnectAttempts is the reconnect ceiling applied when a device
// does not configure its own.
const DefaultMaxReconnectAttempts = 5

// State is the connection record for one monitored device stream.
//
// A State value is immutable from the caller's point of view: every
// transition method copies the receiver, adjusts the copy, and returns it.
// Timestamp fields are nil until the corresponding event has happened at
// least once. ErrorCount counts consecutive failures since the last healthy
// connect; ReconnectAttempts counts retry issuances over the same window.
// The two counters move independently but both reset to zero together on a
// successful connect.
type State struct {
	// DeviceID is the opaque identifier of the monitored device.
	DeviceID string `json:"device_id"`

	// ConnType is the upstream transport for this device's stream.
	ConnType ConnType `json:"conn_type"`

	// Status is the current lifecycle state.
	Status Status `json:"status"`

	// ConnectedAt is when the current (or most recent) session opened.
	ConnectedAt *time.Time `json:"connected_at"`

	// LastMessageAt is when the last payload arrived on the stream.
	LastMessageAt *time.Time `json:"last_message_at"`

	// DisconnectedAt is when the stream last closed. Stale while Status
	// is [StatusConnected].
	DisconnectedAt *time.Time `json:"disconnected_at"`

	// ErrorMessage is the text of the most recent error, empty when none.
	ErrorMessage string `json:"error_message"`

	// ErrorCount is the number of consecutive failures since the last
	// successful connect.
	ErrorCount int `json:"error_count"`

	// LastErrorAt is when the most recent error was recorded.
	LastErrorAt *time.Time `json:"last_error_at"`

	// ReconnectAttempts is the number of retries issued since the last
	// successful connect. Never exceeds MaxReconnectAttempts while the
	// automatic retry path is in charge.
	ReconnectAttempts int `json:"reconnect_attempts"`

	// MaxReconnectAttempts is the configured retry ceiling.
	MaxReconnectAttempts int `json:"max_reconnect_attempts"`
}

// New returns the initial record for a freshly registered device: status
// disconnected, no timestamps, counters at zero, and the default reconnect
// ceiling.
func New(deviceID string, connType ConnType) State {
	return State{
		DeviceID:             deviceID,
		ConnType:             connType,
		Status:               StatusDisconnected,
		MaxReconnectAttempts: DefaultMaxReconnectAttempts,
	}
}

// MarkConnecting records that a connection attempt is starting. No
// timestamps change. Valid from any non-stopped state; called on a stopped
// record it returns the receiver unchanged, since stopped devices resume
// only through [State.Resume].
func (s State) MarkConnecting() State {
	if s.Status == StatusStopped {
		return s
	}
	s.Status = StatusConnecting
	return s
}

// MarkConnected records a fresh, healthy session. All failure bookkeeping is
// wiped: error count, reconnect attempts and the error message reset, and
// DisconnectedAt clears, because a new session has proven viable.
// LastErrorAt is kept as history.
func (s State) MarkConnected(now time.Time) State {
	s.Status = StatusConnected
	s.ConnectedAt = &now
	s.LastMessageAt = &now
	s.DisconnectedAt = nil
	s.ErrorMessage = ""
	s.ErrorCount = 0
	s.ReconnectAttempts = 0
	return s
}

// MarkDisconnected records that the stream closed. A non-empty reason marks
// an error-flavored disconnect: the reason is stored, ErrorCount increments
// and LastErrorAt is set. An empty reason is a clean disconnect and leaves
// the error accounting untouched.
func (s State) MarkDisconnected(now time.Time, reason string) State {
	s.Status = StatusDisconnected
	s.DisconnectedAt = &now
	if reason != "" {
		s.ErrorMessage = reason
		s.ErrorCount++
		s.LastErrorAt = &now
	}
	return s
}

// MarkError records a failure on the stream: the reason is stored,
// ErrorCount increments and LastErrorAt is set. DisconnectedAt is not
// touched; an error does not by itself mean the stream closed.
func (s State) MarkError(now time.Time, reason string) State {
	s.Status = StatusError
	s.ErrorMessage = reason
	s.ErrorCount++
	s.LastErrorAt = &now
	return s
}

// MarkStopped records deliberate shutdown. Repeated calls are idempotent on
// status and counters; only DisconnectedAt refreshes.
func (s State) MarkStopped(now time.Time) State {
	s.Status = StatusStopped
	s.DisconnectedAt = &now
	return s
}

// ReceivedMessage records a payload arriving on the stream. When the record
// already reads connected only LastMessageAt advances. From any other
// status, including stopped, a message proves the stream is alive and the
// full [State.MarkConnected] reset is applied.
func (s State) ReceivedMessage(now time.Time) State {
	if s.Status != StatusConnected {
		return s.MarkConnected(now)
	}
	s.LastMessageAt = &now
	return s
}

// Resume re-arms a record for monitoring after operator intervention. The
// retry budget resets and the status returns to disconnected so the ingest
// loop can issue a fresh MarkConnecting. Error history (ErrorCount,
// LastErrorAt) is preserved for inspection.
func (s State) Resume() State {
	s.Status = StatusDisconnected
	s.ReconnectAttempts = 0
	return s
}

// IncrementReconnectAttempt counts one retry issuance. Called once per
// scheduled retry, before the attempt and independent of its outcome.
func (s State) IncrementReconnectAttempt() State {
	s.ReconnectAttempts++
	return s
}

// ShouldReconnect reports whether the automatic retry path may schedule
// another attempt: the record must read disconnected or error and the retry
// budget must not be exhausted. Stopped records never reconnect.
func (s State) ShouldReconnect() bool {
	if s.Status != StatusDisconnected && s.Status != StatusError {
		return false
	}
	return s.ReconnectAttempts < s.MaxReconnectAttempts
}

// IsActive reports whether the record currently reads connected.
func (s State) IsActive() bool {
	return s.Status == StatusConnected
}

// TimeSinceLastMessage returns how long ago the last payload arrived. The
// second return is false when no payload has ever been received.
func (s State) TimeSinceLastMessage(now time.Time) (time.Duration, bool) {
	if s.LastMessageAt == nil {
		return 0, false
	}
	return now.Sub(*s.LastMessageAt), true
}

// ConnectionDuration returns how long the current session has been open. The
// second return is false unless the record currently reads connected.
func (s State) ConnectionDuration(now time.Time) (time.Duration, bool) {
	if s.Status != StatusConnected || s.ConnectedAt == nil {
		return 0, false
	}
	return now.Sub(*s.ConnectedAt), true
}
