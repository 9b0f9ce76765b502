package miclink

import "errors"

// deviceConfig holds mutable state during device construction.
type deviceConfig struct {
	name                 string
	transport            Transport
	headers              map[string]string
	maxReconnectAttempts int
}

// DeviceOption is a function that configures a [Device] during construction.
//
// DeviceOption implements the functional options pattern, allowing optional
// configuration to be passed to [NewDevice] in a type-safe, extensible way.
// Options return an error if validation fails.
//
// Built-in options: [WithName], [WithTransport], [WithHeaders],
// [WithMaxReconnectAttempts].
type DeviceOption func(*deviceConfig) error

// WithName sets a human-readable display name for the device.
//
// The name appears in logs alongside the ID. If not specified, the
// device ID doubles as its name.
//
// Example:
//
//	dev, err := miclink.NewDevice("rx-1", addr,
//	    miclink.WithName("Lead Vocal Handheld"),
//	)
//
// Returns an error if the name is empty.
func WithName(name string) DeviceOption {
	return func(cfg *deviceConfig) error {
		if name == "" {
			return errors.New("device name cannot be empty")
		}
		cfg.name = name
		return nil
	}
}

// WithTransport selects the streaming protocol for the device.
//
// Receivers that expose a Server-Sent Events stream use [TransportSSE]
// (the default). Receivers that expose a WebSocket stream use
// [TransportWebSocket]. For WebSocket devices the address may use an
// http:// or https:// scheme; it is rewritten to ws:// or wss:// when
// dialing.
//
// Example:
//
//	dev, err := miclink.NewDevice("rx-2", "ws://10.0.0.22/telemetry",
//	    miclink.WithTransport(miclink.TransportWebSocket),
//	)
//
// Returns an error if the transport is not one of the defined constants.
func WithTransport(t Transport) DeviceOption {
	return func(cfg *deviceConfig) error {
		switch t {
		case TransportSSE, TransportWebSocket:
			cfg.transport = t
			return nil
		default:
			return errors.New("transport must be sse or websocket")
		}
	}
}

// WithHeaders adds custom request headers to dials for this device.
//
// Use this for receivers that require authentication or custom headers.
// Headers are sent with every connection attempt to the device.
//
// Accepts variadic key-value pairs. The number of arguments must be even.
//
// Example:
//
//	dev, err := miclink.NewDevice("rx-1", addr,
//	    miclink.WithHeaders("Authorization", "Bearer token123"),
//	)
//
// Returns an error if an odd number of arguments is provided.
func WithHeaders(keyValues ...string) DeviceOption {
	return func(cfg *deviceConfig) error {
		if len(keyValues)%2 != 0 {
			return errors.New("WithHeaders requires an even number of arguments (key-value pairs)")
		}
		for i := 0; i < len(keyValues); i += 2 {
			cfg.headers[keyValues[i]] = keyValues[i+1]
		}
		return nil
	}
}

// WithMaxReconnectAttempts sets a custom reconnect budget for this device.
//
// When the device accumulates this many consecutive failed reconnects,
// the monitor stops retrying, raises an alert, and parks the device
// until an operator resumes it. Use a higher budget for devices on
// flaky links, or a lower one for devices where rapid operator
// attention matters more than self-healing.
//
// If not specified, the global budget from [WithReconnectPolicy]
// applies.
//
// Example:
//
//	flaky, _ := miclink.NewDevice("rx-balcony", addr,
//	    miclink.WithMaxReconnectAttempts(20),
//	)
//
// Returns an error if the budget is not positive.
func WithMaxReconnectAttempts(n int) DeviceOption {
	return func(cfg *deviceConfig) error {
		if n <= 0 {
			return errors.New("max reconnect attempts must be positive")
		}
		cfg.maxReconnectAttempts = n
		return nil
	}
}
