package miclink

import (
	"errors"
	"fmt"
)

// gridConfig holds configuration during device grid construction.
type gridConfig struct {
	addressTemplate      string
	dimensions           map[string][]string
	headers              map[string]string
	transport            Transport
	maxReconnectAttempts int
}

// GridOption configures device grid generation.
// GridOption implements the functional options pattern for [NewDeviceGrid].
type GridOption func(*gridConfig) error

// WithAddressTemplate sets the address template for device generation.
// The template uses Go's text/template syntax with dimension keys as variables.
//
// Example:
//
//	WithAddressTemplate("http://10.0.{{.rack}}.{{.unit}}/stream")
//
// Returns an error if the template string is empty.
func WithAddressTemplate(tmpl string) GridOption {
	return func(cfg *gridConfig) error {
		if tmpl == "" {
			return errors.New("address template required")
		}
		cfg.addressTemplate = tmpl
		return nil
	}
}

// WithGridDimensions sets the dimension values for cartesian product expansion.
// Each key in the map becomes a template variable, and the cartesian product
// of all values generates the device combinations.
//
// Example:
//
//	WithGridDimensions(map[string][]string{
//	    "rack": {"7", "8"},
//	    "unit": {"21", "22"},
//	})
//
// Returns an error if the map is empty, any dimension has no values,
// or any value is an empty string.
func WithGridDimensions(dims map[string][]string) GridOption {
	return func(cfg *gridConfig) error {
		if len(dims) == 0 {
			return errors.New("at least one dimension required")
		}
		for k, vals := range dims {
			if len(vals) == 0 {
				return fmt.Errorf("dimension '%s' has no values", k)
			}
			for i, v := range vals {
				if v == "" {
					return fmt.Errorf("dimension '%s' contains empty value at index %d", k, i)
				}
			}
		}
		cfg.dimensions = dims
		return nil
	}
}

// WithGridHeaders adds request headers to all generated devices.
//
// Accepts variadic key-value pairs. The number of arguments must be even.
//
// Example:
//
//	WithGridHeaders("Authorization", "Bearer token")
func WithGridHeaders(keyValues ...string) GridOption {
	return func(cfg *gridConfig) error {
		if len(keyValues)%2 != 0 {
			return errors.New("WithGridHeaders requires an even number of arguments (key-value pairs)")
		}
		if cfg.headers == nil {
			cfg.headers = make(map[string]string)
		}
		for i := 0; i < len(keyValues); i += 2 {
			cfg.headers[keyValues[i]] = keyValues[i+1]
		}
		return nil
	}
}

// WithGridTransport sets the streaming protocol for all generated devices.
// If not set, devices use the [NewDevice] default of [TransportSSE].
//
// Returns an error if the transport is not one of the defined constants.
func WithGridTransport(t Transport) GridOption {
	return func(cfg *gridConfig) error {
		switch t {
		case TransportSSE, TransportWebSocket:
			cfg.transport = t
			return nil
		default:
			return errors.New("transport must be sse or websocket")
		}
	}
}

// WithGridMaxReconnectAttempts sets a custom reconnect budget for all
// generated devices. This overrides the global budget set via
// [WithReconnectPolicy].
//
// A value of zero means use the global budget.
// Returns an error if the value is negative.
func WithGridMaxReconnectAttempts(n int) GridOption {
	return func(cfg *gridConfig) error {
		if n < 0 {
			return errors.New("max reconnect attempts cannot be negative")
		}
		cfg.maxReconnectAttempts = n
		return nil
	}
}
