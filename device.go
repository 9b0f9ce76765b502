package miclink

import (
	"errors"
	"net/url"
)

// Device represents one wireless receiver whose telemetry stream is
// monitored.
//
// Device is immutable after creation via [NewDevice]. All fields are
// private with getter methods that return copies of mutable data (maps),
// ensuring the device cannot be modified after construction.
//
// Devices are configured using the functional options pattern with
// [DeviceOption] functions such as [WithName], [WithTransport],
// [WithHeaders], and [WithMaxReconnectAttempts].
type Device struct {
	id                   string
	name                 string
	address              string
	transport            Transport
	headers              map[string]string
	maxReconnectAttempts int
}

// ID returns the device's unique identifier.
// The ID keys state records, journal entries, and API routes.
func (d Device) ID() string {
	return d.id
}

// Name returns the device's display name.
// Defaults to the ID if not set via [WithName].
func (d Device) Name() string {
	return d.name
}

// Address returns the device's stream address as a string.
// This is the URL the monitor dials to receive telemetry.
func (d Device) Address() string {
	return d.address
}

// Transport returns the streaming protocol used to reach the device.
// Defaults to [TransportSSE] if not set via [WithTransport].
func (d Device) Transport() Transport {
	return d.transport
}

// Headers returns a copy of the device's custom request headers.
// These headers are sent with every dial to the device.
// The returned map is empty when no custom headers are set.
func (d Device) Headers() map[string]string {
	return copyMap(d.headers)
}

// MaxReconnectAttempts returns the device's reconnect budget.
// Returns 0 if no custom budget was specified, meaning the global
// default applies.
func (d Device) MaxReconnectAttempts() int {
	return d.maxReconnectAttempts
}

// NewDevice creates a [Device] with the given ID, stream address, and
// options.
//
// The id parameter uniquely identifies the device across the monitor;
// it appears in state records, journal entries, and API routes. The
// address parameter must be a valid URL with an http://, https://,
// ws://, or wss:// scheme.
//
// Options are applied in order using the functional options pattern.
// See [WithName], [WithTransport], [WithHeaders], and
// [WithMaxReconnectAttempts].
//
// Returns an error if the ID is empty or the address is invalid.
//
// Example:
//
//	dev, err := miclink.NewDevice("rx-stage-left", "http://10.0.0.21/stream",
//	    miclink.WithName("Stage Left Handheld"),
//	    miclink.WithHeaders("Authorization", "Bearer token123"),
//	)
func NewDevice(id, address string, opts ...DeviceOption) (Device, error) {
	if id == "" {
		return Device{}, errors.New("device ID cannot be empty")
	}

	parsed, err := url.Parse(address)
	if err != nil {
		return Device{}, errors.New("invalid address: " + err.Error())
	}
	switch parsed.Scheme {
	case "http", "https", "ws", "wss":
	case "":
		return Device{}, errors.New("address must have a scheme (http://, https://, ws://, or wss://)")
	default:
		return Device{}, errors.New("address scheme must be http, https, ws, or wss")
	}

	cfg := &deviceConfig{
		headers:   make(map[string]string),
		transport: TransportSSE,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return Device{}, err
		}
	}

	name := cfg.name
	if name == "" {
		name = id
	}

	return Device{
		id:                   id,
		name:                 name,
		address:              address,
		transport:            cfg.transport,
		headers:              cfg.headers,
		maxReconnectAttempts: cfg.maxReconnectAttempts,
	}, nil
}

// copyMap returns a shallow copy of the map.
func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
