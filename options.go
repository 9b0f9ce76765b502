package miclink

import (
	"errors"
	"log/slog"
	"time"
)

// mlConfig holds mutable state during Monitor construction.
type mlConfig struct {
	devices              []Device
	listenAddr           string
	staleAfter           time.Duration
	reconnectBase        time.Duration
	reconnectMax         time.Duration
	maxReconnectAttempts int
	dbDriver             string
	dbDSN                string
	journalPath          string
	logger               *slog.Logger
	stateCallbacks       []func(ConnState)
	alertCallbacks       []func(deviceID, reason string)
}

// Option is a function that configures a [Monitor] instance during construction.
//
// Option implements the functional options pattern, allowing optional
// configuration to be passed to [New] in a type-safe, extensible way.
// Options return an error if validation fails.
//
// Built-in options: [WithDevice], [WithDevices], [WithListenAddr],
// [WithStaleAfter], [WithReconnectPolicy], [WithDatabase],
// [WithJournalPath].
type Option func(*mlConfig) error

// WithDevice adds a single [Device] to the monitored set.
//
// Can be called multiple times to add multiple devices. At least one
// device must be configured for [New] to succeed.
//
// Example:
//
//	mon, err := miclink.New(
//	    miclink.WithDevice(rx1),
//	    miclink.WithDevice(rx2),
//	)
func WithDevice(d Device) Option {
	return func(cfg *mlConfig) error {
		cfg.devices = append(cfg.devices, d)
		return nil
	}
}

// WithDevices adds multiple [Device] values to the monitored set.
//
// This is a convenience function for adding several devices at once.
// Equivalent to calling [WithDevice] multiple times.
//
// Example:
//
//	mon, err := miclink.New(
//	    miclink.WithDevices(rx1, rx2, rx3),
//	)
func WithDevices(devices ...Device) Option {
	return func(cfg *mlConfig) error {
		cfg.devices = append(cfg.devices, devices...)
		return nil
	}
}

// WithListenAddr sets the bind address for the HTTP server.
//
// The REST API and viewer WebSockets are served on this address.
// Use ":0" to bind an ephemeral port; [Monitor.Addr] reports the bound
// address once the monitor has started. Defaults to ":8080" if not
// specified.
//
// Example:
//
//	mon, err := miclink.New(
//	    miclink.WithDevice(rx1),
//	    miclink.WithListenAddr("0.0.0.0:9090"),
//	)
//
// Returns an error if the address is empty.
func WithListenAddr(addr string) Option {
	return func(cfg *mlConfig) error {
		if addr == "" {
			return errors.New("listen address cannot be empty")
		}
		cfg.listenAddr = addr
		return nil
	}
}

// WithStaleAfter sets the staleness window for device streams.
//
// A connection that delivers no payload within this window is torn down
// and redialed, on the assumption that the underlying socket has wedged.
// Receivers stream meter data continuously, so even a generous window
// catches dead connections quickly. Defaults to 60 seconds if not
// specified.
//
// Example:
//
//	mon, err := miclink.New(
//	    miclink.WithDevice(rx1),
//	    miclink.WithStaleAfter(15 * time.Second),
//	)
//
// Returns an error if the duration is zero or negative.
func WithStaleAfter(d time.Duration) Option {
	return func(cfg *mlConfig) error {
		if d <= 0 {
			return errors.New("stale-after window must be positive")
		}
		cfg.staleAfter = d
		return nil
	}
}

// WithReconnectPolicy sets the global reconnect behavior.
//
// After a connection drops, the monitor waits baseDelay before the
// first reconnect and doubles the wait on each consecutive failure, up
// to maxDelay. After maxAttempts consecutive failures the device is
// parked: an alert is raised and no further dials happen until an
// operator resumes the device. A successful connect resets the count.
//
// Devices can override the budget individually via
// [WithMaxReconnectAttempts] on [NewDevice]. Defaults to 1 second base,
// 30 seconds cap, and 5 attempts if not specified.
//
// Example:
//
//	mon, err := miclink.New(
//	    miclink.WithDevices(devices...),
//	    miclink.WithReconnectPolicy(500*time.Millisecond, time.Minute, 10),
//	)
//
// Returns an error if either delay is not positive, if maxDelay is less
// than baseDelay, or if maxAttempts is not positive.
func WithReconnectPolicy(baseDelay, maxDelay time.Duration, maxAttempts int) Option {
	return func(cfg *mlConfig) error {
		if baseDelay <= 0 {
			return errors.New("reconnect base delay must be positive")
		}
		if maxDelay < baseDelay {
			return errors.New("reconnect max delay must be at least the base delay")
		}
		if maxAttempts <= 0 {
			return errors.New("max reconnect attempts must be positive")
		}
		cfg.reconnectBase = baseDelay
		cfg.reconnectMax = maxDelay
		cfg.maxReconnectAttempts = maxAttempts
		return nil
	}
}

// WithDatabase persists connection state to a SQL database.
//
// Supported drivers are "postgres" and "mysql". State records survive
// monitor restarts, so a device that was parked or stopped stays that
// way in the historical record. If not specified, state is held in
// memory only and is lost on shutdown.
//
// Example:
//
//	mon, err := miclink.New(
//	    miclink.WithDevices(devices...),
//	    miclink.WithDatabase("postgres", "host=localhost user=miclink dbname=miclink"),
//	)
//
// Returns an error if the driver is unsupported or the DSN is empty.
func WithDatabase(driver, dsn string) Option {
	return func(cfg *mlConfig) error {
		switch driver {
		case "postgres", "mysql":
		default:
			return errors.New("database driver must be postgres or mysql")
		}
		if dsn == "" {
			return errors.New("database DSN cannot be empty")
		}
		cfg.dbDriver = driver
		cfg.dbDSN = dsn
		return nil
	}
}

// WithJournalPath appends every status transition to a JSONL file.
//
// Each line records the device, the statuses transitioned between, a
// reason, and a timestamp. The file is append-only and safe to tail.
// If not specified, no journal is written.
//
// Example:
//
//	mon, err := miclink.New(
//	    miclink.WithDevice(rx1),
//	    miclink.WithJournalPath("/var/log/miclink/transitions.jsonl"),
//	)
//
// Returns an error if the path is empty.
func WithJournalPath(path string) Option {
	return func(cfg *mlConfig) error {
		if path == "" {
			return errors.New("journal path cannot be empty")
		}
		cfg.journalPath = path
		return nil
	}
}

// WithLogger sets a custom [slog.Logger] for the Monitor instance.
//
// This allows SDK consumers to control where logs are written and in what
// format. If not specified, [slog.Default] is used.
//
// Example:
//
//	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
//	mon, err := miclink.New(
//	    miclink.WithDevice(rx1),
//	    miclink.WithLogger(logger),
//	)
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *mlConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithStateCallback registers a function to be called on every update
// to a device's connection record: status transitions, reconnect
// attempt counts, and payload receipt timestamps.
//
// The callback receives a [ConnState] snapshot taken after the update
// was recorded, so reading the device's state from within the callback
// observes the same or a newer snapshot.
//
// Multiple callbacks may be registered by calling WithStateCallback
// multiple times; they execute in registration order.
//
// IMPORTANT: Callbacks must be non-blocking. Long-running operations
// should dispatch work to a separate goroutine. Blocking callbacks
// delay the device's connection loop.
//
// Callbacks are invoked synchronously from the device's own goroutine.
// Panics within callbacks are recovered and logged; they do not crash
// the monitor.
//
// Example:
//
//	mon, err := miclink.New(
//	    miclink.WithDevice(rx1),
//	    miclink.WithStateCallback(func(s miclink.ConnState) {
//	        if s.Status == miclink.StatusError {
//	            log.Printf("ALERT: %s: %s", s.DeviceID, s.ErrorMessage)
//	        }
//	    }),
//	)
//
// Nil callbacks are silently ignored.
func WithStateCallback(cb func(ConnState)) Option {
	return func(cfg *mlConfig) error {
		if cb == nil {
			return nil // no-op for nil callback (safe to call)
		}
		cfg.stateCallbacks = append(cfg.stateCallbacks, cb)
		return nil
	}
}

// WithAlertCallback registers a function to be called when a device
// exhausts its reconnect budget.
//
// The callback receives the device ID and a human-readable reason. It
// fires exactly once per exhaustion: a device that is resumed and
// exhausts its budget again triggers another call. Alerts are also
// always logged at Error level regardless of callbacks.
//
// Multiple callbacks may be registered; they execute in registration
// order. The same non-blocking and panic-recovery rules as
// [WithStateCallback] apply.
//
// Example:
//
//	mon, err := miclink.New(
//	    miclink.WithDevice(rx1),
//	    miclink.WithAlertCallback(func(deviceID, reason string) {
//	        pager.Notify("mic receiver offline: " + deviceID)
//	    }),
//	)
//
// Nil callbacks are silently ignored.
func WithAlertCallback(cb func(deviceID, reason string)) Option {
	return func(cfg *mlConfig) error {
		if cb == nil {
			return nil // no-op for nil callback (safe to call)
		}
		cfg.alertCallbacks = append(cfg.alertCallbacks, cb)
		return nil
	}
}
