package miclink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/justprosound/miclink/internal/alert"
	"github.com/justprosound/miclink/internal/connstate"
	"github.com/justprosound/miclink/internal/hub"
	"github.com/justprosound/miclink/internal/ingest"
	"github.com/justprosound/miclink/internal/journal"
	"github.com/justprosound/miclink/internal/reconnect"
	"github.com/justprosound/miclink/internal/server"
	"github.com/justprosound/miclink/internal/store"
	"github.com/justprosound/miclink/internal/stream"
)

const (
	defaultListenAddr = ":8080"
	defaultStaleAfter = 60 * time.Second
)

// ErrDeviceNotFound is returned by [Monitor] methods when the named
// device is not part of the monitored set.
var ErrDeviceNotFound = errors.New("device not found")

// ErrNotStarted is returned by [Monitor] methods that require a running
// monitor, such as [Monitor.Snapshot].
var ErrNotStarted = errors.New("monitor is not started")

// Monitor is the main orchestrator for device connection monitoring.
//
// Monitor maintains one streaming connection per configured [Device],
// tracks each connection's lifecycle state, reconnects with exponential
// backoff when streams drop, and serves the state over a REST API and
// viewer WebSockets. It is created using [New] with functional options
// and started with [Monitor.Start].
//
// The typical lifecycle is:
//
//	mon, err := miclink.New(miclink.WithDevice(rx1))
//	if err != nil {
//	    slog.Error("failed to create monitor", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	mon.Start(ctx) // blocks until context cancelled
//
// The caller controls the lifecycle via the context. Cancel the context
// to trigger graceful shutdown.
type Monitor struct {
	devices        []Device
	listenAddr     string
	staleAfter     time.Duration
	policy         reconnect.Policy
	defaultBudget  int
	journalPath    string
	logger         *slog.Logger
	stateCallbacks []func(ConnState)
	alertCallbacks []func(deviceID, reason string)

	// openStore builds the state store at Start. Tests swap it to
	// inject a prepared store.
	openStore func() (store.Store, error)

	mu      sync.Mutex
	started bool
	st      store.Store
	sup     *ingest.Supervisor
	srv     *server.Server
}

// New creates a new [Monitor] instance with the given options.
//
// At least one device must be configured via [WithDevice] or
// [WithDevices]. Other options have sensible defaults:
//   - Listen address: ":8080"
//   - Staleness window: 60 seconds
//   - Reconnect policy: 1s base delay, 30s cap, 5 attempts
//   - State store: in-memory
//
// Returns an error if no devices are configured, if two devices share
// an ID, or if any option is invalid.
//
// Example:
//
//	mon, err := miclink.New(
//	    miclink.WithDevices(rx1, rx2),
//	    miclink.WithListenAddr(":9090"),
//	    miclink.WithReconnectPolicy(time.Second, time.Minute, 10),
//	)
func New(opts ...Option) (*Monitor, error) {
	cfg := &mlConfig{
		devices:              []Device{},
		listenAddr:           defaultListenAddr,
		staleAfter:           defaultStaleAfter,
		reconnectBase:        reconnect.DefaultBaseDelay,
		reconnectMax:         reconnect.DefaultMaxDelay,
		maxReconnectAttempts: connstate.DefaultMaxReconnectAttempts,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if len(cfg.devices) == 0 {
		return nil, errors.New("at least one device is required")
	}

	// validate device ID uniqueness (IDs key state records and API routes)
	seen := make(map[string]bool, len(cfg.devices))
	for _, d := range cfg.devices {
		if seen[d.id] {
			return nil, fmt.Errorf("duplicate device ID: %q", d.id)
		}
		seen[d.id] = true
	}

	// default to slog.Default() if no logger provided
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	m := &Monitor{
		devices:        cfg.devices,
		listenAddr:     cfg.listenAddr,
		staleAfter:     cfg.staleAfter,
		policy:         reconnect.NewPolicy(cfg.reconnectBase, cfg.reconnectMax),
		defaultBudget:  cfg.maxReconnectAttempts,
		journalPath:    cfg.journalPath,
		logger:         logger,
		stateCallbacks: cfg.stateCallbacks,
		alertCallbacks: cfg.alertCallbacks,
	}

	driver, dsn := cfg.dbDriver, cfg.dbDSN
	m.openStore = func() (store.Store, error) {
		if driver == "" {
			return store.NewMemoryStore(), nil
		}
		db, err := store.Open(driver, dsn)
		if err != nil {
			return nil, err
		}
		return store.NewGormStore(db)
	}

	return m, nil
}

// Start begins monitoring devices and serving the API.
//
// Start is a blocking call that runs until the provided context is
// cancelled. During execution:
//
//   - One connection loop runs per configured device, dialing the
//     device's stream and reconnecting with backoff when it drops
//   - Every status transition is persisted, journaled, broadcast to
//     viewers, and delivered to state callbacks
//   - The HTTP server exposes state under /api and live streams under
//     /ws
//
// The caller controls the lifecycle via context cancellation. For
// signal handling, use [signal.NotifyContext]:
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//	mon.Start(ctx)
//
// Returns nil on graceful shutdown. Returns an error if the monitor is
// already running, if the state store cannot be opened, or if the HTTP
// server fails to start.
func (m *Monitor) Start(ctx context.Context) error {
	m.logger.Info("miclink starting",
		"device_count", len(m.devices),
		"listen", m.listenAddr,
	)

	// check if context already cancelled
	if ctx.Err() != nil {
		return nil
	}

	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return errors.New("monitor is already started")
	}
	m.started = true
	m.mu.Unlock()

	st, err := m.openStore()
	if err != nil {
		m.clearRuntime()
		return fmt.Errorf("failed to open state store: %w", err)
	}

	var jr *journal.Journal
	if m.journalPath != "" {
		jr = journal.New(m.journalPath)
	}

	h := hub.New(m.logger)

	// cleanup for failure paths before the supervisor is running
	cleanup := func() {
		h.Close()
		if jr != nil {
			_ = jr.Close()
		}
		if cerr := st.Close(); cerr != nil {
			m.logger.Warn("failed to close state store", "error", cerr)
		}
		m.clearRuntime()
	}

	// transitions persist through the callback store so state callbacks
	// fire after each record is written
	saver := &callbackStore{Store: st, callbacks: m.stateCallbacks, logger: m.logger}
	notifier := m.buildNotifier()
	sup := ingest.NewSupervisor(m.logger)

	for _, d := range m.devices {
		budget := d.maxReconnectAttempts
		if budget == 0 {
			budget = m.defaultBudget
		}

		initial, err := st.Register(ctx, d.id, connstate.ConnType(d.transport), budget)
		if err != nil {
			cleanup()
			return fmt.Errorf("failed to register device %q: %w", d.id, err)
		}

		var dialer stream.Dialer
		switch d.transport {
		case TransportWebSocket:
			dialer = stream.NewWSDialer()
		default:
			dialer = stream.NewSSEDialer()
		}

		cfg := ingest.Config{
			Target: stream.Target{
				DeviceID: d.id,
				Address:  d.address,
				Headers:  copyMap(d.headers),
			},
			Dialer:     dialer,
			Machine:    connstate.NewMachine(initial, saver, nil),
			Hub:        h,
			Policy:     m.policy,
			StaleAfter: m.staleAfter,
			Notifier:   notifier,
			Journal:    jr,
			Logger:     m.logger,
		}
		if err := sup.Register(cfg); err != nil {
			cleanup()
			return fmt.Errorf("failed to register device %q: %w", d.id, err)
		}
	}

	// publish runtime references before the server starts so API
	// handlers can query state immediately
	m.mu.Lock()
	m.st = st
	m.sup = sup
	m.mu.Unlock()

	httpServer := server.NewServer(&controller{m: m}, h, m.listenAddr, m.logger)
	if err := httpServer.Start(ctx); err != nil {
		cleanup()
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	m.mu.Lock()
	m.srv = httpServer
	m.mu.Unlock()

	sup.Start(ctx)
	m.logger.Info("miclink started", "addr", httpServer.Addr())

	<-ctx.Done()

	// stop loops first so their final transitions still reach the
	// journal and store
	sup.StopAll()
	h.Close()
	if jr != nil {
		if cerr := jr.Close(); cerr != nil {
			m.logger.Warn("failed to close journal", "error", cerr)
		}
	}
	if cerr := st.Close(); cerr != nil {
		m.logger.Warn("failed to close state store", "error", cerr)
	}
	m.clearRuntime()
	m.logger.Info("miclink stopped")
	return nil
}

// clearRuntime resets the started flag and drops runtime references.
func (m *Monitor) clearRuntime() {
	m.mu.Lock()
	m.started = false
	m.st = nil
	m.sup = nil
	m.srv = nil
	m.mu.Unlock()
}

// runtime returns the live store and supervisor, or [ErrNotStarted].
func (m *Monitor) runtime() (store.Store, *ingest.Supervisor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.st == nil || m.sup == nil {
		return nil, nil, ErrNotStarted
	}
	return m.st, m.sup, nil
}

// Snapshot returns the current connection state of every monitored
// device, ordered by device ID.
//
// Returns [ErrNotStarted] if the monitor is not running.
func (m *Monitor) Snapshot(ctx context.Context) ([]ConnState, error) {
	st, _, err := m.runtime()
	if err != nil {
		return nil, err
	}
	states, err := st.States(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ConnState, len(states))
	for i, s := range states {
		out[i] = toConnState(s)
	}
	return out, nil
}

// DeviceState returns the current connection state of one device.
//
// Returns [ErrDeviceNotFound] if the device is unknown and
// [ErrNotStarted] if the monitor is not running.
func (m *Monitor) DeviceState(ctx context.Context, deviceID string) (ConnState, error) {
	st, _, err := m.runtime()
	if err != nil {
		return ConnState{}, err
	}
	s, err := st.LoadState(ctx, deviceID)
	if errors.Is(err, store.ErrNotFound) {
		return ConnState{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}
	if err != nil {
		return ConnState{}, err
	}
	return toConnState(s), nil
}

// StopDevice shuts down one device's connection deliberately.
//
// The device's record transitions to [StatusStopped] and no reconnects
// happen until [Monitor.ResumeDevice] is called. Stopping an already
// stopped device is a no-op.
//
// Returns [ErrDeviceNotFound] if the device is unknown and
// [ErrNotStarted] if the monitor is not running.
func (m *Monitor) StopDevice(deviceID string) error {
	_, sup, err := m.runtime()
	if err != nil {
		return err
	}
	if err := sup.StopDevice(deviceID); err != nil {
		if errors.Is(err, ingest.ErrUnknownDevice) {
			return fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
		}
		return err
	}
	return nil
}

// ResumeDevice restarts connection attempts for a parked or stopped
// device with a cleared reconnect budget.
//
// Returns [ErrDeviceNotFound] if the device is unknown and
// [ErrNotStarted] if the monitor is not running.
func (m *Monitor) ResumeDevice(ctx context.Context, deviceID string) error {
	_, sup, err := m.runtime()
	if err != nil {
		return err
	}
	if err := sup.ResumeDevice(ctx, deviceID); err != nil {
		if errors.Is(err, ingest.ErrUnknownDevice) {
			return fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
		}
		return err
	}
	return nil
}

// Devices returns a copy of the configured devices.
//
// The returned slice is a copy; modifying it does not affect the
// Monitor. Each [Device] in the slice is immutable.
func (m *Monitor) Devices() []Device {
	cp := make([]Device, len(m.devices))
	copy(cp, m.devices)
	return cp
}

// DeviceIDs returns the IDs of the configured devices in configuration
// order.
func (m *Monitor) DeviceIDs() []string {
	ids := make([]string, len(m.devices))
	for i, d := range m.devices {
		ids[i] = d.id
	}
	return ids
}

// ListenAddr returns the configured bind address for the HTTP server.
func (m *Monitor) ListenAddr() string {
	return m.listenAddr
}

// Addr returns the bound address of the HTTP server, or the empty
// string if the monitor is not running. Useful when the configured
// address requested an ephemeral port.
func (m *Monitor) Addr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.srv == nil {
		return ""
	}
	return m.srv.Addr()
}

// buildNotifier composes the exhaustion alert path: alerts always reach
// the log, then any registered alert callbacks in order.
func (m *Monitor) buildNotifier() alert.Notifier {
	logNotifier := alert.NewLogNotifier(m.logger)
	if len(m.alertCallbacks) == 0 {
		return logNotifier
	}
	callbacks := m.alertCallbacks
	logger := m.logger
	return alert.Func(func(ctx context.Context, deviceID, reason string) {
		logNotifier.Notify(ctx, deviceID, reason)
		for _, cb := range callbacks {
			invokeAlertSafe(cb, deviceID, reason, logger)
		}
	})
}

// controller adapts a Monitor to the API server's view of it without
// exposing internal types on the public Monitor surface.
type controller struct {
	m *Monitor
}

func (c *controller) States(ctx context.Context) ([]connstate.State, error) {
	st, _, err := c.m.runtime()
	if err != nil {
		return nil, err
	}
	return st.States(ctx)
}

func (c *controller) State(ctx context.Context, deviceID string) (connstate.State, error) {
	st, _, err := c.m.runtime()
	if err != nil {
		return connstate.State{}, err
	}
	return st.LoadState(ctx, deviceID)
}

func (c *controller) StopDevice(deviceID string) error {
	_, sup, err := c.m.runtime()
	if err != nil {
		return err
	}
	return sup.StopDevice(deviceID)
}

func (c *controller) ResumeDevice(ctx context.Context, deviceID string) error {
	_, sup, err := c.m.runtime()
	if err != nil {
		return err
	}
	return sup.ResumeDevice(ctx, deviceID)
}

func (c *controller) DeviceIDs() []string {
	return c.m.DeviceIDs()
}

// callbackStore wraps a state store so registered callbacks observe
// every transition. The record is persisted first; callbacks fire after
// the write so a callback reading state sees the transition it was told
// about.
type callbackStore struct {
	store.Store
	callbacks []func(ConnState)
	logger    *slog.Logger
}

func (c *callbackStore) SaveState(ctx context.Context, s connstate.State) error {
	if err := c.Store.SaveState(ctx, s); err != nil {
		return err
	}
	if len(c.callbacks) > 0 {
		snap := toConnState(s)
		for _, cb := range c.callbacks {
			invokeCallbackSafe(cb, snap, c.logger)
		}
	}
	return nil
}

// invokeCallbackSafe calls a state callback with panic recovery.
// If the callback panics, it logs the full stack trace with a correlation ID
// and continues; a broken callback must not take down the connection loops.
func invokeCallbackSafe(cb func(ConnState), snap ConnState, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			stack := debug.Stack()

			logger.Error("state callback panic",
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(stack),
				"device", snap.DeviceID,
			)
		}
	}()
	cb(snap)
}

// invokeAlertSafe calls an alert callback with panic recovery.
func invokeAlertSafe(cb func(deviceID, reason string), deviceID, reason string, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			stack := debug.Stack()

			logger.Error("alert callback panic",
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(stack),
				"device", deviceID,
			)
		}
	}()
	cb(deviceID, reason)
}
