package connstate

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Clock supplies timestamps for transitions. Production code uses
// [SystemClock]; tests substitute a manual implementation to make
// timestamp-dependent behavior deterministic.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns a Clock backed by time.Now.
func SystemClock() Clock { return systemClock{} }

// Saver persists connection records. Every transition applied through a
// [Machine] is saved before the call returns.
type Saver interface {
	SaveState(ctx context.Context, s State) error
}

// Machine binds one device's [State] to a [Saver] and a [Clock]. Each MarkX
// method applies the corresponding pure transition, persists the result and
// then publishes it as the machine's current state.
//
// The in-memory state always advances, even when persistence fails: the
// record mirrors a live connection whose real condition does not depend on
// the database being reachable. A failed save is reported through the
// returned error so the caller can log it.
//
// A Machine is safe for use by one writer (the device's ingest loop) with
// any number of concurrent readers of [Machine.State].
type Machine struct {
	mu    sync.Mutex
	state State
	saver Saver
	clock Clock
}

// NewMachine returns a Machine holding initial. A nil clock defaults to
// [SystemClock]; saver must be non-nil.
func NewMachine(initial State, saver Saver, clock Clock) *Machine {
	if clock == nil {
		clock = SystemClock()
	}
	return &Machine{state: initial, saver: saver, clock: clock}
}

// State returns a copy of the current record.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// apply swaps in next and persists it. Callers hold no locks.
func (m *Machine) apply(ctx context.Context, op string, next State) (State, error) {
	m.mu.Lock()
	m.state = next
	m.mu.Unlock()
	if err := m.saver.SaveState(ctx, next); err != nil {
		return next, fmt.Errorf("persist %s for device %s: %w", op, next.DeviceID, err)
	}
	return next, nil
}

// MarkConnecting applies [State.MarkConnecting] and persists the result.
func (m *Machine) MarkConnecting(ctx context.Context) (State, error) {
	return m.apply(ctx, "connecting", m.State().MarkConnecting())
}

// MarkConnected applies [State.MarkConnected] and persists the result.
func (m *Machine) MarkConnected(ctx context.Context) (State, error) {
	return m.apply(ctx, "connected", m.State().MarkConnected(m.clock.Now()))
}

// MarkDisconnected applies [State.MarkDisconnected] and persists the result.
func (m *Machine) MarkDisconnected(ctx context.Context, reason string) (State, error) {
	return m.apply(ctx, "disconnected", m.State().MarkDisconnected(m.clock.Now(), reason))
}

// MarkError applies [State.MarkError] and persists the result.
func (m *Machine) MarkError(ctx context.Context, reason string) (State, error) {
	return m.apply(ctx, "error", m.State().MarkError(m.clock.Now(), reason))
}

// MarkStopped applies [State.MarkStopped] and persists the result.
func (m *Machine) MarkStopped(ctx context.Context) (State, error) {
	return m.apply(ctx, "stopped", m.State().MarkStopped(m.clock.Now()))
}

// ReceivedMessage applies [State.ReceivedMessage] and persists the result.
func (m *Machine) ReceivedMessage(ctx context.Context) (State, error) {
	return m.apply(ctx, "received", m.State().ReceivedMessage(m.clock.Now()))
}

// Resume applies [State.Resume] and persists the result.
func (m *Machine) Resume(ctx context.Context) (State, error) {
	return m.apply(ctx, "resume", m.State().Resume())
}

// IncrementReconnectAttempt applies [State.IncrementReconnectAttempt] and
// persists the result.
func (m *Machine) IncrementReconnectAttempt(ctx context.Context) (State, error) {
	return m.apply(ctx, "reconnect attempt", m.State().IncrementReconnectAttempt())
}
