package store

import (
	"context"
	"errors"

	"github.com/justprosound/miclink/internal/connstate"
)

// ErrNotFound is returned when no connection record exists for a device.
var ErrNotFound = errors.New("connection record not found")

// Store defines persistence for connection records.
//
// Store implementations must be safe for concurrent access: every device's
// ingest loop writes its own record, and API handlers read snapshots at any
// time. A Store also satisfies connstate.Saver through SaveState.
type Store interface {
	// Register ensures a connection record exists for the device and
	// returns it. A missing record is created in the default disconnected
	// state with the given transport and retry ceiling; an existing record
	// is returned as is, so bookkeeping survives restarts.
	Register(ctx context.Context, deviceID string, connType connstate.ConnType, maxAttempts int) (connstate.State, error)

	// SaveState writes the record, replacing any previous version.
	SaveState(ctx context.Context, s connstate.State) error

	// LoadState returns the record for a device, or [ErrNotFound].
	LoadState(ctx context.Context, deviceID string) (connstate.State, error)

	// States returns a snapshot of all records, ordered by device ID.
	States(ctx context.Context) ([]connstate.State, error)

	// Remove deletes a device's record. The record is a 1:1 satellite of
	// the device, removed only when the device itself is removed.
	// Removing an absent record is a no-op.
	Remove(ctx context.Context, deviceID string) error

	// Close releases any resources held by the store.
	Close() error
}
