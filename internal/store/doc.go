// Package store persists per-device connection records.
//
// This package is internal to miclink. Every state transition applied by an
// ingest loop is written through a [Store] before the loop proceeds, so the
// persisted record always reflects the latest observed connection state.
// Records are created when a device is registered for monitoring and removed
// only when the device itself is removed.
//
// The main components are:
//
//   - [Store]: the persistence interface consumed by the rest of miclink
//   - [MemoryStore]: in-memory implementation, the default
//   - [GormStore]: database implementation over GORM (PostgreSQL or MySQL)
//   - [Open]: opens the database handle for the configured driver
//
// Users of the miclink library should not need to interact with this
// package directly. Persistence is selected through configuration.
package store
