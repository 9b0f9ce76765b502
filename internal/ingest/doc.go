// Package ingest drives the per-device telemetry loops.
//
// This package is internal to miclink. Each monitored device gets one
// [Runner]: a goroutine that dials the device's stream, feeds lifecycle
// events through the connection state machine (persisting every transition),
// publishes received payloads to the broadcast hub, and retries failed
// connections with exponential backoff until the retry budget runs out. An
// exhausted runner raises one alert and then parks, keeping the failed state
// visible until an operator resumes it or the process shuts down.
//
// The main components are:
//
//   - [Runner]: the connect/receive/retry loop for one device
//   - [Supervisor]: owns the set of runners, stops and resumes them
//   - [Config]: the collaborators wired into each runner
//
// Runners are independent: no shared state beyond the hub, so one device
// stalling or dying never disturbs another.
//
// Users of the miclink library should not need to interact with this
// package directly.
package ingest
