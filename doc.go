// Package miclink maintains live telemetry connections to wireless
// microphone receivers and tracks each connection's lifecycle in
// real time.
//
// miclink is designed as an SDK-first library, allowing developers to
// embed receiver monitoring in their applications. It dials each
// configured device's telemetry stream (Server-Sent Events or
// WebSocket), forwards payloads to connected viewers, reconnects with
// exponential backoff when streams drop, and parks devices that
// exhaust their reconnect budget until an operator resumes them.
// Configuration is composable via the functional options pattern with
// immutable device values.
//
// # Quick Start
//
// Create devices and start the monitor with graceful shutdown:
//
//	rx, _ := miclink.NewDevice("rx-1", "http://10.0.7.21/stream")
//	mon, _ := miclink.New(miclink.WithDevice(rx))
//
//	// Set up graceful shutdown on SIGINT/SIGTERM
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	mon.Start(ctx) // blocks until context is cancelled
//
// # Configuration
//
// miclink uses the functional options pattern for configuration:
//
//	mon, err := miclink.New(
//	    miclink.WithDevice(rx1),
//	    miclink.WithDevice(rx2),
//	    miclink.WithListenAddr(":9090"),
//	    miclink.WithReconnectPolicy(time.Second, 30*time.Second, 5),
//	    miclink.WithStaleAfter(15*time.Second),
//	)
//
// Devices can also be configured with options:
//
//	rx, err := miclink.NewDevice("rx-2", "ws://10.0.7.22/telemetry",
//	    miclink.WithName("Stage Right Handheld"),
//	    miclink.WithTransport(miclink.TransportWebSocket),
//	    miclink.WithHeaders("Authorization", "Bearer token"),
//	    miclink.WithMaxReconnectAttempts(10),
//	)
//
// Regular fleets can be declared in one shot with [NewDeviceGrid],
// which expands an address template over dimension values.
//
// # Watching State
//
// Connection state is observable three ways:
//
//   - [WithStateCallback] delivers a [ConnState] snapshot on every
//     status transition, and [WithAlertCallback] fires when a device
//     exhausts its reconnect budget
//   - The REST API under /api serves state snapshots and accepts
//     operator stop/resume commands
//   - Viewer WebSockets under /ws stream device payloads and status
//     changes as they happen
//
// # Architecture
//
// miclink consists of several internal packages (under internal/):
//
//   - internal/stream: SSE and WebSocket dialers for device telemetry
//   - internal/ingest: Per-device connection loops with reconnect and parking
//   - internal/connstate: Connection lifecycle records and transitions
//   - internal/store: In-memory and SQL-backed state persistence
//   - internal/hub: Topic-based fan-out from device loops to viewers
//   - internal/session: Viewer WebSocket sessions
//   - internal/server: HTTP server with REST API and viewer endpoints
//   - internal/journal: Append-only JSONL transition journal
//   - internal/alert: Exhaustion alert seam
//
// The internal packages are not part of the public API and may change
// without notice. The library is designed for single-binary deployment.
package miclink
