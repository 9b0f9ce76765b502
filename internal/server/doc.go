// Package server provides the HTTP server for the miclink API and viewer
// WebSocket endpoints.
//
// This package is internal to miclink and handles all HTTP concerns:
//
//   - REST API: connection records under "/api/devices", per-device
//     stop/resume controls, and a health probe at "/api/health"
//   - Viewer WebSockets: "/ws" streams every device plus operational
//     notices, "/ws/{device}" narrows to a single device
//
// The server supports graceful shutdown via context cancellation, with a
// 5-second timeout for in-flight requests.
//
// Users of the miclink library should not need to interact with this
// package directly. The server is started automatically by
// [miclink.Monitor.Start].
package server
