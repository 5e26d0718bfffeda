// Package api implements the local HTTP REST API and WebSocket server for
// panel UIs.
//
// This package provides:
//   - REST endpoints for the device table, zone groupings, and commands
//   - WebSocket hub for real-time state change broadcasts
//   - Middleware stack (request ID, logging, recovery, CORS, body limits)
//
// # Architecture
//
// The server sits between panel UIs and the local device table. Reads are
// answered entirely from the table; commands flow through the optimistic
// dispatcher to the hub, and state changes (authoritative or speculative)
// are broadcast to connected panels over WebSocket via the store's change
// notifications.
//
// # Graceful Degradation
//
// The server operates while the hub is unreachable — reads and WebSocket
// connections keep working against the last known table, only command
// confirmations fail.
package api
