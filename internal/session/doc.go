// Package session stores the authenticated session of a device so it survives
// restarts, and tears it down when the gateway reports a security exception.
//
// Stores:
//   - MemoryStore: process-local, used by tests and the probe
//   - PostgresStore: rtu_sessions table plus an append-only rtu_session_events audit trail
package session
