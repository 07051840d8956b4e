// Package connection implements the Connection Manager component.
//
// The Connection Manager:
//   - Owns exactly one WebSocket connection to the gateway per instance
//   - Regenerates the connection URI (fresh random token) on every start and restart
//   - Restarts after a short deferral when the connection closes unexpectedly
//   - Never restarts after an explicit Stop until Start is called again
//   - Feeds raw frames into a queue consumed by the dispatcher
package connection
