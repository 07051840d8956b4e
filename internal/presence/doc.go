// Package presence implements the status refresh issued on every OnlineStatus
// scheduler tick.
//
// The Refresher:
//   - Sends a fixed set of calls (default Users/Status and Users/Session) through the Request Façade
//   - Executes the calls that fell back to HTTP on a bounded worker set
//   - Skips a tick while the previous refresh is still running
//   - Logs failures and never propagates them to the dispatcher
package presence
