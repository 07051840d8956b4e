// Package metrics provides Prometheus metrics for monitoring the RTU client.
//
// Key metrics:
//   - Connection state, connects and restarts
//   - Inbound frame and envelope rates by kind
//   - Parse errors, dropped envelopes and handler panics
//   - Outbound requests split by live and fallback path
//   - Security stops
package metrics
