// Package request implements the Request Façade: outbound requests go over the
// live connection when it is ready and degrade to an HTTP fallback description
// otherwise. The façade never performs HTTP I/O itself.
package request
