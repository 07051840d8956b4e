// Package model defines the wire and in-process types shared by the RTU client packages.
//
// Wire types mirror the gateway's JSON exactly (PascalCase keys). In-process types are
// decoded once at the dispatcher boundary and never re-inspected by subscribers.
//
// Conventions:
//   - Topics: composite "Service[#Object[#Event]]" strings
//   - Scope keys: bare "Service" or "Service#Object"
//   - Payloads: json.RawMessage, handed through unmodified
package model
