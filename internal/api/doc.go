// Package api executes fallback descriptions as HTTP calls against the
// gateway's REST surface.
//
// Requests are resolved against the configured base URL, e.g.
// https://api.example.com/v1 + "Books/Book" → https://api.example.com/v1/Books/Book.
// Idempotent verbs are retried with jittered exponential backoff on 5xx and 429.
package api
