// Package database provides PostgreSQL connection pool management for the
// persistent session store.
package database
