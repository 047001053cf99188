// Package session defines the recent-history source consulted by agent runs
// and ships an in-memory reference Store.
//
// Persistent backends (Redis, Postgres, ...) implement Store in their own
// packages; only the wiring layer decides which one to instantiate.
package session
