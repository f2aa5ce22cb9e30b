// Package store provides durable local storage for the offline core:
// the mutation queue, the last-known-good entity cache, and temp-id
// bindings. SQLite with WAL mode backs all three, so a restart can
// reconstruct the queue and dependency graph without replaying mutations
// that already synced.
package store
