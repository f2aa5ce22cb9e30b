// Package entity defines the warehouse data model shared by the queue,
// dependency graph, and sync engine: entity kinds, temp/real identifiers,
// polymorphic references, and queued mutations.
//
// The dependency declaration table in deps.go is the single source of truth
// for which payload fields encode foreign-key-like references. The graph
// consumes it uniformly instead of special-casing entity kinds.
package entity
