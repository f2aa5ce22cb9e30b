// Package engine implements the offline mutation core: the temp-id
// registry, the local entity cache, the persisted mutation queue, the
// dependency graph over queued mutations, and the sync engine that drains
// the queue against the backend when connectivity returns.
//
// Concurrency model: a single logical writer. One drain loop runs at a
// time (a re-entrant online signal is a no-op), the executor call is the
// only suspending operation, and a dependency's executor call fully
// resolves before any dependent's call is issued. User-initiated enqueues
// may happen while a drain is in progress; they are appended under the
// queue's lock and picked up by the same loop's next iteration.
package engine
