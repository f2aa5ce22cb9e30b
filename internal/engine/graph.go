package engine

import (
	"github.com/stockroom-app/stockroom/internal/entity"
)

// DependencyGraph derives a directed acyclic graph over queued mutations
// from their declared entity references and produces a valid replay order.
//
// Nodes are mutations; an edge points from a dependent mutation to the
// create mutation that owns the temp id it references. Real-id references
// never form edges - the referenced entity already exists on the server.
//
// The graph is a view over the queue and registry, recomputed on demand;
// it holds no state of its own, so it can never drift from the queue.
type DependencyGraph struct {
	queue    *MutationQueue
	registry *TempIDRegistry
}

// NewDependencyGraph creates a graph view over the queue and registry.
func NewDependencyGraph(q *MutationQueue, r *TempIDRegistry) *DependencyGraph {
	return &DependencyGraph{queue: q, registry: r}
}

// Ready reports whether a mutation can be sent now: every entry in
// DependsOn is either a real id (never pending) or a temp id whose owning
// create has synced and bound a real id.
func (g *DependencyGraph) Ready(m *entity.Mutation) bool {
	if m.Status != entity.StatusQueued {
		return false
	}
	for _, dep := range m.DependsOn {
		if !dep.ID.IsTemp() {
			continue
		}
		if _, bound := g.registry.Resolve(dep.ID); !bound {
			return false
		}
	}
	return true
}

// NextReady returns the queued mutation with the lowest id among those
// whose dependencies are all satisfied, or nil when none is ready.
//
// Selecting the lowest ready id on every call yields a stable topological
// order with creation order as the tie-break: independent branches replay
// in the order the user created them.
func (g *DependencyGraph) NextReady() *entity.Mutation {
	for _, m := range g.queue.snapshotOrdered() {
		if g.Ready(m) {
			return m
		}
	}
	return nil
}

// ReplayOrder computes the full projected replay order of the current
// queue by simulating successive syncs: repeatedly pick the lowest-id
// queued mutation whose dependencies are met, treating earlier picks as
// synced. The second return value lists mutations that can never become
// ready in this simulation - blocked on a failed dependency, implicated
// in a cycle, or referencing a dangling temp id.
func (g *DependencyGraph) ReplayOrder() (order []int64, blocked []int64) {
	muts := g.queue.snapshotOrdered()

	// Temp ids treated as resolved during the simulation.
	resolved := make(map[entity.ID]bool)
	for _, m := range muts {
		for _, dep := range m.DependsOn {
			if dep.ID.IsTemp() {
				if _, bound := g.registry.Resolve(dep.ID); bound {
					resolved[dep.ID] = true
				}
			}
		}
	}

	remaining := make([]*entity.Mutation, 0, len(muts))
	for _, m := range muts {
		if m.Status == entity.StatusQueued {
			remaining = append(remaining, m)
		}
	}

	for len(remaining) > 0 {
		picked := -1
		for i, m := range remaining {
			met := true
			for _, dep := range m.DependsOn {
				if dep.ID.IsTemp() && !resolved[dep.ID] {
					met = false
					break
				}
			}
			if met {
				picked = i
				break
			}
		}
		if picked < 0 {
			// No progress possible: everything left is blocked.
			for _, m := range remaining {
				blocked = append(blocked, m.ID)
			}
			return order, blocked
		}

		m := remaining[picked]
		order = append(order, m.ID)
		if m.Op == entity.OpCreate {
			resolved[m.Entity.ID] = true
		}
		remaining = append(remaining[:picked], remaining[picked+1:]...)
	}

	return order, nil
}

// Dependents returns the ids of every queued or in-flight mutation that
// transitively depends on the given mutation, in ascending id order. Used
// to cascade a failure without issuing executor calls for the dependents.
func (g *DependencyGraph) Dependents(id int64) []int64 {
	muts := g.queue.snapshotOrdered()

	byID := make(map[int64]*entity.Mutation, len(muts))
	for _, m := range muts {
		byID[m.ID] = m
	}
	root, ok := byID[id]
	if !ok {
		return nil
	}

	// Temp ids whose resolution is now impossible because a mutation in
	// the failed set owns them.
	failedTemp := make(map[entity.ID]bool)
	inSet := map[int64]bool{id: true}
	if root.Op == entity.OpCreate {
		failedTemp[root.Entity.ID] = true
	}

	// Mutations are ordered by id and dependencies always point backwards
	// (a dependency is declared on an entity that existed before the
	// dependent), so one forward pass reaches the full closure.
	var out []int64
	for _, m := range muts {
		if inSet[m.ID] || m.Status.Terminal() {
			continue
		}
		for _, dep := range m.DependsOn {
			if dep.ID.IsTemp() && failedTemp[dep.ID] {
				inSet[m.ID] = true
				out = append(out, m.ID)
				if m.Op == entity.OpCreate {
					failedTemp[m.Entity.ID] = true
				}
				break
			}
		}
	}
	return out
}

// CheckStructure runs the defensive invariant checks: cycles and dangling
// temp-id dependencies. Construction makes both impossible (a dependency
// can only be declared on an entity that already existed as a pending
// create, and enqueue rejects dangling references), so any hit here is a
// client bug. Returns the implicated mutation ids; the engine fails them
// with a structural reason rather than looping.
func (g *DependencyGraph) CheckStructure() []int64 {
	muts := g.queue.snapshotOrdered()

	owner := make(map[entity.ID]*entity.Mutation)
	for _, m := range muts {
		if m.Op == entity.OpCreate {
			owner[m.Entity.ID] = m
		}
	}

	var implicated []int64
	seen := make(map[int64]bool)
	flag := func(id int64) {
		if !seen[id] {
			seen[id] = true
			implicated = append(implicated, id)
		}
	}

	// Dangling: a temp dependency with no owning create and no registry
	// entry can never resolve.
	for _, m := range muts {
		if m.Status.Terminal() {
			continue
		}
		for _, dep := range m.DependsOn {
			if !dep.ID.IsTemp() {
				continue
			}
			if owner[dep.ID] == nil && !g.registry.Known(dep.ID) {
				flag(m.ID)
			}
		}
	}

	// Cycles: DFS over mutation-level edges (dependent -> owning create).
	const (
		white = 0
		grey  = 1
		black = 2
	)
	color := make(map[int64]int, len(muts))

	var visit func(m *entity.Mutation) bool
	visit = func(m *entity.Mutation) bool {
		color[m.ID] = grey
		for _, dep := range m.DependsOn {
			if !dep.ID.IsTemp() {
				continue
			}
			next := owner[dep.ID]
			if next == nil || next.ID == m.ID {
				continue
			}
			switch color[next.ID] {
			case grey:
				flag(next.ID)
				flag(m.ID)
				color[m.ID] = black
				return true
			case white:
				if visit(next) {
					flag(m.ID)
					color[m.ID] = black
					return true
				}
			}
		}
		color[m.ID] = black
		return false
	}

	for _, m := range muts {
		if !m.Status.Terminal() && color[m.ID] == white {
			visit(m)
		}
	}

	return implicated
}
