package engine

import (
	"context"

	"github.com/stockroom-app/stockroom/internal/entity"
)

// EntityState is the read-side sync status of one cached entity, shaped
// for display: a pending badge, a failed badge with the reason, and the
// list of dependencies the entity is waiting on.
type EntityState struct {
	// Exists reports whether the entity is present in the local cache.
	Exists bool

	// Pending is true while any queued or in-flight mutation targets the
	// entity. Pending entities render with a badge and suppress actions
	// that need a real id (sharing, printing labels).
	Pending bool

	// Failed is true when a mutation targeting the entity has failed and
	// awaits an explicit retry or discard.
	Failed bool

	// Reason carries the failure reason when Failed is set.
	Reason string

	// BlockedOn names the pending entities this one is waiting for, in
	// dependency order.
	BlockedOn []BlockedDependency
}

// BlockedDependency identifies one unresolved dependency for display.
type BlockedDependency struct {
	Kind        entity.Kind
	ID          entity.ID
	DisplayName string
}

// PendingStateAdapter derives display state from the cache, queue, and
// registry. It is a pure read path: it never mutates any of them.
type PendingStateAdapter struct {
	queue    *MutationQueue
	registry *TempIDRegistry
	cache    *LocalCache
}

// NewPendingStateAdapter creates an adapter over the given collaborators.
func NewPendingStateAdapter(q *MutationQueue, r *TempIDRegistry, c *LocalCache) *PendingStateAdapter {
	return &PendingStateAdapter{queue: q, registry: r, cache: c}
}

// State reports the sync status of one entity reference.
func (a *PendingStateAdapter) State(ctx context.Context, ref entity.Ref) (EntityState, error) {
	st := EntityState{}

	cached, ok, err := a.cache.Get(ctx, ref)
	if err != nil {
		return EntityState{}, err
	}
	st.Exists = ok
	if ok {
		st.Pending = cached.Pending
	}

	seen := make(map[entity.ID]bool)
	for _, m := range a.queue.All() {
		if !a.targets(m, ref) {
			continue
		}
		switch m.Status {
		case entity.StatusQueued, entity.StatusInFlight:
			st.Pending = true
		case entity.StatusFailed:
			st.Failed = true
			if st.Reason == "" {
				st.Reason = m.FailureReason
			}
		}

		for _, dep := range m.DependsOn {
			if !dep.ID.IsTemp() || dep.ID == ref.ID || seen[dep.ID] {
				continue
			}
			if _, bound := a.registry.Resolve(dep.ID); bound {
				continue
			}
			seen[dep.ID] = true
			st.BlockedOn = append(st.BlockedOn, BlockedDependency{
				Kind:        dep.Kind,
				ID:          dep.ID,
				DisplayName: a.displayName(ctx, dep),
			})
		}
	}

	return st, nil
}

// targets reports whether a mutation addresses the given reference,
// following the temp→real binding so a promoted entity still matches its
// originating create.
func (a *PendingStateAdapter) targets(m entity.Mutation, ref entity.Ref) bool {
	if m.Entity.Kind != ref.Kind {
		return false
	}
	if m.Entity.ID == ref.ID {
		return true
	}
	if m.Entity.ID.IsTemp() {
		if real, ok := a.registry.Resolve(m.Entity.ID); ok && real == ref.ID {
			return true
		}
	}
	return false
}

// displayName resolves a human-readable label for a dependency from its
// cached row, falling back to the raw reference.
func (a *PendingStateAdapter) displayName(ctx context.Context, dep entity.Ref) string {
	cached, ok, err := a.cache.Get(ctx, dep)
	if err == nil && ok {
		if name, ok := cached.Data["name"].(string); ok && name != "" {
			return name
		}
	}
	return dep.String()
}
