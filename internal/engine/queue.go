package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/stockroom-app/stockroom/internal/entity"
	"github.com/stockroom-app/stockroom/internal/schema"
	"github.com/stockroom-app/stockroom/internal/store"
)

// MutationQueue is the ordered, persisted list of pending operations.
//
// Enqueue is non-blocking with respect to the network: it validates,
// persists, applies the optimistic cache update, and returns. Ordering
// decisions are delegated to the DependencyGraph - the queue itself only
// preserves insertion (mutation id) order.
//
// Thread-safety: enqueues may happen concurrently with an in-progress
// drain; all map/slice access is guarded by the mutex. Status transitions
// are only performed by the sync engine (single writer) and the explicit
// user actions Retry and Discard.
type MutationQueue struct {
	mu    sync.Mutex
	muts  map[int64]*entity.Mutation
	order []int64 // ascending mutation ids

	clock     *Clock
	store     *store.Store
	cache     *LocalCache
	registry  *TempIDRegistry
	validator *schema.Validator
}

// NewMutationQueue creates an empty queue.
func NewMutationQueue(s *store.Store, cache *LocalCache, registry *TempIDRegistry, validator *schema.Validator) *MutationQueue {
	return &MutationQueue{
		muts:      make(map[int64]*entity.Mutation),
		clock:     NewClock(),
		store:     s,
		cache:     cache,
		registry:  registry,
		validator: validator,
	}
}

// Load reconstructs the queue from the store after a restart and seeds the
// clock above the highest persisted mutation id, so new ids keep
// increasing. Synced mutations are not reloaded.
func (q *MutationQueue) Load(ctx context.Context) error {
	muts, err := q.store.LoadQueue(ctx)
	if err != nil {
		return err
	}
	maxID, err := q.store.MaxMutationID(ctx)
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.muts = make(map[int64]*entity.Mutation, len(muts))
	q.order = q.order[:0]
	for i := range muts {
		m := muts[i]
		// A crash mid-drain leaves in-flight markers behind; the executor
		// call's outcome is unknown, so they go back to queued and are
		// retried. The backend treats replayed creates as upserts.
		if m.Status == entity.StatusInFlight {
			m.Status = entity.StatusQueued
			if err := q.store.MarkMutationStatus(ctx, m.ID, m.Status, m.Attempts, m.FailureReason); err != nil {
				return err
			}
		}
		q.muts[m.ID] = &m
		q.order = append(q.order, m.ID)
	}
	q.clock = NewClockAt(maxID)

	slog.Info("mutation queue loaded", "mutations", len(muts), "next_id", maxID+1)
	return nil
}

// Enqueue validates a candidate mutation, assigns its id, derives its
// dependencies, persists it, and applies the optimistic cache update.
//
// Validation failures (malformed payload, dangling dependency) are
// reported synchronously; nothing is persisted and the cache is untouched.
func (q *MutationQueue) Enqueue(ctx context.Context, op entity.Op, ref entity.Ref, payload entity.Payload) (*entity.Mutation, error) {
	switch op {
	case entity.OpCreate:
		if err := q.validator.Validate(ref.Kind, payload); err != nil {
			return nil, err
		}
	case entity.OpUpdate:
		// Updates carry only changed fields; present fields must still
		// satisfy their constraints.
		if err := q.validator.ValidatePartial(ref.Kind, payload); err != nil {
			return nil, err
		}
	}

	deps := entity.DeriveDependencies(ref.Kind, payload)

	// An update or delete aimed at a still-unbound temp id cannot be sent
	// until the owning create syncs, so the entity itself is a dependency.
	if op != entity.OpCreate && ref.ID.IsTemp() {
		if _, bound := q.registry.Resolve(ref.ID); !bound {
			deps = append(deps, ref)
		}
	}

	m := &entity.Mutation{
		ID:        q.clock.Next(),
		Op:        op,
		Entity:    ref,
		Payload:   payload,
		DependsOn: deps,
		Status:    entity.StatusQueued,
		CreatedAt: time.Now().UTC(),
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	if err := q.checkDependencies(m); err != nil {
		return nil, err
	}

	if err := q.store.WriteMutation(ctx, *m); err != nil {
		return nil, err
	}

	if err := q.applyOptimistic(ctx, m); err != nil {
		return nil, err
	}

	q.mu.Lock()
	q.muts[m.ID] = m
	q.order = append(q.order, m.ID)
	q.mu.Unlock()

	slog.Debug("mutation enqueued",
		"mutation", m.ID,
		"op", m.Op,
		"entity", m.Entity.String(),
		"deps", len(m.DependsOn),
	)

	return m, nil
}

// checkDependencies verifies that every temp id in DependsOn corresponds
// to exactly one create mutation in the queue or an existing registry
// binding. A dependency pointing at nothing is a construction error.
func (q *MutationQueue) checkDependencies(m *entity.Mutation) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, dep := range m.DependsOn {
		if !dep.ID.IsTemp() {
			continue
		}
		if q.registry.Known(dep.ID) {
			continue
		}
		if q.ownerCreateLocked(dep.ID) != nil {
			continue
		}
		return NewStructuralError("dangling dependency on "+dep.String(), m.ID, m.Entity)
	}
	return nil
}

// applyOptimistic layers the mutation's effect onto the local cache so the
// UI reflects it immediately, before any network traffic.
func (q *MutationQueue) applyOptimistic(ctx context.Context, m *entity.Mutation) error {
	switch m.Op {
	case entity.OpCreate:
		return q.cache.Upsert(ctx, m.Entity, m.Payload, true)
	case entity.OpUpdate:
		return q.cache.Overlay(ctx, m.Entity, m.Payload)
	case entity.OpDelete:
		return q.cache.Remove(ctx, m.Entity)
	}
	return fmt.Errorf("apply optimistic: unknown op %q", m.Op)
}

// DequeueReady returns the next replayable mutation according to the
// graph, or nil when nothing is currently ready. The queue itself does not
// decide ordering.
func (q *MutationQueue) DequeueReady(g *DependencyGraph) *entity.Mutation {
	return g.NextReady()
}

// MarkStatus advances a mutation's status, enforcing the forward-only
// lifecycle, and persists the transition.
func (q *MutationQueue) MarkStatus(ctx context.Context, id int64, status entity.Status, failureReason string) error {
	q.mu.Lock()
	m, ok := q.muts[id]
	if !ok {
		q.mu.Unlock()
		return fmt.Errorf("mark status: unknown mutation %d", id)
	}
	if !m.Status.CanAdvanceTo(status) {
		from := m.Status
		q.mu.Unlock()
		return NewStructuralError(
			fmt.Sprintf("illegal status transition %s -> %s", from, status), id, m.Entity)
	}
	m.Status = status
	m.FailureReason = failureReason
	attempts := m.Attempts
	q.mu.Unlock()

	return q.store.MarkMutationStatus(ctx, id, status, attempts, failureReason)
}

// RecordAttempt increments a mutation's executor-call count and persists
// it. Called by the engine just before each executor call.
func (q *MutationQueue) RecordAttempt(ctx context.Context, id int64) (int, error) {
	q.mu.Lock()
	m, ok := q.muts[id]
	if !ok {
		q.mu.Unlock()
		return 0, fmt.Errorf("record attempt: unknown mutation %d", id)
	}
	m.Attempts++
	attempts := m.Attempts
	status := m.Status
	reason := m.FailureReason
	q.mu.Unlock()

	if err := q.store.MarkMutationStatus(ctx, id, status, attempts, reason); err != nil {
		return 0, err
	}
	return attempts, nil
}

// Get returns a snapshot of one mutation.
func (q *MutationQueue) Get(id int64) (entity.Mutation, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	m, ok := q.muts[id]
	if !ok {
		return entity.Mutation{}, false
	}
	return *m, true
}

// All returns snapshots of every tracked mutation in creation order.
func (q *MutationQueue) All() []entity.Mutation {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]entity.Mutation, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, *q.muts[id])
	}
	return out
}

// PendingCount returns the number of mutations with status queued or
// in-flight. Drives the sync-status indicator.
func (q *MutationQueue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, m := range q.muts {
		if m.Status == entity.StatusQueued || m.Status == entity.StatusInFlight {
			n++
		}
	}
	return n
}

// Retry returns a failed mutation to the queue for another drain pass.
// This is an explicit user action, the one sanctioned exception to
// "failed is terminal".
func (q *MutationQueue) Retry(ctx context.Context, id int64) error {
	q.mu.Lock()
	m, ok := q.muts[id]
	if !ok {
		q.mu.Unlock()
		return fmt.Errorf("retry: unknown mutation %d", id)
	}
	if m.Status != entity.StatusFailed {
		status := m.Status
		q.mu.Unlock()
		return fmt.Errorf("retry: mutation %d is %s, not failed", id, status)
	}
	m.Status = entity.StatusQueued
	m.FailureReason = ""
	m.Attempts = 0
	q.mu.Unlock()

	return q.store.MarkMutationStatus(ctx, id, entity.StatusQueued, 0, "")
}

// Discard drops a failed mutation and rolls back its optimistic cache row
// (for creates, the temp-keyed row disappears with it).
func (q *MutationQueue) Discard(ctx context.Context, id int64) error {
	q.mu.Lock()
	m, ok := q.muts[id]
	if !ok {
		q.mu.Unlock()
		return fmt.Errorf("discard: unknown mutation %d", id)
	}
	if m.Status != entity.StatusFailed {
		status := m.Status
		q.mu.Unlock()
		return fmt.Errorf("discard: mutation %d is %s, not failed", id, status)
	}
	snapshot := *m
	delete(q.muts, id)
	for i, oid := range q.order {
		if oid == id {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	q.mu.Unlock()

	if err := q.store.DeleteMutation(ctx, id); err != nil {
		return err
	}

	if snapshot.Op == entity.OpCreate {
		if err := q.cache.Remove(ctx, snapshot.Entity); err != nil {
			return err
		}
	}

	slog.Info("mutation discarded", "mutation", id, "entity", snapshot.Entity.String())
	return nil
}

// snapshotOrdered returns pointers to all mutations in ascending id order.
// Callers must not retain the pointers beyond the current operation.
func (q *MutationQueue) snapshotOrdered() []*entity.Mutation {
	q.mu.Lock()
	defer q.mu.Unlock()

	ids := make([]int64, len(q.order))
	copy(ids, q.order)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]*entity.Mutation, 0, len(ids))
	for _, id := range ids {
		out = append(out, q.muts[id])
	}
	return out
}

// ownerCreateLocked finds the create mutation that owns a temp id.
// Caller must hold q.mu.
func (q *MutationQueue) ownerCreateLocked(tempID entity.ID) *entity.Mutation {
	for _, m := range q.muts {
		if m.Op == entity.OpCreate && m.Entity.ID == tempID {
			return m
		}
	}
	return nil
}

// OwnerCreate finds the create mutation that owns a temp id, if it is
// still tracked by the queue.
func (q *MutationQueue) OwnerCreate(tempID entity.ID) (entity.Mutation, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	m := q.ownerCreateLocked(tempID)
	if m == nil {
		return entity.Mutation{}, false
	}
	return *m, true
}
