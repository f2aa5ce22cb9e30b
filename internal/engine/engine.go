package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stockroom-app/stockroom/internal/entity"
)

// DrainEvent records one observable step of a drain run. Consumed by the
// status command's live view and by trace recording in tests.
type DrainEvent struct {
	MutationID int64
	Entity     entity.Ref
	Op         entity.Op
	Status     entity.Status
	Attempt    int
	Reason     string
}

// SyncEngine drains the mutation queue against the backend whenever
// connectivity is available.
//
// The engine is the single writer of mutation status and of temp-id
// bindings. Exactly one drain runs at a time: an online signal arriving
// while a drain is in progress is a no-op, and the running drain picks up
// mutations enqueued after it started because readiness is re-evaluated
// on every iteration.
type SyncEngine struct {
	queue    *MutationQueue
	graph    *DependencyGraph
	registry *TempIDRegistry
	cache    *LocalCache
	executor Executor
	monitor  *ConnectivityMonitor
	backoff  Backoff

	draining atomic.Bool
	wg       sync.WaitGroup
	unsub    func()

	// sleep pauses between retry attempts; replaced in tests so retries
	// do not slow the suite down.
	sleep func(ctx context.Context, d time.Duration)

	mu      sync.Mutex
	onEvent func(DrainEvent)
}

// NewSyncEngine wires the engine to its collaborators. The monitor may be
// nil when drains are only ever triggered explicitly.
func NewSyncEngine(q *MutationQueue, g *DependencyGraph, r *TempIDRegistry, c *LocalCache, exec Executor, mon *ConnectivityMonitor, backoff Backoff) *SyncEngine {
	return &SyncEngine{
		queue:    q,
		graph:    g,
		registry: r,
		cache:    c,
		executor: exec,
		monitor:  mon,
		backoff:  backoff,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// SetEventHook installs a callback invoked on every mutation status
// transition during a drain. The hook runs on the drain goroutine and
// must not block.
func (e *SyncEngine) SetEventHook(fn func(DrainEvent)) {
	e.mu.Lock()
	e.onEvent = fn
	e.mu.Unlock()
}

func (e *SyncEngine) emit(ev DrainEvent) {
	e.mu.Lock()
	fn := e.onEvent
	e.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

// Start subscribes the engine to connectivity transitions. Every settled
// offline→online transition triggers a drain; if the monitor is already
// online a drain starts immediately. The ctx bounds all triggered drains.
func (e *SyncEngine) Start(ctx context.Context) {
	if e.monitor == nil {
		return
	}
	e.unsub = e.monitor.Subscribe(func(online bool) {
		if online {
			e.wg.Add(1)
			go func() {
				defer e.wg.Done()
				if err := e.Drain(ctx); err != nil {
					slog.Error("drain failed", "error", err)
				}
			}()
		}
	})
	if e.monitor.IsOnline() {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			if err := e.Drain(ctx); err != nil {
				slog.Error("drain failed", "error", err)
			}
		}()
	}
}

// Stop unsubscribes from the monitor and waits for any in-progress drain
// to finish. Cancel the Start ctx first to interrupt a long drain.
func (e *SyncEngine) Stop() {
	if e.unsub != nil {
		e.unsub()
		e.unsub = nil
	}
	e.wg.Wait()
}

// Draining reports whether a drain is currently running.
func (e *SyncEngine) Draining() bool {
	return e.draining.Load()
}

// Drain replays ready mutations until the queue has none left, the
// context is cancelled, or connectivity drops. Concurrent calls collapse
// into the already-running drain and return nil immediately.
//
// The loop re-evaluates readiness on every iteration, so a create that
// syncs mid-drain unblocks its dependents within the same run, and
// mutations enqueued while draining are picked up too.
func (e *SyncEngine) Drain(ctx context.Context) error {
	if !e.draining.CompareAndSwap(false, true) {
		return nil
	}
	defer e.draining.Store(false)

	slog.Info("drain started", "pending", e.queue.PendingCount())

	for {
		if err := ctx.Err(); err != nil {
			slog.Info("drain interrupted", "reason", "context cancelled")
			return nil
		}
		if e.monitor != nil && !e.monitor.IsOnline() {
			slog.Info("drain interrupted", "reason", "went offline")
			return nil
		}

		// Structural damage (cycles, dangling references) cannot occur
		// through the public enqueue path, but a corrupted store could
		// surface it. Fail the implicated mutations instead of spinning.
		if implicated := e.graph.CheckStructure(); len(implicated) > 0 {
			for _, id := range implicated {
				if err := e.failMutation(ctx, id, "structural error in dependency graph"); err != nil {
					return err
				}
			}
		}

		m := e.queue.DequeueReady(e.graph)
		if m == nil {
			break
		}

		if err := e.process(ctx, m); err != nil {
			return err
		}
	}

	slog.Info("drain finished", "pending", e.queue.PendingCount())
	return nil
}

// process replays a single mutation: resolve temp ids, call the executor,
// and apply the outcome to queue, registry, and cache.
func (e *SyncEngine) process(ctx context.Context, m *entity.Mutation) error {
	payload, err := entity.RewriteDependencyFields(m.Entity.Kind, m.Payload, func(tempID entity.ID) (entity.ID, error) {
		real, ok := e.registry.Resolve(tempID)
		if !ok {
			return "", NewStructuralError("unresolved temp id at send time: "+string(tempID), m.ID, m.Entity)
		}
		return real, nil
	})
	if err != nil {
		return err
	}

	// Updates and deletes addressed by temp id resolve to the real id
	// bound when the owning create synced; readiness guarantees the
	// binding exists by now.
	targetID := m.Entity.ID
	if m.Op != entity.OpCreate && targetID.IsTemp() {
		real, ok := e.registry.Resolve(targetID)
		if !ok {
			return NewStructuralError("unresolved target temp id at send time", m.ID, m.Entity)
		}
		targetID = real
	}
	if m.Op == entity.OpCreate {
		// The backend assigns the id; the temp id never leaves the client.
		targetID = ""
	}

	attempt, err := e.queue.RecordAttempt(ctx, m.ID)
	if err != nil {
		return err
	}
	if err := e.queue.MarkStatus(ctx, m.ID, entity.StatusInFlight, ""); err != nil {
		return err
	}
	e.emit(DrainEvent{MutationID: m.ID, Entity: m.Entity, Op: m.Op, Status: entity.StatusInFlight, Attempt: attempt})

	server, execErr := e.executor.Execute(ctx, m.Op, m.Entity.Kind, targetID, payload)
	if execErr == nil {
		return e.applySuccess(ctx, m, server, attempt)
	}
	return e.applyFailure(ctx, m, execErr, attempt)
}

// applySuccess commits a confirmed mutation: bind and promote for creates,
// refresh the cached row for updates, drop it for deletes.
func (e *SyncEngine) applySuccess(ctx context.Context, m *entity.Mutation, server entity.ServerEntity, attempt int) error {
	switch m.Op {
	case entity.OpCreate:
		if server.ID == "" || server.ID.IsTemp() {
			return NewStructuralError(
				fmt.Sprintf("backend returned invalid id %q for create", server.ID), m.ID, m.Entity)
		}
		if err := e.registry.Bind(ctx, m.Entity.ID, server.ID); err != nil {
			return err
		}
		if err := e.cache.Promote(ctx, m.Entity.Kind, m.Entity.ID, server.ID, server.Data); err != nil {
			return err
		}
	case entity.OpUpdate:
		ref := entity.Ref{Kind: server.Kind, ID: server.ID}
		if ref.ID == "" {
			ref = m.Entity
		}
		if err := e.cache.Upsert(ctx, ref, server.Data, false); err != nil {
			return err
		}
	case entity.OpDelete:
		if err := e.cache.Remove(ctx, m.Entity); err != nil {
			return err
		}
	}

	if err := e.queue.MarkStatus(ctx, m.ID, entity.StatusSynced, ""); err != nil {
		return err
	}
	e.emit(DrainEvent{MutationID: m.ID, Entity: m.Entity, Op: m.Op, Status: entity.StatusSynced, Attempt: attempt})

	slog.Info("mutation synced",
		"mutation", m.ID,
		"op", m.Op,
		"entity", m.Entity.String(),
		"attempts", attempt,
	)
	return nil
}

// applyFailure routes an executor failure: retryable failures go back to
// queued with a backoff pause until the attempt budget runs out; terminal
// failures (validation rejections, exhausted budgets) cascade to every
// transitive dependent without executing it.
func (e *SyncEngine) applyFailure(ctx context.Context, m *entity.Mutation, execErr error, attempt int) error {
	if IsStructuralError(execErr) {
		return execErr
	}
	ee := classifyExecutorError(execErr)

	if ee.Retryable && !e.backoff.Exhausted(attempt) {
		if err := e.queue.MarkStatus(ctx, m.ID, entity.StatusQueued, ee.Reason); err != nil {
			return err
		}
		e.emit(DrainEvent{MutationID: m.ID, Entity: m.Entity, Op: m.Op, Status: entity.StatusQueued, Attempt: attempt, Reason: ee.Reason})
		slog.Warn("mutation retry scheduled",
			"mutation", m.ID,
			"entity", m.Entity.String(),
			"attempt", attempt,
			"reason", ee.Reason,
		)
		e.sleep(ctx, e.backoff.Delay(attempt))
		return nil
	}

	reason := ee.Reason
	if ee.Retryable {
		reason = fmt.Sprintf("gave up after %d attempts: %s", attempt, ee.Reason)
	}
	if err := e.failMutation(ctx, m.ID, reason); err != nil {
		return err
	}

	slog.Error("mutation failed",
		"mutation", m.ID,
		"entity", m.Entity.String(),
		"reason", reason,
		"retryable", ee.Retryable,
	)
	return nil
}

// failMutation marks one mutation failed and cascades the failure to its
// transitive dependents. Dependents never reach the executor; their
// failure reason names the dependency so the user can see what to fix.
func (e *SyncEngine) failMutation(ctx context.Context, id int64, reason string) error {
	m, ok := e.queue.Get(id)
	if !ok {
		return fmt.Errorf("fail mutation: unknown mutation %d", id)
	}

	deps := e.graph.Dependents(id)

	if err := e.queue.MarkStatus(ctx, id, entity.StatusFailed, reason); err != nil {
		return err
	}
	e.emit(DrainEvent{MutationID: id, Entity: m.Entity, Op: m.Op, Status: entity.StatusFailed, Attempt: m.Attempts, Reason: reason})

	blockedReason := "blocked: dependency " + m.Entity.String() + " failed"
	for _, did := range deps {
		dm, ok := e.queue.Get(did)
		if !ok {
			continue
		}
		if err := e.queue.MarkStatus(ctx, did, entity.StatusFailed, blockedReason); err != nil {
			// An in-flight dependent cannot be failed from here; the drain
			// loop owns it and will settle it on its own.
			if IsStructuralError(err) {
				continue
			}
			return err
		}
		e.emit(DrainEvent{MutationID: did, Entity: dm.Entity, Op: dm.Op, Status: entity.StatusFailed, Attempt: dm.Attempts, Reason: blockedReason})
	}

	if len(deps) > 0 {
		slog.Warn("failure cascaded", "mutation", id, "dependents", len(deps))
	}
	return nil
}
