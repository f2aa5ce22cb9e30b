package engine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockroom-app/stockroom/internal/entity"
	"github.com/stockroom-app/stockroom/internal/schema"
	"github.com/stockroom-app/stockroom/internal/store"
)

type queueFixture struct {
	store    *store.Store
	queue    *MutationQueue
	registry *TempIDRegistry
	cache    *LocalCache
	graph    *DependencyGraph
	nextTemp int
}

func newQueueFixture(t *testing.T) *queueFixture {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	v, err := schema.New()
	require.NoError(t, err)

	registry := NewTempIDRegistry(s, nil)
	cache := NewLocalCache(s)
	q := NewMutationQueue(s, cache, registry, v)

	return &queueFixture{
		store:    s,
		queue:    q,
		registry: registry,
		cache:    cache,
		graph:    NewDependencyGraph(q, registry),
	}
}

func (f *queueFixture) tempID(t *testing.T, kind entity.Kind) entity.ID {
	t.Helper()
	id, err := f.registry.Allocate(context.Background(), kind)
	require.NoError(t, err)
	return id
}

func TestEnqueue_AssignsIncreasingIDs(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	a, err := f.queue.Enqueue(ctx, entity.OpCreate,
		entity.Ref{Kind: entity.KindCategory, ID: f.tempID(t, entity.KindCategory)},
		entity.Payload{"name": "A"})
	require.NoError(t, err)
	b, err := f.queue.Enqueue(ctx, entity.OpCreate,
		entity.Ref{Kind: entity.KindCategory, ID: f.tempID(t, entity.KindCategory)},
		entity.Payload{"name": "B"})
	require.NoError(t, err)

	assert.Less(t, a.ID, b.ID)
	assert.Equal(t, 2, f.queue.PendingCount())
}

func TestEnqueue_RejectsInvalidPayloadWithoutPersisting(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	ref := entity.Ref{Kind: entity.KindCategory, ID: f.tempID(t, entity.KindCategory)}
	_, err := f.queue.Enqueue(ctx, entity.OpCreate, ref, entity.Payload{"name": ""})
	require.Error(t, err)

	var verr *schema.ValidationError
	assert.ErrorAs(t, err, &verr)

	// Nothing reached the store or the cache.
	assert.Zero(t, f.queue.PendingCount())
	_, ok, cerr := f.cache.Get(ctx, ref)
	require.NoError(t, cerr)
	assert.False(t, ok)
}

func TestEnqueue_DerivesDependenciesFromTempRefs(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	parent := f.tempID(t, entity.KindCategory)
	_, err := f.queue.Enqueue(ctx, entity.OpCreate,
		entity.Ref{Kind: entity.KindCategory, ID: parent},
		entity.Payload{"name": "Parent"})
	require.NoError(t, err)

	child, err := f.queue.Enqueue(ctx, entity.OpCreate,
		entity.Ref{Kind: entity.KindCategory, ID: f.tempID(t, entity.KindCategory)},
		entity.Payload{"name": "Child", "parentId": string(parent)})
	require.NoError(t, err)

	require.Len(t, child.DependsOn, 1)
	assert.Equal(t, parent, child.DependsOn[0].ID)

	// Real-id references never become dependencies.
	solo, err := f.queue.Enqueue(ctx, entity.OpCreate,
		entity.Ref{Kind: entity.KindCategory, ID: f.tempID(t, entity.KindCategory)},
		entity.Payload{"name": "Solo", "parentId": "cat-99"})
	require.NoError(t, err)
	assert.Empty(t, solo.DependsOn)
}

func TestEnqueue_RejectsDanglingDependency(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	_, err := f.queue.Enqueue(ctx, entity.OpCreate,
		entity.Ref{Kind: entity.KindCategory, ID: f.tempID(t, entity.KindCategory)},
		entity.Payload{"name": "Orphan", "parentId": "tmp-not-allocated"})
	require.Error(t, err)
	assert.True(t, IsStructuralError(err))
}

func TestEnqueue_UpdateOnUnboundTempBlocksOnOwnEntity(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	ref := entity.Ref{Kind: entity.KindItem, ID: f.tempID(t, entity.KindItem)}
	_, err := f.queue.Enqueue(ctx, entity.OpCreate, ref, entity.Payload{"name": "Drill"})
	require.NoError(t, err)

	upd, err := f.queue.Enqueue(ctx, entity.OpUpdate, ref, entity.Payload{"name": "Impact Drill"})
	require.NoError(t, err)

	require.Len(t, upd.DependsOn, 1)
	assert.Equal(t, ref, upd.DependsOn[0])
	assert.False(t, f.graph.Ready(upd))
}

func TestEnqueue_OptimisticCacheEffects(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	ref := entity.Ref{Kind: entity.KindBorrower, ID: f.tempID(t, entity.KindBorrower)}
	_, err := f.queue.Enqueue(ctx, entity.OpCreate, ref, entity.Payload{"name": "Kim"})
	require.NoError(t, err)

	cached, ok, err := f.cache.Get(ctx, ref)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, cached.Pending)
	assert.Equal(t, "Kim", cached.Data["name"])

	// Update overlays changed fields onto the row.
	_, err = f.queue.Enqueue(ctx, entity.OpUpdate, ref, entity.Payload{"email": "kim@example.com"})
	require.NoError(t, err)
	cached, _, err = f.cache.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "Kim", cached.Data["name"])
	assert.Equal(t, "kim@example.com", cached.Data["email"])

	// Delete removes it.
	_, err = f.queue.Enqueue(ctx, entity.OpDelete, ref, nil)
	require.NoError(t, err)
	_, ok, err = f.cache.Get(ctx, ref)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMarkStatus_EnforcesLifecycle(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	m, err := f.queue.Enqueue(ctx, entity.OpCreate,
		entity.Ref{Kind: entity.KindCategory, ID: f.tempID(t, entity.KindCategory)},
		entity.Payload{"name": "X"})
	require.NoError(t, err)

	// queued -> synced skips in-flight.
	err = f.queue.MarkStatus(ctx, m.ID, entity.StatusSynced, "")
	require.Error(t, err)
	assert.True(t, IsStructuralError(err))

	require.NoError(t, f.queue.MarkStatus(ctx, m.ID, entity.StatusInFlight, ""))
	require.NoError(t, f.queue.MarkStatus(ctx, m.ID, entity.StatusSynced, ""))

	// synced is terminal.
	err = f.queue.MarkStatus(ctx, m.ID, entity.StatusFailed, "nope")
	require.Error(t, err)
}

func TestRetryAndDiscard_RequireFailedStatus(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	ref := entity.Ref{Kind: entity.KindCategory, ID: f.tempID(t, entity.KindCategory)}
	m, err := f.queue.Enqueue(ctx, entity.OpCreate, ref, entity.Payload{"name": "Y"})
	require.NoError(t, err)

	assert.Error(t, f.queue.Retry(ctx, m.ID))
	assert.Error(t, f.queue.Discard(ctx, m.ID))

	require.NoError(t, f.queue.MarkStatus(ctx, m.ID, entity.StatusFailed, "server said no"))

	require.NoError(t, f.queue.Retry(ctx, m.ID))
	got, _ := f.queue.Get(m.ID)
	assert.Equal(t, entity.StatusQueued, got.Status)
	assert.Zero(t, got.Attempts)
	assert.Empty(t, got.FailureReason)
}

func TestDiscard_RemovesRecordAndOptimisticRow(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	ref := entity.Ref{Kind: entity.KindCategory, ID: f.tempID(t, entity.KindCategory)}
	m, err := f.queue.Enqueue(ctx, entity.OpCreate, ref, entity.Payload{"name": "Z"})
	require.NoError(t, err)
	require.NoError(t, f.queue.MarkStatus(ctx, m.ID, entity.StatusFailed, "rejected"))

	require.NoError(t, f.queue.Discard(ctx, m.ID))

	_, ok := f.queue.Get(m.ID)
	assert.False(t, ok)
	_, ok, err = f.cache.Get(ctx, ref)
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = f.store.ReadMutation(ctx, m.ID)
	assert.Error(t, err)
}

func TestLoad_ResetsInFlightToQueued(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	m, err := f.queue.Enqueue(ctx, entity.OpCreate,
		entity.Ref{Kind: entity.KindCategory, ID: f.tempID(t, entity.KindCategory)},
		entity.Payload{"name": "Crashed"})
	require.NoError(t, err)
	require.NoError(t, f.queue.MarkStatus(ctx, m.ID, entity.StatusInFlight, ""))

	// Simulate a restart: a fresh queue over the same store.
	q2 := NewMutationQueue(f.store, f.cache, f.registry, nil)
	require.NoError(t, q2.Load(ctx))

	got, ok := q2.Get(m.ID)
	require.True(t, ok)
	assert.Equal(t, entity.StatusQueued, got.Status)

	// The clock resumes above the highest persisted id.
	next, err := q2.Enqueue(ctx, entity.OpDelete,
		entity.Ref{Kind: entity.KindCategory, ID: "cat-1"}, nil)
	require.NoError(t, err)
	assert.Greater(t, next.ID, m.ID)
}
