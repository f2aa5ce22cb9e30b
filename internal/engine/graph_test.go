package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockroom-app/stockroom/internal/entity"
)

// chain enqueues category creates a <- b <- c (each child of the previous)
// and an unrelated borrower create, returning the mutations in order.
func chain(t *testing.T, f *queueFixture) []*entity.Mutation {
	t.Helper()
	ctx := context.Background()

	a := f.tempID(t, entity.KindCategory)
	ma, err := f.queue.Enqueue(ctx, entity.OpCreate,
		entity.Ref{Kind: entity.KindCategory, ID: a}, entity.Payload{"name": "A"})
	require.NoError(t, err)

	b := f.tempID(t, entity.KindCategory)
	mb, err := f.queue.Enqueue(ctx, entity.OpCreate,
		entity.Ref{Kind: entity.KindCategory, ID: b},
		entity.Payload{"name": "B", "parentId": string(a)})
	require.NoError(t, err)

	c := f.tempID(t, entity.KindCategory)
	mc, err := f.queue.Enqueue(ctx, entity.OpCreate,
		entity.Ref{Kind: entity.KindCategory, ID: c},
		entity.Payload{"name": "C", "parentId": string(b)})
	require.NoError(t, err)

	md, err := f.queue.Enqueue(ctx, entity.OpCreate,
		entity.Ref{Kind: entity.KindBorrower, ID: f.tempID(t, entity.KindBorrower)},
		entity.Payload{"name": "D"})
	require.NoError(t, err)

	return []*entity.Mutation{ma, mb, mc, md}
}

func TestGraph_ReadyRespectsUnboundDeps(t *testing.T) {
	f := newQueueFixture(t)
	ms := chain(t, f)

	assert.True(t, f.graph.Ready(ms[0]))
	assert.False(t, f.graph.Ready(ms[1]))
	assert.False(t, f.graph.Ready(ms[2]))
	assert.True(t, f.graph.Ready(ms[3]))
}

func TestGraph_NextReadyIsLowestReadyID(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()
	ms := chain(t, f)

	next := f.graph.NextReady()
	require.NotNil(t, next)
	assert.Equal(t, ms[0].ID, next.ID)

	// Once A syncs and binds, B becomes ready and precedes D by id.
	require.NoError(t, f.queue.MarkStatus(ctx, ms[0].ID, entity.StatusInFlight, ""))
	require.NoError(t, f.queue.MarkStatus(ctx, ms[0].ID, entity.StatusSynced, ""))
	require.NoError(t, f.registry.Bind(ctx, ms[0].Entity.ID, "cat-1"))

	next = f.graph.NextReady()
	require.NotNil(t, next)
	assert.Equal(t, ms[1].ID, next.ID)
}

func TestGraph_ReplayOrderSimulatesBindings(t *testing.T) {
	f := newQueueFixture(t)
	ms := chain(t, f)

	order, blocked := f.graph.ReplayOrder()
	assert.Empty(t, blocked)
	assert.Equal(t, []int64{ms[0].ID, ms[1].ID, ms[2].ID, ms[3].ID}, order)
}

func TestGraph_DependentsTransitiveClosure(t *testing.T) {
	f := newQueueFixture(t)
	ms := chain(t, f)

	deps := f.graph.Dependents(ms[0].ID)
	assert.Equal(t, []int64{ms[1].ID, ms[2].ID}, deps)

	assert.Empty(t, f.graph.Dependents(ms[3].ID))
}

func TestGraph_CheckStructureCleanByConstruction(t *testing.T) {
	f := newQueueFixture(t)
	chain(t, f)

	assert.Empty(t, f.graph.CheckStructure())
}

func TestGraph_CheckStructureFlagsDanglingDep(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	// Enqueue normally, then corrupt the in-memory record the way a bad
	// store migration could: a dependency on a temp id nobody owns.
	m, err := f.queue.Enqueue(ctx, entity.OpCreate,
		entity.Ref{Kind: entity.KindCategory, ID: f.tempID(t, entity.KindCategory)},
		entity.Payload{"name": "E"})
	require.NoError(t, err)

	f.queue.mu.Lock()
	f.queue.muts[m.ID].DependsOn = []entity.Ref{{Kind: entity.KindCategory, ID: "tmp-ghost"}}
	f.queue.mu.Unlock()

	implicated := f.graph.CheckStructure()
	assert.Equal(t, []int64{m.ID}, implicated)
}

func TestGraph_CheckStructureFlagsCycle(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	a := f.tempID(t, entity.KindCategory)
	ma, err := f.queue.Enqueue(ctx, entity.OpCreate,
		entity.Ref{Kind: entity.KindCategory, ID: a}, entity.Payload{"name": "A"})
	require.NoError(t, err)

	b := f.tempID(t, entity.KindCategory)
	mb, err := f.queue.Enqueue(ctx, entity.OpCreate,
		entity.Ref{Kind: entity.KindCategory, ID: b},
		entity.Payload{"name": "B", "parentId": string(a)})
	require.NoError(t, err)

	// Force A to depend on B, closing the loop.
	f.queue.mu.Lock()
	f.queue.muts[ma.ID].DependsOn = []entity.Ref{{Kind: entity.KindCategory, ID: b}}
	f.queue.mu.Unlock()

	implicated := f.graph.CheckStructure()
	assert.ElementsMatch(t, []int64{ma.ID, mb.ID}, implicated)
}
