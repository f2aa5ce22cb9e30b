package engine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockroom-app/stockroom/internal/entity"
	"github.com/stockroom-app/stockroom/internal/store"
)

func newTestCache(t *testing.T) *LocalCache {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return NewLocalCache(s)
}

func TestLocalCache_OverlayPreservesUntouchedFields(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	ref := entity.Ref{Kind: entity.KindItem, ID: "item-1"}

	require.NoError(t, c.Upsert(ctx, ref, entity.Payload{"name": "Drill", "categoryId": "cat-1"}, false))
	require.NoError(t, c.Overlay(ctx, ref, entity.Payload{"name": "Impact Drill"}))

	got, ok, err := c.Get(ctx, ref)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Impact Drill", got.Data["name"])
	assert.Equal(t, "cat-1", got.Data["categoryId"])
	assert.False(t, got.Pending)
}

func TestLocalCache_OverlayOnMissingRowCreatesPending(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	ref := entity.Ref{Kind: entity.KindItem, ID: "item-2"}

	require.NoError(t, c.Overlay(ctx, ref, entity.Payload{"name": "Saw"}))

	got, ok, err := c.Get(ctx, ref)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Pending)
}

func TestLocalCache_PromoteSwapsKeyAtomically(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	tempRef := entity.Ref{Kind: entity.KindCategory, ID: "tmp-c1"}

	require.NoError(t, c.Upsert(ctx, tempRef, entity.Payload{"name": "Garden"}, true))
	require.NoError(t, c.Promote(ctx, entity.KindCategory, "tmp-c1", "cat-9", entity.Payload{"name": "Garden"}))

	_, ok, err := c.Get(ctx, tempRef)
	require.NoError(t, err)
	assert.False(t, ok)

	got, ok, err := c.Get(ctx, entity.Ref{Kind: entity.KindCategory, ID: "cat-9"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, got.Pending)

	// Exactly one row of the kind exists at any observable point.
	all, err := c.List(ctx, entity.KindCategory)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
