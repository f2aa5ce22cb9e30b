package engine

import (
	"context"
	"errors"

	"github.com/stockroom-app/stockroom/internal/entity"
	"github.com/stockroom-app/stockroom/internal/store"
)

// LocalCache is the merged local view of warehouse data: last-known-good
// server state plus optimistic rows for entities created or changed while
// offline.
//
// Confirmed and optimistic rows live side by side - a temp-keyed row is
// additional, never a stand-in for a real row. When the sync engine
// promotes an entity, the temp-keyed row is removed in the same atomic
// store transaction that inserts the real-keyed row, so there is no
// observable moment in which the entity is visible twice or not at all.
type LocalCache struct {
	store *store.Store
}

// NewLocalCache creates a cache view over the given store.
func NewLocalCache(s *store.Store) *LocalCache {
	return &LocalCache{store: s}
}

// Upsert writes an entity row. Optimistic rows (enqueue-time creates and
// updates on pending entities) carry pending=true until promotion.
func (c *LocalCache) Upsert(ctx context.Context, ref entity.Ref, data entity.Payload, pending bool) error {
	return c.store.UpsertEntity(ctx, ref, data, pending)
}

// Overlay merges changed fields onto an existing row, preserving fields
// the mutation did not touch. Missing rows are created from the overlay
// alone (an offline update to an entity this device never fetched).
func (c *LocalCache) Overlay(ctx context.Context, ref entity.Ref, changes entity.Payload) error {
	existing, ok, err := c.Get(ctx, ref)
	if err != nil {
		return err
	}

	merged := changes
	if ok {
		merged = existing.Data.Clone()
		for k, v := range changes {
			merged[k] = v
		}
	}
	return c.store.UpsertEntity(ctx, ref, merged, ok && existing.Pending || !ok)
}

// Remove deletes an entity row.
func (c *LocalCache) Remove(ctx context.Context, ref entity.Ref) error {
	return c.store.DeleteEntity(ctx, ref)
}

// Get reads one entity. The second return value reports presence.
func (c *LocalCache) Get(ctx context.Context, ref entity.Ref) (store.CachedEntity, bool, error) {
	e, err := c.store.ReadEntity(ctx, ref)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.CachedEntity{}, false, nil
		}
		return store.CachedEntity{}, false, err
	}
	return e, true, nil
}

// List returns all entities of a kind, confirmed and optimistic together.
func (c *LocalCache) List(ctx context.Context, kind entity.Kind) ([]store.CachedEntity, error) {
	return c.store.ListEntities(ctx, kind)
}

// Promote atomically swaps an entity's key from its temp id to the
// server-assigned real id, replacing the cached data with the server's
// response.
func (c *LocalCache) Promote(ctx context.Context, kind entity.Kind, tempID, realID entity.ID, data entity.Payload) error {
	return c.store.PromoteEntityKey(ctx, kind, tempID, realID, data)
}
