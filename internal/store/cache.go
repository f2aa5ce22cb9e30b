package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/stockroom-app/stockroom/internal/entity"
)

// CachedEntity is one row of the merged local view: last-known-good server
// state or an optimistic, still-pending row.
type CachedEntity struct {
	Ref     entity.Ref
	Data    entity.Payload
	Pending bool
}

// UpsertEntity writes an entity row into the cache, replacing any existing
// row under the same key.
func (s *Store) UpsertEntity(ctx context.Context, ref entity.Ref, data entity.Payload, pending bool) error {
	dataJSON, err := marshalPayload(data)
	if err != nil {
		return fmt.Errorf("upsert entity %s: %w", ref, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cache_entities (kind, id, data, pending)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(kind, id) DO UPDATE SET data = excluded.data, pending = excluded.pending
	`, string(ref.Kind), string(ref.ID), dataJSON, boolToInt(pending))
	if err != nil {
		return fmt.Errorf("upsert entity %s: %w", ref, err)
	}
	return nil
}

// DeleteEntity removes an entity row from the cache.
func (s *Store) DeleteEntity(ctx context.Context, ref entity.Ref) error {
	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM cache_entities WHERE kind = ? AND id = ?
	`, string(ref.Kind), string(ref.ID)); err != nil {
		return fmt.Errorf("delete entity %s: %w", ref, err)
	}
	return nil
}

// ReadEntity retrieves one cached entity.
// Returns sql.ErrNoRows if not present.
func (s *Store) ReadEntity(ctx context.Context, ref entity.Ref) (CachedEntity, error) {
	var (
		dataJSON string
		pending  int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT data, pending FROM cache_entities WHERE kind = ? AND id = ?
	`, string(ref.Kind), string(ref.ID)).Scan(&dataJSON, &pending)
	if err != nil {
		return CachedEntity{}, err
	}

	data, err := unmarshalPayload(dataJSON)
	if err != nil {
		return CachedEntity{}, err
	}

	return CachedEntity{Ref: ref, Data: data, Pending: pending != 0}, nil
}

// ListEntities returns all cached entities of a kind, confirmed and
// optimistic side by side, ordered by id for determinism.
func (s *Store) ListEntities(ctx context.Context, kind entity.Kind) ([]CachedEntity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, data, pending
		FROM cache_entities
		WHERE kind = ?
		ORDER BY id COLLATE BINARY ASC
	`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("list %s entities: %w", kind, err)
	}
	defer rows.Close()

	var out []CachedEntity
	for rows.Next() {
		var (
			id       string
			dataJSON string
			pending  int
		)
		if err := rows.Scan(&id, &dataJSON, &pending); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		data, err := unmarshalPayload(dataJSON)
		if err != nil {
			return nil, err
		}
		out = append(out, CachedEntity{
			Ref:     entity.Ref{Kind: kind, ID: entity.ID(id)},
			Data:    data,
			Pending: pending != 0,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entities: %w", err)
	}

	if out == nil {
		out = []CachedEntity{}
	}

	return out, nil
}

// PromoteEntityKey atomically rekeys an entity from its temp id to the
// server-assigned real id: the temp-keyed row is deleted and the real-keyed
// row inserted in the same transaction, so no reader ever observes the
// entity twice or not at all.
func (s *Store) PromoteEntityKey(ctx context.Context, kind entity.Kind, tempID, realID entity.ID, data entity.Payload) error {
	dataJSON, err := marshalPayload(data)
	if err != nil {
		return fmt.Errorf("promote %s/%s: %w", kind, tempID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("promote %s/%s: begin tx: %w", kind, tempID, err)
	}
	defer tx.Rollback() // No-op if committed

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM cache_entities WHERE kind = ? AND id = ?
	`, string(kind), string(tempID)); err != nil {
		return fmt.Errorf("promote %s/%s: delete temp row: %w", kind, tempID, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO cache_entities (kind, id, data, pending)
		VALUES (?, ?, ?, 0)
		ON CONFLICT(kind, id) DO UPDATE SET data = excluded.data, pending = 0
	`, string(kind), string(realID), dataJSON); err != nil {
		return fmt.Errorf("promote %s/%s: insert real row: %w", kind, tempID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("promote %s/%s: commit: %w", kind, tempID, err)
	}
	return nil
}

// ErrNotFound re-exports sql.ErrNoRows so engine code does not need a
// database/sql import to test for missing rows.
var ErrNotFound = sql.ErrNoRows

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
