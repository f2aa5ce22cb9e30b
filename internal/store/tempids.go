package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/stockroom-app/stockroom/internal/entity"
)

// TempIDRecord is one persisted temp-id allocation. RealID is empty until
// the owning create mutation syncs.
type TempIDRecord struct {
	TempID entity.ID
	Kind   entity.Kind
	RealID entity.ID
}

// WriteTempID records a freshly allocated temp id.
// Idempotent via ON CONFLICT DO NOTHING.
func (s *Store) WriteTempID(ctx context.Context, tempID entity.ID, kind entity.Kind) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO temp_ids (temp_id, entity_kind, real_id)
		VALUES (?, ?, NULL)
		ON CONFLICT(temp_id) DO NOTHING
	`, string(tempID), string(kind))
	if err != nil {
		return fmt.Errorf("write temp id %s: %w", tempID, err)
	}
	return nil
}

// BindTempID records the server-assigned real id for a temp id.
// The WHERE clause only matches an unbound row, so a second bind affects
// zero rows and returns an error instead of silently overwriting the
// immutable mapping.
func (s *Store) BindTempID(ctx context.Context, tempID, realID entity.ID) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE temp_ids
		SET real_id = ?
		WHERE temp_id = ? AND real_id IS NULL
	`, string(realID), string(tempID))
	if err != nil {
		return fmt.Errorf("bind temp id %s: %w", tempID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("bind temp id %s: rows affected: %w", tempID, err)
	}
	if n == 0 {
		return fmt.Errorf("bind temp id %s: no unbound row", tempID)
	}
	return nil
}

// LoadTempIDs returns every temp-id record, bound and unbound, so the
// registry can be rebuilt after a restart.
func (s *Store) LoadTempIDs(ctx context.Context) ([]TempIDRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT temp_id, entity_kind, real_id
		FROM temp_ids
		ORDER BY temp_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("load temp ids: %w", err)
	}
	defer rows.Close()

	var out []TempIDRecord
	for rows.Next() {
		var (
			rec    TempIDRecord
			tempID string
			kind   string
			realID sql.NullString
		)
		if err := rows.Scan(&tempID, &kind, &realID); err != nil {
			return nil, fmt.Errorf("scan temp id: %w", err)
		}
		rec.TempID = entity.ID(tempID)
		rec.Kind = entity.Kind(kind)
		if realID.Valid {
			rec.RealID = entity.ID(realID.String)
		}
		out = append(out, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate temp ids: %w", err)
	}

	if out == nil {
		out = []TempIDRecord{}
	}

	return out, nil
}
