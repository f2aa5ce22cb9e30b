package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/stockroom-app/stockroom/internal/entity"
)

// timeLayout fixes the stored timestamp format. RFC 3339 with nanoseconds
// keeps creation-order comparisons stable in queries and display.
const timeLayout = time.RFC3339Nano

// WriteMutation inserts a queued mutation record.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - re-persisting the same
// mutation after a crash is silently ignored.
func (s *Store) WriteMutation(ctx context.Context, m entity.Mutation) error {
	payloadJSON, err := marshalPayload(m.Payload)
	if err != nil {
		return fmt.Errorf("write mutation: %w", err)
	}

	depsJSON, err := marshalRefs(m.DependsOn)
	if err != nil {
		return fmt.Errorf("write mutation: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO mutations
		(id, op, entity_kind, entity_id, payload, depends_on, status, attempts, failure_reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		m.ID,
		string(m.Op),
		string(m.Entity.Kind),
		string(m.Entity.ID),
		payloadJSON,
		depsJSON,
		string(m.Status),
		m.Attempts,
		m.FailureReason,
		m.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("write mutation: %w", err)
	}

	return nil
}

// MarkMutationStatus updates a mutation's status, attempt count, and
// failure reason in one statement.
func (s *Store) MarkMutationStatus(ctx context.Context, id int64, status entity.Status, attempts int, failureReason string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE mutations
		SET status = ?, attempts = ?, failure_reason = ?
		WHERE id = ?
	`, string(status), attempts, failureReason, id)
	if err != nil {
		return fmt.Errorf("mark mutation %d: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark mutation %d: rows affected: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("mark mutation %d: %w", id, sql.ErrNoRows)
	}
	return nil
}

// DeleteMutation removes a mutation record. Used when a failed mutation is
// discarded by the user.
func (s *Store) DeleteMutation(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM mutations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete mutation %d: %w", id, err)
	}
	return nil
}

// ReadMutation retrieves a single mutation by id.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadMutation(ctx context.Context, id int64) (entity.Mutation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, op, entity_kind, entity_id, payload, depends_on, status, attempts, failure_reason, created_at
		FROM mutations
		WHERE id = ?
	`, id)
	return scanMutationRow(row)
}

// LoadQueue returns every mutation that is not synced, in creation order.
// Failed mutations are included: they remain visible until explicitly
// retried or discarded.
func (s *Store) LoadQueue(ctx context.Context) ([]entity.Mutation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, op, entity_kind, entity_id, payload, depends_on, status, attempts, failure_reason, created_at
		FROM mutations
		WHERE status != ?
		ORDER BY id ASC
	`, string(entity.StatusSynced))
	if err != nil {
		return nil, fmt.Errorf("load queue: %w", err)
	}
	defer rows.Close()

	var muts []entity.Mutation
	for rows.Next() {
		m, err := scanMutation(rows)
		if err != nil {
			return nil, err
		}
		muts = append(muts, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queue: %w", err)
	}

	if muts == nil {
		muts = []entity.Mutation{}
	}

	return muts, nil
}

// MaxMutationID returns the highest mutation id ever persisted, or 0 for an
// empty table. Seeds the mutation-id clock so ids keep increasing across
// restarts.
func (s *Store) MaxMutationID(ctx context.Context) (int64, error) {
	var max sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(id) FROM mutations`).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("max mutation id: %w", err)
	}
	if !max.Valid {
		return 0, nil
	}
	return max.Int64, nil
}

// scanMutation scans a row into a Mutation.
func scanMutation(rows *sql.Rows) (entity.Mutation, error) {
	var (
		m           entity.Mutation
		op, kind    string
		id          string
		payloadJSON string
		depsJSON    string
		status      string
		createdAt   string
	)

	if err := rows.Scan(
		&m.ID, &op, &kind, &id, &payloadJSON, &depsJSON,
		&status, &m.Attempts, &m.FailureReason, &createdAt,
	); err != nil {
		return entity.Mutation{}, fmt.Errorf("scan mutation: %w", err)
	}

	return buildMutation(m, op, kind, id, payloadJSON, depsJSON, status, createdAt)
}

// scanMutationRow scans a single row into a Mutation.
func scanMutationRow(row *sql.Row) (entity.Mutation, error) {
	var (
		m           entity.Mutation
		op, kind    string
		id          string
		payloadJSON string
		depsJSON    string
		status      string
		createdAt   string
	)

	if err := row.Scan(
		&m.ID, &op, &kind, &id, &payloadJSON, &depsJSON,
		&status, &m.Attempts, &m.FailureReason, &createdAt,
	); err != nil {
		return entity.Mutation{}, err
	}

	return buildMutation(m, op, kind, id, payloadJSON, depsJSON, status, createdAt)
}

func buildMutation(m entity.Mutation, op, kind, id, payloadJSON, depsJSON, status, createdAt string) (entity.Mutation, error) {
	m.Op = entity.Op(op)
	m.Entity = entity.Ref{Kind: entity.Kind(kind), ID: entity.ID(id)}
	m.Status = entity.Status(status)

	payload, err := unmarshalPayload(payloadJSON)
	if err != nil {
		return entity.Mutation{}, err
	}
	m.Payload = payload

	deps, err := unmarshalRefs(depsJSON)
	if err != nil {
		return entity.Mutation{}, err
	}
	m.DependsOn = deps

	ts, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return entity.Mutation{}, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}
	m.CreatedAt = ts

	return m, nil
}
