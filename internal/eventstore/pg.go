package eventstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/clinic-backend/internal/eventsourcing"
)

const uniqueViolation = "23505"

// PgStore implements Store and SnapshotStore on Postgres. Optimistic
// concurrency rides on the UNIQUE (aggregate_id, version) index: a
// concurrent writer that got there first makes our insert a duplicate key.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) Append(ctx context.Context, aggregateID uuid.UUID, expectedVersion uint64, events []eventsourcing.Envelope) error {
	if len(events) == 0 {
		return nil
	}
	if events[0].Version != expectedVersion+1 {
		return fmt.Errorf("append to %s: first event version %d does not follow expected version %d",
			aggregateID, events[0].Version, expectedVersion)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin append tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, env := range events {
		_, err := tx.Exec(ctx, `
			INSERT INTO events (aggregate_id, aggregate_type, version, event_type, payload, correlation_id, causation_id, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, env.AggregateID, env.AggregateType, env.Version, env.EventType, env.Payload,
			nullableString(env.CorrelationID), nullableString(env.CausationID), env.Timestamp)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return ErrVersionConflict
			}
			return fmt.Errorf("insert event %s v%d: %w", env.AggregateID, env.Version, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit append tx: %w", err)
	}
	return nil
}

func (s *PgStore) Load(ctx context.Context, aggregateID uuid.UUID) ([]eventsourcing.Envelope, error) {
	return s.loadAfter(ctx, aggregateID, 0)
}

func (s *PgStore) LoadFrom(ctx context.Context, aggregateID uuid.UUID, afterVersion uint64) ([]eventsourcing.Envelope, error) {
	events, err := s.loadAfter(ctx, aggregateID, afterVersion)
	if err != nil && errors.Is(err, ErrStreamNotFound) {
		// empty delta after a snapshot is normal
		return nil, nil
	}
	return events, err
}

func (s *PgStore) loadAfter(ctx context.Context, aggregateID uuid.UUID, afterVersion uint64) ([]eventsourcing.Envelope, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT aggregate_id, aggregate_type, version, event_type, payload, correlation_id, causation_id, created_at
		FROM events
		WHERE aggregate_id = $1
		  AND version > $2
		ORDER BY version ASC
	`, aggregateID, afterVersion)
	if err != nil {
		return nil, fmt.Errorf("query events for %s: %w", aggregateID, err)
	}
	defer rows.Close()

	var result []eventsourcing.Envelope
	for rows.Next() {
		env, err := scanEnvelope(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, env)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(result) == 0 {
		return nil, ErrStreamNotFound
	}
	return result, nil
}

func scanEnvelope(row pgx.Row) (eventsourcing.Envelope, error) {
	var env eventsourcing.Envelope
	var correlationID, causationID *string

	err := row.Scan(
		&env.AggregateID,
		&env.AggregateType,
		&env.Version,
		&env.EventType,
		&env.Payload,
		&correlationID,
		&causationID,
		&env.Timestamp,
	)
	if err != nil {
		return eventsourcing.Envelope{}, err
	}

	if correlationID != nil {
		env.CorrelationID = *correlationID
	}
	if causationID != nil {
		env.CausationID = *causationID
	}
	return env, nil
}

func (s *PgStore) SaveSnapshot(ctx context.Context, snap eventsourcing.Snapshot) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO snapshots (aggregate_id, aggregate_type, version, state, taken_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (aggregate_id) DO UPDATE
		SET version = EXCLUDED.version,
		    state = EXCLUDED.state,
		    taken_at = EXCLUDED.taken_at
		WHERE snapshots.version < EXCLUDED.version
	`, snap.AggregateID, snap.AggregateType, snap.Version, snap.State, snap.TakenAt)
	if err != nil {
		return fmt.Errorf("save snapshot %s v%d: %w", snap.AggregateID, snap.Version, err)
	}
	return nil
}

func (s *PgStore) LoadSnapshot(ctx context.Context, aggregateID uuid.UUID) (eventsourcing.Snapshot, error) {
	var snap eventsourcing.Snapshot
	err := s.pool.QueryRow(ctx, `
		SELECT aggregate_id, aggregate_type, version, state, taken_at
		FROM snapshots
		WHERE aggregate_id = $1
	`, aggregateID).Scan(&snap.AggregateID, &snap.AggregateType, &snap.Version, &snap.State, &snap.TakenAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return eventsourcing.Snapshot{}, ErrSnapshotNotFound
		}
		return eventsourcing.Snapshot{}, fmt.Errorf("load snapshot %s: %w", aggregateID, err)
	}
	return snap, nil
}

// DueReminders scans the appointment snapshot projection for visits whose
// scheduled time falls inside [now, now+window) and that are still awaiting
// the patient. Used by the reminder worker.
func (s *PgStore) DueReminders(ctx context.Context, now time.Time, window time.Duration) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT aggregate_id
		FROM snapshots
		WHERE aggregate_type = 'Appointment'
		  AND state->>'status' IN ('REQUESTED', 'CONFIRMED')
		  AND (state->>'scheduled_for')::timestamptz >= $1
		  AND (state->>'scheduled_for')::timestamptz < $2
	`, now, now.Add(window))
	if err != nil {
		return nil, fmt.Errorf("query due reminders: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
