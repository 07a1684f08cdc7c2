// Package eventstore persists aggregate event streams and snapshots.
package eventstore

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/clinicore/clinic-backend/internal/eventsourcing"
)

var (
	// ErrVersionConflict means the stream advanced since the aggregate was
	// loaded. The caller reloads and retries; nothing was written.
	ErrVersionConflict = errors.New("aggregate version conflict")

	ErrStreamNotFound   = errors.New("event stream not found")
	ErrSnapshotNotFound = errors.New("snapshot not found")
)

// Store is the append/load port over an ordered event log. Append is atomic:
// either every envelope lands or none do.
type Store interface {
	// Append writes events at the end of the stream. expectedVersion is the
	// optimistic concurrency token: it must equal the persisted version of
	// the stream, and the first event must be at expectedVersion+1.
	Append(ctx context.Context, aggregateID uuid.UUID, expectedVersion uint64, events []eventsourcing.Envelope) error

	// Load returns the full stream in ascending version order.
	Load(ctx context.Context, aggregateID uuid.UUID) ([]eventsourcing.Envelope, error)

	// LoadFrom returns events with version > afterVersion, ascending.
	LoadFrom(ctx context.Context, aggregateID uuid.UUID, afterVersion uint64) ([]eventsourcing.Envelope, error)
}

// SnapshotStore persists at most one snapshot per aggregate, the latest.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap eventsourcing.Snapshot) error
	LoadSnapshot(ctx context.Context, aggregateID uuid.UUID) (eventsourcing.Snapshot, error)
}
