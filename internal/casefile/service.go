package casefile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clinicore/clinic-backend/internal/bus"
	"github.com/clinicore/clinic-backend/internal/eventstore"
	redisclient "github.com/clinicore/clinic-backend/internal/redis"
)

// maxAppendRetries bounds the reload-and-retry loop on version conflicts.
const maxAppendRetries = 3

var ErrCaseNotFound = errors.New("case not found")

// Service orchestrates Case commands: load the aggregate (snapshot+delta or
// full replay), run the command, append the new events with the loaded
// version as the concurrency token, publish, snapshot periodically.
type Service struct {
	store         eventstore.Store
	snaps         eventstore.SnapshotStore
	publisher     bus.Publisher
	locker        redisclient.Locker
	log           *zap.Logger
	snapshotEvery uint64
}

func NewService(store eventstore.Store, snaps eventstore.SnapshotStore, publisher bus.Publisher, locker redisclient.Locker, log *zap.Logger, snapshotEvery uint64) *Service {
	return &Service{
		store:         store,
		snaps:         snaps,
		publisher:     publisher,
		locker:        locker,
		log:           log,
		snapshotEvery: snapshotEvery,
	}
}

// Open creates a new case and persists its creation event.
func (s *Service) Open(ctx context.Context, p OpenParams) (*Case, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	c, err := Open(p)
	if err != nil {
		return nil, err
	}
	if err := s.commit(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Get loads a case for reading.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Case, error) {
	return s.load(ctx, id)
}

func (s *Service) Start(ctx context.Context, id uuid.UUID, updatedBy, correlationID string) (*Case, error) {
	return s.execute(ctx, id, func(c *Case) error {
		return c.Start(updatedBy, correlationID)
	})
}

func (s *Service) Complete(ctx context.Context, id uuid.UUID, updatedBy, correlationID string) (*Case, error) {
	return s.execute(ctx, id, func(c *Case) error {
		return c.Complete(updatedBy, correlationID)
	})
}

func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason, updatedBy, correlationID string) (*Case, error) {
	return s.execute(ctx, id, func(c *Case) error {
		return c.Cancel(reason, updatedBy, correlationID)
	})
}

func (s *Service) PutOnHold(ctx context.Context, id uuid.UUID, reason, updatedBy, correlationID string) (*Case, error) {
	return s.execute(ctx, id, func(c *Case) error {
		return c.PutOnHold(reason, updatedBy, correlationID)
	})
}

func (s *Service) Resume(ctx context.Context, id uuid.UUID, updatedBy, correlationID string) (*Case, error) {
	return s.execute(ctx, id, func(c *Case) error {
		return c.Resume(updatedBy, correlationID)
	})
}

func (s *Service) RecordPayment(ctx context.Context, id uuid.UUID, amountCents int64, method, reference, updatedBy, correlationID string) (*Case, error) {
	return s.execute(ctx, id, func(c *Case) error {
		return c.RecordPayment(amountCents, method, reference, updatedBy, correlationID)
	})
}

func (s *Service) RecordRefund(ctx context.Context, id uuid.UUID, amountCents int64, reason, updatedBy, correlationID string) (*Case, error) {
	return s.execute(ctx, id, func(c *Case) error {
		return c.RecordRefund(amountCents, reason, updatedBy, correlationID)
	})
}

func (s *Service) AttachFinancing(ctx context.Context, id uuid.UUID, provider, reference string, approvedAt time.Time, updatedBy, correlationID string) (*Case, error) {
	return s.execute(ctx, id, func(c *Case) error {
		return c.AttachFinancing(provider, reference, approvedAt, updatedBy, correlationID)
	})
}

func (s *Service) SoftDelete(ctx context.Context, id uuid.UUID, deletedBy, correlationID string) (*Case, error) {
	return s.execute(ctx, id, func(c *Case) error {
		return c.SoftDelete(deletedBy, correlationID)
	})
}

// execute runs one command under the per-aggregate lock, retrying the whole
// load-decide-append cycle when a concurrent writer wins the version race.
func (s *Service) execute(ctx context.Context, id uuid.UUID, cmd func(*Case) error) (*Case, error) {
	var result *Case
	err := s.withLock(ctx, id, func(ctx context.Context) error {
		for attempt := 0; attempt < maxAppendRetries; attempt++ {
			c, err := s.load(ctx, id)
			if err != nil {
				return err
			}
			if err := cmd(c); err != nil {
				return err
			}
			err = s.commit(ctx, c)
			if errors.Is(err, eventstore.ErrVersionConflict) {
				s.log.Warn("case append conflict, retrying",
					zap.String("case_id", id.String()),
					zap.Int("attempt", attempt+1))
				continue
			}
			if err != nil {
				return err
			}
			result = c
			return nil
		}
		return fmt.Errorf("case %s: %w after %d attempts", id, eventstore.ErrVersionConflict, maxAppendRetries)
	})
	return result, err
}

func (s *Service) withLock(ctx context.Context, id uuid.UUID, fn func(ctx context.Context) error) error {
	if s.locker == nil {
		return fn(ctx)
	}
	return s.locker.WithAggregateLock(ctx, id, fn)
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*Case, error) {
	snap, err := s.snaps.LoadSnapshot(ctx, id)
	if err == nil {
		delta, err := s.store.LoadFrom(ctx, id, snap.Version)
		if err != nil {
			return nil, err
		}
		return FromSnapshot(snap, delta)
	}
	if !errors.Is(err, eventstore.ErrSnapshotNotFound) {
		return nil, err
	}

	events, err := s.store.Load(ctx, id)
	if err != nil {
		if errors.Is(err, eventstore.ErrStreamNotFound) {
			return nil, ErrCaseNotFound
		}
		return nil, err
	}
	return FromHistory(id, events)
}

func (s *Service) commit(ctx context.Context, c *Case) error {
	events := c.UncommittedEvents()
	if len(events) == 0 {
		return nil
	}
	expected := c.Version() - uint64(len(events))

	if err := s.store.Append(ctx, c.ID(), expected, events); err != nil {
		return err
	}

	if err := s.publisher.Publish(ctx, events); err != nil {
		// committed but not delivered: downstream catches up from the store
		s.log.Error("publish committed case events failed",
			zap.String("case_id", c.ID().String()),
			zap.Error(err))
	}

	c.ClearUncommittedEvents()
	s.maybeSnapshot(ctx, c, expected)
	return nil
}

// maybeSnapshot saves a snapshot whenever the version crossed a multiple of
// snapshotEvery during this commit. Failures are logged, never surfaced:
// snapshots are an optimization.
func (s *Service) maybeSnapshot(ctx context.Context, c *Case, previousVersion uint64) {
	if s.snapshotEvery == 0 || c.Version()/s.snapshotEvery == previousVersion/s.snapshotEvery {
		return
	}
	snap, err := CreateSnapshot(c)
	if err != nil {
		s.log.Error("create case snapshot failed", zap.String("case_id", c.ID().String()), zap.Error(err))
		return
	}
	if err := s.snaps.SaveSnapshot(ctx, snap); err != nil {
		s.log.Error("save case snapshot failed", zap.String("case_id", c.ID().String()), zap.Error(err))
		return
	}
	s.log.Debug("case snapshot saved",
		zap.String("case_id", c.ID().String()),
		zap.Uint64("version", snap.Version))
}
