package appointment

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

const maxAppendRetries = 3

var ErrAppointmentNotFound = errors.New("appointment not found")

// Service orchestrates Appointment commands against the event store and the
// bus. See casefile.Service for the shared load/commit shape.
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

// Request creates a new appointment in REQUESTED and persists it. A
// snapshot is written immediately so the reminder worker's projection sees
// the visit without replaying streams.
func (s *Service) Request(ctx context.Context, p RequestParams) (*Appointment, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	a, err := Request(p)
	if err != nil {
		return nil, err
	}
	if err := s.commit(ctx, a); err != nil {
		return nil, err
	}
	s.saveSnapshot(ctx, a)
	return a, nil
}

// Get loads an appointment for reading.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.load(ctx, id)
}

func (s *Service) Confirm(ctx context.Context, id uuid.UUID, confirmedBy, correlationID string) (*Appointment, error) {
	return s.execute(ctx, id, func(a *Appointment) error {
		return a.Confirm(confirmedBy, correlationID)
	})
}

func (s *Service) CheckIn(ctx context.Context, id uuid.UUID, checkedInBy, correlationID string) (*Appointment, error) {
	return s.execute(ctx, id, func(a *Appointment) error {
		return a.CheckIn(checkedInBy, correlationID)
	})
}

func (s *Service) Start(ctx context.Context, id uuid.UUID, startedBy, correlationID string) (*Appointment, error) {
	return s.execute(ctx, id, func(a *Appointment) error {
		return a.Start(startedBy, correlationID)
	})
}

func (s *Service) Complete(ctx context.Context, id uuid.UUID, notes string, actualDurationMin int, completedBy, correlationID string) (*Appointment, error) {
	return s.execute(ctx, id, func(a *Appointment) error {
		return a.Complete(notes, actualDurationMin, completedBy, correlationID)
	})
}

func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason, cancelledBy, correlationID string) (*Appointment, error) {
	return s.execute(ctx, id, func(a *Appointment) error {
		return a.Cancel(reason, cancelledBy, correlationID)
	})
}

func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID, recordedBy, correlationID string) (*Appointment, error) {
	return s.execute(ctx, id, func(a *Appointment) error {
		return a.MarkNoShow(recordedBy, correlationID)
	})
}

func (s *Service) RecordReminderSent(ctx context.Context, id uuid.UUID, channel string, sentAt time.Time, deliveryStatus, correlationID string) (*Appointment, error) {
	return s.execute(ctx, id, func(a *Appointment) error {
		return a.RecordReminderSent(channel, sentAt, deliveryStatus, correlationID)
	})
}

func (s *Service) AssignProvider(ctx context.Context, id uuid.UUID, providerID uuid.UUID, providerName, assignedBy, correlationID string) (*Appointment, error) {
	return s.execute(ctx, id, func(a *Appointment) error {
		return a.AssignProvider(providerID, providerName, assignedBy, correlationID)
	})
}

func (s *Service) RecordConsentVerification(ctx context.Context, id uuid.UUID, consentType, verifiedBy, correlationID string) (*Appointment, error) {
	return s.execute(ctx, id, func(a *Appointment) error {
		return a.RecordConsentVerification(consentType, verifiedBy, correlationID)
	})
}

// Reschedule terminates the given appointment and creates its successor at
// the new time, linked both ways. Two streams, two appends: each aggregate
// stays its own consistency boundary.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, newScheduledFor time.Time, initiatedBy, correlationID string) (*Appointment, error) {
	successorID := uuid.New()

	old, err := s.execute(ctx, id, func(a *Appointment) error {
		return a.Reschedule(newScheduledFor, initiatedBy, successorID, correlationID)
	})
	if err != nil {
		return nil, err
	}

	oldID := old.ID()
	successor, err := s.Request(ctx, RequestParams{
		ID:               successorID,
		PatientID:        old.PatientID(),
		ClinicID:         old.ClinicID(),
		ProcedureType:    old.ProcedureType(),
		ScheduledFor:     newScheduledFor,
		DurationMin:      old.DurationMin(),
		ProviderID:       old.ProviderID(),
		ProviderName:     old.ProviderName(),
		RequestedBy:      initiatedBy,
		RescheduledFrom:  &oldID,
		PriorReschedules: old.RescheduleCount(),
		CorrelationID:    correlationID,
	})
	if err != nil {
		// the old stream is already terminal; surface the half-finished
		// reschedule rather than pretending it did not happen
		return nil, fmt.Errorf("reschedule of %s closed the old appointment but creating successor %s failed: %w",
			id, successorID, err)
	}

	s.log.Info("appointment rescheduled",
		zap.String("appointment_id", id.String()),
		zap.String("successor_id", successor.ID().String()),
		zap.Time("new_scheduled_for", newScheduledFor))
	return successor, nil
}

func (s *Service) execute(ctx context.Context, id uuid.UUID, cmd func(*Appointment) error) (*Appointment, error) {
	var result *Appointment
	err := s.withLock(ctx, id, func(ctx context.Context) error {
		for attempt := 0; attempt < maxAppendRetries; attempt++ {
			a, err := s.load(ctx, id)
			if err != nil {
				return err
			}
			if err := cmd(a); err != nil {
				return err
			}
			err = s.commit(ctx, a)
			if errors.Is(err, eventstore.ErrVersionConflict) {
				s.log.Warn("appointment append conflict, retrying",
					zap.String("appointment_id", id.String()),
					zap.Int("attempt", attempt+1))
				continue
			}
			if err != nil {
				return err
			}
			result = a
			return nil
		}
		return fmt.Errorf("appointment %s: %w after %d attempts", id, eventstore.ErrVersionConflict, maxAppendRetries)
	})
	return result, err
}

func (s *Service) withLock(ctx context.Context, id uuid.UUID, fn func(ctx context.Context) error) error {
	if s.locker == nil {
		return fn(ctx)
	}
	return s.locker.WithAggregateLock(ctx, id, fn)
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*Appointment, error) {
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
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return FromHistory(id, events)
}

func (s *Service) commit(ctx context.Context, a *Appointment) error {
	events := a.UncommittedEvents()
	if len(events) == 0 {
		return nil
	}
	expected := a.Version() - uint64(len(events))

	if err := s.store.Append(ctx, a.ID(), expected, events); err != nil {
		return err
	}

	if err := s.publisher.Publish(ctx, events); err != nil {
		s.log.Error("publish committed appointment events failed",
			zap.String("appointment_id", a.ID().String()),
			zap.Error(err))
	}

	a.ClearUncommittedEvents()

	if s.snapshotEvery != 0 && a.Version()/s.snapshotEvery != expected/s.snapshotEvery {
		s.saveSnapshot(ctx, a)
	}
	return nil
}

func (s *Service) saveSnapshot(ctx context.Context, a *Appointment) {
	snap, err := CreateSnapshot(a)
	if err != nil {
		s.log.Error("create appointment snapshot failed", zap.String("appointment_id", a.ID().String()), zap.Error(err))
		return
	}
	if err := s.snaps.SaveSnapshot(ctx, snap); err != nil {
		s.log.Error("save appointment snapshot failed", zap.String("appointment_id", a.ID().String()), zap.Error(err))
		return
	}
	s.log.Debug("appointment snapshot saved",
		zap.String("appointment_id", a.ID().String()),
		zap.Uint64("version", snap.Version))
}
