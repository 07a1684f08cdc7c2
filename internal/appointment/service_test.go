package appointment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clinicore/clinic-backend/internal/bus"
	"github.com/clinicore/clinic-backend/internal/eventsourcing"
	"github.com/clinicore/clinic-backend/internal/eventstore"
)

type memStore struct {
	mu      sync.Mutex
	streams map[uuid.UUID][]eventsourcing.Envelope
}

func newMemStore() *memStore {
	return &memStore{streams: make(map[uuid.UUID][]eventsourcing.Envelope)}
}

func (s *memStore) Append(ctx context.Context, id uuid.UUID, expectedVersion uint64, events []eventsourcing.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if uint64(len(s.streams[id])) != expectedVersion {
		return eventstore.ErrVersionConflict
	}
	s.streams[id] = append(s.streams[id], events...)
	return nil
}

func (s *memStore) Load(ctx context.Context, id uuid.UUID) ([]eventsourcing.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stream := s.streams[id]
	if len(stream) == 0 {
		return nil, eventstore.ErrStreamNotFound
	}
	out := make([]eventsourcing.Envelope, len(stream))
	copy(out, stream)
	return out, nil
}

func (s *memStore) LoadFrom(ctx context.Context, id uuid.UUID, afterVersion uint64) ([]eventsourcing.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []eventsourcing.Envelope
	for _, env := range s.streams[id] {
		if env.Version > afterVersion {
			out = append(out, env)
		}
	}
	return out, nil
}

type memSnapStore struct {
	mu    sync.Mutex
	snaps map[uuid.UUID]eventsourcing.Snapshot
}

func newMemSnapStore() *memSnapStore {
	return &memSnapStore{snaps: make(map[uuid.UUID]eventsourcing.Snapshot)}
}

func (s *memSnapStore) SaveSnapshot(ctx context.Context, snap eventsourcing.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.snaps[snap.AggregateID]; ok && cur.Version >= snap.Version {
		return nil
	}
	s.snaps[snap.AggregateID] = snap
	return nil
}

func (s *memSnapStore) LoadSnapshot(ctx context.Context, id uuid.UUID) (eventsourcing.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snaps[id]
	if !ok {
		return eventsourcing.Snapshot{}, eventstore.ErrSnapshotNotFound
	}
	return snap, nil
}

func newTestService(store eventstore.Store, snaps eventstore.SnapshotStore) *Service {
	return NewService(store, snaps, bus.Nop{}, nil, zap.NewNop(), 100)
}

func requestParams() RequestParams {
	return RequestParams{
		PatientID:     uuid.New(),
		ClinicID:      uuid.New(),
		ProcedureType: "cleaning",
		ScheduledFor:  time.Date(2026, 9, 14, 9, 0, 0, 0, time.UTC),
		DurationMin:   30,
		RequestedBy:   "test",
	}
}

func TestServiceRequestSavesSnapshot(t *testing.T) {
	ctx := context.Background()
	snaps := newMemSnapStore()
	svc := newTestService(newMemStore(), snaps)

	a, err := svc.Request(ctx, requestParams())
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	// the worker projection scans snapshots, so a new visit must appear
	// there immediately
	snap, err := snaps.LoadSnapshot(ctx, a.ID())
	if err != nil {
		t.Fatalf("load snapshot after request: %v", err)
	}
	if snap.Version != 1 || snap.AggregateType != AggregateType {
		t.Fatalf("snapshot version=%d type=%s", snap.Version, snap.AggregateType)
	}
}

func TestServiceGetUnknownAppointment(t *testing.T) {
	svc := newTestService(newMemStore(), newMemSnapStore())
	_, err := svc.Get(context.Background(), uuid.New())
	if !errors.Is(err, ErrAppointmentNotFound) {
		t.Fatalf("err = %v, want ErrAppointmentNotFound", err)
	}
}

func TestServiceRescheduleCreatesLinkedSuccessor(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(store, newMemSnapStore())

	a, err := svc.Request(ctx, requestParams())
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := svc.Confirm(ctx, a.ID(), "reception", ""); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	newTime := a.ScheduledFor().Add(48 * time.Hour)
	successor, err := svc.Reschedule(ctx, a.ID(), newTime, "patient", "")
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}

	if successor.ID() == a.ID() {
		t.Fatal("successor reused the old aggregate id")
	}
	if !successor.ScheduledFor().Equal(newTime) {
		t.Fatalf("successor scheduled for %s, want %s", successor.ScheduledFor(), newTime)
	}
	if successor.RescheduledFrom() == nil || *successor.RescheduledFrom() != a.ID() {
		t.Fatalf("successor rescheduled_from = %v, want %s", successor.RescheduledFrom(), a.ID())
	}
	if successor.RescheduleCount() != 1 {
		t.Fatalf("successor reschedule count = %d, want 1", successor.RescheduleCount())
	}
	if successor.PatientID() != a.PatientID() {
		t.Fatal("successor lost the patient")
	}

	old, err := svc.Get(ctx, a.ID())
	if err != nil {
		t.Fatalf("get old: %v", err)
	}
	if old.Status() != StatusRescheduled {
		t.Fatalf("old status = %s, want %s", old.Status(), StatusRescheduled)
	}
	if old.NextAppointmentID() == nil || *old.NextAppointmentID() != successor.ID() {
		t.Fatalf("old next = %v, want %s", old.NextAppointmentID(), successor.ID())
	}
}

func TestServiceRescheduleRejectedOnTerminalVisit(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newMemStore(), newMemSnapStore())

	a, err := svc.Request(ctx, requestParams())
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := svc.Cancel(ctx, a.ID(), "r", "reception", ""); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	_, err = svc.Reschedule(ctx, a.ID(), a.ScheduledFor().Add(time.Hour), "patient", "")
	if !errors.Is(err, eventsourcing.ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
}
