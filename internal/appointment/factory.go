package appointment

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinic-backend/internal/eventsourcing"
)

// RequestParams carries everything needed to open a new appointment stream.
type RequestParams struct {
	ID            uuid.UUID
	PatientID     uuid.UUID
	ClinicID      uuid.UUID
	ProcedureType string
	ScheduledFor  time.Time
	DurationMin   int
	ProviderID    *uuid.UUID
	ProviderName  string
	RequestedBy   string

	// Set only when this instance replaces a rescheduled one.
	RescheduledFrom  *uuid.UUID
	PriorReschedules int

	CorrelationID string
}

func newEmpty(id uuid.UUID) *Appointment {
	a := &Appointment{}
	a.root = eventsourcing.NewRoot(id, AggregateType, a.apply)
	return a
}

// Request creates an appointment in REQUESTED.
func Request(p RequestParams) (*Appointment, error) {
	a := newEmpty(p.ID)
	err := a.root.Raise(EventRequested, RequestedPayload{
		PatientID:        p.PatientID,
		ClinicID:         p.ClinicID,
		ProcedureType:    p.ProcedureType,
		ScheduledFor:     p.ScheduledFor,
		DurationMin:      p.DurationMin,
		ProviderID:       p.ProviderID,
		ProviderName:     p.ProviderName,
		RescheduledFrom:  p.RescheduledFrom,
		PriorReschedules: p.PriorReschedules,
		RequestedBy:      p.RequestedBy,
	}, p.CorrelationID)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// FromHistory rebuilds an appointment by full replay.
func FromHistory(id uuid.UUID, events []eventsourcing.Envelope) (*Appointment, error) {
	a := newEmpty(id)
	if err := a.root.LoadFromHistory(events); err != nil {
		return nil, err
	}
	return a, nil
}

// appointmentState is the serialized snapshot shape.
type appointmentState struct {
	PatientID         uuid.UUID  `json:"patient_id"`
	ClinicID          uuid.UUID  `json:"clinic_id"`
	ProcedureType     string     `json:"procedure_type"`
	ProviderID        *uuid.UUID `json:"provider_id,omitempty"`
	ProviderName      string     `json:"provider_name,omitempty"`
	ScheduledFor      time.Time  `json:"scheduled_for"`
	DurationMin       int        `json:"duration_min"`
	Status            Status     `json:"status"`
	RescheduleCount   int        `json:"reschedule_count"`
	RescheduledFrom   *uuid.UUID `json:"rescheduled_from,omitempty"`
	NextAppointmentID *uuid.UUID `json:"next_appointment_id,omitempty"`
	Reminders         []Reminder `json:"reminders,omitempty"`
	ConsentType       string     `json:"consent_type,omitempty"`
	ConsentVerifiedAt *time.Time `json:"consent_verified_at,omitempty"`
	TreatmentNotes    string     `json:"treatment_notes,omitempty"`
	ActualDurationMin int        `json:"actual_duration_min,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// CreateSnapshot captures current state at the current version without
// touching the uncommitted buffer.
func CreateSnapshot(a *Appointment) (eventsourcing.Snapshot, error) {
	state := appointmentState{
		PatientID:         a.patientID,
		ClinicID:          a.clinicID,
		ProcedureType:     a.procedureType,
		ProviderID:        a.providerID,
		ProviderName:      a.providerName,
		ScheduledFor:      a.scheduledFor,
		DurationMin:       a.durationMin,
		Status:            a.status,
		RescheduleCount:   a.rescheduleCount,
		RescheduledFrom:   a.rescheduledFrom,
		NextAppointmentID: a.nextAppointment,
		Reminders:         a.Reminders(),
		ConsentType:       a.consentType,
		ConsentVerifiedAt: a.consentVerifiedAt,
		TreatmentNotes:    a.treatmentNotes,
		ActualDurationMin: a.actualDurationMin,
		CreatedAt:         a.root.CreatedAt(),
		UpdatedAt:         a.root.UpdatedAt(),
	}
	return eventsourcing.NewSnapshot(&a.root, state)
}

// FromSnapshot seeds an appointment from a snapshot and replays only the
// events newer than the snapshot version.
func FromSnapshot(snap eventsourcing.Snapshot, events []eventsourcing.Envelope) (*Appointment, error) {
	if snap.AggregateType != AggregateType {
		return nil, fmt.Errorf("snapshot is for aggregate type %s, want %s", snap.AggregateType, AggregateType)
	}
	if err := snap.ValidateDelta(events); err != nil {
		return nil, err
	}

	var state appointmentState
	if err := snap.UnmarshalState(&state); err != nil {
		return nil, fmt.Errorf("decode appointment snapshot %s: %w", snap.AggregateID, err)
	}

	a := newEmpty(snap.AggregateID)
	a.patientID = state.PatientID
	a.clinicID = state.ClinicID
	a.procedureType = state.ProcedureType
	a.providerID = state.ProviderID
	a.providerName = state.ProviderName
	a.scheduledFor = state.ScheduledFor
	a.durationMin = state.DurationMin
	a.status = state.Status
	a.rescheduleCount = state.RescheduleCount
	a.rescheduledFrom = state.RescheduledFrom
	a.nextAppointment = state.NextAppointmentID
	a.reminders = state.Reminders
	a.consentType = state.ConsentType
	a.consentVerifiedAt = state.ConsentVerifiedAt
	a.treatmentNotes = state.TreatmentNotes
	a.actualDurationMin = state.ActualDurationMin
	a.root.Restore(snap.Version, state.CreatedAt, state.UpdatedAt)

	if err := a.root.LoadFromHistory(events); err != nil {
		return nil, err
	}
	return a, nil
}
