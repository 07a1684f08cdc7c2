// Package appointment implements the event-sourced Appointment aggregate
// covering the clinical visit lifecycle from request to completion.
package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinic-backend/internal/eventsourcing"
)

// AggregateType identifies Appointment streams in the shared event store.
const AggregateType eventsourcing.AggregateType = "Appointment"

type Status string

const (
	StatusRequested   Status = "REQUESTED"
	StatusConfirmed   Status = "CONFIRMED"
	StatusCheckedIn   Status = "CHECKED_IN"
	StatusInProgress  Status = "IN_PROGRESS"
	StatusCompleted   Status = "COMPLETED"
	StatusCancelled   Status = "CANCELLED"
	StatusNoShow      Status = "NO_SHOW"
	StatusRescheduled Status = "RESCHEDULED"
)

// MaxReschedules bounds how many times a booking chain may be pushed back.
const MaxReschedules = 3

// transitions is the visit state machine. RESCHEDULED is terminal for this
// instance; the successor is a new aggregate linked by id.
var transitions = eventsourcing.Table[Status]{
	StatusRequested:   {StatusConfirmed, StatusCancelled, StatusRescheduled},
	StatusConfirmed:   {StatusCheckedIn, StatusCancelled, StatusNoShow, StatusRescheduled},
	StatusCheckedIn:   {StatusInProgress, StatusCancelled, StatusRescheduled},
	StatusInProgress:  {StatusCompleted, StatusRescheduled},
	StatusCompleted:   {},
	StatusCancelled:   {},
	StatusNoShow:      {},
	StatusRescheduled: {},
}

// Reminder is one entry in the ordered reminder log.
type Reminder struct {
	Channel        string    `json:"channel"`
	SentAt         time.Time `json:"sent_at"`
	DeliveryStatus string    `json:"delivery_status"`
}

// Appointment is the aggregate root for a single clinical visit.
type Appointment struct {
	root eventsourcing.Root

	patientID     uuid.UUID
	clinicID      uuid.UUID
	procedureType string
	providerID    *uuid.UUID
	providerName  string

	scheduledFor time.Time
	durationMin  int

	status          Status
	rescheduleCount int
	rescheduledFrom *uuid.UUID
	nextAppointment *uuid.UUID

	reminders []Reminder

	consentType       string
	consentVerifiedAt *time.Time

	treatmentNotes    string
	actualDurationMin int
}

func (a *Appointment) ID() uuid.UUID          { return a.root.ID() }
func (a *Appointment) Version() uint64        { return a.root.Version() }
func (a *Appointment) CreatedAt() time.Time   { return a.root.CreatedAt() }
func (a *Appointment) UpdatedAt() time.Time   { return a.root.UpdatedAt() }
func (a *Appointment) PatientID() uuid.UUID   { return a.patientID }
func (a *Appointment) ClinicID() uuid.UUID    { return a.clinicID }
func (a *Appointment) ProcedureType() string  { return a.procedureType }
func (a *Appointment) ProviderID() *uuid.UUID { return a.providerID }
func (a *Appointment) ProviderName() string   { return a.providerName }
func (a *Appointment) ScheduledFor() time.Time { return a.scheduledFor }
func (a *Appointment) DurationMin() int       { return a.durationMin }
func (a *Appointment) Status() Status         { return a.status }
func (a *Appointment) RescheduleCount() int   { return a.rescheduleCount }
func (a *Appointment) RescheduledFrom() *uuid.UUID { return a.rescheduledFrom }
func (a *Appointment) NextAppointmentID() *uuid.UUID { return a.nextAppointment }
func (a *Appointment) ConsentType() string    { return a.consentType }
func (a *Appointment) ConsentVerifiedAt() *time.Time { return a.consentVerifiedAt }
func (a *Appointment) TreatmentNotes() string { return a.treatmentNotes }
func (a *Appointment) ActualDurationMin() int { return a.actualDurationMin }

// EndTime is derived from the scheduled start and duration.
func (a *Appointment) EndTime() time.Time {
	return a.scheduledFor.Add(time.Duration(a.durationMin) * time.Minute)
}

// Reminders returns the reminder log in send order.
func (a *Appointment) Reminders() []Reminder {
	out := make([]Reminder, len(a.reminders))
	copy(out, a.reminders)
	return out
}

// IsTerminal reports whether the visit reached a final state.
func (a *Appointment) IsTerminal() bool { return transitions.Terminal(a.status) }

// CanModify is false once the visit is terminal.
func (a *Appointment) CanModify() bool { return !a.IsTerminal() }

// CanCancel is true until treatment starts: REQUESTED, CONFIRMED and
// CHECKED_IN allow cancellation, IN_PROGRESS and the terminal states do not.
func (a *Appointment) CanCancel() bool {
	switch a.status {
	case StatusRequested, StatusConfirmed, StatusCheckedIn:
		return true
	default:
		return false
	}
}

func (a *Appointment) UncommittedEvents() []eventsourcing.Envelope { return a.root.UncommittedEvents() }
func (a *Appointment) ClearUncommittedEvents()                     { a.root.ClearUncommittedEvents() }

func (a *Appointment) guardTransition(to Status) error {
	if !transitions.Can(a.status, to) {
		return eventsourcing.NewTransitionError(a.ID(), string(a.status), string(to))
	}
	return nil
}

func (a *Appointment) ensureModifiable() error {
	if a.IsTerminal() {
		return eventsourcing.NewStateError(eventsourcing.KindTerminalState, a.ID(),
			"appointment is in terminal status "+string(a.status))
	}
	return nil
}

// Confirm acknowledges the request. Re-confirming is reported distinctly
// from other illegal transitions.
func (a *Appointment) Confirm(confirmedBy, correlationID string) error {
	if a.status == StatusConfirmed {
		return eventsourcing.NewStateError(eventsourcing.KindAlreadyConfirmed, a.ID(), "appointment is already confirmed")
	}
	if err := a.guardTransition(StatusConfirmed); err != nil {
		return err
	}
	return a.root.Raise(EventConfirmed, ConfirmedPayload{ConfirmedBy: confirmedBy}, correlationID)
}

// CheckIn records patient arrival.
func (a *Appointment) CheckIn(checkedInBy, correlationID string) error {
	if err := a.guardTransition(StatusCheckedIn); err != nil {
		return err
	}
	return a.root.Raise(EventCheckedIn, CheckedInPayload{CheckedInBy: checkedInBy}, correlationID)
}

// Start records the beginning of treatment.
func (a *Appointment) Start(startedBy, correlationID string) error {
	if err := a.guardTransition(StatusInProgress); err != nil {
		return err
	}
	return a.root.Raise(EventStarted, StartedPayload{StartedBy: startedBy}, correlationID)
}

// Complete finishes the visit, optionally with clinical notes and the
// actual chair time.
func (a *Appointment) Complete(notes string, actualDurationMin int, completedBy, correlationID string) error {
	if err := a.guardTransition(StatusCompleted); err != nil {
		return err
	}
	return a.root.Raise(EventCompleted, CompletedPayload{
		TreatmentNotes:    notes,
		ActualDurationMin: actualDurationMin,
		CompletedBy:       completedBy,
	}, correlationID)
}

// Cancel aborts the visit. Once treatment is in progress the visit can only
// complete; the table would allow nothing else, but the rule is stated here
// explicitly because callers probe it via CanCancel.
func (a *Appointment) Cancel(reason, cancelledBy, correlationID string) error {
	if a.status == StatusCancelled {
		return eventsourcing.NewStateError(eventsourcing.KindAlreadyCancelled, a.ID(), "appointment is already cancelled")
	}
	if !a.CanCancel() {
		return eventsourcing.NewTransitionError(a.ID(), string(a.status), string(StatusCancelled))
	}
	return a.root.Raise(EventCancelled, CancelledPayload{Reason: reason, CancelledBy: cancelledBy}, correlationID)
}

// MarkNoShow records a confirmed patient who never arrived.
func (a *Appointment) MarkNoShow(recordedBy, correlationID string) error {
	if err := a.guardTransition(StatusNoShow); err != nil {
		return err
	}
	return a.root.Raise(EventNoShow, NoShowPayload{RecordedBy: recordedBy}, correlationID)
}

// Reschedule closes this instance in favor of a successor created by the
// caller. The count travels with the chain: the service seeds the successor
// with rescheduleCount carried over, so the bound holds across instances.
func (a *Appointment) Reschedule(newScheduledFor time.Time, initiatedBy string, newAppointmentID uuid.UUID, correlationID string) error {
	if a.rescheduleCount >= MaxReschedules {
		return eventsourcing.NewLimitError(eventsourcing.KindMaxReschedules, a.ID(), a.rescheduleCount, MaxReschedules)
	}
	if err := a.guardTransition(StatusRescheduled); err != nil {
		return err
	}
	return a.root.Raise(EventRescheduled, RescheduledPayload{
		NewScheduledFor:  newScheduledFor,
		NewAppointmentID: newAppointmentID,
		InitiatedBy:      initiatedBy,
	}, correlationID)
}

// RecordReminderSent appends to the reminder log. Status is unchanged but
// the entry is event-sourced for audit.
func (a *Appointment) RecordReminderSent(channel string, sentAt time.Time, deliveryStatus, correlationID string) error {
	if err := a.ensureModifiable(); err != nil {
		return err
	}
	return a.root.Raise(EventReminderSent, ReminderSentPayload{
		Channel:        channel,
		SentAt:         sentAt,
		DeliveryStatus: deliveryStatus,
	}, correlationID)
}

// AssignProvider sets or replaces the treating provider.
func (a *Appointment) AssignProvider(providerID uuid.UUID, providerName, assignedBy, correlationID string) error {
	if err := a.ensureModifiable(); err != nil {
		return err
	}
	return a.root.Raise(EventProviderAssigned, ProviderAssignedPayload{
		ProviderID:   providerID,
		ProviderName: providerName,
		AssignedBy:   assignedBy,
	}, correlationID)
}

// RecordConsentVerification stamps the latest consent check.
func (a *Appointment) RecordConsentVerification(consentType, verifiedBy, correlationID string) error {
	if err := a.ensureModifiable(); err != nil {
		return err
	}
	return a.root.Raise(EventConsentVerified, ConsentVerifiedPayload{
		ConsentType: consentType,
		VerifiedBy:  verifiedBy,
	}, correlationID)
}

// apply folds one envelope into state; unknown event types fall through.
func (a *Appointment) apply(env eventsourcing.Envelope) {
	switch env.EventType {
	case EventRequested:
		var p RequestedPayload
		if err := env.UnmarshalPayload(&p); err != nil {
			return
		}
		a.patientID = p.PatientID
		a.clinicID = p.ClinicID
		a.procedureType = p.ProcedureType
		a.scheduledFor = p.ScheduledFor
		a.durationMin = p.DurationMin
		a.providerID = p.ProviderID
		a.providerName = p.ProviderName
		a.rescheduledFrom = p.RescheduledFrom
		a.rescheduleCount = p.PriorReschedules
		a.status = StatusRequested

	case EventConfirmed:
		a.status = StatusConfirmed

	case EventCheckedIn:
		a.status = StatusCheckedIn

	case EventStarted:
		a.status = StatusInProgress

	case EventCompleted:
		var p CompletedPayload
		if err := env.UnmarshalPayload(&p); err != nil {
			return
		}
		a.status = StatusCompleted
		a.treatmentNotes = p.TreatmentNotes
		a.actualDurationMin = p.ActualDurationMin

	case EventCancelled:
		a.status = StatusCancelled

	case EventNoShow:
		a.status = StatusNoShow

	case EventRescheduled:
		var p RescheduledPayload
		if err := env.UnmarshalPayload(&p); err != nil {
			return
		}
		a.status = StatusRescheduled
		a.rescheduleCount++
		id := p.NewAppointmentID
		a.nextAppointment = &id

	case EventReminderSent:
		var p ReminderSentPayload
		if err := env.UnmarshalPayload(&p); err != nil {
			return
		}
		a.reminders = append(a.reminders, Reminder{
			Channel:        p.Channel,
			SentAt:         p.SentAt,
			DeliveryStatus: p.DeliveryStatus,
		})

	case EventProviderAssigned:
		var p ProviderAssignedPayload
		if err := env.UnmarshalPayload(&p); err != nil {
			return
		}
		id := p.ProviderID
		a.providerID = &id
		a.providerName = p.ProviderName

	case EventConsentVerified:
		var p ConsentVerifiedPayload
		if err := env.UnmarshalPayload(&p); err != nil {
			return
		}
		ts := env.Timestamp
		a.consentType = p.ConsentType
		a.consentVerifiedAt = &ts

	default:
		// forward compatibility: skip, the Root already advanced the version
	}
}
