package appointment

import (
	"time"

	"github.com/google/uuid"
)

// Event types raised by the Appointment aggregate.
const (
	EventRequested        = "appointment.requested"
	EventConfirmed        = "appointment.confirmed"
	EventCheckedIn        = "appointment.checked_in"
	EventStarted          = "appointment.started"
	EventCompleted        = "appointment.completed"
	EventCancelled        = "appointment.cancelled"
	EventNoShow           = "appointment.no_show"
	EventRescheduled      = "appointment.rescheduled"
	EventReminderSent     = "appointment.reminder_sent"
	EventProviderAssigned = "appointment.provider_assigned"
	EventConsentVerified  = "appointment.consent_verified"
)

type RequestedPayload struct {
	PatientID     uuid.UUID  `json:"patient_id"`
	ClinicID      uuid.UUID  `json:"clinic_id"`
	ProcedureType string     `json:"procedure_type"`
	ScheduledFor  time.Time  `json:"scheduled_for"`
	DurationMin   int        `json:"duration_min"`
	ProviderID    *uuid.UUID `json:"provider_id,omitempty"`
	ProviderName  string     `json:"provider_name,omitempty"`
	// RescheduledFrom links a successor instance back to the appointment it
	// replaced. PriorReschedules carries the chain's count forward so the
	// reschedule bound holds across instances.
	RescheduledFrom *uuid.UUID `json:"rescheduled_from,omitempty"`
	PriorReschedules int       `json:"prior_reschedules,omitempty"`
	RequestedBy      string    `json:"requested_by,omitempty"`
}

type ConfirmedPayload struct {
	ConfirmedBy string `json:"confirmed_by,omitempty"`
}

type CheckedInPayload struct {
	CheckedInBy string `json:"checked_in_by,omitempty"`
}

type StartedPayload struct {
	StartedBy string `json:"started_by,omitempty"`
}

type CompletedPayload struct {
	TreatmentNotes string `json:"treatment_notes,omitempty"`
	// ActualDurationMin is the real chair time, distinct from the duration
	// that was scheduled.
	ActualDurationMin int    `json:"actual_duration_min,omitempty"`
	CompletedBy       string `json:"completed_by,omitempty"`
}

type CancelledPayload struct {
	Reason      string `json:"reason,omitempty"`
	CancelledBy string `json:"cancelled_by,omitempty"`
}

type NoShowPayload struct {
	RecordedBy string `json:"recorded_by,omitempty"`
}

type RescheduledPayload struct {
	NewScheduledFor  time.Time `json:"new_scheduled_for"`
	NewAppointmentID uuid.UUID `json:"new_appointment_id"`
	InitiatedBy      string    `json:"initiated_by,omitempty"`
}

type ReminderSentPayload struct {
	Channel        string    `json:"channel"`
	SentAt         time.Time `json:"sent_at"`
	DeliveryStatus string    `json:"delivery_status"`
}

type ProviderAssignedPayload struct {
	ProviderID   uuid.UUID `json:"provider_id"`
	ProviderName string    `json:"provider_name"`
	AssignedBy   string    `json:"assigned_by,omitempty"`
}

type ConsentVerifiedPayload struct {
	ConsentType string `json:"consent_type"`
	VerifiedBy  string `json:"verified_by,omitempty"`
}
