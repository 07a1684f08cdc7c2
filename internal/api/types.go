package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinic-backend/internal/appointment"
	"github.com/clinicore/clinic-backend/internal/casefile"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Case DTOs

type CreateCaseRequest struct {
	ClinicID           string     `json:"clinic_id"`
	LeadID             string     `json:"lead_id"`
	TreatmentPlanID    string     `json:"treatment_plan_id"`
	CaseNumber         string     `json:"case_number"`
	TotalCents         int64      `json:"total_cents"`
	Currency           string     `json:"currency"`
	ExpectedCompletion *time.Time `json:"expected_completion,omitempty"`
	CreatedBy          string     `json:"created_by,omitempty"`
}

type CaseActionRequest struct {
	Reason    string `json:"reason,omitempty"`
	UpdatedBy string `json:"updated_by,omitempty"`
}

type PaymentRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Method      string `json:"method,omitempty"`
	Reference   string `json:"reference,omitempty"`
	UpdatedBy   string `json:"updated_by,omitempty"`
}

type RefundRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Reason      string `json:"reason,omitempty"`
	UpdatedBy   string `json:"updated_by,omitempty"`
}

type FinancingRequest struct {
	Provider   string    `json:"provider"`
	Reference  string    `json:"reference"`
	ApprovedAt time.Time `json:"approved_at"`
	UpdatedBy  string    `json:"updated_by,omitempty"`
}

type FinancingResponse struct {
	Provider   string    `json:"provider"`
	Reference  string    `json:"reference"`
	ApprovedAt time.Time `json:"approved_at"`
}

type CaseResponse struct {
	ID                 uuid.UUID          `json:"id"`
	ClinicID           uuid.UUID          `json:"clinic_id"`
	LeadID             uuid.UUID          `json:"lead_id"`
	TreatmentPlanID    uuid.UUID          `json:"treatment_plan_id"`
	CaseNumber         string             `json:"case_number"`
	Status             string             `json:"status"`
	TotalCents         int64              `json:"total_cents"`
	PaidCents          int64              `json:"paid_cents"`
	OutstandingCents   int64              `json:"outstanding_cents"`
	Currency           string             `json:"currency"`
	PaymentStatus      string             `json:"payment_status"`
	Financing          *FinancingResponse `json:"financing,omitempty"`
	StartedAt          *time.Time         `json:"started_at,omitempty"`
	CompletedAt        *time.Time         `json:"completed_at,omitempty"`
	ExpectedCompletion *time.Time         `json:"expected_completion,omitempty"`
	DeletedAt          *time.Time         `json:"deleted_at,omitempty"`
	Version            uint64             `json:"version"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

func toCaseResponse(c *casefile.Case) CaseResponse {
	resp := CaseResponse{
		ID:                 c.ID(),
		ClinicID:           c.ClinicID(),
		LeadID:             c.LeadID(),
		TreatmentPlanID:    c.TreatmentPlanID(),
		CaseNumber:         c.CaseNumber(),
		Status:             string(c.Status()),
		TotalCents:         c.TotalCents(),
		PaidCents:          c.PaidCents(),
		OutstandingCents:   c.OutstandingCents(),
		Currency:           c.Currency(),
		PaymentStatus:      string(c.PaymentStatus()),
		StartedAt:          c.StartedAt(),
		CompletedAt:        c.CompletedAt(),
		ExpectedCompletion: c.ExpectedCompletion(),
		DeletedAt:          c.DeletedAt(),
		Version:            c.Version(),
		CreatedAt:          c.CreatedAt(),
		UpdatedAt:          c.UpdatedAt(),
	}
	if f := c.Financing(); f != nil {
		resp.Financing = &FinancingResponse{
			Provider:   f.Provider,
			Reference:  f.Reference,
			ApprovedAt: f.ApprovedAt,
		}
	}
	return resp
}

// Appointment DTOs

type CreateAppointmentRequest struct {
	PatientID     string    `json:"patient_id"`
	ClinicID      string    `json:"clinic_id"`
	ProcedureType string    `json:"procedure_type"`
	ScheduledFor  time.Time `json:"scheduled_for"`
	DurationMin   int       `json:"duration_min"`
	ProviderID    string    `json:"provider_id,omitempty"`
	ProviderName  string    `json:"provider_name,omitempty"`
	RequestedBy   string    `json:"requested_by,omitempty"`
}

type AppointmentActionRequest struct {
	Reason    string `json:"reason,omitempty"`
	UpdatedBy string `json:"updated_by,omitempty"`
}

type CompleteAppointmentRequest struct {
	TreatmentNotes    string `json:"treatment_notes,omitempty"`
	ActualDurationMin int    `json:"actual_duration_min,omitempty"`
	CompletedBy       string `json:"completed_by,omitempty"`
}

type RescheduleRequest struct {
	NewScheduledFor time.Time `json:"new_scheduled_for"`
	InitiatedBy     string    `json:"initiated_by,omitempty"`
}

type ReminderRequest struct {
	Channel        string     `json:"channel"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
	DeliveryStatus string     `json:"delivery_status,omitempty"`
}

type AssignProviderRequest struct {
	ProviderID   string `json:"provider_id"`
	ProviderName string `json:"provider_name"`
	AssignedBy   string `json:"assigned_by,omitempty"`
}

type ConsentRequest struct {
	ConsentType string `json:"consent_type"`
	VerifiedBy  string `json:"verified_by,omitempty"`
}

type ReminderResponse struct {
	Channel        string    `json:"channel"`
	SentAt         time.Time `json:"sent_at"`
	DeliveryStatus string    `json:"delivery_status"`
}

type AppointmentResponse struct {
	ID                uuid.UUID          `json:"id"`
	PatientID         uuid.UUID          `json:"patient_id"`
	ClinicID          uuid.UUID          `json:"clinic_id"`
	ProcedureType     string             `json:"procedure_type"`
	ProviderID        *uuid.UUID         `json:"provider_id,omitempty"`
	ProviderName      string             `json:"provider_name,omitempty"`
	ScheduledFor      time.Time          `json:"scheduled_for"`
	DurationMin       int                `json:"duration_min"`
	EndTime           time.Time          `json:"end_time"`
	Status            string             `json:"status"`
	RescheduleCount   int                `json:"reschedule_count"`
	RescheduledFrom   *uuid.UUID         `json:"rescheduled_from,omitempty"`
	NextAppointmentID *uuid.UUID         `json:"next_appointment_id,omitempty"`
	Reminders         []ReminderResponse `json:"reminders,omitempty"`
	ConsentType       string             `json:"consent_type,omitempty"`
	ConsentVerifiedAt *time.Time         `json:"consent_verified_at,omitempty"`
	TreatmentNotes    string             `json:"treatment_notes,omitempty"`
	ActualDurationMin int                `json:"actual_duration_min,omitempty"`
	Version           uint64             `json:"version"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	resp := AppointmentResponse{
		ID:                a.ID(),
		PatientID:         a.PatientID(),
		ClinicID:          a.ClinicID(),
		ProcedureType:     a.ProcedureType(),
		ProviderID:        a.ProviderID(),
		ProviderName:      a.ProviderName(),
		ScheduledFor:      a.ScheduledFor(),
		DurationMin:       a.DurationMin(),
		EndTime:           a.EndTime(),
		Status:            string(a.Status()),
		RescheduleCount:   a.RescheduleCount(),
		RescheduledFrom:   a.RescheduledFrom(),
		NextAppointmentID: a.NextAppointmentID(),
		ConsentType:       a.ConsentType(),
		ConsentVerifiedAt: a.ConsentVerifiedAt(),
		TreatmentNotes:    a.TreatmentNotes(),
		ActualDurationMin: a.ActualDurationMin(),
		Version:           a.Version(),
		CreatedAt:         a.CreatedAt(),
		UpdatedAt:         a.UpdatedAt(),
	}
	for _, r := range a.Reminders() {
		resp.Reminders = append(resp.Reminders, ReminderResponse{
			Channel:        r.Channel,
			SentAt:         r.SentAt,
			DeliveryStatus: r.DeliveryStatus,
		})
	}
	return resp
}
