package casefile

import (
	"time"

	"github.com/google/uuid"
)

// Event types raised by the Case aggregate. Names are namespaced so a
// shared bus can route on prefix.
const (
	EventOpened            = "case.opened"
	EventStarted           = "case.started"
	EventCompleted         = "case.completed"
	EventCancelled         = "case.cancelled"
	EventPutOnHold         = "case.put_on_hold"
	EventResumed           = "case.resumed"
	EventPaymentRecorded   = "case.payment_recorded"
	EventRefundRecorded    = "case.refund_recorded"
	EventFinancingAttached = "case.financing_attached"
	EventDeleted           = "case.deleted"
)

type OpenedPayload struct {
	ClinicID           uuid.UUID  `json:"clinic_id"`
	LeadID             uuid.UUID  `json:"lead_id"`
	TreatmentPlanID    uuid.UUID  `json:"treatment_plan_id"`
	CaseNumber         string     `json:"case_number"`
	TotalCents         int64      `json:"total_cents"`
	Currency           string     `json:"currency"`
	ExpectedCompletion *time.Time `json:"expected_completion,omitempty"`
	CreatedBy          string     `json:"created_by,omitempty"`
}

type StartedPayload struct {
	UpdatedBy string `json:"updated_by,omitempty"`
}

type CompletedPayload struct {
	UpdatedBy string `json:"updated_by,omitempty"`
}

type CancelledPayload struct {
	Reason string `json:"reason,omitempty"`
	// RefundOwed records whether money had been taken when the case was
	// cancelled, so downstream refund handling does not have to re-derive it.
	RefundOwed bool   `json:"refund_owed"`
	UpdatedBy  string `json:"updated_by,omitempty"`
}

type PutOnHoldPayload struct {
	Reason    string `json:"reason,omitempty"`
	UpdatedBy string `json:"updated_by,omitempty"`
}

type ResumedPayload struct {
	UpdatedBy string `json:"updated_by,omitempty"`
}

type PaymentRecordedPayload struct {
	AmountCents int64  `json:"amount_cents"`
	Method      string `json:"method,omitempty"`
	Reference   string `json:"reference,omitempty"`
	// NewPaidCents and NewPaymentStatus are the command's view of the state
	// after this payment. Apply recomputes both from AmountCents; the two
	// derivations must agree.
	NewPaidCents     int64         `json:"new_paid_cents"`
	NewPaymentStatus PaymentStatus `json:"new_payment_status"`
	UpdatedBy        string        `json:"updated_by,omitempty"`
}

type RefundRecordedPayload struct {
	AmountCents      int64         `json:"amount_cents"`
	Reason           string        `json:"reason,omitempty"`
	NewPaidCents     int64         `json:"new_paid_cents"`
	NewPaymentStatus PaymentStatus `json:"new_payment_status"`
	UpdatedBy        string        `json:"updated_by,omitempty"`
}

type FinancingAttachedPayload struct {
	Provider   string    `json:"provider"`
	Reference  string    `json:"reference"`
	ApprovedAt time.Time `json:"approved_at"`
	UpdatedBy  string    `json:"updated_by,omitempty"`
}

type DeletedPayload struct {
	DeletedBy string `json:"deleted_by,omitempty"`
}
