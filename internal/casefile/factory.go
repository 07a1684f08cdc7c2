package casefile

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinic-backend/internal/eventsourcing"
)

// OpenParams carries the immutable identity and the financial frame of a
// new case.
type OpenParams struct {
	ID                 uuid.UUID
	ClinicID           uuid.UUID
	LeadID             uuid.UUID
	TreatmentPlanID    uuid.UUID
	CaseNumber         string
	TotalCents         int64
	Currency           string
	ExpectedCompletion *time.Time
	CreatedBy          string
	CorrelationID      string
}

func newEmpty(id uuid.UUID) *Case {
	c := &Case{}
	c.root = eventsourcing.NewRoot(id, AggregateType, c.apply)
	return c
}

// Open creates a pending case with outstanding == total.
func Open(p OpenParams) (*Case, error) {
	c := newEmpty(p.ID)
	err := c.root.Raise(EventOpened, OpenedPayload{
		ClinicID:           p.ClinicID,
		LeadID:             p.LeadID,
		TreatmentPlanID:    p.TreatmentPlanID,
		CaseNumber:         p.CaseNumber,
		TotalCents:         p.TotalCents,
		Currency:           p.Currency,
		ExpectedCompletion: p.ExpectedCompletion,
		CreatedBy:          p.CreatedBy,
	}, p.CorrelationID)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// FromHistory rebuilds a case by full replay.
func FromHistory(id uuid.UUID, events []eventsourcing.Envelope) (*Case, error) {
	c := newEmpty(id)
	if err := c.root.LoadFromHistory(events); err != nil {
		return nil, err
	}
	return c, nil
}

// caseState is the serialized snapshot shape. Version and aggregate
// identity live on the snapshot record itself.
type caseState struct {
	ClinicID           uuid.UUID     `json:"clinic_id"`
	LeadID             uuid.UUID     `json:"lead_id"`
	TreatmentPlanID    uuid.UUID     `json:"treatment_plan_id"`
	CaseNumber         string        `json:"case_number"`
	Status             Status        `json:"status"`
	TotalCents         int64         `json:"total_cents"`
	PaidCents          int64         `json:"paid_cents"`
	Currency           string        `json:"currency"`
	PaymentStatus      PaymentStatus `json:"payment_status"`
	Financing          *Financing    `json:"financing,omitempty"`
	StartedAt          *time.Time    `json:"started_at,omitempty"`
	CompletedAt        *time.Time    `json:"completed_at,omitempty"`
	ExpectedCompletion *time.Time    `json:"expected_completion,omitempty"`
	CreatedBy          string        `json:"created_by,omitempty"`
	UpdatedBy          string        `json:"updated_by,omitempty"`
	DeletedAt          *time.Time    `json:"deleted_at,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// CreateSnapshot captures current state at the current version. The
// uncommitted buffer is untouched.
func CreateSnapshot(c *Case) (eventsourcing.Snapshot, error) {
	state := caseState{
		ClinicID:           c.clinicID,
		LeadID:             c.leadID,
		TreatmentPlanID:    c.treatmentPlanID,
		CaseNumber:         c.caseNumber,
		Status:             c.status,
		TotalCents:         c.totalCents,
		PaidCents:          c.paidCents,
		Currency:           c.currency,
		PaymentStatus:      c.paymentStatus,
		Financing:          c.Financing(),
		StartedAt:          c.startedAt,
		CompletedAt:        c.completedAt,
		ExpectedCompletion: c.expectedCompletion,
		CreatedBy:          c.createdBy,
		UpdatedBy:          c.updatedBy,
		DeletedAt:          c.deletedAt,
		CreatedAt:          c.root.CreatedAt(),
		UpdatedAt:          c.root.UpdatedAt(),
	}
	return eventsourcing.NewSnapshot(&c.root, state)
}

// FromSnapshot seeds a case from a snapshot and replays only the events
// newer than the snapshot version.
func FromSnapshot(snap eventsourcing.Snapshot, events []eventsourcing.Envelope) (*Case, error) {
	if snap.AggregateType != AggregateType {
		return nil, fmt.Errorf("snapshot is for aggregate type %s, want %s", snap.AggregateType, AggregateType)
	}
	if err := snap.ValidateDelta(events); err != nil {
		return nil, err
	}

	var state caseState
	if err := snap.UnmarshalState(&state); err != nil {
		return nil, fmt.Errorf("decode case snapshot %s: %w", snap.AggregateID, err)
	}

	c := newEmpty(snap.AggregateID)
	c.clinicID = state.ClinicID
	c.leadID = state.LeadID
	c.treatmentPlanID = state.TreatmentPlanID
	c.caseNumber = state.CaseNumber
	c.status = state.Status
	c.totalCents = state.TotalCents
	c.paidCents = state.PaidCents
	c.currency = state.Currency
	c.paymentStatus = state.PaymentStatus
	c.financing = state.Financing
	c.startedAt = state.StartedAt
	c.completedAt = state.CompletedAt
	c.expectedCompletion = state.ExpectedCompletion
	c.createdBy = state.CreatedBy
	c.updatedBy = state.UpdatedBy
	c.deletedAt = state.DeletedAt
	c.root.Restore(snap.Version, state.CreatedAt, state.UpdatedAt)

	if err := c.root.LoadFromHistory(events); err != nil {
		return nil, err
	}
	return c, nil
}
