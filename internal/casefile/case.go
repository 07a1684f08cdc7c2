// Package casefile implements the event-sourced Case aggregate covering the
// treatment-to-payment lifecycle of a clinic case.
package casefile

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinic-backend/internal/eventsourcing"
)

// AggregateType identifies Case streams in the shared event store.
const AggregateType eventsourcing.AggregateType = "Case"

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusOnHold     Status = "on_hold"
)

// PaymentStatus is derived from (total, paid); it is never assigned
// directly by a command.
type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPartial  PaymentStatus = "partial"
	PaymentPaid     PaymentStatus = "paid"
	PaymentOverpaid PaymentStatus = "overpaid"
	// PaymentRefunded exists for reporting surfaces; the derivation below
	// never yields it.
	PaymentRefunded PaymentStatus = "refunded"
)

// transitions is the legal status adjacency for cases. Soft deletion is a
// tombstone orthogonal to this table.
var transitions = eventsourcing.Table[Status]{
	StatusPending:    {StatusInProgress, StatusOnHold, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusOnHold, StatusCancelled},
	StatusOnHold:     {StatusInProgress, StatusCancelled},
	StatusCompleted:  {},
	StatusCancelled:  {},
}

// DerivePaymentStatus is the single derivation used both when a command
// stamps its payload and when apply folds the event back into state.
func DerivePaymentStatus(totalCents, paidCents int64) PaymentStatus {
	switch {
	case paidCents <= 0:
		return PaymentUnpaid
	case paidCents < totalCents:
		return PaymentPartial
	case paidCents == totalCents:
		return PaymentPaid
	default:
		return PaymentOverpaid
	}
}

// Financing is an optional attachment describing third-party financing of
// the case balance.
type Financing struct {
	Provider   string    `json:"provider"`
	Reference  string    `json:"reference"`
	ApprovedAt time.Time `json:"approved_at"`
}

// Case is the aggregate root for a treatment/payment case. All state below
// the Root is mutated exclusively inside apply.
type Case struct {
	root eventsourcing.Root

	clinicID        uuid.UUID
	leadID          uuid.UUID
	treatmentPlanID uuid.UUID
	caseNumber      string

	status        Status
	totalCents    int64
	paidCents     int64
	currency      string
	paymentStatus PaymentStatus
	financing     *Financing

	startedAt          *time.Time
	completedAt        *time.Time
	expectedCompletion *time.Time

	createdBy string
	updatedBy string
	deletedAt *time.Time
}

func (c *Case) ID() uuid.UUID            { return c.root.ID() }
func (c *Case) Version() uint64          { return c.root.Version() }
func (c *Case) CreatedAt() time.Time     { return c.root.CreatedAt() }
func (c *Case) UpdatedAt() time.Time     { return c.root.UpdatedAt() }
func (c *Case) ClinicID() uuid.UUID      { return c.clinicID }
func (c *Case) LeadID() uuid.UUID        { return c.leadID }
func (c *Case) TreatmentPlanID() uuid.UUID { return c.treatmentPlanID }
func (c *Case) CaseNumber() string       { return c.caseNumber }
func (c *Case) Status() Status           { return c.status }
func (c *Case) TotalCents() int64        { return c.totalCents }
func (c *Case) PaidCents() int64         { return c.paidCents }
func (c *Case) Currency() string         { return c.currency }
func (c *Case) PaymentStatus() PaymentStatus { return c.paymentStatus }
func (c *Case) StartedAt() *time.Time    { return c.startedAt }
func (c *Case) CompletedAt() *time.Time  { return c.completedAt }
func (c *Case) ExpectedCompletion() *time.Time { return c.expectedCompletion }
func (c *Case) CreatedBy() string        { return c.createdBy }
func (c *Case) UpdatedBy() string        { return c.updatedBy }
func (c *Case) DeletedAt() *time.Time    { return c.deletedAt }
func (c *Case) IsDeleted() bool          { return c.deletedAt != nil }

// OutstandingCents is always derived, never stored.
func (c *Case) OutstandingCents() int64 { return c.totalCents - c.paidCents }

func (c *Case) Financing() *Financing {
	if c.financing == nil {
		return nil
	}
	f := *c.financing
	return &f
}

func (c *Case) UncommittedEvents() []eventsourcing.Envelope { return c.root.UncommittedEvents() }
func (c *Case) ClearUncommittedEvents()                     { c.root.ClearUncommittedEvents() }

// ensureModifiable is the cross-cutting guard layered on top of the
// transition table: tombstoned and terminal cases reject every
// status-changing command.
func (c *Case) ensureModifiable() error {
	if c.IsDeleted() {
		return eventsourcing.NewStateError(eventsourcing.KindDeleted, c.ID(), "case is deleted")
	}
	switch c.status {
	case StatusCancelled:
		return eventsourcing.NewStateError(eventsourcing.KindCancelled, c.ID(), "case is cancelled")
	case StatusCompleted:
		return eventsourcing.NewStateError(eventsourcing.KindCompleted, c.ID(), "case is completed")
	}
	return nil
}

func (c *Case) guardTransition(to Status) error {
	if !transitions.Can(c.status, to) {
		return eventsourcing.NewTransitionError(c.ID(), string(c.status), string(to))
	}
	return nil
}

// Start moves the case into active treatment.
func (c *Case) Start(updatedBy, correlationID string) error {
	if err := c.ensureModifiable(); err != nil {
		return err
	}
	if err := c.guardTransition(StatusInProgress); err != nil {
		return err
	}
	return c.root.Raise(EventStarted, StartedPayload{UpdatedBy: updatedBy}, correlationID)
}

// Complete marks treatment finished. Payments may still arrive afterwards
// as long as the balance is open.
func (c *Case) Complete(updatedBy, correlationID string) error {
	if err := c.ensureModifiable(); err != nil {
		return err
	}
	if err := c.guardTransition(StatusCompleted); err != nil {
		return err
	}
	return c.root.Raise(EventCompleted, CompletedPayload{UpdatedBy: updatedBy}, correlationID)
}

// Cancel abandons the case. The event records whether a refund is owed so
// billing does not need to replay the stream to find out.
func (c *Case) Cancel(reason, updatedBy, correlationID string) error {
	if c.IsDeleted() {
		return eventsourcing.NewStateError(eventsourcing.KindDeleted, c.ID(), "case is deleted")
	}
	if err := c.guardTransition(StatusCancelled); err != nil {
		return err
	}
	return c.root.Raise(EventCancelled, CancelledPayload{
		Reason:     reason,
		RefundOwed: c.paidCents > 0,
		UpdatedBy:  updatedBy,
	}, correlationID)
}

// PutOnHold pauses the case without abandoning it.
func (c *Case) PutOnHold(reason, updatedBy, correlationID string) error {
	if err := c.ensureModifiable(); err != nil {
		return err
	}
	if err := c.guardTransition(StatusOnHold); err != nil {
		return err
	}
	return c.root.Raise(EventPutOnHold, PutOnHoldPayload{Reason: reason, UpdatedBy: updatedBy}, correlationID)
}

// Resume takes a held case back into progress.
func (c *Case) Resume(updatedBy, correlationID string) error {
	if err := c.ensureModifiable(); err != nil {
		return err
	}
	if c.status != StatusOnHold {
		return eventsourcing.NewStateError(eventsourcing.KindNotOnHold, c.ID(), "case is not on hold")
	}
	return c.root.Raise(EventResumed, ResumedPayload{UpdatedBy: updatedBy}, correlationID)
}

// CanAcceptPayment reports whether RecordPayment would be accepted.
func (c *Case) CanAcceptPayment() bool {
	if c.IsDeleted() || c.status == StatusCancelled {
		return false
	}
	return c.paymentStatus != PaymentPaid && c.paymentStatus != PaymentOverpaid
}

// RecordPayment adds a payment to the case balance. It never changes the
// lifecycle status.
func (c *Case) RecordPayment(amountCents int64, method, reference, updatedBy, correlationID string) error {
	if !c.CanAcceptPayment() {
		return eventsourcing.NewStateError(eventsourcing.KindCannotAcceptPayment, c.ID(), "case cannot accept payment")
	}
	newPaid := c.paidCents + amountCents
	return c.root.Raise(EventPaymentRecorded, PaymentRecordedPayload{
		AmountCents:      amountCents,
		Method:           method,
		Reference:        reference,
		NewPaidCents:     newPaid,
		NewPaymentStatus: DerivePaymentStatus(c.totalCents, newPaid),
		UpdatedBy:        updatedBy,
	}, correlationID)
}

// RecordRefund returns part or all of the paid amount.
func (c *Case) RecordRefund(amountCents int64, reason, updatedBy, correlationID string) error {
	if amountCents > c.paidCents {
		return eventsourcing.NewStateError(eventsourcing.KindInsufficientPaid, c.ID(), "refund exceeds paid amount")
	}
	newPaid := c.paidCents - amountCents
	return c.root.Raise(EventRefundRecorded, RefundRecordedPayload{
		AmountCents:      amountCents,
		Reason:           reason,
		NewPaidCents:     newPaid,
		NewPaymentStatus: DerivePaymentStatus(c.totalCents, newPaid),
		UpdatedBy:        updatedBy,
	}, correlationID)
}

// AttachFinancing records an approved financing arrangement.
func (c *Case) AttachFinancing(provider, reference string, approvedAt time.Time, updatedBy, correlationID string) error {
	if err := c.ensureModifiable(); err != nil {
		return err
	}
	return c.root.Raise(EventFinancingAttached, FinancingAttachedPayload{
		Provider:   provider,
		Reference:  reference,
		ApprovedAt: approvedAt,
		UpdatedBy:  updatedBy,
	}, correlationID)
}

// SoftDelete tombstones the case. Idempotent: deleting a deleted case is a
// no-op and raises nothing.
func (c *Case) SoftDelete(deletedBy, correlationID string) error {
	if c.IsDeleted() {
		return nil
	}
	return c.root.Raise(EventDeleted, DeletedPayload{DeletedBy: deletedBy}, correlationID)
}

// apply folds one envelope into state. It must stay total: unknown event
// types fall through to the default arm so newer schema versions replay
// cleanly on older code.
func (c *Case) apply(env eventsourcing.Envelope) {
	switch env.EventType {
	case EventOpened:
		var p OpenedPayload
		if err := env.UnmarshalPayload(&p); err != nil {
			return
		}
		c.clinicID = p.ClinicID
		c.leadID = p.LeadID
		c.treatmentPlanID = p.TreatmentPlanID
		c.caseNumber = p.CaseNumber
		c.totalCents = p.TotalCents
		c.currency = p.Currency
		c.expectedCompletion = p.ExpectedCompletion
		c.createdBy = p.CreatedBy
		c.updatedBy = p.CreatedBy
		c.status = StatusPending
		c.paidCents = 0
		c.paymentStatus = DerivePaymentStatus(c.totalCents, 0)

	case EventStarted:
		var p StartedPayload
		if err := env.UnmarshalPayload(&p); err != nil {
			return
		}
		ts := env.Timestamp
		c.status = StatusInProgress
		c.startedAt = &ts
		c.updatedBy = p.UpdatedBy

	case EventCompleted:
		var p CompletedPayload
		if err := env.UnmarshalPayload(&p); err != nil {
			return
		}
		ts := env.Timestamp
		c.status = StatusCompleted
		c.completedAt = &ts
		c.updatedBy = p.UpdatedBy

	case EventCancelled:
		var p CancelledPayload
		if err := env.UnmarshalPayload(&p); err != nil {
			return
		}
		c.status = StatusCancelled
		c.updatedBy = p.UpdatedBy

	case EventPutOnHold:
		var p PutOnHoldPayload
		if err := env.UnmarshalPayload(&p); err != nil {
			return
		}
		c.status = StatusOnHold
		c.updatedBy = p.UpdatedBy

	case EventResumed:
		var p ResumedPayload
		if err := env.UnmarshalPayload(&p); err != nil {
			return
		}
		c.status = StatusInProgress
		c.updatedBy = p.UpdatedBy

	case EventPaymentRecorded:
		var p PaymentRecordedPayload
		if err := env.UnmarshalPayload(&p); err != nil {
			return
		}
		c.paidCents += p.AmountCents
		c.paymentStatus = DerivePaymentStatus(c.totalCents, c.paidCents)
		c.updatedBy = p.UpdatedBy

	case EventRefundRecorded:
		var p RefundRecordedPayload
		if err := env.UnmarshalPayload(&p); err != nil {
			return
		}
		c.paidCents -= p.AmountCents
		c.paymentStatus = DerivePaymentStatus(c.totalCents, c.paidCents)
		c.updatedBy = p.UpdatedBy

	case EventFinancingAttached:
		var p FinancingAttachedPayload
		if err := env.UnmarshalPayload(&p); err != nil {
			return
		}
		c.financing = &Financing{Provider: p.Provider, Reference: p.Reference, ApprovedAt: p.ApprovedAt}
		c.updatedBy = p.UpdatedBy

	case EventDeleted:
		var p DeletedPayload
		if err := env.UnmarshalPayload(&p); err != nil {
			return
		}
		ts := env.Timestamp
		c.deletedAt = &ts
		c.updatedBy = p.DeletedBy

	default:
		// forward compatibility: skip, the Root already advanced the version
	}
}
