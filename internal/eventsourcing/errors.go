package eventsourcing

import (
	"fmt"

	"github.com/google/uuid"
)

// ErrorKind tags a domain validation failure. Callers branch on the kind
// with errors.Is against the sentinel values below instead of a class
// hierarchy.
type ErrorKind string

const (
	KindInvalidTransition   ErrorKind = "invalid_status_transition"
	KindDeleted             ErrorKind = "deleted"
	KindCancelled           ErrorKind = "cancelled"
	KindCompleted           ErrorKind = "completed"
	KindNotOnHold           ErrorKind = "not_on_hold"
	KindAlreadyConfirmed    ErrorKind = "already_confirmed"
	KindAlreadyCancelled    ErrorKind = "already_cancelled"
	KindTerminalState       ErrorKind = "terminal_state"
	KindMaxReschedules      ErrorKind = "max_reschedules_exceeded"
	KindInsufficientPaid    ErrorKind = "insufficient_paid_amount"
	KindCannotAcceptPayment ErrorKind = "cannot_accept_payment"
)

// Sentinels for errors.Is. Matching is by Kind only.
var (
	ErrInvalidTransition   = &DomainError{Kind: KindInvalidTransition}
	ErrDeleted             = &DomainError{Kind: KindDeleted}
	ErrCancelled           = &DomainError{Kind: KindCancelled}
	ErrCompleted           = &DomainError{Kind: KindCompleted}
	ErrNotOnHold           = &DomainError{Kind: KindNotOnHold}
	ErrAlreadyConfirmed    = &DomainError{Kind: KindAlreadyConfirmed}
	ErrAlreadyCancelled    = &DomainError{Kind: KindAlreadyCancelled}
	ErrTerminalState       = &DomainError{Kind: KindTerminalState}
	ErrMaxReschedules      = &DomainError{Kind: KindMaxReschedules}
	ErrInsufficientPaid    = &DomainError{Kind: KindInsufficientPaid}
	ErrCannotAcceptPayment = &DomainError{Kind: KindCannotAcceptPayment}
)

// DomainError is a flat tagged variant carrying the aggregate id and the
// state relevant to the failure. Fields beyond Kind and AggregateID are
// populated per kind.
type DomainError struct {
	Kind        ErrorKind
	AggregateID uuid.UUID
	From        string
	To          string
	Count       int
	Max         int
	Detail      string
}

func (e *DomainError) Error() string {
	switch e.Kind {
	case KindInvalidTransition:
		return fmt.Sprintf("%s: aggregate %s cannot go from %s to %s", e.Kind, e.AggregateID, e.From, e.To)
	case KindMaxReschedules:
		return fmt.Sprintf("%s: aggregate %s has %d of %d reschedules", e.Kind, e.AggregateID, e.Count, e.Max)
	}
	if e.Detail != "" {
		return fmt.Sprintf("%s: aggregate %s: %s", e.Kind, e.AggregateID, e.Detail)
	}
	return fmt.Sprintf("%s: aggregate %s", e.Kind, e.AggregateID)
}

// Is matches any DomainError of the same kind, so the sentinels above work
// with errors.Is regardless of the instance fields.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && t.Kind == e.Kind
}

// NewTransitionError reports an illegal status transition.
func NewTransitionError(id uuid.UUID, from, to string) *DomainError {
	return &DomainError{Kind: KindInvalidTransition, AggregateID: id, From: from, To: to}
}

// NewStateError reports a failed precondition orthogonal to the transition
// table (deleted, terminal, already confirmed, ...).
func NewStateError(kind ErrorKind, id uuid.UUID, detail string) *DomainError {
	return &DomainError{Kind: kind, AggregateID: id, Detail: detail}
}

// NewLimitError reports an exhausted resource bound.
func NewLimitError(kind ErrorKind, id uuid.UUID, count, max int) *DomainError {
	return &DomainError{Kind: kind, AggregateID: id, Count: count, Max: max}
}
