package casefile

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinic-backend/internal/eventsourcing"
)

func mustOpen(t *testing.T, totalCents int64) *Case {
	t.Helper()
	c, err := Open(OpenParams{
		ID:              uuid.New(),
		ClinicID:        uuid.New(),
		LeadID:          uuid.New(),
		TreatmentPlanID: uuid.New(),
		CaseNumber:      "CASE-2026-000123",
		TotalCents:      totalCents,
		Currency:        "EUR",
		CreatedBy:       "test",
	})
	if err != nil {
		t.Fatalf("open case: %v", err)
	}
	return c
}

func mustExec(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("command failed: %v", err)
	}
}

func TestPaymentLifecycle(t *testing.T) {
	c := mustOpen(t, 15000_00)

	if c.Status() != StatusPending {
		t.Fatalf("status = %s, want %s", c.Status(), StatusPending)
	}
	if c.PaymentStatus() != PaymentUnpaid {
		t.Fatalf("payment status = %s, want %s", c.PaymentStatus(), PaymentUnpaid)
	}
	if c.OutstandingCents() != 15000_00 {
		t.Fatalf("outstanding = %d, want %d", c.OutstandingCents(), 15000_00)
	}

	mustExec(t, c.Start("clinician", ""))
	if c.Status() != StatusInProgress {
		t.Fatalf("status = %s, want %s", c.Status(), StatusInProgress)
	}

	mustExec(t, c.RecordPayment(5000_00, "card", "pay-1", "billing", ""))
	if c.PaymentStatus() != PaymentPartial {
		t.Fatalf("after partial payment: payment status = %s, want %s", c.PaymentStatus(), PaymentPartial)
	}
	if c.OutstandingCents() != 10000_00 {
		t.Fatalf("outstanding = %d, want %d", c.OutstandingCents(), 10000_00)
	}

	mustExec(t, c.RecordPayment(10000_00, "transfer", "pay-2", "billing", ""))
	if c.PaymentStatus() != PaymentPaid {
		t.Fatalf("after full payment: payment status = %s, want %s", c.PaymentStatus(), PaymentPaid)
	}
	if c.OutstandingCents() != 0 {
		t.Fatalf("outstanding = %d, want 0", c.OutstandingCents())
	}

	mustExec(t, c.Complete("clinician", ""))
	if c.Status() != StatusCompleted {
		t.Fatalf("status = %s, want %s", c.Status(), StatusCompleted)
	}

	// fully paid case takes no further payments
	err := c.RecordPayment(1, "card", "pay-3", "billing", "")
	if !errors.Is(err, eventsourcing.ErrCannotAcceptPayment) {
		t.Fatalf("payment on paid case: err = %v, want ErrCannotAcceptPayment", err)
	}
}

func TestRefunds(t *testing.T) {
	t.Run("refund exceeding paid is rejected", func(t *testing.T) {
		c := mustOpen(t, 1000_00)
		mustExec(t, c.RecordPayment(300_00, "card", "", "billing", ""))

		err := c.RecordRefund(400_00, "overcharge", "billing", "")
		if !errors.Is(err, eventsourcing.ErrInsufficientPaid) {
			t.Fatalf("err = %v, want ErrInsufficientPaid", err)
		}
		if c.PaidCents() != 300_00 {
			t.Fatalf("paid = %d, want unchanged %d", c.PaidCents(), 300_00)
		}
	})

	t.Run("refund re-derives payment status", func(t *testing.T) {
		c := mustOpen(t, 1000_00)
		mustExec(t, c.RecordPayment(1000_00, "card", "", "billing", ""))
		if c.PaymentStatus() != PaymentPaid {
			t.Fatalf("payment status = %s, want %s", c.PaymentStatus(), PaymentPaid)
		}

		mustExec(t, c.RecordRefund(400_00, "adjustment", "billing", ""))
		if c.PaymentStatus() != PaymentPartial {
			t.Fatalf("payment status = %s, want %s", c.PaymentStatus(), PaymentPartial)
		}

		mustExec(t, c.RecordRefund(600_00, "cancelled treatment", "billing", ""))
		if c.PaymentStatus() != PaymentUnpaid {
			t.Fatalf("payment status = %s, want %s", c.PaymentStatus(), PaymentUnpaid)
		}
		if c.OutstandingCents() != 1000_00 {
			t.Fatalf("outstanding = %d, want %d", c.OutstandingCents(), 1000_00)
		}
	})

	t.Run("refund is allowed on a cancelled case", func(t *testing.T) {
		c := mustOpen(t, 1000_00)
		mustExec(t, c.RecordPayment(500_00, "card", "", "billing", ""))
		mustExec(t, c.Cancel("patient withdrew", "staff", ""))

		if err := c.RecordPayment(100_00, "card", "", "billing", ""); !errors.Is(err, eventsourcing.ErrCannotAcceptPayment) {
			t.Fatalf("payment on cancelled case: err = %v, want ErrCannotAcceptPayment", err)
		}
		mustExec(t, c.RecordRefund(500_00, "cancellation refund", "billing", ""))
		if c.PaidCents() != 0 {
			t.Fatalf("paid = %d, want 0", c.PaidCents())
		}
	})
}

func TestCancelRecordsRefundOwed(t *testing.T) {
	c := mustOpen(t, 1000_00)
	mustExec(t, c.RecordPayment(250_00, "card", "", "billing", ""))
	mustExec(t, c.Cancel("moved away", "staff", ""))

	events := c.UncommittedEvents()
	last := events[len(events)-1]
	if last.EventType != EventCancelled {
		t.Fatalf("last event = %s, want %s", last.EventType, EventCancelled)
	}
	var p CancelledPayload
	if err := last.UnmarshalPayload(&p); err != nil {
		t.Fatalf("unmarshal cancelled payload: %v", err)
	}
	if !p.RefundOwed {
		t.Fatal("RefundOwed = false, want true for a case with payments")
	}
}

func TestIllegalTransitionsLeaveStateUntouched(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T) *Case
		cmd   func(c *Case) error
	}{
		{
			name:  "complete from pending",
			setup: func(t *testing.T) *Case { return mustOpen(t, 100_00) },
			cmd:   func(c *Case) error { return c.Complete("x", "") },
		},
		{
			name:  "resume from pending",
			setup: func(t *testing.T) *Case { return mustOpen(t, 100_00) },
			cmd:   func(c *Case) error { return c.Resume("x", "") },
		},
		{
			name: "start from completed",
			setup: func(t *testing.T) *Case {
				c := mustOpen(t, 100_00)
				mustExec(t, c.Start("x", ""))
				mustExec(t, c.Complete("x", ""))
				return c
			},
			cmd: func(c *Case) error { return c.Start("x", "") },
		},
		{
			name: "cancel from cancelled",
			setup: func(t *testing.T) *Case {
				c := mustOpen(t, 100_00)
				mustExec(t, c.Cancel("r", "x", ""))
				return c
			},
			cmd: func(c *Case) error { return c.Cancel("again", "x", "") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.setup(t)
			statusBefore := c.Status()
			versionBefore := c.Version()
			pendingBefore := len(c.UncommittedEvents())

			err := tt.cmd(c)
			if err == nil {
				t.Fatal("expected rejection, got nil")
			}
			var de *eventsourcing.DomainError
			if !errors.As(err, &de) {
				t.Fatalf("err = %v, want a DomainError", err)
			}
			if c.Status() != statusBefore {
				t.Fatalf("status changed to %s after rejected command", c.Status())
			}
			if c.Version() != versionBefore {
				t.Fatalf("version changed to %d after rejected command", c.Version())
			}
			if len(c.UncommittedEvents()) != pendingBefore {
				t.Fatal("rejected command appended an event")
			}
		})
	}
}

func TestHoldResume(t *testing.T) {
	c := mustOpen(t, 100_00)
	mustExec(t, c.Start("x", ""))
	mustExec(t, c.PutOnHold("awaiting lab work", "x", ""))
	if c.Status() != StatusOnHold {
		t.Fatalf("status = %s, want %s", c.Status(), StatusOnHold)
	}

	if err := c.Resume("x", ""); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if c.Status() != StatusInProgress {
		t.Fatalf("status = %s, want %s", c.Status(), StatusInProgress)
	}

	// resume is only legal from on_hold
	if err := c.Resume("x", ""); !errors.Is(err, eventsourcing.ErrNotOnHold) {
		t.Fatalf("resume from in_progress: err = %v, want ErrNotOnHold", err)
	}
}

func TestSoftDelete(t *testing.T) {
	c := mustOpen(t, 100_00)
	mustExec(t, c.SoftDelete("admin", ""))
	if !c.IsDeleted() {
		t.Fatal("case not marked deleted")
	}
	versionAfterDelete := c.Version()

	// idempotent: no second tombstone
	mustExec(t, c.SoftDelete("admin", ""))
	if c.Version() != versionAfterDelete {
		t.Fatalf("second delete advanced version to %d", c.Version())
	}

	if err := c.Start("x", ""); !errors.Is(err, eventsourcing.ErrDeleted) {
		t.Fatalf("start on deleted case: err = %v, want ErrDeleted", err)
	}
	if err := c.Cancel("r", "x", ""); !errors.Is(err, eventsourcing.ErrDeleted) {
		t.Fatalf("cancel on deleted case: err = %v, want ErrDeleted", err)
	}
	if err := c.RecordPayment(1_00, "card", "", "x", ""); !errors.Is(err, eventsourcing.ErrCannotAcceptPayment) {
		t.Fatalf("payment on deleted case: err = %v, want ErrCannotAcceptPayment", err)
	}
}

// buildSampleHistory runs a representative command sequence and returns the
// live aggregate together with its full event list.
func buildSampleHistory(t *testing.T) (*Case, []eventsourcing.Envelope) {
	t.Helper()
	c := mustOpen(t, 2000_00)
	mustExec(t, c.Start("clinician", "corr-1"))
	mustExec(t, c.RecordPayment(500_00, "card", "pay-1", "billing", "corr-2"))
	mustExec(t, c.PutOnHold("patient travelling", "staff", "corr-3"))
	mustExec(t, c.Resume("staff", "corr-4"))
	mustExec(t, c.AttachFinancing("medifin", "fin-42", time.Now().UTC(), "billing", "corr-5"))
	mustExec(t, c.RecordPayment(1500_00, "transfer", "pay-2", "billing", "corr-6"))
	mustExec(t, c.Complete("clinician", "corr-7"))
	return c, c.UncommittedEvents()
}

func assertSameCaseState(t *testing.T, got, want *Case) {
	t.Helper()
	if got.Version() != want.Version() {
		t.Fatalf("version = %d, want %d", got.Version(), want.Version())
	}
	if got.Status() != want.Status() {
		t.Fatalf("status = %s, want %s", got.Status(), want.Status())
	}
	if got.PaidCents() != want.PaidCents() {
		t.Fatalf("paid = %d, want %d", got.PaidCents(), want.PaidCents())
	}
	if got.PaymentStatus() != want.PaymentStatus() {
		t.Fatalf("payment status = %s, want %s", got.PaymentStatus(), want.PaymentStatus())
	}
	if got.TotalCents() != want.TotalCents() {
		t.Fatalf("total = %d, want %d", got.TotalCents(), want.TotalCents())
	}
	gf, wf := got.Financing(), want.Financing()
	if (gf == nil) != (wf == nil) {
		t.Fatalf("financing presence mismatch: got %v, want %v", gf, wf)
	}
	if gf != nil && gf.Reference != wf.Reference {
		t.Fatalf("financing reference = %s, want %s", gf.Reference, wf.Reference)
	}
}

func TestReplayDeterminism(t *testing.T) {
	live, events := buildSampleHistory(t)

	replayed, err := FromHistory(live.ID(), events)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	assertSameCaseState(t, replayed, live)
	if len(replayed.UncommittedEvents()) != 0 {
		t.Fatal("replay produced uncommitted events")
	}
}

func TestSnapshotEquivalence(t *testing.T) {
	live, events := buildSampleHistory(t)

	// a snapshot at every prefix followed by the remaining delta must land
	// on the same state as full replay
	for k := 1; k <= len(events); k++ {
		prefix, err := FromHistory(live.ID(), events[:k])
		if err != nil {
			t.Fatalf("prefix replay at %d: %v", k, err)
		}
		snap, err := CreateSnapshot(prefix)
		if err != nil {
			t.Fatalf("snapshot at %d: %v", k, err)
		}
		restored, err := FromSnapshot(snap, events[k:])
		if err != nil {
			t.Fatalf("restore at %d: %v", k, err)
		}
		assertSameCaseState(t, restored, live)
	}
}

func TestFromSnapshotRejectsWrongType(t *testing.T) {
	live, _ := buildSampleHistory(t)
	snap, err := CreateSnapshot(live)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	snap.AggregateType = "Appointment"
	if _, err := FromSnapshot(snap, nil); err == nil {
		t.Fatal("expected aggregate type mismatch error")
	}
}

func TestDerivePaymentStatus(t *testing.T) {
	tests := []struct {
		total, paid int64
		want        PaymentStatus
	}{
		{1000, 0, PaymentUnpaid},
		{1000, -50, PaymentUnpaid},
		{1000, 500, PaymentPartial},
		{1000, 1000, PaymentPaid},
		{1000, 1500, PaymentOverpaid},
		{0, 0, PaymentUnpaid},
	}
	for _, tt := range tests {
		if got := DerivePaymentStatus(tt.total, tt.paid); got != tt.want {
			t.Errorf("DerivePaymentStatus(%d, %d) = %s, want %s", tt.total, tt.paid, got, tt.want)
		}
	}
}
