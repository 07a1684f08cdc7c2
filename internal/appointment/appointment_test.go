package appointment

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinic-backend/internal/eventsourcing"
)

func mustRequest(t *testing.T) *Appointment {
	t.Helper()
	a, err := Request(RequestParams{
		ID:            uuid.New(),
		PatientID:     uuid.New(),
		ClinicID:      uuid.New(),
		ProcedureType: "root_canal",
		ScheduledFor:  time.Date(2026, 9, 14, 10, 0, 0, 0, time.UTC),
		DurationMin:   60,
		RequestedBy:   "test",
	})
	if err != nil {
		t.Fatalf("request appointment: %v", err)
	}
	return a
}

func mustExec(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("command failed: %v", err)
	}
}

func TestVisitLifecycle(t *testing.T) {
	a := mustRequest(t)
	if a.Status() != StatusRequested {
		t.Fatalf("status = %s, want %s", a.Status(), StatusRequested)
	}

	mustExec(t, a.Confirm("reception", ""))
	mustExec(t, a.CheckIn("reception", ""))
	mustExec(t, a.Start("dr-adams", ""))
	mustExec(t, a.Complete("filled two canals", 55, "dr-adams", ""))

	if a.Status() != StatusCompleted {
		t.Fatalf("status = %s, want %s", a.Status(), StatusCompleted)
	}
	if a.TreatmentNotes() != "filled two canals" {
		t.Fatalf("treatment notes = %q", a.TreatmentNotes())
	}
	if a.ActualDurationMin() != 55 {
		t.Fatalf("actual duration = %d, want 55", a.ActualDurationMin())
	}
	if !a.IsTerminal() {
		t.Fatal("completed visit should be terminal")
	}
}

func TestEndTimeDerived(t *testing.T) {
	a := mustRequest(t)
	want := a.ScheduledFor().Add(60 * time.Minute)
	if !a.EndTime().Equal(want) {
		t.Fatalf("end time = %s, want %s", a.EndTime(), want)
	}
}

func TestConfirmTwice(t *testing.T) {
	a := mustRequest(t)
	mustExec(t, a.Confirm("reception", ""))

	err := a.Confirm("reception", "")
	if !errors.Is(err, eventsourcing.ErrAlreadyConfirmed) {
		t.Fatalf("err = %v, want ErrAlreadyConfirmed", err)
	}
}

func TestCancelRules(t *testing.T) {
	t.Run("cancellable until treatment starts", func(t *testing.T) {
		a := mustRequest(t)
		mustExec(t, a.Confirm("reception", ""))
		mustExec(t, a.CheckIn("reception", ""))
		if !a.CanCancel() {
			t.Fatal("checked-in visit should be cancellable")
		}
		mustExec(t, a.Cancel("patient felt unwell", "reception", ""))
		if a.Status() != StatusCancelled {
			t.Fatalf("status = %s, want %s", a.Status(), StatusCancelled)
		}
	})

	t.Run("not cancellable once in progress", func(t *testing.T) {
		a := mustRequest(t)
		mustExec(t, a.Confirm("reception", ""))
		mustExec(t, a.CheckIn("reception", ""))
		mustExec(t, a.Start("dr-adams", ""))

		if a.CanCancel() {
			t.Fatal("in-progress visit should not be cancellable")
		}
		err := a.Cancel("too late", "reception", "")
		if !errors.Is(err, eventsourcing.ErrInvalidTransition) {
			t.Fatalf("err = %v, want ErrInvalidTransition", err)
		}
		if a.Status() != StatusInProgress {
			t.Fatalf("status changed to %s after rejected cancel", a.Status())
		}
	})

	t.Run("cancel twice", func(t *testing.T) {
		a := mustRequest(t)
		mustExec(t, a.Cancel("duplicate booking", "reception", ""))
		err := a.Cancel("again", "reception", "")
		if !errors.Is(err, eventsourcing.ErrAlreadyCancelled) {
			t.Fatalf("err = %v, want ErrAlreadyCancelled", err)
		}
	})
}

func TestNoShowOnlyFromConfirmed(t *testing.T) {
	t.Run("from confirmed", func(t *testing.T) {
		a := mustRequest(t)
		mustExec(t, a.Confirm("reception", ""))
		mustExec(t, a.MarkNoShow("reception", ""))
		if a.Status() != StatusNoShow {
			t.Fatalf("status = %s, want %s", a.Status(), StatusNoShow)
		}
	})

	t.Run("from requested", func(t *testing.T) {
		a := mustRequest(t)
		err := a.MarkNoShow("reception", "")
		if !errors.Is(err, eventsourcing.ErrInvalidTransition) {
			t.Fatalf("err = %v, want ErrInvalidTransition", err)
		}
	})
}

func TestRescheduleChainBound(t *testing.T) {
	a := mustRequest(t)
	successor := uuid.New()

	mustExec(t, a.Reschedule(a.ScheduledFor().Add(24*time.Hour), "patient", successor, ""))
	if a.Status() != StatusRescheduled {
		t.Fatalf("status = %s, want %s", a.Status(), StatusRescheduled)
	}
	if a.RescheduleCount() != 1 {
		t.Fatalf("reschedule count = %d, want 1", a.RescheduleCount())
	}
	if a.NextAppointmentID() == nil || *a.NextAppointmentID() != successor {
		t.Fatalf("next appointment = %v, want %s", a.NextAppointmentID(), successor)
	}

	// successors inherit the chain count; the third descendant is the last
	// that may still be pushed back
	oldID := a.ID()
	b, err := Request(RequestParams{
		ID:               successor,
		PatientID:        a.PatientID(),
		ClinicID:         a.ClinicID(),
		ProcedureType:    a.ProcedureType(),
		ScheduledFor:     a.ScheduledFor().Add(24 * time.Hour),
		DurationMin:      a.DurationMin(),
		RescheduledFrom:  &oldID,
		PriorReschedules: a.RescheduleCount(),
	})
	if err != nil {
		t.Fatalf("request successor: %v", err)
	}
	if b.RescheduleCount() != 1 {
		t.Fatalf("successor count = %d, want 1", b.RescheduleCount())
	}
	if b.RescheduledFrom() == nil || *b.RescheduledFrom() != oldID {
		t.Fatalf("successor rescheduled_from = %v, want %s", b.RescheduledFrom(), oldID)
	}

	mustExec(t, b.Reschedule(b.ScheduledFor().Add(24*time.Hour), "patient", uuid.New(), ""))

	c, err := Request(RequestParams{
		ID:               uuid.New(),
		PatientID:        b.PatientID(),
		ClinicID:         b.ClinicID(),
		ProcedureType:    b.ProcedureType(),
		ScheduledFor:     b.ScheduledFor().Add(24 * time.Hour),
		DurationMin:      b.DurationMin(),
		PriorReschedules: b.RescheduleCount(),
	})
	if err != nil {
		t.Fatalf("request second successor: %v", err)
	}
	mustExec(t, c.Reschedule(c.ScheduledFor().Add(24*time.Hour), "patient", uuid.New(), ""))
	if c.RescheduleCount() != MaxReschedules {
		t.Fatalf("chain count = %d, want %d", c.RescheduleCount(), MaxReschedules)
	}

	d, err := Request(RequestParams{
		ID:               uuid.New(),
		PatientID:        c.PatientID(),
		ClinicID:         c.ClinicID(),
		ProcedureType:    c.ProcedureType(),
		ScheduledFor:     c.ScheduledFor().Add(24 * time.Hour),
		DurationMin:      c.DurationMin(),
		PriorReschedules: c.RescheduleCount(),
	})
	if err != nil {
		t.Fatalf("request third successor: %v", err)
	}
	err = d.Reschedule(d.ScheduledFor().Add(24*time.Hour), "patient", uuid.New(), "")
	if !errors.Is(err, eventsourcing.ErrMaxReschedules) {
		t.Fatalf("fourth reschedule: err = %v, want ErrMaxReschedules", err)
	}
	if d.Status() != StatusRequested {
		t.Fatalf("status changed to %s after rejected reschedule", d.Status())
	}
}

func TestReminderLogOrdering(t *testing.T) {
	a := mustRequest(t)
	base := time.Date(2026, 9, 13, 8, 0, 0, 0, time.UTC)

	mustExec(t, a.RecordReminderSent("email", base, "sent", ""))
	mustExec(t, a.RecordReminderSent("sms", base.Add(time.Hour), "delivered", ""))

	reminders := a.Reminders()
	if len(reminders) != 2 {
		t.Fatalf("reminder count = %d, want 2", len(reminders))
	}
	if reminders[0].Channel != "email" || reminders[1].Channel != "sms" {
		t.Fatalf("reminder order = [%s, %s], want [email, sms]", reminders[0].Channel, reminders[1].Channel)
	}

	// annotations are refused once the visit is terminal
	mustExec(t, a.Cancel("r", "reception", ""))
	err := a.RecordReminderSent("email", base.Add(2*time.Hour), "sent", "")
	if !errors.Is(err, eventsourcing.ErrTerminalState) {
		t.Fatalf("reminder on cancelled visit: err = %v, want ErrTerminalState", err)
	}
}

func TestAssignProvider(t *testing.T) {
	a := mustRequest(t)
	providerID := uuid.New()
	mustExec(t, a.AssignProvider(providerID, "Dr. Adams", "scheduler", ""))
	if a.ProviderID() == nil || *a.ProviderID() != providerID {
		t.Fatalf("provider = %v, want %s", a.ProviderID(), providerID)
	}
	if a.ProviderName() != "Dr. Adams" {
		t.Fatalf("provider name = %q", a.ProviderName())
	}
}

func TestConsentVerification(t *testing.T) {
	a := mustRequest(t)
	mustExec(t, a.RecordConsentVerification("anesthesia", "dr-adams", ""))
	if a.ConsentType() != "anesthesia" {
		t.Fatalf("consent type = %q", a.ConsentType())
	}
	if a.ConsentVerifiedAt() == nil {
		t.Fatal("consent timestamp not set")
	}
}

func buildSampleHistory(t *testing.T) (*Appointment, []eventsourcing.Envelope) {
	t.Helper()
	a := mustRequest(t)
	mustExec(t, a.AssignProvider(uuid.New(), "Dr. Adams", "scheduler", "corr-1"))
	mustExec(t, a.Confirm("reception", "corr-2"))
	mustExec(t, a.RecordReminderSent("email", time.Date(2026, 9, 13, 8, 0, 0, 0, time.UTC), "sent", "corr-3"))
	mustExec(t, a.RecordConsentVerification("treatment", "reception", "corr-4"))
	mustExec(t, a.CheckIn("reception", "corr-5"))
	mustExec(t, a.Start("dr-adams", "corr-6"))
	mustExec(t, a.Complete("uneventful", 45, "dr-adams", "corr-7"))
	return a, a.UncommittedEvents()
}

func assertSameAppointmentState(t *testing.T, got, want *Appointment) {
	t.Helper()
	if got.Version() != want.Version() {
		t.Fatalf("version = %d, want %d", got.Version(), want.Version())
	}
	if got.Status() != want.Status() {
		t.Fatalf("status = %s, want %s", got.Status(), want.Status())
	}
	if got.RescheduleCount() != want.RescheduleCount() {
		t.Fatalf("reschedule count = %d, want %d", got.RescheduleCount(), want.RescheduleCount())
	}
	if len(got.Reminders()) != len(want.Reminders()) {
		t.Fatalf("reminder count = %d, want %d", len(got.Reminders()), len(want.Reminders()))
	}
	if got.ConsentType() != want.ConsentType() {
		t.Fatalf("consent type = %q, want %q", got.ConsentType(), want.ConsentType())
	}
	if got.TreatmentNotes() != want.TreatmentNotes() {
		t.Fatalf("treatment notes = %q, want %q", got.TreatmentNotes(), want.TreatmentNotes())
	}
	if got.ProviderName() != want.ProviderName() {
		t.Fatalf("provider name = %q, want %q", got.ProviderName(), want.ProviderName())
	}
}

func TestReplayDeterminism(t *testing.T) {
	live, events := buildSampleHistory(t)

	replayed, err := FromHistory(live.ID(), events)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	assertSameAppointmentState(t, replayed, live)
}

func TestSnapshotEquivalence(t *testing.T) {
	live, events := buildSampleHistory(t)

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
		assertSameAppointmentState(t, restored, live)
	}
}
