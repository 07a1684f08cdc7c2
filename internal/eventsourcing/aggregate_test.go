package eventsourcing

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
)

const testAggregate AggregateType = "Counter"

// counter is a minimal aggregate used to exercise the kernel directly.
type counter struct {
	Root
	total   int
	applied []string
}

func newCounter(id uuid.UUID) *counter {
	c := &counter{}
	c.Root = NewRoot(id, testAggregate, c.apply)
	return c
}

type incrementPayload struct {
	By int `json:"by"`
}

func (c *counter) apply(env Envelope) {
	c.applied = append(c.applied, env.EventType)
	switch env.EventType {
	case "counter.incremented":
		var p incrementPayload
		if err := env.UnmarshalPayload(&p); err != nil {
			return
		}
		c.total += p.By
	default:
		// unknown types are skipped on purpose
	}
}

func TestRaiseVersionContinuity(t *testing.T) {
	c := newCounter(uuid.New())

	const n = 5
	for i := 0; i < n; i++ {
		if err := c.Raise("counter.incremented", incrementPayload{By: 1}, ""); err != nil {
			t.Fatalf("raise %d: %v", i, err)
		}
	}

	if got := c.Version(); got != n {
		t.Fatalf("version = %d, want %d", got, n)
	}

	events := c.UncommittedEvents()
	if len(events) != n {
		t.Fatalf("uncommitted = %d events, want %d", len(events), n)
	}
	for i, env := range events {
		if env.Version != uint64(i+1) {
			t.Errorf("event %d has version %d, want %d", i, env.Version, i+1)
		}
		if env.AggregateID != c.ID() || env.AggregateType != testAggregate {
			t.Errorf("event %d carries wrong aggregate identity", i)
		}
	}

	if c.total != n {
		t.Fatalf("total = %d, want %d", c.total, n)
	}
}

func TestClearUncommittedEvents(t *testing.T) {
	c := newCounter(uuid.New())
	if err := c.Raise("counter.incremented", incrementPayload{By: 2}, ""); err != nil {
		t.Fatal(err)
	}

	c.ClearUncommittedEvents()
	if len(c.UncommittedEvents()) != 0 {
		t.Fatal("buffer not empty after clear")
	}
	// clearing drops the buffer, not the state
	if c.total != 2 || c.Version() != 1 {
		t.Fatalf("state lost on clear: total=%d version=%d", c.total, c.Version())
	}
}

func TestLoadFromHistoryDeterminism(t *testing.T) {
	id := uuid.New()
	src := newCounter(id)
	for i := 1; i <= 7; i++ {
		if err := src.Raise("counter.incremented", incrementPayload{By: i}, ""); err != nil {
			t.Fatal(err)
		}
	}
	history := src.UncommittedEvents()

	a := newCounter(id)
	b := newCounter(id)
	if err := a.LoadFromHistory(history); err != nil {
		t.Fatal(err)
	}
	if err := b.LoadFromHistory(history); err != nil {
		t.Fatal(err)
	}

	if a.total != b.total || a.Version() != b.Version() || !a.UpdatedAt().Equal(b.UpdatedAt()) {
		t.Fatalf("replay diverged: a=(%d,%d,%s) b=(%d,%d,%s)",
			a.total, a.Version(), a.UpdatedAt(), b.total, b.Version(), b.UpdatedAt())
	}
	if a.total != src.total || a.Version() != src.Version() {
		t.Fatalf("replayed state differs from source: got (%d,%d), want (%d,%d)",
			a.total, a.Version(), src.total, src.Version())
	}
	if len(a.UncommittedEvents()) != 0 {
		t.Fatal("replay must not populate the uncommitted buffer")
	}
}

func TestUnknownEventTypeAdvancesVersion(t *testing.T) {
	id := uuid.New()
	ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	history := []Envelope{
		{EventType: "counter.incremented", Payload: []byte(`{"by":3}`), AggregateID: id, AggregateType: testAggregate, Version: 1, Timestamp: ts},
		{EventType: "counter.renamed", Payload: []byte(`{"name":"x"}`), AggregateID: id, AggregateType: testAggregate, Version: 2, Timestamp: ts.Add(time.Minute)},
		{EventType: "counter.incremented", Payload: []byte(`{"by":4}`), AggregateID: id, AggregateType: testAggregate, Version: 3, Timestamp: ts.Add(2 * time.Minute)},
	}

	c := newCounter(id)
	if err := c.LoadFromHistory(history); err != nil {
		t.Fatal(err)
	}

	if c.total != 7 {
		t.Fatalf("total = %d, want 7", c.total)
	}
	// the unknown event still counts toward version and updatedAt
	if c.Version() != 3 {
		t.Fatalf("version = %d, want 3", c.Version())
	}
	if !c.UpdatedAt().Equal(ts.Add(2 * time.Minute)) {
		t.Fatalf("updatedAt = %s", c.UpdatedAt())
	}
}

func TestLoadFromHistoryRejectsGaps(t *testing.T) {
	id := uuid.New()
	history := []Envelope{
		{EventType: "counter.incremented", Payload: []byte(`{"by":1}`), AggregateID: id, AggregateType: testAggregate, Version: 1},
		{EventType: "counter.incremented", Payload: []byte(`{"by":1}`), AggregateID: id, AggregateType: testAggregate, Version: 3},
	}

	c := newCounter(id)
	if err := c.LoadFromHistory(history); err == nil {
		t.Fatal("expected gap error, got nil")
	}
}

func TestTransitionTable(t *testing.T) {
	table := Table[string]{
		"open":   {"held", "closed"},
		"held":   {"open"},
		"closed": {},
	}

	cases := []struct {
		from, to string
		want     bool
	}{
		{"open", "held", true},
		{"open", "closed", true},
		{"held", "closed", false},
		{"closed", "open", false},
		{"missing", "open", false},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%s->%s", tc.from, tc.to), func(t *testing.T) {
			if got := table.Can(tc.from, tc.to); got != tc.want {
				t.Fatalf("Can(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
			}
		})
	}

	if !table.Terminal("closed") || table.Terminal("open") {
		t.Fatal("terminal detection wrong")
	}
}

func TestSnapshotValidateDelta(t *testing.T) {
	id := uuid.New()
	snap := Snapshot{AggregateID: id, AggregateType: testAggregate, Version: 4}

	t.Run("contiguous", func(t *testing.T) {
		delta := []Envelope{
			{AggregateID: id, Version: 5},
			{AggregateID: id, Version: 6},
		}
		if err := snap.ValidateDelta(delta); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("gap", func(t *testing.T) {
		delta := []Envelope{{AggregateID: id, Version: 6}}
		if err := snap.ValidateDelta(delta); err == nil {
			t.Fatal("expected gap error")
		}
	})

	t.Run("wrong aggregate", func(t *testing.T) {
		delta := []Envelope{{AggregateID: uuid.New(), Version: 5}}
		if err := snap.ValidateDelta(delta); err == nil {
			t.Fatal("expected aggregate mismatch error")
		}
	})
}

func TestDomainErrorMatching(t *testing.T) {
	id := uuid.New()
	err := NewTransitionError(id, "pending", "completed")

	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatal("transition error should match its sentinel")
	}
	if errors.Is(err, ErrDeleted) {
		t.Fatal("transition error must not match other kinds")
	}

	var de *DomainError
	if !errors.As(err, &de) {
		t.Fatal("errors.As failed")
	}
	if de.From != "pending" || de.To != "completed" || de.AggregateID != id {
		t.Fatalf("fields lost: %+v", de)
	}

	limit := NewLimitError(KindMaxReschedules, id, 3, 3)
	if !errors.Is(limit, ErrMaxReschedules) {
		t.Fatal("limit error should match its sentinel")
	}
}
