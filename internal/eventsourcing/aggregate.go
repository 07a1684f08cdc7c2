package eventsourcing

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// now is a variable so tests can pin event timestamps.
var now = func() time.Time { return time.Now().UTC() }

// Applier mutates the concrete aggregate's state from a single envelope.
// It must be total: envelopes with unknown event types are skipped by the
// concrete aggregate's switch, never rejected.
type Applier func(Envelope)

// Root is the embeddable aggregate kernel. A concrete aggregate constructs
// a Root with its own apply callback and mutates state exclusively through
// Raise; the Root owns the version counter and the uncommitted buffer.
//
// A Root is not safe for concurrent use. Callers serialize commands per
// aggregate id (the services here do it with a Redis lock).
type Root struct {
	id            uuid.UUID
	aggregateType AggregateType
	version       uint64
	createdAt     time.Time
	updatedAt     time.Time
	uncommitted   []Envelope
	applier       Applier
}

// NewRoot creates a fresh root at version 0 with no history.
func NewRoot(id uuid.UUID, t AggregateType, applier Applier) Root {
	return Root{
		id:            id,
		aggregateType: t,
		applier:       applier,
	}
}

func (r *Root) ID() uuid.UUID       { return r.id }
func (r *Root) Type() AggregateType { return r.aggregateType }

// Version equals the number of events applied to this instance since
// creation, counting events folded in via a snapshot.
func (r *Root) Version() uint64 { return r.version }

func (r *Root) CreatedAt() time.Time { return r.createdAt }
func (r *Root) UpdatedAt() time.Time { return r.updatedAt }

// Raise builds an envelope at version+1, applies it, and appends it to the
// uncommitted buffer. This is the only mutation path for domain methods.
func (r *Root) Raise(eventType string, payload any, correlationID string) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	env := Envelope{
		EventType:     eventType,
		Payload:       data,
		AggregateID:   r.id,
		AggregateType: r.aggregateType,
		Version:       r.version + 1,
		Timestamp:     now(),
		CorrelationID: correlationID,
	}

	r.apply(env)
	r.uncommitted = append(r.uncommitted, env)
	return nil
}

// apply advances version and timestamps unconditionally, then hands the
// envelope to the concrete aggregate. Version continuity holds even for
// event types the applier does not recognize.
func (r *Root) apply(env Envelope) {
	r.version = env.Version
	r.updatedAt = env.Timestamp
	if r.createdAt.IsZero() {
		r.createdAt = env.Timestamp
	}
	if r.applier != nil {
		r.applier(env)
	}
}

// LoadFromHistory replays envelopes into the aggregate. Envelopes must be
// contiguous and start at version+1; anything else means the event store
// handed back a corrupted stream.
func (r *Root) LoadFromHistory(events []Envelope) error {
	for _, env := range events {
		if env.Version != r.version+1 {
			return fmt.Errorf("event stream gap for %s %s: have version %d, next event is %d",
				r.aggregateType, r.id, r.version, env.Version)
		}
		r.apply(env)
	}
	return nil
}

// UncommittedEvents returns the events raised since the last clear, oldest
// first. The persistence layer appends exactly this slice.
func (r *Root) UncommittedEvents() []Envelope {
	return r.uncommitted
}

// ClearUncommittedEvents is called after a successful atomic append, never
// speculatively.
func (r *Root) ClearUncommittedEvents() {
	r.uncommitted = nil
}

// Restore seeds the root from snapshot metadata, skipping replay of
// everything up to the snapshot version.
func (r *Root) Restore(version uint64, createdAt, updatedAt time.Time) {
	r.version = version
	r.createdAt = createdAt
	r.updatedAt = updatedAt
}
