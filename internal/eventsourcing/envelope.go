package eventsourcing

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AggregateType distinguishes event streams belonging to different
// aggregate kinds in the shared event store.
type AggregateType string

// Envelope is the canonical record for a single domain event. Envelopes for
// one aggregate instance are gap-free and strictly ordered by Version,
// starting at 1 for the creation event.
type Envelope struct {
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	AggregateID   uuid.UUID       `json:"aggregate_id"`
	AggregateType AggregateType   `json:"aggregate_type"`
	Version       uint64          `json:"version"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	CausationID   string          `json:"causation_id,omitempty"`
}

// UnmarshalPayload decodes the envelope payload into v. Unknown JSON fields
// are ignored and missing fields are left zero-valued, so older payload
// shapes replay without error.
func (e Envelope) UnmarshalPayload(v any) error {
	return json.Unmarshal(e.Payload, v)
}
