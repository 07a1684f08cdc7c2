// Package bus publishes committed domain events to downstream consumers.
package bus

import (
	"context"

	"github.com/clinicore/clinic-backend/internal/eventsourcing"
)

// Publisher delivers committed events, called only after a successful
// append. Delivery is at-least-once; consumers deduplicate on
// (aggregate_id, version).
type Publisher interface {
	Publish(ctx context.Context, events []eventsourcing.Envelope) error
}

// Nop discards events. Used by the seeder and in tests where no consumer
// exists.
type Nop struct{}

func (Nop) Publish(ctx context.Context, events []eventsourcing.Envelope) error { return nil }
