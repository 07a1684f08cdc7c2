package bus

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/clinicore/clinic-backend/internal/eventsourcing"
)

// RedisPublisher appends committed events to a Redis stream per aggregate
// type (events:case, events:appointment, ...). Consumers read with consumer
// groups and deduplicate on (aggregate_id, version).
type RedisPublisher struct {
	client *redis.Client
	maxLen int64
}

func NewRedisPublisher(client *redis.Client, maxLen int64) *RedisPublisher {
	return &RedisPublisher{
		client: client,
		maxLen: maxLen,
	}
}

func streamName(t eventsourcing.AggregateType) string {
	return "events:" + strings.ToLower(string(t))
}

func (p *RedisPublisher) Publish(ctx context.Context, events []eventsourcing.Envelope) error {
	for _, env := range events {
		values := map[string]any{
			"event_type":   env.EventType,
			"aggregate_id": env.AggregateID.String(),
			"version":      env.Version,
			"payload":      string(env.Payload),
			"timestamp":    env.Timestamp.UnixMilli(),
		}
		if env.CorrelationID != "" {
			values["correlation_id"] = env.CorrelationID
		}
		if env.CausationID != "" {
			values["causation_id"] = env.CausationID
		}

		err := p.client.XAdd(ctx, &redis.XAddArgs{
			Stream: streamName(env.AggregateType),
			MaxLen: p.maxLen,
			Approx: true,
			Values: values,
		}).Err()
		if err != nil {
			return fmt.Errorf("publish %s v%d to %s: %w", env.AggregateID, env.Version, streamName(env.AggregateType), err)
		}
	}
	return nil
}
