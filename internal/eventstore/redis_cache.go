package eventstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/clinicore/clinic-backend/internal/eventsourcing"
)

// CachedSnapshotStore keeps the latest snapshot per aggregate in Redis in
// front of a durable SnapshotStore. Cache misses and Redis failures fall
// through to the inner store; the cache is never authoritative.
type CachedSnapshotStore struct {
	inner  SnapshotStore
	client *redis.Client
	ttl    time.Duration
}

func NewCachedSnapshotStore(inner SnapshotStore, client *redis.Client, ttl time.Duration) *CachedSnapshotStore {
	return &CachedSnapshotStore{
		inner:  inner,
		client: client,
		ttl:    ttl,
	}
}

func snapshotKey(id uuid.UUID) string {
	return fmt.Sprintf("snapshot:%s", id.String())
}

func (c *CachedSnapshotStore) SaveSnapshot(ctx context.Context, snap eventsourcing.Snapshot) error {
	if err := c.inner.SaveSnapshot(ctx, snap); err != nil {
		return err
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot for cache: %w", err)
	}
	// best effort: the durable write already succeeded
	_ = c.client.Set(ctx, snapshotKey(snap.AggregateID), data, c.ttl).Err()
	return nil
}

func (c *CachedSnapshotStore) LoadSnapshot(ctx context.Context, aggregateID uuid.UUID) (eventsourcing.Snapshot, error) {
	data, err := c.client.Get(ctx, snapshotKey(aggregateID)).Bytes()
	if err == nil {
		var snap eventsourcing.Snapshot
		if jsonErr := json.Unmarshal(data, &snap); jsonErr == nil {
			return snap, nil
		}
		// corrupt cache entry: drop it and fall through
		_ = c.client.Del(ctx, snapshotKey(aggregateID)).Err()
	} else if !errors.Is(err, redis.Nil) {
		// Redis being down must not take snapshot loading with it
	}

	snap, err := c.inner.LoadSnapshot(ctx, aggregateID)
	if err != nil {
		return eventsourcing.Snapshot{}, err
	}

	if data, jsonErr := json.Marshal(snap); jsonErr == nil {
		_ = c.client.Set(ctx, snapshotKey(aggregateID), data, c.ttl).Err()
	}
	return snap, nil
}
