package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("aggregate lock not acquired")
)

// Locker serializes command execution per aggregate instance. The aggregate
// kernel is single-threaded per instance; this lock is the external
// serialization in front of it.
type Locker interface {
	WithAggregateLock(ctx context.Context, aggregateID uuid.UUID, fn func(ctx context.Context) error) error
}

type redisAggregateLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisAggregateLocker creates a locker that uses a per aggregate Redis key
func NewRedisAggregateLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisAggregateLocker{
		client: client,
		ttl:    ttl,
	}
}

func (l *redisAggregateLocker) WithAggregateLock(ctx context.Context, aggregateID uuid.UUID, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("lock:aggregate:%s", aggregateID.String())
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire aggregate lock: %w", err)
	}
	if !ok {
		return ErrLockNotAcquired
	}

	defer func() {
		_ = l.release(ctx, key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisAggregateLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release aggregate lock: %w", err)
	}
	return nil
}
