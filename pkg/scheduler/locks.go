package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisLocker implements Locker with a per-credential SET NX key. It covers
// the gap the DB unique constraint cannot: two instances burning the same
// credential's rate budget at once.
type RedisLocker struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisLocker(rdb *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisLocker{rdb: rdb, ttl: ttl}
}

func (l *RedisLocker) TryLock(ctx context.Context, userID uuid.UUID) (func(), bool, error) {
	key := "sched:lock:cred:" + userID.String()
	ok, err := l.rdb.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), l.ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	unlock := func() {
		// TTL covers the case where the unlock itself fails.
		_ = l.rdb.Del(context.WithoutCancel(ctx), key).Err()
	}
	return unlock, true, nil
}

// NopLocker always grants the lock; single-instance deployments without
// redis can run on it.
type NopLocker struct{}

func (NopLocker) TryLock(ctx context.Context, userID uuid.UUID) (func(), bool, error) {
	return func() {}, true, nil
}
