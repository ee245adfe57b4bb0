// Package lock provides a Redis lease used to keep a single sweeper active
// across instances.
package lock

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLock takes short leases with SET NX PX. A lease is never released
// explicitly; it lapses after ttl, which is the sweep interval.
type RedisLock struct {
	rdb   *redis.Client
	owner string
}

func NewRedisLock(rdb *redis.Client, owner string) *RedisLock {
	return &RedisLock{rdb: rdb, owner: owner}
}

// Acquire reports whether this instance holds key for the next ttl.
func (l *RedisLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.rdb.SetNX(ctx, key, l.owner, ttl).Result()
}
