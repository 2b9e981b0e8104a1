package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	latchKeyPrefix  = "shield:latch:"
	defaultLatchTTL = 15 * time.Minute
)

// Latch is a single-use gate shared by every replica. The first SETNX for a
// key wins; the key expires after ttl so abandoned visits do not pile up.
type Latch struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewLatch(rdb redis.Cmdable, ttl time.Duration) *Latch {
	if ttl <= 0 {
		ttl = defaultLatchTTL
	}
	return &Latch{rdb: rdb, ttl: ttl}
}

func (l *Latch) Acquire(ctx context.Context, key string) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, latchKeyPrefix+key, 1, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: acquire latch: %w", err)
	}
	return ok, nil
}
