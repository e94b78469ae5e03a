package worker

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"teymur/config"
)

const tickLockKey = "dispatch:tick:lock"

// TickLock is a best-effort guard against two dispatcher instances polling
// the same database. It is not a distributed coordination mechanism; the
// unique index on the send ledger remains the last line of defense.
type TickLock struct {
	Client *redis.Client
}

func NewTickLock(cfg config.RedisConfig) *TickLock {
	return &TickLock{
		Client: redis.NewClient(&redis.Options{
			Addr:     cfg.Address,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
	}
}

// Acquire takes the tick lock for at most ttl. Returns false when another
// dispatcher already holds it.
func (tl *TickLock) Acquire(ttl time.Duration) (bool, error) {
	return tl.Client.SetNX(context.Background(), tickLockKey, "1", ttl).Result()
}

func (tl *TickLock) Release() {
	tl.Client.Del(context.Background(), tickLockKey)
}
