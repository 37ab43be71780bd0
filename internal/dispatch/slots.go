package dispatch

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"callwave/pkg/utils"
)

// SlotLimiter guards the global active-call ceiling. The dispatcher acquires
// a slot before launching a session and releases it when the session ends.
type SlotLimiter interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// RedisSlots enforces the ceiling across every orchestrator process sharing
// the Redis instance. The slot key carries a TTL so a crashed process cannot
// leak slots forever.
type RedisSlots struct {
	rdb   *redis.Client
	key   string
	limit int
	ttl   time.Duration
}

func NewRedisSlots(rdb *redis.Client, key string, limit int, ttl time.Duration) *RedisSlots {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisSlots{rdb: rdb, key: key, limit: limit, ttl: ttl}
}

func (s *RedisSlots) Acquire(ctx context.Context) (bool, error) {
	return utils.AcquireCallSlot(ctx, s.rdb, s.key, s.limit, s.ttl)
}

func (s *RedisSlots) Release(ctx context.Context) error {
	return utils.ReleaseCallSlot(ctx, s.rdb, s.key)
}

// LocalSlots is an in-process limiter for single-node deployments and tests.
type LocalSlots struct {
	sem chan struct{}
}

func NewLocalSlots(limit int) *LocalSlots {
	return &LocalSlots{sem: make(chan struct{}, limit)}
}

func (s *LocalSlots) Acquire(ctx context.Context) (bool, error) {
	select {
	case s.sem <- struct{}{}:
		return true, nil
	default:
		return false, nil
	}
}

func (s *LocalSlots) Release(ctx context.Context) error {
	select {
	case <-s.sem:
	default:
	}
	return nil
}
