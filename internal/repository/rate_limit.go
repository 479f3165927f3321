package repository

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"realtime_chat/pkg/logger"
)

const RateLimitKeyPrefix = "ratelimit:"

type RateLimitRepository interface {
	// Hit counts one request for key in the current fixed window and
	// reports whether it is within limit, plus the requests left.
	Hit(ctx context.Context, key string, limit int, window time.Duration) (allowed bool, remaining int, err error)
}

type rateLimitRepository struct {
	redis *redis.Client
	log   logger.Logger
}

func NewRateLimitRepository(redis *redis.Client, log logger.Logger) RateLimitRepository {
	return &rateLimitRepository{redis: redis, log: log}
}

// Hit opens the window with SET NX EX and counts with INCR in one MULTI, so
// a counter never outlives its window even if the client dies mid-call.
func (r *rateLimitRepository) Hit(ctx context.Context, key string, limit int, window time.Duration) (bool, int, error) {
	key = RateLimitKeyPrefix + key
	var incr *redis.IntCmd
	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, key, 0, window)
		incr = pipe.Incr(ctx, key)
		return nil
	})
	if err != nil {
		r.log.Error("Failed to increment rate limit", "error", err, "key", key)
		return false, 0, err
	}

	count := incr.Val()
	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return int(count) <= limit, remaining, nil
}
