package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter counts events per fixed window bucket in Redis so that every
// instance shares one budget per key.
type RedisLimiter struct {
	rdb    redis.UniversalClient
	cfg    Config
	prefix string
}

// NewRedisLimiter constructs a RedisLimiter over rdb.
func NewRedisLimiter(rdb redis.UniversalClient, cfg Config) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, cfg: cfg.normalized(), prefix: "rl:"}
}

// Allow increments the key's counter for the current bucket.
func (l *RedisLimiter) Allow(ctx context.Context, key string, now time.Time) (Decision, error) {
	win := l.cfg.Window.Milliseconds()
	if win <= 0 {
		win = 1
	}
	bucket := now.UnixMilli() / win
	k := l.prefix + key + ":" + strconv.FormatInt(bucket, 10)

	pipe := l.rdb.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.PExpire(ctx, k, l.cfg.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, err
	}

	if incr.Val() <= int64(l.cfg.Events) {
		return Decision{Allowed: true}, nil
	}
	end := time.UnixMilli((bucket + 1) * win)
	return Decision{Allowed: false, RetryAfter: end.Sub(now)}, nil
}

// Ping checks connectivity; used by readiness.
func (l *RedisLimiter) Ping(ctx context.Context) error {
	return l.rdb.Ping(ctx).Err()
}
