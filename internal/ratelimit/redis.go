package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter is a distributed fixed-window rate limiter backed by a
// Redis INCR counter keyed by minute window, with the TTL set only on the
// first increment of each window.
type RedisLimiter struct {
	rdb               *redis.Client
	keyPrefix         string
	requestsPerMinute int
	failOpen          bool
}

// NewRedisLimiter creates a distributed limiter. If failOpen is true, a
// Redis error admits the request; otherwise the error propagates to the
// caller.
func NewRedisLimiter(rdb *redis.Client, keyPrefix string, requestsPerMinute int, failOpen bool) *RedisLimiter {
	if requestsPerMinute < 1 {
		requestsPerMinute = 1
	}
	return &RedisLimiter{
		rdb:               rdb,
		keyPrefix:         keyPrefix,
		requestsPerMinute: requestsPerMinute,
		failOpen:          failOpen,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := time.Now().Unix()
	window := now / 60
	redisKey := fmt.Sprintf("%s:%d:%s", l.keyPrefix, window, key)

	count, err := l.rdb.Incr(ctx, redisKey).Result()
	if err != nil {
		if l.failOpen {
			return true, nil
		}
		return false, fmt.Errorf("incrementing rate limit counter: %w", err)
	}

	if count == 1 {
		ttl := 60 - (now % 60)
		if err := l.rdb.Expire(ctx, redisKey, time.Duration(ttl)*time.Second).Err(); err != nil {
			if !l.failOpen {
				return false, fmt.Errorf("setting rate limit TTL: %w", err)
			}
		}
	}

	return count <= int64(l.requestsPerMinute), nil
}
