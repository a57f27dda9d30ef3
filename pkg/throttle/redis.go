package throttle

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisPacingScript grants a submission slot iff the last grant for the
// domain is older than the pacing interval. Runs atomically in Redis so
// overlapping worker instances share one pacing state.
// KEYS[1] = pacing key ("throttle:<domain>")
// ARGV[1] = interval in milliseconds
// ARGV[2] = current unix time in milliseconds
// Returns 0 when granted, otherwise the remaining wait in milliseconds.
var redisPacingScript = redis.NewScript(`
local key = KEYS[1]
local interval = tonumber(ARGV[1])
local now = tonumber(ARGV[2])

local last = tonumber(redis.call("GET", key))
if last and (now - last) < interval then
    return interval - (now - last)
end

redis.call("SET", key, now, "PX", interval * 2)
return 0
`)

// RedisLimiter shares submission pacing across worker instances.
type RedisLimiter struct {
	client   *redis.Client
	fallback time.Duration
}

// NewRedisLimiter connects to Redis at addr.
func NewRedisLimiter(addr, password string, db int, defaultInterval time.Duration) *RedisLimiter {
	if defaultInterval <= 0 {
		defaultInterval = 5 * time.Second
	}
	return &RedisLimiter{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		fallback: defaultInterval,
	}
}

func (l *RedisLimiter) Wait(ctx context.Context, domain string, minInterval time.Duration) error {
	if minInterval <= 0 {
		minInterval = l.fallback
	}
	key := "throttle:" + domain

	for {
		res, err := redisPacingScript.Run(ctx, l.client, []string{key},
			minInterval.Milliseconds(), time.Now().UnixMilli()).Int64()
		if err != nil {
			return fmt.Errorf("throttle: redis pacing: %w", err)
		}
		if res == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(res) * time.Millisecond):
		}
	}
}

// Close releases the Redis connection.
func (l *RedisLimiter) Close() error {
	return l.client.Close()
}
