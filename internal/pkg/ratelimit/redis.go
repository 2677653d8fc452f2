package ratelimit

import (
	"context"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Sliding window over a sorted set: trim entries older than the window,
// count the rest, and admit only while count < limit. Runs as a single
// script so the count-and-decide step cannot interleave.
const slidingWindowScript = `
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])

local nowData = redis.call("TIME")
local now = (nowData[1] * 1000000) + nowData[2]

redis.call("ZREMRANGEBYSCORE", KEYS[1], 0, now - window)

local count = redis.call("ZCARD", KEYS[1])
if count >= limit then
  return 0
end

redis.call("ZADD", KEYS[1], now, now .. "-" .. count)
redis.call("PEXPIRE", KEYS[1], math.ceil(window / 1000))
return 1
`

type RedisLimiter struct {
	client *redis.Client
	script *redis.Script
}

func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	if client == nil {
		return nil
	}
	return &RedisLimiter{
		client: client,
		script: redis.NewScript(slidingWindowScript),
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if l == nil || l.client == nil {
		return false, errors.New("rate limiter not configured")
	}
	if key == "" {
		return false, errors.New("rate limiter key is empty")
	}
	if limit <= 0 || window <= 0 {
		return false, errors.New("rate limiter limit and window must be positive")
	}

	res, err := l.script.Run(
		ctx,
		l.client,
		[]string{key},
		limit,
		window.Microseconds(),
	).Int64()
	if err != nil {
		return false, err
	}

	return res == 1, nil
}
