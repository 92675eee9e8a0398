package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/AGO523/node-news-notification/internal/metrics"
)

// redisLimiter implements sliding-window rate limiting in Redis so multiple
// service instances share one set of counters.
type redisLimiter struct {
	client    *redis.Client
	burst     Window
	sustained Window
}

// NewRedisLimiter connects to Redis and returns a limiter applying the two
// windows atomically per caller key.
func NewRedisLimiter(redisURL string, burst, sustained Window) (RateLimiter, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &redisLimiter{
		client:    client,
		burst:     burst,
		sustained: sustained,
	}, nil
}

// Lua script applying both windows atomically. An entry is only recorded
// when the request is admitted. Returns {1} when allowed, {0, wait_ns}
// when rejected.
const allowScript = `
	local burst_key = KEYS[1]
	local sustained_key = KEYS[2]
	local now = tonumber(ARGV[1])
	local burst_window = tonumber(ARGV[2])
	local burst_limit = tonumber(ARGV[3])
	local sustained_window = tonumber(ARGV[4])
	local sustained_limit = tonumber(ARGV[5])

	redis.call('ZREMRANGEBYSCORE', burst_key, 0, now - burst_window)
	redis.call('ZREMRANGEBYSCORE', sustained_key, 0, now - sustained_window)

	local wait = 0
	if redis.call('ZCARD', burst_key) >= burst_limit then
		local oldest = redis.call('ZRANGE', burst_key, 0, 0, 'WITHSCORES')
		wait = oldest[2] + burst_window - now
	end
	if redis.call('ZCARD', sustained_key) >= sustained_limit then
		local oldest = redis.call('ZRANGE', sustained_key, 0, 0, 'WITHSCORES')
		local w = oldest[2] + sustained_window - now
		if w > wait then
			wait = w
		end
	end

	if wait > 0 then
		return {0, wait}
	end

	redis.call('ZADD', burst_key, now, now)
	redis.call('ZADD', sustained_key, now, now)
	redis.call('PEXPIRE', burst_key, math.ceil(burst_window / 1000000))
	redis.call('PEXPIRE', sustained_key, math.ceil(sustained_window / 1000000))
	return {1, 0}
`

func (r *redisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	now := time.Now().UnixNano()

	result, err := r.client.Eval(ctx, allowScript,
		[]string{"ratelimit:burst:" + key, "ratelimit:sustained:" + key},
		now,
		r.burst.Duration.Nanoseconds(),
		r.burst.Limit,
		r.sustained.Duration.Nanoseconds(),
		r.sustained.Limit,
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit check failed: %w", err)
	}

	if len(result) < 2 || result[0] == 1 {
		return Decision{Allowed: true}, nil
	}

	metrics.RateLimitHits.WithLabelValues("redis").Inc()
	return Decision{Allowed: false, RetryAfter: time.Duration(result[1])}, nil
}

func (r *redisLimiter) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}
