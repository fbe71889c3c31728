package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Lua script for atomic sliding-window admission. Returns
// {allowed, count, oldest_score} where oldest_score is only meaningful on
// rejection.
const allowScript = `
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local member = ARGV[4]
	local ttl_ms = tonumber(ARGV[5])

	-- Remove old entries
	redis.call('ZREMRANGEBYSCORE', key, 0, window_start)

	-- Count current entries
	local current = redis.call('ZCARD', key)

	if current < limit then
		redis.call('ZADD', key, now, member)
		redis.call('PEXPIRE', key, ttl_ms)
		return {1, current + 1, 0}
	end

	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	return {0, current, oldest[2]}
`

// RedisLimiter implements sliding-window rate limiting on Redis so the
// ceiling holds across gateway instances.
type RedisLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

// NewRedisLimiter connects to Redis and verifies the connection.
func NewRedisLimiter(redisURL string, limit int, window time.Duration) (*RedisLimiter, error) {
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

	return &RedisLimiter{client: client, limit: int64(limit), window: window}, nil
}

// NewRedisLimiterWithClient wraps an existing client (shared with the replay
// store or injected by tests).
func NewRedisLimiterWithClient(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, limit: int64(limit), window: window}
}

// Allow implements Limiter.
func (r *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	now := time.Now()
	nowNano := now.UnixNano()
	windowStart := nowNano - r.window.Nanoseconds()
	member := strconv.FormatInt(nowNano, 10) + "-" + uuid.New().String()

	raw, err := r.client.Eval(ctx, allowScript, []string{"ratelimit:" + key},
		nowNano, windowStart, r.limit, member, r.window.Milliseconds()).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit check failed: %w", err)
	}

	reply, ok := raw.([]interface{})
	if !ok || len(reply) != 3 {
		return Decision{}, fmt.Errorf("rate limit check failed: unexpected reply %v", raw)
	}

	allowed := toInt64(reply[0]) == 1
	count := int(toInt64(reply[1]))

	decision := Decision{
		Allowed:      allowed,
		CurrentCount: count,
		WindowStart:  now.Add(-r.window),
	}

	if !allowed {
		oldest := time.Unix(0, toInt64(reply[2]))
		decision.RetryAfter = oldest.Add(r.window).Sub(now)
	}

	return decision, nil
}

func (r *RedisLimiter) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// toInt64 normalizes Lua reply values, which arrive as int64 for integers
// and string for scores returned via WITHSCORES.
func toInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case string:
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return int64(f)
		}
	}
	return 0
}
