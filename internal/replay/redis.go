package replay

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore backs replay records with Redis so multiple gateway instances
// share one nonce space. SET NX gives the atomic check-and-insert; the key
// TTL is the retention window, so eviction is handled by Redis itself.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(redisURL string) (*RedisStore, error) {
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

	return &RedisStore{client: client}, nil
}

// NewRedisStoreWithClient wraps an existing client (shared with the rate
// limiter or injected by tests).
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// CheckAndRegister implements Store.
func (s *RedisStore) CheckAndRegister(ctx context.Context, sourceID, nonce string, retention time.Duration) (bool, error) {
	key := "replay:" + sourceID + ":" + nonce
	inserted, err := s.client.SetNX(ctx, key, 1, retention).Result()
	if err != nil {
		return false, fmt.Errorf("replay check failed: %w", err)
	}
	return inserted, nil
}

func (s *RedisStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
