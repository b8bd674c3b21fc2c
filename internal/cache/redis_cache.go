package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/models"
)

// redisCache implements Redis-based caching
type redisCache struct {
	client *redis.Client
	prefix string
}

// newRedisCache creates a new Redis cache client
func newRedisCache(config CacheConfig) (*redisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return newRedisCacheWithClient(client, config.KeyPrefix), nil
}

func newRedisCacheWithClient(client *redis.Client, prefix string) *redisCache {
	if prefix == "" {
		prefix = "mailbeacon:"
	}
	return &redisCache{client: client, prefix: prefix}
}

func (rc *redisCache) key(k string) string {
	return rc.prefix + "cache:" + k
}

func (rc *redisCache) channel() string {
	return rc.prefix + "cache:invalidate"
}

func (rc *redisCache) getList(ctx context.Context, key string) (models.ListRef, error) {
	var l models.ListRef

	data, err := rc.client.Get(ctx, rc.key(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return l, ErrCacheMiss
		}
		return l, fmt.Errorf("Redis get error: %w", err)
	}

	if err := json.Unmarshal(data, &l); err != nil {
		return l, fmt.Errorf("JSON unmarshal error: %w", err)
	}
	return l, nil
}

func (rc *redisCache) setList(ctx context.Context, key string, l models.ListRef, ttl time.Duration) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("JSON marshal error: %w", err)
	}

	if err := rc.client.Set(ctx, rc.key(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("Redis set error: %w", err)
	}
	return nil
}

func (rc *redisCache) delete(ctx context.Context, key string) error {
	if err := rc.client.Del(ctx, rc.key(key)).Err(); err != nil {
		return fmt.Errorf("Redis delete error: %w", err)
	}
	return nil
}

// clear removes every cache key under the prefix
func (rc *redisCache) clear(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := rc.client.Scan(ctx, cursor, rc.key("*"), 100).Result()
		if err != nil {
			return fmt.Errorf("Redis scan error: %w", err)
		}
		if len(keys) > 0 {
			if err := rc.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("Redis delete error: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

func (rc *redisCache) publishInvalidation(ctx context.Context, key string) error {
	return rc.client.Publish(ctx, rc.channel(), key).Err()
}

// subscribeInvalidation calls handler for every invalidation event until ctx is done
func (rc *redisCache) subscribeInvalidation(ctx context.Context, handler func(string)) error {
	pubsub := rc.client.Subscribe(ctx, rc.channel())
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			handler(msg.Payload)
		}
	}
}

func (rc *redisCache) close() error {
	return rc.client.Close()
}

func (rc *redisCache) healthCheck(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}
