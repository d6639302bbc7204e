package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ammiranda/knowledge_tree/models"
)

const redisKeyPrefix = "knowledge_tree:"

// RedisCache implements CacheProvider using Redis
type RedisCache struct {
	client *redis.Client

	mu  sync.RWMutex
	ttl time.Duration
}

// NewRedisCache creates a Redis cache provider from REDIS_HOST, REDIS_PORT
// and REDIS_PASSWORD
func NewRedisCache() *RedisCache {
	redisHost := os.Getenv("REDIS_HOST")
	if redisHost == "" {
		redisHost = "localhost"
	}
	redisPort := os.Getenv("REDIS_PORT")
	if redisPort == "" {
		redisPort = "6379"
	}

	return NewRedisCacheWithClient(redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", redisHost, redisPort),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       0,
	}))
}

// NewRedisCacheWithClient creates a Redis cache provider with a custom client
func NewRedisCacheWithClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client, ttl: DefaultTTL}
}

// Initialize checks the connection
func (c *RedisCache) Initialize(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func redisKey(ownerID string) string {
	return redisKeyPrefix + treeKey(ownerID)
}

// GetTree retrieves the tree of ownerID from Redis
func (c *RedisCache) GetTree(ctx context.Context, ownerID string) (*models.TreeResponse, bool) {
	data, err := c.client.Get(ctx, redisKey(ownerID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.WarnContext(ctx, "redis cache read failed", "owner_id", ownerID, "error", err)
		}
		return nil, false
	}

	var tree models.TreeResponse
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, false
	}
	return &tree, true
}

// SetTree stores the tree of ownerID in Redis with the current TTL
func (c *RedisCache) SetTree(ctx context.Context, ownerID string, tree *models.TreeResponse) {
	data, err := json.Marshal(tree)
	if err != nil {
		return
	}

	c.mu.RLock()
	ttl := c.ttl
	c.mu.RUnlock()

	if err := c.client.Set(ctx, redisKey(ownerID), data, ttl).Err(); err != nil {
		slog.WarnContext(ctx, "redis cache write failed", "owner_id", ownerID, "error", err)
	}
}

// InvalidateTree removes the tree of ownerID from Redis
func (c *RedisCache) InvalidateTree(ctx context.Context, ownerID string) error {
	return c.client.Del(ctx, redisKey(ownerID)).Err()
}

// InvalidateCache removes every tree key written by this service
func (c *RedisCache) InvalidateCache(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("error scanning cache keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// SetCacheTTL sets the cache time-to-live duration
func (c *RedisCache) SetCacheTTL(ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ttl = ttl
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}
