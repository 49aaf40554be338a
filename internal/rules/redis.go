package rules

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Saiprana/ai-guardrails-system/internal/engine"
)

const redisKeyPrefix = "guardrails:rules:"

// redisKV is the subset of *redis.Client the shared cache uses.
type redisKV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisCache shares per-role rule sets across instances. Redis errors are
// logged and the source is read directly, so Redis is never on the failure path.
type RedisCache struct {
	client redisKV
	source engine.RuleStore
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisClient creates a client for addr.
func NewRedisClient(addr, password string, db int) (*redis.Client, error) {
	if addr == "" {
		return nil, errors.New("redis addr is required")
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}), nil
}

// NewRedisCache places a Redis-backed cache in front of source.
func NewRedisCache(client *redis.Client, source engine.RuleStore, ttl time.Duration, logger *zap.Logger) *RedisCache {
	return newRedisCacheWithClient(client, source, ttl, logger)
}

// newRedisCacheWithClient creates a cache with a custom client (for testing).
func newRedisCacheWithClient(client redisKV, source engine.RuleStore, ttl time.Duration, logger *zap.Logger) *RedisCache {
	if ttl == 0 {
		ttl = defaultCacheTTL
	}
	return &RedisCache{client: client, source: source, ttl: ttl, logger: logger}
}

func redisKey(role string) string {
	return redisKeyPrefix + role
}

func (c *RedisCache) LoadActiveRules(ctx context.Context, role string) ([]engine.Rule, error) {
	key := redisKey(role)

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var rules []engine.Rule
		if err := json.Unmarshal(raw, &rules); err == nil {
			return rules, nil
		}
		c.logger.Warn("discarding corrupt cached rule set", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("redis rule cache read failed", zap.String("key", key), zap.Error(err))
	}

	rules, err := c.source.LoadActiveRules(ctx, role)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(rules)
	if err != nil {
		return nil, fmt.Errorf("marshal rules: %w", err)
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("redis rule cache write failed", zap.String("key", key), zap.Error(err))
	}
	return rules, nil
}

// Invalidate deletes the cached rule set of every role.
func (c *RedisCache) Invalidate(ctx context.Context) error {
	keys := []string{
		redisKey(engine.RoleEmployee),
		redisKey(engine.RoleManager),
		redisKey(engine.RoleAdmin),
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("Invalidate: %w", err)
	}
	return nil
}
