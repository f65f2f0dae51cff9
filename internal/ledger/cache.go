package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const cacheTTL = 5 * time.Minute

// Cache holds balance summaries between profile changes.
type Cache interface {
	Get(ctx context.Context, userID uuid.UUID) (*Summary, bool)
	Set(ctx context.Context, userID uuid.UUID, s Summary)
	Delete(ctx context.Context, userID uuid.UUID)
}

// NopCache is used when no Redis is configured.
type NopCache struct{}

func (NopCache) Get(context.Context, uuid.UUID) (*Summary, bool) { return nil, false }
func (NopCache) Set(context.Context, uuid.UUID, Summary)         {}
func (NopCache) Delete(context.Context, uuid.UUID)               {}

type RedisCache struct {
	rdb *redis.Client
}

func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb}
}

// NewRedisClient parses a redis:// URL and pings the server.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	opts.MaxRetries = 3
	opts.PoolTimeout = 4 * time.Second
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

func cacheKey(userID uuid.UUID) string {
	return "balance:" + userID.String()
}

func (c *RedisCache) Get(ctx context.Context, userID uuid.UUID) (*Summary, bool) {
	raw, err := c.rdb.Get(ctx, cacheKey(userID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			slog.Warn("balance cache read failed", "user_id", userID.String(), "error", err)
		}
		return nil, false
	}
	var s Summary
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, false
	}
	return &s, true
}

// Set stores s until the plan expires or cacheTTL passes, whichever is first,
// so a cached summary never outlives the plan it describes.
func (c *RedisCache) Set(ctx context.Context, userID uuid.UUID, s Summary) {
	ttl := cacheTTL
	if s.PlanExpiresAt != nil && !s.PlanExpired {
		if until := time.Until(*s.PlanExpiresAt); until < ttl {
			ttl = until
		}
	}
	if ttl <= 0 {
		return
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, cacheKey(userID), raw, ttl).Err(); err != nil {
		slog.Warn("balance cache write failed", "user_id", userID.String(), "error", err)
	}
}

func (c *RedisCache) Delete(ctx context.Context, userID uuid.UUID) {
	if err := c.rdb.Del(ctx, cacheKey(userID)).Err(); err != nil {
		slog.Warn("balance cache invalidation failed", "user_id", userID.String(), "error", err)
	}
}
