package payment

import (
	"context"
	"errors"
	"sync"
	"time"

	"plantstore-be/internal/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// TokenCache holds gateway access tokens until they expire. Misses and
// backend errors both report ok=false.
type TokenCache interface {
	Get(ctx context.Context, key string) (token string, ok bool)
	Set(ctx context.Context, key, token string, ttl time.Duration)
}

type memoryEntry struct {
	token     string
	expiresAt time.Time
}

type MemoryTokenCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryTokenCache() *MemoryTokenCache {
	return &MemoryTokenCache{entries: make(map[string]memoryEntry), now: time.Now}
}

func (c *MemoryTokenCache) Get(_ context.Context, key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		return "", false
	}
	return e.token, true
}

func (c *MemoryTokenCache) Set(_ context.Context, key, token string, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{token: token, expiresAt: c.now().Add(ttl)}
}

// RedisTokenCache shares tokens across server and CLI processes.
type RedisTokenCache struct {
	rdb redis.Cmdable
}

func NewRedisTokenCache(rdb redis.Cmdable) *RedisTokenCache {
	return &RedisTokenCache{rdb: rdb}
}

func (c *RedisTokenCache) Get(ctx context.Context, key string) (string, bool) {
	token, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false
	}
	if err != nil {
		logger.FromCtx(ctx).Warn("token cache read failed", zap.String("key", key), zap.Error(err))
		return "", false
	}
	return token, true
}

func (c *RedisTokenCache) Set(ctx context.Context, key, token string, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	if err := c.rdb.Set(ctx, key, token, ttl).Err(); err != nil {
		logger.FromCtx(ctx).Warn("token cache write failed", zap.String("key", key), zap.Error(err))
	}
}
