package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"positionScope/internal/model"
)

// RedisCache stores positions in Redis with a TTL. Keys embed the latest
// observed block number, so stale entries simply stop being read once the
// log grows and expire on their own.
type RedisCache struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisCache(rdb *redis.Client, prefix string, ttl time.Duration, logger *zap.Logger) *RedisCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = "posengine"
	}
	return &RedisCache{rdb: rdb, prefix: prefix, ttl: ttl, logger: logger}
}

func (c *RedisCache) key(wallet string, latestBlock uint64) string {
	return fmt.Sprintf("%s:position:%s:%d", c.prefix, wallet, latestBlock)
}

func (c *RedisCache) Get(ctx context.Context, wallet string, latestBlock uint64) (model.Position, bool) {
	data, err := c.rdb.Get(ctx, c.key(wallet, latestBlock)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Debug("cache get", zap.String("wallet", wallet), zap.Error(err))
		}
		return model.Position{}, false
	}

	var pos model.Position
	if err := json.Unmarshal(data, &pos); err != nil {
		c.logger.Debug("cache decode", zap.String("wallet", wallet), zap.Error(err))
		return model.Position{}, false
	}
	return pos, true
}

func (c *RedisCache) Put(ctx context.Context, wallet string, latestBlock uint64, pos model.Position) {
	data, err := json.Marshal(pos)
	if err != nil {
		c.logger.Debug("cache encode", zap.String("wallet", wallet), zap.Error(err))
		return
	}
	if err := c.rdb.Set(ctx, c.key(wallet, latestBlock), data, c.ttl).Err(); err != nil {
		c.logger.Debug("cache put", zap.String("wallet", wallet), zap.Error(err))
	}
}

var _ PositionCache = (*RedisCache)(nil)
