package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisCache struct {
	rdb *redis.Client
}

func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb}
}

func quotaKey(shopID string) string {
	return "quota:" + shopID
}

func (c *RedisCache) Get(ctx context.Context, shopID string) (*OfficialQuota, error) {
	b, err := c.rdb.Get(ctx, quotaKey(shopID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var q OfficialQuota
	if err := json.Unmarshal(b, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

func (c *RedisCache) Store(ctx context.Context, shopID string, q *OfficialQuota, ttl time.Duration) error {
	b, err := json.Marshal(q)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, quotaKey(shopID), b, ttl).Err()
}
