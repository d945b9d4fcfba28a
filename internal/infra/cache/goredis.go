package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// goRedis adapts *redis.Client to RedisClient.
type goRedis struct {
	rdb *redis.Client
}

// NewRedisClient connects to addr and verifies the connection with PING.
func NewRedisClient(ctx context.Context, addr string, poolSize int) (RedisClient, func() error, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		PoolSize: poolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, err
	}
	return &goRedis{rdb: rdb}, rdb.Close, nil
}

func (g *goRedis) Get(ctx context.Context, key string) (string, error) {
	val, err := g.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	return val, err
}

func (g *goRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return g.rdb.Set(ctx, key, value, expiration).Err()
}

func (g *goRedis) Del(ctx context.Context, keys ...string) error {
	return g.rdb.Del(ctx, keys...).Err()
}

func (g *goRedis) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return g.rdb.HGetAll(ctx, key).Result()
}

func (g *goRedis) HSet(ctx context.Context, key string, values ...interface{}) error {
	return g.rdb.HSet(ctx, key, values...).Err()
}
