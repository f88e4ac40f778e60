// internal/cache/redis.go
package cache

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis implements Store on top of a go-redis client.
type Redis struct {
	rdb *redis.Client
}

// NewRedis wraps an already-connected client.
func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb}
}

// Connect initializes a Redis client from environment variables:
//   - REDIS_ADDR (default "localhost:6379")
//   - REDIS_DB (optional, default 0)
func Connect(ctx context.Context) (*redis.Client, error) {
	addr := getEnv("REDIS_ADDR", "localhost:6379")
	dbIdx := getEnvInt("REDIS_DB", 0)

	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   dbIdx,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

func (r *Redis) SetWithTTL(ctx context.Context, key string, ttl time.Duration) error {
	if err := r.rdb.Set(ctx, key, 1, ttl).Err(); err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

func (r *Redis) AddToSet(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := r.rdb.SAdd(ctx, key, value).Err(); err != nil {
		return fmt.Errorf("sadd %q: %w", key, err)
	}
	if ttl > 0 {
		if err := r.rdb.Expire(ctx, key, ttl).Err(); err != nil {
			return fmt.Errorf("expire %q: %w", key, err)
		}
	}
	return nil
}

func (r *Redis) RemoveFromSet(ctx context.Context, key, value string) error {
	if err := r.rdb.SRem(ctx, key, value).Err(); err != nil {
		return fmt.Errorf("srem %q: %w", key, err)
	}
	return nil
}

func (r *Redis) Members(ctx context.Context, key string) ([]string, error) {
	members, err := r.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("smembers %q: %w", key, err)
	}
	return members, nil
}

func (r *Redis) ListPush(ctx context.Context, key, value string) error {
	if err := r.rdb.RPush(ctx, key, value).Err(); err != nil {
		return fmt.Errorf("rpush %q: %w", key, err)
	}
	return nil
}

func (r *Redis) ListRange(ctx context.Context, key string) ([]string, error) {
	items, err := r.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange %q: %w", key, err)
	}
	return items, nil
}

func (r *Redis) HashSet(ctx context.Context, key, field, value string) error {
	if err := r.rdb.HSet(ctx, key, field, value).Err(); err != nil {
		return fmt.Errorf("hset %q.%q: %w", key, field, err)
	}
	return nil
}

func (r *Redis) HashGet(ctx context.Context, key, field string) (string, bool, error) {
	val, err := r.rdb.HGet(ctx, key, field).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("hget %q.%q: %w", key, field, err)
	}
	return val, true, nil
}

func (r *Redis) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	vals, err := r.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall %q: %w", key, err)
	}
	return vals, nil
}

func (r *Redis) HashDel(ctx context.Context, key, field string) error {
	if err := r.rdb.HDel(ctx, key, field).Err(); err != nil {
		return fmt.Errorf("hdel %q.%q: %w", key, field, err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("del %q: %w", key, err)
	}
	return nil
}

func (r *Redis) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("exists %q: %w", key, err)
	}
	return n > 0, nil
}

// getEnv is a helper to read an environment variable or return a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt is a helper to parse an environment variable as integer, else a default value.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
