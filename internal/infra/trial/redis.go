package trial

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists per-installation trial counters. Keys are namespaced
// so the instance can be shared with other caches.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func key(installID string) string {
	return fmt.Sprintf("trial:%s", installID)
}

func (r *RedisStore) Get(ctx context.Context, installID string) (int, error) {
	n, err := r.client.Get(ctx, key(installID)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (r *RedisStore) Set(ctx context.Context, installID string, count int) error {
	return r.client.Set(ctx, key(installID), count, 0).Err()
}

// Connect dials redis and returns nil when the server is unreachable, so
// callers can degrade to the in-memory store instead of failing startup.
func Connect(addr, password string, db int) *redis.Client {
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil
	}
	return client
}
