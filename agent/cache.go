package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

// Cache is the key/value core behind every namespaced Store.
type Cache[S any] interface {
	Set(ctx context.Context, key string, val S) error
	Get(ctx context.Context, key string) (S, bool, error)
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// MemoryCache keeps values in process. Values are stored as given, so callers
// holding pointers must copy before mutating.
type MemoryCache[S any] struct {
	mu sync.RWMutex
	m  map[string]S
}

func NewMemoryCache[S any]() *MemoryCache[S] {
	return &MemoryCache[S]{m: map[string]S{}}
}

func (m *MemoryCache[S]) Set(ctx context.Context, key string, val S) error {
	m.mu.Lock()
	m.m[key] = val
	m.mu.Unlock()
	return nil
}

func (m *MemoryCache[S]) Get(ctx context.Context, key string) (S, bool, error) {
	m.mu.RLock()
	val, ok := m.m[key]
	m.mu.RUnlock()
	return val, ok, nil
}

func (m *MemoryCache[S]) Del(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.m, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryCache[S]) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.RLock()
	_, ok := m.m[key]
	m.mu.RUnlock()
	return ok, nil
}

// RedisCache stores JSON-encoded values in redis under prefix:key.
type RedisCache[S any] struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisCache returns a redis-backed cache. A zero ttl keeps keys forever.
func NewRedisCache[S any](client redis.UniversalClient, prefix string, ttl time.Duration) *RedisCache[S] {
	return &RedisCache[S]{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisCache[S]) key(key string) string {
	if r.prefix == "" {
		return key
	}
	return r.prefix + ":" + key
}

func (r *RedisCache[S]) Set(ctx context.Context, key string, val S) error {
	raw, err := sonic.Marshal(val)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := r.client.Set(ctx, r.key(key), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *RedisCache[S]) Get(ctx context.Context, key string) (S, bool, error) {
	var zero S
	raw, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	var val S
	if err := sonic.Unmarshal(raw, &val); err != nil {
		return zero, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return val, true, nil
}

func (r *RedisCache[S]) Del(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

func (r *RedisCache[S]) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists %s: %w", key, err)
	}
	return n > 0, nil
}

var (
	_ Cache[int] = (*MemoryCache[int])(nil)
	_ Cache[int] = (*RedisCache[int])(nil)
)
