package agent

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// FollowUpIndex tracks which conversations are waiting for a follow-up
// timeout and when it fires.
type FollowUpIndex interface {
	Schedule(ctx context.Context, conversationID string, due time.Time) error
	Cancel(ctx context.Context, conversationID string) error
	// Due lists the conversations whose timeout is at or before now, earliest
	// first.
	Due(ctx context.Context, now time.Time) ([]string, error)
}

type MemoryFollowUpIndex struct {
	mu  sync.Mutex
	due map[string]time.Time
}

func NewMemoryFollowUpIndex() *MemoryFollowUpIndex {
	return &MemoryFollowUpIndex{due: map[string]time.Time{}}
}

func (m *MemoryFollowUpIndex) Schedule(ctx context.Context, conversationID string, due time.Time) error {
	m.mu.Lock()
	m.due[conversationID] = due
	m.mu.Unlock()
	return nil
}

func (m *MemoryFollowUpIndex) Cancel(ctx context.Context, conversationID string) error {
	m.mu.Lock()
	delete(m.due, conversationID)
	m.mu.Unlock()
	return nil
}

func (m *MemoryFollowUpIndex) Due(ctx context.Context, now time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, due := range m.due {
		if !due.After(now) {
			ids = append(ids, id)
		}
	}
	slices.SortFunc(ids, func(a, b string) int {
		if c := m.due[a].Compare(m.due[b]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	return ids, nil
}

// RedisFollowUpIndex keeps due times in a sorted set scored by unix
// milliseconds, so every engine instance sees the same schedule.
type RedisFollowUpIndex struct {
	client redis.UniversalClient
	key    string
}

func NewRedisFollowUpIndex(client redis.UniversalClient, prefix string) *RedisFollowUpIndex {
	key := "DueFollowUps"
	if prefix != "" {
		key = prefix + ":" + key
	}
	return &RedisFollowUpIndex{client: client, key: key}
}

func (r *RedisFollowUpIndex) Schedule(ctx context.Context, conversationID string, due time.Time) error {
	err := r.client.ZAdd(ctx, r.key, redis.Z{Score: float64(due.UnixMilli()), Member: conversationID}).Err()
	if err != nil {
		return fmt.Errorf("schedule follow-up %s: %w", conversationID, err)
	}
	return nil
}

func (r *RedisFollowUpIndex) Cancel(ctx context.Context, conversationID string) error {
	if err := r.client.ZRem(ctx, r.key, conversationID).Err(); err != nil {
		return fmt.Errorf("cancel follow-up %s: %w", conversationID, err)
	}
	return nil
}

func (r *RedisFollowUpIndex) Due(ctx context.Context, now time.Time) ([]string, error) {
	ids, err := r.client.ZRangeByScore(ctx, r.key, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("list due follow-ups: %w", err)
	}
	return ids, nil
}

var (
	_ FollowUpIndex = (*MemoryFollowUpIndex)(nil)
	_ FollowUpIndex = (*RedisFollowUpIndex)(nil)
)
