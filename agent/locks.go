package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrConversationBusy is returned when another turn of the conversation held
// the lock for longer than the lock wait.
var ErrConversationBusy = errors.New("conversation busy")

// Locker serializes turns per conversation.
type Locker interface {
	Lock(ctx context.Context, conversationID string) (unlock func(), err error)
}

// keyedMutex serializes turns within one process. Entries are dropped once no
// turn holds or waits for them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: map[string]*refMutex{}}
}

func (k *keyedMutex) Lock(ctx context.Context, key string) (unlock func(), err error) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refMutex{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}, nil
}

const (
	DefaultLockTTL  = 2 * time.Minute
	DefaultLockWait = 30 * time.Second

	lockRetryInterval = 50 * time.Millisecond
	lockReleaseWait   = 5 * time.Second
)

// releaseLockScript deletes the lock only while it still holds our token, so
// a holder whose lock expired never frees someone else's.
const releaseLockScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

type RedisLockerOption func(*RedisLocker)

// WithLockTTL bounds how long a crashed holder keeps a conversation locked.
func WithLockTTL(ttl time.Duration) RedisLockerOption {
	return func(l *RedisLocker) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithLockWait bounds how long Lock waits for another holder.
func WithLockWait(wait time.Duration) RedisLockerOption {
	return func(l *RedisLocker) {
		if wait > 0 {
			l.wait = wait
		}
	}
}

// RedisLocker serializes turns across engine instances sharing one redis.
type RedisLocker struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	wait   time.Duration
}

func NewRedisLocker(client redis.UniversalClient, prefix string, opts ...RedisLockerOption) *RedisLocker {
	l := &RedisLocker{
		client: client,
		prefix: prefix,
		ttl:    DefaultLockTTL,
		wait:   DefaultLockWait,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *RedisLocker) key(conversationID string) string {
	key := "salesagent:lock:" + conversationID
	if l.prefix != "" {
		key = l.prefix + ":" + key
	}
	return key
}

func (l *RedisLocker) Lock(ctx context.Context, conversationID string) (unlock func(), err error) {
	key := l.key(conversationID)
	token := uuid.NewString()

	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()
	ticker := time.NewTicker(lockRetryInterval)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(waitCtx, key, token, l.ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if waitCtx.Err() != nil {
				return nil, fmt.Errorf("%w: %s", ErrConversationBusy, conversationID)
			}
			return nil, fmt.Errorf("acquire lock %s: %w", conversationID, err)
		}
		if ok {
			return func() { l.release(key, token) }, nil
		}
		select {
		case <-waitCtx.Done():
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %s", ErrConversationBusy, conversationID)
		case <-ticker.C:
		}
	}
}

func (l *RedisLocker) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), lockReleaseWait)
	defer cancel()
	if err := l.client.Eval(ctx, releaseLockScript, []string{key}, token).Err(); err != nil {
		slog.Warn("release conversation lock failed", "key", key, "error", err)
	}
}

var (
	_ Locker = (*keyedMutex)(nil)
	_ Locker = (*RedisLocker)(nil)
)
