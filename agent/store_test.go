package agent

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cloudwego/eino/schema"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tbxark/salesagent/types"
)

func newRedisClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestStore_RequiresConversationID(t *testing.T) {
	store := NewStore[int](NewMemoryCache[int](), "ns", ConversationIDFromContext)
	ctx := context.Background()

	assert.ErrorIs(t, store.Set(ctx, 1), ErrNoConversationID)
	_, _, err := store.Get(ctx)
	assert.ErrorIs(t, err, ErrNoConversationID)
	assert.ErrorIs(t, store.Del(WithConversationID(ctx, "")), ErrNoConversationID)
}

func TestStore_NamespacesKeys(t *testing.T) {
	core := NewMemoryCache[int]()
	a := NewStore[int](core, "a", ConversationIDFromContext)
	b := NewStore[int](core, "b", ConversationIDFromContext)
	ctx := WithConversationID(context.Background(), "conv-1")

	require.NoError(t, a.Set(ctx, 1))
	require.NoError(t, b.Set(ctx, 2))

	v, ok, err := a.Get(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	exists, err := core.Exists(ctx, "b:conv-1")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, a.Del(ctx))
	exists, err = a.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRedisCache_RoundTrip(t *testing.T) {
	mr, client := newRedisClient(t)
	cache := NewRedisCache[*types.ConversationState](client, "test", time.Hour)
	ctx := context.Background()

	_, ok, err := cache.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	state := types.NewConversationState("conv-1")
	state.TurnNumber = 3
	state.Profile.Needs = []types.ProfileEntry{{Text: "controle de estoque", Status: types.EntryActive, SourceTurn: 2}}
	require.NoError(t, cache.Set(ctx, "conv-1", state))
	assert.True(t, mr.Exists("test:conv-1"))
	assert.Equal(t, time.Hour, mr.TTL("test:conv-1"))

	got, ok, err := cache.Get(ctx, "conv-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, got.TurnNumber)
	assert.Equal(t, "controle de estoque", got.Profile.Needs[0].Text)
	assert.Equal(t, types.GoalIdle, got.Goals.Top.Type)

	exists, err := cache.Exists(ctx, "conv-1")
	require.NoError(t, err)
	assert.True(t, exists)
	require.NoError(t, cache.Del(ctx, "conv-1"))
	exists, err = cache.Exists(ctx, "conv-1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRedisCache_DecodeError(t *testing.T) {
	mr, client := newRedisClient(t)
	require.NoError(t, mr.Set("test:bad", "not json"))
	cache := NewRedisCache[*types.ConversationState](client, "test", 0)

	_, _, err := cache.Get(context.Background(), "bad")
	assert.ErrorContains(t, err, "decode bad")
}

func TestStateStore_FreshAndIsolated(t *testing.T) {
	store := NewMemoryStateStore()
	ctx := WithConversationID(context.Background(), "conv-1")

	fresh, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "conv-1", fresh.ConversationID)
	assert.Equal(t, 0, fresh.TurnNumber)

	fresh.TurnNumber = 1
	require.NoError(t, store.Save(ctx, fresh))
	fresh.TurnNumber = 99

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.TurnNumber)

	loaded.Profile.Objections = append(loaded.Profile.Objections, types.ObjectionEntry{Text: "caro"})
	again, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, again.Profile.Objections)

	require.NoError(t, store.Remove(ctx))
	gone, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, gone.TurnNumber)
}

func TestKeepSystemLastNTrimmer(t *testing.T) {
	history := []*schema.Message{
		schema.SystemMessage("sys"),
		schema.UserMessage("u1"),
		nil,
		schema.AssistantMessage("a1", nil),
		schema.UserMessage("u2"),
		schema.AssistantMessage("a2", nil),
	}

	got := KeepSystemLastNTrimmer{N: 2}.Trim(history)
	require.Len(t, got, 3)
	assert.Equal(t, "sys", got[0].Content)
	assert.Equal(t, "u2", got[1].Content)
	assert.Equal(t, "a2", got[2].Content)

	onlySystem := KeepSystemLastNTrimmer{}.Trim(history)
	require.Len(t, onlySystem, 1)
	assert.Equal(t, schema.System, onlySystem[0].Role)
}

func TestHistoryStore_AppendTrims(t *testing.T) {
	_, client := newRedisClient(t)
	stores := map[string]*HistoryStore{
		"memory": NewMemoryHistoryStore(3),
		"redis":  NewHistoryStore(NewRedisCache[[]*schema.Message](client, "test", 0), KeepSystemLastNTrimmer{N: 3}),
	}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := WithConversationID(context.Background(), "conv-1")

			hist, err := store.Append(ctx, schema.UserMessage("ok"), schema.AssistantMessage("a1", nil))
			require.NoError(t, err)
			assert.Len(t, hist, 2)

			hist, err = store.Append(ctx, schema.UserMessage("ok"), nil, schema.AssistantMessage("a2", nil))
			require.NoError(t, err)
			require.Len(t, hist, 3)
			assert.Equal(t, "a1", hist[0].Content)
			assert.Equal(t, "ok", hist[1].Content, "repeated customer messages are kept")

			loaded, err := store.Load(ctx)
			require.NoError(t, err)
			assert.Len(t, loaded, 3)

			other, err := store.Load(WithConversationID(context.Background(), "conv-2"))
			require.NoError(t, err)
			assert.Empty(t, other)

			require.NoError(t, store.Clear(ctx))
			loaded, err = store.Load(ctx)
			require.NoError(t, err)
			assert.Empty(t, loaded)
		})
	}
}

func TestFollowUpIndex(t *testing.T) {
	_, client := newRedisClient(t)
	indexes := map[string]FollowUpIndex{
		"memory": NewMemoryFollowUpIndex(),
		"redis":  NewRedisFollowUpIndex(client, "test"),
	}
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for name, index := range indexes {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, index.Schedule(ctx, "late", base.Add(2*time.Hour)))
			require.NoError(t, index.Schedule(ctx, "b", base.Add(time.Minute)))
			require.NoError(t, index.Schedule(ctx, "a", base))

			due, err := index.Due(ctx, base.Add(time.Hour))
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "b"}, due)

			require.NoError(t, index.Schedule(ctx, "a", base.Add(3*time.Hour)))
			require.NoError(t, index.Cancel(ctx, "b"))
			due, err = index.Due(ctx, base.Add(time.Hour))
			require.NoError(t, err)
			assert.Empty(t, due)

			due, err = index.Due(ctx, base.Add(4*time.Hour))
			require.NoError(t, err)
			assert.Equal(t, []string{"late", "a"}, due)
		})
	}
}

func TestKeyedMutex_ReleasesEntries(t *testing.T) {
	k := newKeyedMutex()
	unlock, err := k.Lock(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.Len(t, k.locks, 1)
	unlock()
	assert.Empty(t, k.locks)
}

func TestRedisLocker_ExcludesOtherHolders(t *testing.T) {
	mr, client := newRedisClient(t)
	ctx := context.Background()
	first := NewRedisLocker(client, "test", WithLockWait(200*time.Millisecond))
	second := NewRedisLocker(client, "test", WithLockWait(200*time.Millisecond))

	unlock, err := first.Lock(ctx, "conv-1")
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:salesagent:lock:conv-1"))

	_, err = second.Lock(ctx, "conv-1")
	assert.ErrorIs(t, err, ErrConversationBusy)

	other, err := second.Lock(ctx, "conv-2")
	require.NoError(t, err)
	other()

	unlock()
	assert.False(t, mr.Exists("test:salesagent:lock:conv-1"))
	unlock, err = second.Lock(ctx, "conv-1")
	require.NoError(t, err)
	unlock()
}

func TestRedisLocker_WaitsForRelease(t *testing.T) {
	_, client := newRedisClient(t)
	ctx := context.Background()
	locker := NewRedisLocker(client, "test")

	unlock, err := locker.Lock(ctx, "conv-1")
	require.NoError(t, err)
	go func() {
		time.Sleep(100 * time.Millisecond)
		unlock()
	}()

	start := time.Now()
	again, err := locker.Lock(ctx, "conv-1")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
	again()
}

func TestRedisLocker_ExpiredHolderDoesNotReleaseNewHolder(t *testing.T) {
	mr, client := newRedisClient(t)
	ctx := context.Background()
	locker := NewRedisLocker(client, "test", WithLockTTL(time.Second), WithLockWait(200*time.Millisecond))

	stale, err := locker.Lock(ctx, "conv-1")
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	current, err := locker.Lock(ctx, "conv-1")
	require.NoError(t, err)
	stale()
	assert.True(t, mr.Exists("test:salesagent:lock:conv-1"))

	_, err = locker.Lock(ctx, "conv-1")
	assert.ErrorIs(t, err, ErrConversationBusy)
	current()
	assert.False(t, mr.Exists("test:salesagent:lock:conv-1"))
}

func TestRedisLocker_HonorsCallerContext(t *testing.T) {
	_, client := newRedisClient(t)
	locker := NewRedisLocker(client, "test")
	unlock, err := locker.Lock(context.Background(), "conv-1")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "conv-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
