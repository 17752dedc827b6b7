package redis_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixml/filegraph/domain/kv"
	"github.com/helixml/filegraph/infrastructure/redis"
)

func newTestStore(t *testing.T) (*redis.KVStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := redis.NewKVStore(context.Background(), redis.Options{
		URL: fmt.Sprintf("redis://%s", mr.Addr()),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestNewKVStore_BadURL(t *testing.T) {
	_, err := redis.NewKVStore(context.Background(), redis.Options{URL: "not a url"})
	assert.Error(t, err)
}

func TestNewKVStore_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := redis.NewKVStore(context.Background(), redis.Options{
		URL:         fmt.Sprintf("redis://%s", addr),
		DialTimeout: 200 * time.Millisecond,
	})
	assert.Error(t, err)
}

func TestKVStore_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)

	require.NoError(t, store.Set(ctx, kv.NamespaceCache, "a", "1", 0))
	raw, err := mr.Get("filegraph:cache:a")
	require.NoError(t, err)
	assert.Equal(t, "1", raw)

	value, ok, err := store.Get(ctx, kv.NamespaceCache, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", value)

	_, ok, err = store.Get(ctx, kv.NamespaceConfig, "a")
	require.NoError(t, err)
	assert.False(t, ok, "namespaces are isolated")

	exists, err := store.Exists(ctx, kv.NamespaceCache, "a")
	require.NoError(t, err)
	assert.True(t, exists)

	deleted, err := store.Delete(ctx, kv.NamespaceCache, "a")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = store.Delete(ctx, kv.NamespaceCache, "a")
	require.NoError(t, err)
	assert.False(t, deleted)

	_, _, err = store.Get(ctx, kv.Namespace("bogus"), "a")
	assert.ErrorIs(t, err, kv.ErrInvalidNamespace)
}

func TestKVStore_MGetMSet(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	require.NoError(t, store.MSet(ctx, kv.NamespaceMetadata, map[string]string{"x": "1", "y": "2"}, 0))

	got, err := store.MGet(ctx, kv.NamespaceMetadata, "x", "y", "z")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"x": "1", "y": "2"}, got)
}

func TestKVStore_Counters(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	n, err := store.Incr(ctx, kv.NamespaceStats, "hits", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	n, err = kv.Decr(ctx, store, kv.NamespaceStats, "hits", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	f, err := store.IncrFloat(ctx, kv.NamespaceStats, "ratio", 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, f, 1e-9)

	require.NoError(t, store.Set(ctx, kv.NamespaceStats, "word", "abc", 0))
	_, err = store.Incr(ctx, kv.NamespaceStats, "word", 1)
	assert.ErrorIs(t, err, kv.ErrNotInteger)
	_, err = store.IncrFloat(ctx, kv.NamespaceStats, "word", 1)
	assert.ErrorIs(t, err, kv.ErrNotFloat)
}

func TestKVStore_KeysAndScan(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	for _, k := range []string{"user:1", "user:2", "team:1"} {
		require.NoError(t, store.Set(ctx, kv.NamespaceSession, k, "v", 0))
	}
	require.NoError(t, store.Set(ctx, kv.NamespaceCache, "user:3", "v", 0))

	keys, err := store.Keys(ctx, kv.NamespaceSession, "user:*")
	require.NoError(t, err)
	assert.Equal(t, []string{"user:1", "user:2"}, keys)

	var seen []string
	var cursor uint64
	for {
		batch, next, err := store.Scan(ctx, kv.NamespaceSession, "*", cursor, 1)
		require.NoError(t, err)
		seen = append(seen, batch...)
		if next == 0 {
			break
		}
		cursor = next
	}
	assert.ElementsMatch(t, []string{"user:1", "user:2", "team:1"}, seen)
}

func TestKVStore_Hashes(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	require.NoError(t, store.HSet(ctx, kv.NamespaceConfig, "flags", "dark", "on"))
	require.NoError(t, store.HSet(ctx, kv.NamespaceConfig, "flags", "beta", "off"))

	value, ok, err := store.HGet(ctx, kv.NamespaceConfig, "flags", "dark")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "on", value)

	all, err := store.HGetAll(ctx, kv.NamespaceConfig, "flags")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"dark": "on", "beta": "off"}, all)

	n, err := store.HDel(ctx, kv.NamespaceConfig, "flags", "dark", "missing")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, ok, err = store.HGet(ctx, kv.NamespaceConfig, "flags", "dark")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestKVStore_TTL(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)

	ttl, err := store.TTL(ctx, kv.NamespaceCache, "missing")
	require.NoError(t, err)
	assert.Equal(t, kv.TTLMissing, ttl)

	require.NoError(t, store.Set(ctx, kv.NamespaceCache, "forever", "v", 0))
	ttl, err = store.TTL(ctx, kv.NamespaceCache, "forever")
	require.NoError(t, err)
	assert.Equal(t, kv.TTLPersistent, ttl)

	require.NoError(t, store.Set(ctx, kv.NamespaceCache, "short", "v", time.Minute))
	ttl, err = store.TTL(ctx, kv.NamespaceCache, "short")
	require.NoError(t, err)
	assert.Greater(t, ttl, 50*time.Second)

	ok, err := store.Persist(ctx, kv.NamespaceCache, "short")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Expire(ctx, kv.NamespaceCache, "short", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(2 * time.Second)
	_, found, err := store.Get(ctx, kv.NamespaceCache, "short")
	require.NoError(t, err)
	assert.False(t, found)

	ok, err = store.Expire(ctx, kv.NamespaceCache, "forever", 0)
	require.NoError(t, err)
	assert.True(t, ok)
	exists, err := store.Exists(ctx, kv.NamespaceCache, "forever")
	require.NoError(t, err)
	assert.False(t, exists)

	n, err := store.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestKVStore_FlushAndInfo(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)

	require.NoError(t, mr.Set("other-app:key", "keep"))
	require.NoError(t, store.Set(ctx, kv.NamespaceCache, "a", "1", 0))
	require.NoError(t, store.Set(ctx, kv.NamespaceCache, "b", "1", 0))
	require.NoError(t, store.Set(ctx, kv.NamespaceStats, "c", "1", 0))

	info, err := store.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, "redis", info.Backend)
	assert.Equal(t, int64(3), info.TotalKeys)
	assert.Equal(t, int64(2), info.Namespaces[kv.NamespaceCache])

	n, err := store.FlushNamespace(ctx, kv.NamespaceCache)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = store.FlushAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	assert.True(t, mr.Exists("other-app:key"), "keys outside the prefix survive")
}
