package persistence

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixml/filegraph/domain/kv"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestKV(t *testing.T) (KVStore, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	return NewKVStore(newTestDB(t), WithKVClock(clock.Now)), clock
}

func TestKVStore_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestKV(t)

	_, ok, err := s.Get(ctx, kv.NamespaceCache, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, kv.NamespaceCache, "greeting", "hello", 0))
	require.NoError(t, s.Set(ctx, kv.NamespaceCache, "greeting", "hi", 0))
	value, ok, err := s.Get(ctx, kv.NamespaceCache, "greeting")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "hi", value)

	_, ok, err = s.Get(ctx, kv.NamespaceConfig, "greeting")
	require.NoError(t, err)
	assert.False(t, ok, "namespaces are isolated")

	deleted, err := s.Delete(ctx, kv.NamespaceCache, "greeting")
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = s.Delete(ctx, kv.NamespaceCache, "greeting")
	require.NoError(t, err)
	assert.False(t, deleted)

	err = s.Set(ctx, kv.Namespace("bogus"), "k", "v", 0)
	assert.ErrorIs(t, err, kv.ErrInvalidNamespace)
}

func TestKVStore_MGetMSet(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestKV(t)

	require.NoError(t, s.MSet(ctx, kv.NamespaceStats, map[string]string{"a": "1", "b": "2"}, 0))
	values, err := s.MGet(ctx, kv.NamespaceStats, "a", "b", "c")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, values)
}

func TestKVStore_Counters(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestKV(t)

	n, err := s.Incr(ctx, kv.NamespaceStats, "hits", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = s.Incr(ctx, kv.NamespaceStats, "hits", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)
	n, err = kv.Decr(ctx, s, kv.NamespaceStats, "hits", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	f, err := s.IncrFloat(ctx, kv.NamespaceStats, "score", 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, f, 1e-9)

	require.NoError(t, s.Set(ctx, kv.NamespaceStats, "name", "ada", 0))
	_, err = s.Incr(ctx, kv.NamespaceStats, "name", 1)
	assert.ErrorIs(t, err, kv.ErrNotInteger)
	_, err = s.IncrFloat(ctx, kv.NamespaceStats, "name", 1)
	assert.ErrorIs(t, err, kv.ErrNotFloat)
}

func TestKVStore_ConcurrentIncr(t *testing.T) {
	ctx := context.Background()
	s := NewKVStore(newFileTestDB(t))

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Incr(ctx, kv.NamespaceStats, "counter", 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	value, ok, err := s.Get(ctx, kv.NamespaceStats, "counter")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "20", value)
}

func TestKVStore_KeysAndScan(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestKV(t)

	for _, k := range []string{"user:1", "user:2", "user:10", "session:1", "100%_real"} {
		require.NoError(t, s.Set(ctx, kv.NamespaceCache, k, "x", 0))
	}

	keys, err := s.Keys(ctx, kv.NamespaceCache, "user:?")
	require.NoError(t, err)
	assert.Equal(t, []string{"user:1", "user:2"}, keys)

	keys, err = s.Keys(ctx, kv.NamespaceCache, "*")
	require.NoError(t, err)
	assert.Len(t, keys, 5)

	var scanned []string
	cursor := uint64(0)
	for {
		page, next, err := s.Scan(ctx, kv.NamespaceCache, "user:*", cursor, 2)
		require.NoError(t, err)
		scanned = append(scanned, page...)
		if next == 0 {
			break
		}
		cursor = next
	}
	sort.Strings(scanned)
	assert.Equal(t, []string{"user:1", "user:10", "user:2"}, scanned)
}

func TestKVStore_Hashes(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestKV(t)

	require.NoError(t, s.HSet(ctx, kv.NamespaceMetadata, "file:1", "title", "Report"))
	require.NoError(t, s.HSet(ctx, kv.NamespaceMetadata, "file:1", "pages", "12"))
	require.NoError(t, s.HSet(ctx, kv.NamespaceMetadata, "file:10", "title", "Other"))

	title, ok, err := s.HGet(ctx, kv.NamespaceMetadata, "file:1", "title")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Report", title)

	all, err := s.HGetAll(ctx, kv.NamespaceMetadata, "file:1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"title": "Report", "pages": "12"}, all)

	n, err := s.HDel(ctx, kv.NamespaceMetadata, "file:1", "pages", "missing")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestKVStore_TTL(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestKV(t)

	ttl, err := s.TTL(ctx, kv.NamespaceSession, "token")
	require.NoError(t, err)
	assert.Equal(t, kv.TTLMissing, ttl)

	require.NoError(t, s.Set(ctx, kv.NamespaceSession, "token", "abc", time.Minute))
	ttl, err = s.TTL(ctx, kv.NamespaceSession, "token")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, ttl)

	persisted, err := s.Persist(ctx, kv.NamespaceSession, "token")
	require.NoError(t, err)
	assert.True(t, persisted)
	ttl, err = s.TTL(ctx, kv.NamespaceSession, "token")
	require.NoError(t, err)
	assert.Equal(t, kv.TTLPersistent, ttl)

	ok, err := s.Expire(ctx, kv.NamespaceSession, "token", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	clock.Advance(11 * time.Second)
	_, found, err := s.Get(ctx, kv.NamespaceSession, "token")
	require.NoError(t, err)
	assert.False(t, found, "expired keys are invisible")

	exists, err := s.Exists(ctx, kv.NamespaceSession, "token")
	require.NoError(t, err)
	assert.False(t, exists)

	info, err := s.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), info.ExpiredKeys)

	removed, err := s.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	n, err := s.Incr(ctx, kv.NamespaceSession, "token", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestKVStore_FlushAndInfo(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestKV(t)

	require.NoError(t, s.Set(ctx, kv.NamespaceCache, "a", "1", 0))
	require.NoError(t, s.Set(ctx, kv.NamespaceCache, "b", "1", 0))
	require.NoError(t, s.Set(ctx, kv.NamespaceConfig, "c", "1", 0))

	info, err := s.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sql", info.Backend)
	assert.Equal(t, int64(3), info.TotalKeys)
	assert.Equal(t, int64(2), info.Namespaces[kv.NamespaceCache])

	n, err := s.FlushNamespace(ctx, kv.NamespaceCache)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = s.FlushAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
