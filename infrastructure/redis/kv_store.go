// Package redis implements the key-value store on Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/helixml/filegraph/domain/kv"
)

// DefaultPrefix is prepended to every key.
const DefaultPrefix = "filegraph"

var _ kv.Store = (*KVStore)(nil)

// Options configures the Redis connection.
type Options struct {
	// URL is the Redis connection string (e.g. "redis://localhost:6379/0").
	URL string

	// Prefix namespaces keys so several applications can share a server.
	Prefix string

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KVStore implements kv.Store with native Redis commands. Keys are stored as
// "<prefix>:<namespace>:<key>" and hashes are native Redis hashes.
type KVStore struct {
	client *goredis.Client
	prefix string
}

// NewKVStore connects to Redis and verifies the connection.
func NewKVStore(ctx context.Context, opts Options) (*KVStore, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 3 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 3 * time.Second
	}

	redisOpts, err := goredis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	redisOpts.DialTimeout = opts.DialTimeout
	redisOpts.ReadTimeout = opts.ReadTimeout
	redisOpts.WriteTimeout = opts.WriteTimeout

	client := goredis.NewClient(redisOpts)

	pingCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewKVStoreFromClient(client, opts.Prefix), nil
}

// NewKVStoreFromClient wraps an existing client.
func NewKVStoreFromClient(client *goredis.Client, prefix string) *KVStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &KVStore{client: client, prefix: prefix}
}

// Close closes the Redis connection.
func (s *KVStore) Close() error {
	return s.client.Close()
}

func (s *KVStore) nsPrefix(ns kv.Namespace) string {
	return s.prefix + ":" + string(ns) + ":"
}

func (s *KVStore) key(ns kv.Namespace, key string) string {
	return s.nsPrefix(ns) + key
}

// Get returns the value of a key.
func (s *KVStore) Get(ctx context.Context, ns kv.Namespace, key string) (string, bool, error) {
	if err := ns.Validate(); err != nil {
		return "", false, err
	}
	value, err := s.client.Get(ctx, s.key(ns, key)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s/%s: %w", ns, key, err)
	}
	return value, true, nil
}

// Set writes a value. A zero ttl clears any expiry.
func (s *KVStore) Set(ctx context.Context, ns kv.Namespace, key, value string, ttl time.Duration) error {
	if err := ns.Validate(); err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(ns, key), value, positive(ttl)).Err(); err != nil {
		return fmt.Errorf("redis set %s/%s: %w", ns, key, err)
	}
	return nil
}

// Delete removes a key.
func (s *KVStore) Delete(ctx context.Context, ns kv.Namespace, key string) (bool, error) {
	if err := ns.Validate(); err != nil {
		return false, err
	}
	n, err := s.client.Del(ctx, s.key(ns, key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis del %s/%s: %w", ns, key, err)
	}
	return n > 0, nil
}

// Exists reports whether a key is present.
func (s *KVStore) Exists(ctx context.Context, ns kv.Namespace, key string) (bool, error) {
	if err := ns.Validate(); err != nil {
		return false, err
	}
	n, err := s.client.Exists(ctx, s.key(ns, key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists %s/%s: %w", ns, key, err)
	}
	return n > 0, nil
}

// MGet returns the values of the keys that exist.
func (s *KVStore) MGet(ctx context.Context, ns kv.Namespace, keys ...string) (map[string]string, error) {
	if err := ns.Validate(); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(ns, k)
	}
	values, err := s.client.MGet(ctx, full...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget %s: %w", ns, err)
	}
	for i, v := range values {
		if str, ok := v.(string); ok {
			out[keys[i]] = str
		}
	}
	return out, nil
}

// MSet writes several values atomically with the same ttl.
func (s *KVStore) MSet(ctx context.Context, ns kv.Namespace, values map[string]string, ttl time.Duration) error {
	if err := ns.Validate(); err != nil {
		return err
	}
	if len(values) == 0 {
		return nil
	}
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		for k, v := range values {
			pipe.Set(ctx, s.key(ns, k), v, positive(ttl))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis mset %s: %w", ns, err)
	}
	return nil
}

// Incr adds delta to an integer counter.
func (s *KVStore) Incr(ctx context.Context, ns kv.Namespace, key string, delta int64) (int64, error) {
	if err := ns.Validate(); err != nil {
		return 0, err
	}
	n, err := s.client.IncrBy(ctx, s.key(ns, key), delta).Result()
	if err != nil {
		if isValueError(err) {
			return 0, fmt.Errorf("%w: %s/%s", kv.ErrNotInteger, ns, key)
		}
		return 0, fmt.Errorf("redis incrby %s/%s: %w", ns, key, err)
	}
	return n, nil
}

// IncrFloat adds delta to a float counter.
func (s *KVStore) IncrFloat(ctx context.Context, ns kv.Namespace, key string, delta float64) (float64, error) {
	if err := ns.Validate(); err != nil {
		return 0, err
	}
	f, err := s.client.IncrByFloat(ctx, s.key(ns, key), delta).Result()
	if err != nil {
		if isValueError(err) {
			return 0, fmt.Errorf("%w: %s/%s", kv.ErrNotFloat, ns, key)
		}
		return 0, fmt.Errorf("redis incrbyfloat %s/%s: %w", ns, key, err)
	}
	return f, nil
}

// Keys returns the keys matching a glob pattern, sorted. It iterates with
// SCAN rather than KEYS so large namespaces do not block the server.
func (s *KVStore) Keys(ctx context.Context, ns kv.Namespace, pattern string) ([]string, error) {
	if err := ns.Validate(); err != nil {
		return nil, err
	}
	var keys []string
	err := s.scanAll(ctx, ns, pattern, func(batch []string) error {
		keys = append(keys, batch...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	if keys == nil {
		keys = []string{}
	}
	return keys, nil
}

// Scan pages through keys with the Redis cursor.
func (s *KVStore) Scan(ctx context.Context, ns kv.Namespace, match string, cursor uint64, count int) ([]string, uint64, error) {
	if err := ns.Validate(); err != nil {
		return nil, 0, err
	}
	if count <= 0 {
		count = 10
	}
	raw, next, err := s.client.Scan(ctx, cursor, s.pattern(ns, match), int64(count)).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("redis scan %s: %w", ns, err)
	}
	return s.strip(ns, raw), next, nil
}

func (s *KVStore) pattern(ns kv.Namespace, match string) string {
	if match == "" {
		match = "*"
	}
	return s.nsPrefix(ns) + match
}

func (s *KVStore) strip(ns kv.Namespace, raw []string) []string {
	prefix := s.nsPrefix(ns)
	out := make([]string, 0, len(raw))
	for _, k := range raw {
		out = append(out, strings.TrimPrefix(k, prefix))
	}
	return out
}

func (s *KVStore) scanAll(ctx context.Context, ns kv.Namespace, match string, fn func(batch []string) error) error {
	var cursor uint64
	for {
		raw, next, err := s.client.Scan(ctx, cursor, s.pattern(ns, match), 500).Result()
		if err != nil {
			return fmt.Errorf("redis scan %s: %w", ns, err)
		}
		if len(raw) > 0 {
			if err := fn(s.strip(ns, raw)); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// HGet returns one field of a hash.
func (s *KVStore) HGet(ctx context.Context, ns kv.Namespace, key, field string) (string, bool, error) {
	if err := ns.Validate(); err != nil {
		return "", false, err
	}
	value, err := s.client.HGet(ctx, s.key(ns, key), field).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis hget %s/%s: %w", ns, key, err)
	}
	return value, true, nil
}

// HSet writes one field of a hash.
func (s *KVStore) HSet(ctx context.Context, ns kv.Namespace, key, field, value string) error {
	if err := ns.Validate(); err != nil {
		return err
	}
	if err := s.client.HSet(ctx, s.key(ns, key), field, value).Err(); err != nil {
		return fmt.Errorf("redis hset %s/%s: %w", ns, key, err)
	}
	return nil
}

// HGetAll returns every field of a hash.
func (s *KVStore) HGetAll(ctx context.Context, ns kv.Namespace, key string) (map[string]string, error) {
	if err := ns.Validate(); err != nil {
		return nil, err
	}
	values, err := s.client.HGetAll(ctx, s.key(ns, key)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall %s/%s: %w", ns, key, err)
	}
	return values, nil
}

// HDel removes fields of a hash.
func (s *KVStore) HDel(ctx context.Context, ns kv.Namespace, key string, fields ...string) (int64, error) {
	if err := ns.Validate(); err != nil {
		return 0, err
	}
	if len(fields) == 0 {
		return 0, nil
	}
	n, err := s.client.HDel(ctx, s.key(ns, key), fields...).Result()
	if err != nil {
		return 0, fmt.Errorf("redis hdel %s/%s: %w", ns, key, err)
	}
	return n, nil
}

// TTL returns the remaining lifetime of a key.
func (s *KVStore) TTL(ctx context.Context, ns kv.Namespace, key string) (time.Duration, error) {
	if err := ns.Validate(); err != nil {
		return 0, err
	}
	d, err := s.client.PTTL(ctx, s.key(ns, key)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis pttl %s/%s: %w", ns, key, err)
	}
	// go-redis reports the -2 and -1 replies unscaled.
	switch d {
	case -2:
		return kv.TTLMissing, nil
	case -1:
		return kv.TTLPersistent, nil
	}
	return d, nil
}

// Expire sets a ttl on an existing key. A non-positive ttl deletes it.
func (s *KVStore) Expire(ctx context.Context, ns kv.Namespace, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return s.Delete(ctx, ns, key)
	}
	if err := ns.Validate(); err != nil {
		return false, err
	}
	ok, err := s.client.PExpire(ctx, s.key(ns, key), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis pexpire %s/%s: %w", ns, key, err)
	}
	return ok, nil
}

// Persist removes the ttl of a key.
func (s *KVStore) Persist(ctx context.Context, ns kv.Namespace, key string) (bool, error) {
	if err := ns.Validate(); err != nil {
		return false, err
	}
	ok, err := s.client.Persist(ctx, s.key(ns, key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis persist %s/%s: %w", ns, key, err)
	}
	return ok, nil
}

// CleanupExpired is a no-op: Redis evicts expired keys itself.
func (s *KVStore) CleanupExpired(context.Context) (int64, error) {
	return 0, nil
}

// FlushNamespace deletes every key in a namespace.
func (s *KVStore) FlushNamespace(ctx context.Context, ns kv.Namespace) (int64, error) {
	if err := ns.Validate(); err != nil {
		return 0, err
	}
	var deleted int64
	err := s.scanAll(ctx, ns, "*", func(batch []string) error {
		full := make([]string, len(batch))
		for i, k := range batch {
			full[i] = s.key(ns, k)
		}
		n, err := s.client.Del(ctx, full...).Result()
		if err != nil {
			return fmt.Errorf("redis del %s: %w", ns, err)
		}
		deleted += n
		return nil
	})
	return deleted, err
}

// FlushAll deletes every key of every namespace. Keys outside the prefix
// are left alone.
func (s *KVStore) FlushAll(ctx context.Context) (int64, error) {
	var total int64
	for _, ns := range kv.Namespaces() {
		n, err := s.FlushNamespace(ctx, ns)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// Info counts keys per namespace.
func (s *KVStore) Info(ctx context.Context) (kv.Info, error) {
	info := kv.Info{Backend: "redis", Namespaces: map[kv.Namespace]int64{}}
	for _, ns := range kv.Namespaces() {
		var n int64
		err := s.scanAll(ctx, ns, "*", func(batch []string) error {
			n += int64(len(batch))
			return nil
		})
		if err != nil {
			return kv.Info{}, err
		}
		if n > 0 {
			info.Namespaces[ns] = n
		}
		info.TotalKeys += n
	}
	return info, nil
}

func positive(ttl time.Duration) time.Duration {
	if ttl < 0 {
		return 0
	}
	return ttl
}

func isValueError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "not an integer") || strings.Contains(msg, "not a valid float")
}
