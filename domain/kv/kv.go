// Package kv defines the auxiliary namespaced key-value store.
//
// The store holds caches, counters and settings. Nothing in it carries
// identity: clearing it never changes the graph.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"
)

// Namespace partitions keys.
type Namespace string

// Namespace values.
const (
	NamespaceCache    Namespace = "cache"
	NamespaceConfig   Namespace = "config"
	NamespaceMetadata Namespace = "metadata"
	NamespaceStats    Namespace = "stats"
	NamespaceSession  Namespace = "session"
	NamespaceFeature  Namespace = "feature"
)

// Namespaces returns every namespace.
func Namespaces() []Namespace {
	return []Namespace{
		NamespaceCache, NamespaceConfig, NamespaceMetadata,
		NamespaceStats, NamespaceSession, NamespaceFeature,
	}
}

// ErrInvalidNamespace is returned for namespaces outside Namespaces().
var ErrInvalidNamespace = errors.New("invalid kv namespace")

// ErrNotInteger is returned when Incr targets a non integer value.
var ErrNotInteger = errors.New("value is not an integer")

// ErrNotFloat is returned when IncrFloat targets a non numeric value.
var ErrNotFloat = errors.New("value is not a float")

// ParseNamespace converts a string to a Namespace.
func ParseNamespace(s string) (Namespace, error) {
	ns := Namespace(s)
	if err := ns.Validate(); err != nil {
		return "", err
	}
	return ns, nil
}

// Validate reports whether the namespace is known.
func (n Namespace) Validate() error {
	for _, ns := range Namespaces() {
		if n == ns {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrInvalidNamespace, string(n))
}

// TTL sentinels, as Redis reports them.
const (
	// TTLMissing is returned by TTL for a key that does not exist.
	TTLMissing time.Duration = -2 * time.Second
	// TTLPersistent is returned by TTL for a key without expiry.
	TTLPersistent time.Duration = -1 * time.Second
)

// Info summarises a store.
type Info struct {
	Backend     string              `json:"backend"`
	TotalKeys   int64               `json:"total_keys"`
	ExpiredKeys int64               `json:"expired_keys"`
	Namespaces  map[Namespace]int64 `json:"namespaces"`
}

// Store is a Redis-like key-value store. A zero ttl means no expiry.
type Store interface {
	Get(ctx context.Context, ns Namespace, key string) (string, bool, error)
	Set(ctx context.Context, ns Namespace, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, ns Namespace, key string) (bool, error)
	Exists(ctx context.Context, ns Namespace, key string) (bool, error)

	MGet(ctx context.Context, ns Namespace, keys ...string) (map[string]string, error)
	MSet(ctx context.Context, ns Namespace, values map[string]string, ttl time.Duration) error

	Incr(ctx context.Context, ns Namespace, key string, delta int64) (int64, error)
	IncrFloat(ctx context.Context, ns Namespace, key string, delta float64) (float64, error)

	// Keys returns keys matching a glob pattern ("*" and "?").
	Keys(ctx context.Context, ns Namespace, pattern string) ([]string, error)

	// Scan pages through keys matching a glob pattern. A returned cursor of
	// zero means iteration is complete.
	Scan(ctx context.Context, ns Namespace, match string, cursor uint64, count int) ([]string, uint64, error)

	HGet(ctx context.Context, ns Namespace, key, field string) (string, bool, error)
	HSet(ctx context.Context, ns Namespace, key, field, value string) error
	HGetAll(ctx context.Context, ns Namespace, key string) (map[string]string, error)
	HDel(ctx context.Context, ns Namespace, key string, fields ...string) (int64, error)

	// TTL returns the remaining lifetime, TTLMissing or TTLPersistent.
	TTL(ctx context.Context, ns Namespace, key string) (time.Duration, error)
	Expire(ctx context.Context, ns Namespace, key string, ttl time.Duration) (bool, error)
	Persist(ctx context.Context, ns Namespace, key string) (bool, error)

	CleanupExpired(ctx context.Context) (int64, error)
	FlushNamespace(ctx context.Context, ns Namespace) (int64, error)
	FlushAll(ctx context.Context) (int64, error)
	Info(ctx context.Context) (Info, error)
}

// Decr decrements a counter.
func Decr(ctx context.Context, s Store, ns Namespace, key string, delta int64) (int64, error) {
	return s.Incr(ctx, ns, key, -delta)
}

// GetJSON reads and decodes a JSON value.
func GetJSON[T any](ctx context.Context, s Store, ns Namespace, key string) (T, bool, error) {
	var out T
	raw, ok, err := s.Get(ctx, ns, key)
	if err != nil || !ok {
		return out, ok, err
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return out, false, fmt.Errorf("decode %s/%s: %w", ns, key, err)
	}
	return out, true, nil
}

// SetJSON encodes and writes a JSON value.
func SetJSON(ctx context.Context, s Store, ns Namespace, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", ns, key, err)
	}
	return s.Set(ctx, ns, key, string(raw), ttl)
}

// Match reports whether key matches a glob pattern. An empty pattern
// matches everything.
func Match(pattern, key string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	ok, err := path.Match(pattern, key)
	return err == nil && ok
}
