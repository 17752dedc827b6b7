package persistence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/helixml/filegraph/domain/kv"
	"github.com/helixml/filegraph/internal/database"
)

var _ kv.Store = KVStore{}

// hashSeparator joins a hash key and a field into one row key.
const hashSeparator = ":"

// KVStore implements kv.Store on the key_value_store table. Expired rows
// are invisible to reads and removed by CleanupExpired.
type KVStore struct {
	db    database.Database
	retry RetryPolicy
	now   func() time.Time
}

// KVStoreOption configures a KVStore.
type KVStoreOption func(*KVStore)

// WithKVClock sets the time source used for expiry.
func WithKVClock(now func() time.Time) KVStoreOption {
	return func(s *KVStore) { s.now = now }
}

// NewKVStore creates a KVStore.
func NewKVStore(db database.Database, opts ...KVStoreOption) KVStore {
	s := KVStore{
		db:    db,
		retry: DefaultRetryPolicy(),
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

func (s KVStore) scoped(db *gorm.DB, ns kv.Namespace) *gorm.DB {
	return db.Model(&KeyValueModel{}).Where(map[string]any{"namespace": string(ns)})
}

func (s KVStore) live(ctx context.Context, ns kv.Namespace) *gorm.DB {
	return s.scoped(s.db.Session(ctx), ns).Where("(expires_at IS NULL OR expires_at > ?)", s.now())
}

func (s KVStore) expiry(ttl time.Duration) *time.Time {
	if ttl <= 0 {
		return nil
	}
	at := s.now().Add(ttl)
	return &at
}

func (s KVStore) isLive(m KeyValueModel) bool {
	return m.ExpiresAt == nil || m.ExpiresAt.After(s.now())
}

// Get returns the value of a key.
func (s KVStore) Get(ctx context.Context, ns kv.Namespace, key string) (string, bool, error) {
	if err := ns.Validate(); err != nil {
		return "", false, err
	}
	var m KeyValueModel
	err := s.live(ctx, ns).Where(map[string]any{"key": key}).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("kv get %s/%s: %w", ns, key, err)
	}
	return m.Value, true, nil
}

// Set writes a value. A zero ttl clears any expiry.
func (s KVStore) Set(ctx context.Context, ns kv.Namespace, key, value string, ttl time.Duration) error {
	return s.MSet(ctx, ns, map[string]string{key: value}, ttl)
}

// MSet writes several values with the same ttl.
func (s KVStore) MSet(ctx context.Context, ns kv.Namespace, values map[string]string, ttl time.Duration) error {
	if err := ns.Validate(); err != nil {
		return err
	}
	if len(values) == 0 {
		return nil
	}

	now := s.now()
	expiresAt := s.expiry(ttl)
	models := make([]KeyValueModel, 0, len(values))
	for key, value := range values {
		models = append(models, KeyValueModel{
			Namespace: string(ns),
			Key:       key,
			Value:     value,
			ExpiresAt: expiresAt,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	err := s.db.Session(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "namespace"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
	}).Create(&models).Error
	if err != nil {
		return fmt.Errorf("kv set %s: %w", ns, err)
	}
	return nil
}

// Delete removes a key.
func (s KVStore) Delete(ctx context.Context, ns kv.Namespace, key string) (bool, error) {
	n, err := s.deleteKeys(ctx, ns, key)
	return n > 0, err
}

func (s KVStore) deleteKeys(ctx context.Context, ns kv.Namespace, keys ...string) (int64, error) {
	if err := ns.Validate(); err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	result := s.live(ctx, ns).Where(map[string]any{"key": keys}).Delete(&KeyValueModel{})
	if result.Error != nil {
		return 0, fmt.Errorf("kv delete %s: %w", ns, result.Error)
	}
	return result.RowsAffected, nil
}

// Exists reports whether a key is present and not expired.
func (s KVStore) Exists(ctx context.Context, ns kv.Namespace, key string) (bool, error) {
	if err := ns.Validate(); err != nil {
		return false, err
	}
	var count int64
	if err := s.live(ctx, ns).Where(map[string]any{"key": key}).Count(&count).Error; err != nil {
		return false, fmt.Errorf("kv exists %s/%s: %w", ns, key, err)
	}
	return count > 0, nil
}

// MGet returns the values of the keys that exist.
func (s KVStore) MGet(ctx context.Context, ns kv.Namespace, keys ...string) (map[string]string, error) {
	if err := ns.Validate(); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	var models []KeyValueModel
	if err := s.live(ctx, ns).Where(map[string]any{"key": keys}).Find(&models).Error; err != nil {
		return nil, fmt.Errorf("kv mget %s: %w", ns, err)
	}
	for _, m := range models {
		out[m.Key] = m.Value
	}
	return out, nil
}

// Incr adds delta to an integer counter, creating it at zero.
func (s KVStore) Incr(ctx context.Context, ns kv.Namespace, key string, delta int64) (int64, error) {
	var result int64
	err := s.adjust(ctx, ns, key, func(current string) (string, error) {
		value := int64(0)
		if current != "" {
			parsed, err := strconv.ParseInt(current, 10, 64)
			if err != nil {
				return "", fmt.Errorf("%w: %s/%s", kv.ErrNotInteger, ns, key)
			}
			value = parsed
		}
		result = value + delta
		return strconv.FormatInt(result, 10), nil
	})
	return result, err
}

// IncrFloat adds delta to a float counter, creating it at zero.
func (s KVStore) IncrFloat(ctx context.Context, ns kv.Namespace, key string, delta float64) (float64, error) {
	var result float64
	err := s.adjust(ctx, ns, key, func(current string) (string, error) {
		value := 0.0
		if current != "" {
			parsed, err := strconv.ParseFloat(current, 64)
			if err != nil {
				return "", fmt.Errorf("%w: %s/%s", kv.ErrNotFloat, ns, key)
			}
			value = parsed
		}
		result = value + delta
		return strconv.FormatFloat(result, 'f', -1, 64), nil
	})
	return result, err
}

// adjust rewrites a value in a transaction. An expired key starts over
// without a ttl. PostgreSQL takes a row lock; SQLite writers are already
// serialized by its single connection.
func (s KVStore) adjust(ctx context.Context, ns kv.Namespace, key string, fn func(current string) (string, error)) error {
	if err := ns.Validate(); err != nil {
		return err
	}
	return s.retry.Do(ctx, func() error {
		return database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
			q := s.scoped(tx, ns).Where(map[string]any{"key": key})
			if s.db.IsPostgres() {
				q = q.Clauses(clause.Locking{Strength: "UPDATE"})
			}

			now := s.now()
			var m KeyValueModel
			err := q.Take(&m).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				next, err := fn("")
				if err != nil {
					return err
				}
				return tx.Create(&KeyValueModel{
					Namespace: string(ns),
					Key:       key,
					Value:     next,
					CreatedAt: now,
					UpdatedAt: now,
				}).Error
			}
			if err != nil {
				return fmt.Errorf("kv read %s/%s: %w", ns, key, err)
			}

			current := m.Value
			expiresAt := m.ExpiresAt
			if !s.isLive(m) {
				current = ""
				expiresAt = nil
			}
			next, err := fn(current)
			if err != nil {
				return err
			}
			return tx.Model(&KeyValueModel{}).Where("id = ?", m.ID).Updates(map[string]any{
				"value":      next,
				"expires_at": expiresAt,
				"updated_at": now,
			}).Error
		})
	})
}

// Keys returns the keys matching a glob pattern, sorted.
func (s KVStore) Keys(ctx context.Context, ns kv.Namespace, pattern string) ([]string, error) {
	if err := ns.Validate(); err != nil {
		return nil, err
	}
	var all []string
	if err := s.live(ctx, ns).Order(clause.OrderByColumn{Column: clause.Column{Name: "key"}}).Pluck("key", &all).Error; err != nil {
		return nil, fmt.Errorf("kv keys %s: %w", ns, err)
	}
	keys := make([]string, 0, len(all))
	for _, k := range all {
		if kv.Match(pattern, k) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// Scan pages through keys in insertion order. The cursor is the row id of
// the last row examined; a page may hold fewer than count keys when some
// rows do not match.
func (s KVStore) Scan(ctx context.Context, ns kv.Namespace, match string, cursor uint64, count int) ([]string, uint64, error) {
	if err := ns.Validate(); err != nil {
		return nil, 0, err
	}
	if count <= 0 {
		count = 10
	}

	var models []KeyValueModel
	if err := s.live(ctx, ns).Where("id > ?", int64(cursor)).Order("id").Limit(count).Find(&models).Error; err != nil {
		return nil, 0, fmt.Errorf("kv scan %s: %w", ns, err)
	}

	keys := make([]string, 0, len(models))
	for _, m := range models {
		if kv.Match(match, m.Key) {
			keys = append(keys, m.Key)
		}
	}
	if len(models) < count {
		return keys, 0, nil
	}

	last := models[len(models)-1].ID
	var more int64
	if err := s.live(ctx, ns).Where("id > ?", last).Count(&more).Error; err != nil {
		return nil, 0, fmt.Errorf("kv scan %s: %w", ns, err)
	}
	if more == 0 {
		return keys, 0, nil
	}
	return keys, uint64(last), nil
}

func hashKey(key, field string) string {
	return key + hashSeparator + field
}

// HGet returns one field of a hash.
func (s KVStore) HGet(ctx context.Context, ns kv.Namespace, key, field string) (string, bool, error) {
	return s.Get(ctx, ns, hashKey(key, field))
}

// HSet writes one field of a hash.
func (s KVStore) HSet(ctx context.Context, ns kv.Namespace, key, field, value string) error {
	return s.Set(ctx, ns, hashKey(key, field), value, 0)
}

// HGetAll returns every field of a hash.
func (s KVStore) HGetAll(ctx context.Context, ns kv.Namespace, key string) (map[string]string, error) {
	if err := ns.Validate(); err != nil {
		return nil, err
	}
	prefix := hashKey(key, "")
	var models []KeyValueModel
	if err := s.live(ctx, ns).Where(`"key" LIKE ? ESCAPE '\'`, escapeLike(prefix)+"%").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("kv hgetall %s/%s: %w", ns, key, err)
	}
	out := make(map[string]string, len(models))
	for _, m := range models {
		if field, ok := strings.CutPrefix(m.Key, prefix); ok {
			out[field] = m.Value
		}
	}
	return out, nil
}

// HDel removes fields of a hash.
func (s KVStore) HDel(ctx context.Context, ns kv.Namespace, key string, fields ...string) (int64, error) {
	keys := make([]string, len(fields))
	for i, f := range fields {
		keys[i] = hashKey(key, f)
	}
	return s.deleteKeys(ctx, ns, keys...)
}

// TTL returns the remaining lifetime of a key.
func (s KVStore) TTL(ctx context.Context, ns kv.Namespace, key string) (time.Duration, error) {
	if err := ns.Validate(); err != nil {
		return 0, err
	}
	var m KeyValueModel
	err := s.live(ctx, ns).Where(map[string]any{"key": key}).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return kv.TTLMissing, nil
	}
	if err != nil {
		return 0, fmt.Errorf("kv ttl %s/%s: %w", ns, key, err)
	}
	if m.ExpiresAt == nil {
		return kv.TTLPersistent, nil
	}
	return m.ExpiresAt.Sub(s.now()), nil
}

// Expire sets a ttl on an existing key. A non-positive ttl deletes it.
func (s KVStore) Expire(ctx context.Context, ns kv.Namespace, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return s.Delete(ctx, ns, key)
	}
	if err := ns.Validate(); err != nil {
		return false, err
	}
	result := s.live(ctx, ns).Where(map[string]any{"key": key}).Updates(map[string]any{
		"expires_at": s.expiry(ttl),
		"updated_at": s.now(),
	})
	if result.Error != nil {
		return false, fmt.Errorf("kv expire %s/%s: %w", ns, key, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// Persist removes the ttl of a key. It reports false when the key is
// missing or already persistent.
func (s KVStore) Persist(ctx context.Context, ns kv.Namespace, key string) (bool, error) {
	if err := ns.Validate(); err != nil {
		return false, err
	}
	result := s.live(ctx, ns).
		Where(map[string]any{"key": key}).
		Where("expires_at IS NOT NULL").
		Updates(map[string]any{"expires_at": nil, "updated_at": s.now()})
	if result.Error != nil {
		return false, fmt.Errorf("kv persist %s/%s: %w", ns, key, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// CleanupExpired deletes every expired row.
func (s KVStore) CleanupExpired(ctx context.Context) (int64, error) {
	result := s.db.Session(ctx).
		Where("expires_at IS NOT NULL AND expires_at <= ?", s.now()).
		Delete(&KeyValueModel{})
	if result.Error != nil {
		return 0, fmt.Errorf("kv cleanup: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// FlushNamespace deletes every row in a namespace.
func (s KVStore) FlushNamespace(ctx context.Context, ns kv.Namespace) (int64, error) {
	if err := ns.Validate(); err != nil {
		return 0, err
	}
	result := s.db.Session(ctx).Where(map[string]any{"namespace": string(ns)}).Delete(&KeyValueModel{})
	if result.Error != nil {
		return 0, fmt.Errorf("kv flush %s: %w", ns, result.Error)
	}
	return result.RowsAffected, nil
}

// FlushAll deletes every row.
func (s KVStore) FlushAll(ctx context.Context) (int64, error) {
	result := s.db.Session(ctx).Where("1 = 1").Delete(&KeyValueModel{})
	if result.Error != nil {
		return 0, fmt.Errorf("kv flush all: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Info reports row counts. Expired rows still count until cleaned up.
func (s KVStore) Info(ctx context.Context) (kv.Info, error) {
	db := s.db.Session(ctx)
	info := kv.Info{Backend: "sql", Namespaces: map[kv.Namespace]int64{}}

	if err := db.Model(&KeyValueModel{}).Count(&info.TotalKeys).Error; err != nil {
		return kv.Info{}, fmt.Errorf("kv info: %w", err)
	}
	if err := db.Model(&KeyValueModel{}).
		Where("expires_at IS NOT NULL AND expires_at <= ?", s.now()).
		Count(&info.ExpiredKeys).Error; err != nil {
		return kv.Info{}, fmt.Errorf("kv info: %w", err)
	}

	var rows []struct {
		Namespace string
		Count     int64
	}
	if err := db.Model(&KeyValueModel{}).
		Select("namespace, COUNT(*) AS count").
		Group("namespace").
		Scan(&rows).Error; err != nil {
		return kv.Info{}, fmt.Errorf("kv info: %w", err)
	}
	for _, r := range rows {
		info.Namespaces[kv.Namespace(r.Namespace)] = r.Count
	}
	return info, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
