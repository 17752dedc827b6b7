package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"gorm.io/gorm"
)

// TxOption configures a transaction.
type TxOption func(*txSettings)

type txSettings struct {
	lockKeys []string
}

// WithAdvisoryLocks makes the transaction take a PostgreSQL transaction
// scoped advisory lock on every key right after BEGIN. Keys are locked in
// ascending order so concurrent writers cannot deadlock, and the locks are
// released on commit or rollback. SQLite serializes writers on its single
// connection and ignores the option.
func WithAdvisoryLocks(keys ...string) TxOption {
	return func(s *txSettings) { s.lockKeys = append(s.lockKeys, keys...) }
}

// WithTransaction runs fn in a transaction, committing when fn returns nil
// and rolling back otherwise.
func WithTransaction(ctx context.Context, db Database, fn func(tx *gorm.DB) error, opts ...TxOption) error {
	_, err := WithTransactionResult(ctx, db, func(tx *gorm.DB) (struct{}, error) {
		return struct{}{}, fn(tx)
	}, opts...)
	return err
}

// WithTransactionResult is WithTransaction for functions that return a value.
// The rollback also runs when fn panics.
func WithTransactionResult[T any](ctx context.Context, db Database, fn func(tx *gorm.DB) (T, error), opts ...TxOption) (result T, err error) {
	var s txSettings
	for _, opt := range opts {
		opt(&s)
	}

	tx := db.Session(ctx).Begin()
	if tx.Error != nil {
		return result, fmt.Errorf("begin transaction: %w", tx.Error)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback().Error; rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			err = errors.Join(err, fmt.Errorf("rollback transaction: %w", rbErr))
		}
	}()

	if db.IsPostgres() {
		if err = advisoryLock(tx, s.lockKeys); err != nil {
			return result, err
		}
	}

	if result, err = fn(tx); err != nil {
		return result, err
	}

	if err = tx.Commit().Error; err != nil {
		return result, fmt.Errorf("commit transaction: %w", err)
	}
	committed = true
	return result, nil
}

func advisoryLock(tx *gorm.DB, keys []string) error {
	for _, key := range lockOrder(keys) {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtextextended(?, 0))", key).Error; err != nil {
			return fmt.Errorf("advisory lock %s: %w", key, err)
		}
	}
	return nil
}

// lockOrder sorts keys and drops empty and repeated ones.
func lockOrder(keys []string) []string {
	out := slices.DeleteFunc(slices.Clone(keys), func(k string) bool { return k == "" })
	slices.Sort(out)
	return slices.Compact(out)
}
