package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"

	"github.com/helixml/filegraph/domain/graph"
)

// errStale is returned from inside a write when the rows it depends on
// changed between the snapshot and the lock. The write is retried.
var errStale = errors.New("graph changed during write")

// RetryPolicy bounds how often a conflicting write is retried.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	BackoffFactor float64
}

// DefaultRetryPolicy returns the default policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:    5,
		InitialDelay:  50 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

// Do runs fn, retrying retryable failures with exponential backoff. When the
// budget is exhausted the last error is wrapped in graph.ErrConcurrencyConflict.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	delay := p.InitialDelay
	var err error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			delay = time.Duration(float64(delay) * p.BackoffFactor)
		}

		err = fn()
		if err == nil || !IsRetryable(err) {
			return err
		}
	}
	return fmt.Errorf("%w: %d attempts: %v", graph.ErrConcurrencyConflict, p.MaxRetries+1, err)
}

// IsRetryable reports whether err came from a lost race that is worth
// retrying: a unique violation on insert, a serialization failure or
// deadlock in PostgreSQL, or a busy SQLite database.
func IsRetryable(err error) bool {
	if errors.Is(err, errStale) || errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return true
		}
		return false
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}
