package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// maxSQLLength bounds the SQL text in log records.
const maxSQLLength = 200

// gormLogger routes GORM's query tracing into slog. Queries log at Debug,
// slow queries at Warn and failures at Error. A missing row and a lost
// create race are normal outcomes and stay at Debug.
type gormLogger struct {
	logger *slog.Logger
	slow   time.Duration
}

func newGormLogger(l *slog.Logger, slow time.Duration) gormLogger {
	return gormLogger{logger: l, slow: slow}
}

// log falls back to the slog default at call time so a default installed
// after the database was opened still applies.
func (l gormLogger) log() *slog.Logger {
	if l.logger != nil {
		return l.logger
	}
	return slog.Default()
}

// LogMode is a no-op; slog levels do the filtering.
func (l gormLogger) LogMode(logger.LogLevel) logger.Interface { return l }

func (l gormLogger) Info(ctx context.Context, msg string, args ...any) {
	l.log().InfoContext(ctx, fmt.Sprintf(msg, args...))
}

func (l gormLogger) Warn(ctx context.Context, msg string, args ...any) {
	l.log().WarnContext(ctx, fmt.Sprintf(msg, args...))
}

func (l gormLogger) Error(ctx context.Context, msg string, args ...any) {
	l.log().ErrorContext(ctx, fmt.Sprintf(msg, args...))
}

// Trace is called by GORM after every statement. fc formats the SQL, so it
// only runs when a record will be written.
func (l gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	log := l.log()

	level, msg := slog.LevelDebug, "gorm query"
	switch {
	case err != nil && !expected(err):
		level, msg = slog.LevelError, "gorm query error"
	case l.slow > 0 && elapsed > l.slow:
		level, msg = slog.LevelWarn, "gorm slow query"
	}
	if !log.Enabled(ctx, level) {
		return
	}

	sql, rows := fc()
	attrs := []slog.Attr{
		slog.String("sql", shortenSQL(sql)),
		slog.Int64("rows", rows),
		slog.Duration("duration", elapsed),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	log.LogAttrs(ctx, level, msg, attrs...)
}

func expected(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, gorm.ErrDuplicatedKey)
}

// shortenSQL keeps the head and tail of long statements.
func shortenSQL(sql string) string {
	if len(sql) <= maxSQLLength {
		return sql
	}
	half := (maxSQLLength - 3) / 2
	return sql[:half] + "..." + sql[len(sql)-half:]
}
