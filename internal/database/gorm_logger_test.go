package database

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func captureLogger(level slog.Level) (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: level})), &buf
}

func records(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		out = append(out, rec)
	}
	return out
}

func TestGormLogger_Levels(t *testing.T) {
	query := func() (string, int64) { return "SELECT 1", 1 }
	ctx := context.Background()

	tests := []struct {
		name    string
		elapsed time.Duration
		err     error
		level   string
		msg     string
	}{
		{name: "ok", level: "DEBUG", msg: "gorm query"},
		{name: "slow", elapsed: time.Second, level: "WARN", msg: "gorm slow query"},
		{name: "failure", err: errors.New("disk I/O error"), level: "ERROR", msg: "gorm query error"},
		{name: "no rows", err: gorm.ErrRecordNotFound, level: "DEBUG", msg: "gorm query"},
		{name: "lost create race", err: gorm.ErrDuplicatedKey, level: "DEBUG", msg: "gorm query"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, buf := captureLogger(slog.LevelDebug)
			newGormLogger(l, 100*time.Millisecond).Trace(ctx, time.Now().Add(-tt.elapsed), query, tt.err)

			recs := records(t, buf)
			require.Len(t, recs, 1)
			assert.Equal(t, tt.level, recs[0]["level"])
			assert.Equal(t, tt.msg, recs[0]["msg"])
			assert.Equal(t, "SELECT 1", recs[0]["sql"])
		})
	}
}

func TestGormLogger_SkipsFormattingBelowLevel(t *testing.T) {
	l, buf := captureLogger(slog.LevelInfo)
	formatted := false
	query := func() (string, int64) {
		formatted = true
		return "SELECT 1", 1
	}

	newGormLogger(l, 0).Trace(context.Background(), time.Now().Add(-time.Hour), query, nil)
	assert.False(t, formatted)
	assert.Empty(t, buf.String())
}

func TestShortenSQL(t *testing.T) {
	assert.Equal(t, "SELECT 1", shortenSQL("SELECT 1"))

	long := strings.Repeat("x", 500)
	short := shortenSQL(long)
	assert.LessOrEqual(t, len(short), maxSQLLength)
	assert.Contains(t, short, "...")
}
