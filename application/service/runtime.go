package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/helixml/filegraph/domain/kv"
)

// Stats cache keys in kv.NamespaceCache. The generation counts
// invalidations; a cached aggregate is served only while the generation it
// was computed under is still current.
const (
	StatsCacheKey      = "stats:aggregate"
	StatsGenerationKey = "stats:generation"
)

// Runtime carries what every service shares: the client closed flag,
// telemetry, the logger and the KV store used for the stats cache.
type Runtime struct {
	closed    *atomic.Bool
	telemetry *Telemetry
	kv        kv.Store
	logger    *slog.Logger
	now       func() time.Time
}

// NewRuntime creates a Runtime. closed and store may be nil.
func NewRuntime(closed *atomic.Bool, telemetry *Telemetry, store kv.Store, logger *slog.Logger) Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	if telemetry == nil {
		telemetry, _ = NewTelemetry(nil, nil)
	}
	return Runtime{
		closed:    closed,
		telemetry: telemetry,
		kv:        store,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock returns a copy using the given clock.
func (r Runtime) WithClock(now func() time.Time) Runtime {
	r.now = now
	return r
}

// Logger returns the shared logger.
func (r Runtime) Logger() *slog.Logger { return r.logger }

func (r Runtime) check() error {
	if r.closed != nil && r.closed.Load() {
		return ErrClientClosed
	}
	return nil
}

// invalidateStats drops the cached aggregate after a write. Failure only
// leaves a stale cache for its ttl, so it is logged and ignored.
func (r Runtime) invalidateStats(ctx context.Context) {
	if r.kv == nil {
		return
	}
	if _, err := r.kv.Incr(ctx, kv.NamespaceCache, StatsGenerationKey, 1); err != nil {
		r.logger.Warn("failed to bump stats generation", slog.String("error", err.Error()))
	}
	if _, err := r.kv.Delete(ctx, kv.NamespaceCache, StatsCacheKey); err != nil {
		r.logger.Warn("failed to invalidate stats cache", slog.String("error", err.Error()))
	}
}

func (r Runtime) statsGeneration(ctx context.Context) (int64, error) {
	raw, ok, err := r.kv.Get(ctx, kv.NamespaceCache, StatsGenerationKey)
	if err != nil || !ok {
		return 0, err
	}
	gen, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse stats generation: %w", err)
	}
	return gen, nil
}
