package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/helixml/filegraph/domain/graph"
	"github.com/helixml/filegraph/domain/kv"
)

// StatsCacheTTL is how long an aggregate is served from the cache.
const StatsCacheTTL = 30 * time.Second

// Aggregate combines graph statistics with the KV store summary.
type Aggregate struct {
	Graph       graph.Stats `json:"graph"`
	KV          kv.Info     `json:"kv"`
	GeneratedAt time.Time   `json:"generated_at"`
}

type cachedAggregate struct {
	Generation int64     `json:"generation"`
	Aggregate  Aggregate `json:"aggregate"`
}

// Stats computes aggregate statistics.
type Stats struct {
	Runtime
	store GraphStore
	ttl   time.Duration
}

// NewStats creates a new Stats service.
func NewStats(rt Runtime, store GraphStore) *Stats {
	return &Stats{Runtime: rt, store: store, ttl: StatsCacheTTL}
}

// Aggregate returns the statistics, from the cache when it is fresh.
func (s *Stats) Aggregate(ctx context.Context) (agg Aggregate, err error) {
	if err := s.check(); err != nil {
		return Aggregate{}, err
	}
	ctx, span := s.telemetry.start(ctx, "stats")
	defer func() { s.telemetry.finish(ctx, span, err) }()

	cacheable := s.kv != nil
	var gen int64
	if cacheable {
		gen, err = s.statsGeneration(ctx)
		if err != nil {
			s.logger.Warn("stats cache bypassed", slog.String("error", err.Error()))
			cacheable = false
		}
	}
	if cacheable {
		cached, ok, err := kv.GetJSON[cachedAggregate](ctx, s.kv, kv.NamespaceCache, StatsCacheKey)
		if err != nil {
			s.logger.Warn("failed to read stats cache", slog.String("error", err.Error()))
		}
		if ok && cached.Generation == gen {
			return cached.Aggregate, nil
		}
	}

	stats, err := s.store.Stats(ctx)
	if err != nil {
		return Aggregate{}, fmt.Errorf("graph stats: %w", err)
	}
	agg = Aggregate{Graph: stats, GeneratedAt: s.now()}

	if s.kv != nil {
		info, err := s.kv.Info(ctx)
		if err != nil {
			return Aggregate{}, fmt.Errorf("kv info: %w", err)
		}
		agg.KV = info
	}
	if cacheable {
		entry := cachedAggregate{Generation: gen, Aggregate: agg}
		if err := kv.SetJSON(ctx, s.kv, kv.NamespaceCache, StatsCacheKey, entry, s.ttl); err != nil {
			s.logger.Warn("failed to write stats cache", slog.String("error", err.Error()))
		}
	}
	return agg, nil
}

// Invalidate drops the cached aggregate.
func (s *Stats) Invalidate(ctx context.Context) {
	s.invalidateStats(ctx)
}
