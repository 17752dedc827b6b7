package tracking

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/helixml/filegraph/domain/batch"
	"github.com/helixml/filegraph/domain/kv"
)

// RunCounterTTL is how long per-run counters are kept.
const RunCounterTTL = 7 * 24 * time.Hour

// KVReporter mirrors run progress into the stats namespace:
//
//	runs:<id>:processed, runs:<id>:errors, runs:<id>:state
//	runs:total, runs:errors_total (on terminal states)
type KVReporter struct {
	store kv.Store
}

// NewKVReporter creates a KVReporter.
func NewKVReporter(store kv.Store) *KVReporter {
	return &KVReporter{store: store}
}

// OnChange writes the counters for the run.
func (r *KVReporter) OnChange(ctx context.Context, p batch.Progress) error {
	prefix := "runs:" + p.RunID() + ":"
	err := r.store.MSet(ctx, kv.NamespaceStats, map[string]string{
		prefix + "processed": strconv.Itoa(p.Current()),
		prefix + "errors":    strconv.Itoa(p.Errors()),
		prefix + "total":     strconv.Itoa(p.Total()),
		prefix + "state":     string(p.State()),
	}, RunCounterTTL)
	if err != nil {
		return fmt.Errorf("write run counters: %w", err)
	}

	if !p.State().IsTerminal() {
		return nil
	}
	if _, err := r.store.Incr(ctx, kv.NamespaceStats, "runs:total", 1); err != nil {
		return fmt.Errorf("increment run total: %w", err)
	}
	if _, err := r.store.Incr(ctx, kv.NamespaceStats, "runs:errors_total", int64(p.Errors())); err != nil {
		return fmt.Errorf("increment run errors: %w", err)
	}
	return nil
}
