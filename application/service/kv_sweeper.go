package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/helixml/filegraph/domain/kv"
)

// DefaultKVCleanupInterval is how often expired keys are swept.
const DefaultKVCleanupInterval = 5 * time.Minute

// KVSweeper deletes expired keys on a timer. Backends that expire keys
// themselves report zero removals.
type KVSweeper struct {
	store    kv.Store
	logger   *slog.Logger
	interval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewKVSweeper creates a new KVSweeper. A non-positive interval disables it.
func NewKVSweeper(store kv.Store, interval time.Duration, logger *slog.Logger) *KVSweeper {
	return &KVSweeper{
		store:    store,
		logger:   logger,
		interval: interval,
	}
}

// Start begins sweeping in a background goroutine.
func (k *KVSweeper) Start(ctx context.Context) {
	if k.interval <= 0 {
		k.logger.Info("kv cleanup disabled")
		return
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if k.cancel != nil {
		return
	}

	ctx, k.cancel = context.WithCancel(ctx)
	k.wg.Go(func() {
		k.run(ctx)
	})

	k.logger.Info("kv cleanup started", slog.Duration("interval", k.interval))
}

// Stop cancels the background goroutine and waits for it to finish.
func (k *KVSweeper) Stop() {
	k.mu.Lock()
	cancel := k.cancel
	k.cancel = nil
	k.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	k.wg.Wait()
}

func (k *KVSweeper) run(ctx context.Context) {
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			k.Sweep(ctx)
		}
	}
}

// Sweep removes expired keys once and returns how many were removed.
func (k *KVSweeper) Sweep(ctx context.Context) int64 {
	n, err := k.store.CleanupExpired(ctx)
	if err != nil {
		if ctx.Err() == nil {
			k.logger.Error("kv cleanup failed", slog.String("error", err.Error()))
		}
		return 0
	}
	if n > 0 {
		k.logger.Debug("kv cleanup removed expired keys", slog.Int64("count", n))
	}
	return n
}
