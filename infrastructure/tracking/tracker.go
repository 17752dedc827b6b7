package tracking

import (
	"context"
	"log/slog"
	"sync"

	"github.com/helixml/filegraph/domain/batch"
)

// Tracker holds the progress of one run and notifies subscribers on change.
type Tracker struct {
	progress    batch.Progress
	subscribers []Reporter
	logger      *slog.Logger
	mu          sync.RWMutex

	// notify serializes deliveries so subscribers see changes in order.
	notify sync.Mutex
}

// NewTracker creates a tracker for a run.
func NewTracker(runID string, logger *slog.Logger) *Tracker {
	return &Tracker{
		progress:    batch.NewProgress(runID),
		subscribers: make([]Reporter, 0),
		logger:      logger,
	}
}

// Progress returns the current progress.
func (t *Tracker) Progress() batch.Progress {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.progress
}

// Subscribe adds a reporter.
func (t *Tracker) Subscribe(reporter Reporter) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subscribers = append(t.subscribers, reporter)
}

// SetTotal sets the number of items in the run.
func (t *Tracker) SetTotal(ctx context.Context, total int) {
	t.update(ctx, func(p batch.Progress) batch.Progress { return p.SetTotal(total) })
}

// Advance records one processed item. Safe for concurrent use.
func (t *Tracker) Advance(ctx context.Context, failed bool, message string) {
	t.update(ctx, func(p batch.Progress) batch.Progress { return p.Advance(failed, message) })
}

// Complete marks the run completed.
func (t *Tracker) Complete(ctx context.Context) {
	t.update(ctx, batch.Progress.Complete)
}

// Fail marks the run failed.
func (t *Tracker) Fail(ctx context.Context, message string) {
	t.update(ctx, func(p batch.Progress) batch.Progress { return p.Fail(message) })
}

// Cancel marks the run cancelled.
func (t *Tracker) Cancel(ctx context.Context) {
	t.update(ctx, batch.Progress.Cancel)
}

func (t *Tracker) update(ctx context.Context, fn func(batch.Progress) batch.Progress) {
	t.notify.Lock()
	defer t.notify.Unlock()

	t.mu.Lock()
	t.progress = fn(t.progress)
	progress := t.progress
	subscribers := make([]Reporter, len(t.subscribers))
	copy(subscribers, t.subscribers)
	t.mu.Unlock()

	for _, subscriber := range subscribers {
		if err := subscriber.OnChange(ctx, progress); err != nil {
			t.logger.Error("failed to notify subscriber",
				slog.String("error", err.Error()),
				slog.String("run_id", progress.RunID()),
			)
		}
	}
}
