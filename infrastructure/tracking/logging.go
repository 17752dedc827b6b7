package tracking

import (
	"context"
	"log/slog"

	"github.com/helixml/filegraph/domain/batch"
)

// LoggingReporter implements Reporter by logging progress changes.
type LoggingReporter struct {
	logger *slog.Logger
}

// NewLoggingReporter creates a new LoggingReporter.
func NewLoggingReporter(logger *slog.Logger) *LoggingReporter {
	return &LoggingReporter{
		logger: logger,
	}
}

// OnChange logs the progress change.
func (r *LoggingReporter) OnChange(_ context.Context, p batch.Progress) error {
	attrs := []any{
		slog.String("run_id", p.RunID()),
		slog.String("state", string(p.State())),
		slog.Int("processed", p.Current()),
		slog.Int("total", p.Total()),
		slog.Int("errors", p.Errors()),
		slog.Float64("completion_percent", p.CompletionPercent()),
	}

	if p.State() == batch.StateFailed {
		r.logger.Error("batch run", append(attrs, slog.String("error", p.Message()))...)
		return nil
	}
	r.logger.Info("batch run", attrs...)
	return nil
}
