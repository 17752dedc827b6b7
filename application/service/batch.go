package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/helixml/filegraph/domain/batch"
	"github.com/helixml/filegraph/domain/graph"
	"github.com/helixml/filegraph/domain/identity"
	"github.com/helixml/filegraph/domain/merge"
	"github.com/helixml/filegraph/domain/review"
	"github.com/helixml/filegraph/infrastructure/tracking"
)

// DefaultBatchParallelism is how many items a run processes at once.
const DefaultBatchParallelism = 4

// Batch runs bulk observations.
type Batch struct {
	Runtime
	files       *File
	entities    *Entity
	merges      *Merge
	parallelism int
	reporters   []tracking.Reporter
}

// NewBatch creates a new Batch service. Progress of every run goes to the
// reporters.
func NewBatch(rt Runtime, files *File, entities *Entity, merges *Merge, parallelism int, reporters ...tracking.Reporter) *Batch {
	if parallelism <= 0 {
		parallelism = DefaultBatchParallelism
	}
	return &Batch{
		Runtime:     rt,
		files:       files,
		entities:    entities,
		merges:      merges,
		parallelism: parallelism,
		reporters:   reporters,
	}
}

// Run processes a batch in three phases: file items in parallel, then the
// relationship hints of organized items, then merge requests in order.
// Merge conflicts and low confidence merges are queued for review instead
// of failing the run. A cancelled context stops the run and the partial
// report is returned with the context error.
func (s *Batch) Run(ctx context.Context, run batch.Run) (report batch.Report, err error) {
	if err := s.check(); err != nil {
		return batch.Report{}, err
	}

	runID := uuid.Must(uuid.NewV7()).String()
	ctx, span := s.telemetry.start(ctx, "batch",
		attribute.String("run_id", runID),
		attribute.Int("items", len(run.Items)),
		attribute.Int("merges", len(run.Merges)),
	)
	defer func() { s.telemetry.finish(ctx, span, err) }()

	logger := s.logger.With(slog.String("run_id", runID))
	tracker := tracking.NewTracker(runID, logger)
	for _, r := range s.reporters {
		tracker.Subscribe(r)
	}

	report = batch.Report{
		RunID:     runID,
		Outcomes:  make([]batch.Outcome, len(run.Items)),
		StartedAt: s.now(),
	}
	tracker.SetTotal(ctx, len(run.Items))

	var g errgroup.Group
	g.SetLimit(s.parallelism)
	for i, item := range run.Items {
		g.Go(func() error {
			outcome := s.processItem(ctx, item)
			report.Outcomes[i] = outcome
			tracker.Advance(ctx, outcome.Status == batch.StatusError, item.Path)
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() == nil {
		s.relate(ctx, run.Items, report.Outcomes)
	}
	if ctx.Err() == nil {
		s.runMerges(ctx, run.Merges, &report, logger)
	}

	report = report.Tally()
	report.FinishedAt = s.now()

	if err := ctx.Err(); err != nil {
		report.Cancelled = true
		tracker.Cancel(context.WithoutCancel(ctx))
		logger.Warn("batch run cancelled", slog.Int("organized", report.Organized))
		return report, fmt.Errorf("batch run %s: %w", runID, err)
	}
	tracker.Complete(ctx)

	logger.Info("batch run finished",
		slog.Int("organized", report.Organized),
		slog.Int("skipped", report.Skipped),
		slog.Int("errors", report.Errors),
		slog.Int("merges", len(report.Events)),
		slog.Int("reviews", len(report.Reviews)),
		slog.Duration("duration", report.Duration()),
	)
	return report, nil
}

func (s *Batch) processItem(ctx context.Context, item batch.Item) batch.Outcome {
	outcome := batch.Outcome{Path: item.Path}
	if err := ctx.Err(); err != nil {
		outcome.Status, outcome.Err = batch.StatusError, err
		return outcome
	}

	file, _, err := s.files.Observe(ctx, FileObserveParams{
		Digest:   item.Digest,
		Path:     item.Path,
		Size:     item.Size,
		MimeType: item.MimeType,
	})
	if err != nil {
		outcome.Status, outcome.Err = batch.StatusError, err
		return outcome
	}
	outcome.CanonicalID = file.CanonicalID()

	if item.Skip {
		if _, err := s.files.UpdateStatus(ctx, file.CanonicalID(), graph.FileStatusSkipped, item.SkipReason); err != nil {
			outcome.Status, outcome.Err = batch.StatusError, err
			return outcome
		}
		outcome.Status = batch.StatusSkipped
		return outcome
	}

	if err := s.attach(ctx, file, item.Entities); err != nil {
		return s.failed(ctx, outcome, err)
	}
	if _, err := s.files.UpdateStatus(ctx, file.CanonicalID(), graph.FileStatusOrganized, ""); err != nil {
		return s.failed(ctx, outcome, err)
	}
	outcome.Status = batch.StatusOrganized
	return outcome
}

func (s *Batch) attach(ctx context.Context, file graph.File, refs []batch.EntityRef) error {
	for _, ref := range refs {
		entity, err := s.entities.Observe(ctx, EntityObserveParams{
			Type:      ref.Type,
			Name:      ref.Name,
			ParentKey: ref.Parent,
			Details:   ref.Details,
		})
		if err != nil {
			return fmt.Errorf("%s %q: %w", ref.Type, ref.Name, err)
		}
		_, err = s.entities.Link(ctx, LinkParams{
			FileID:     file.CanonicalID(),
			EntityID:   entity.CanonicalID(),
			Source:     ref.Source,
			Confidence: ref.Confidence,
		})
		if err != nil {
			return fmt.Errorf("link %s %q: %w", ref.Type, ref.Name, err)
		}
	}
	return nil
}

// relate adds relationship hints once every file of the run exists, so a
// hint may point at any item of the same batch.
func (s *Batch) relate(ctx context.Context, items []batch.Item, outcomes []batch.Outcome) {
	for i, item := range items {
		if outcomes[i].Status != batch.StatusOrganized || len(item.Related) == 0 {
			continue
		}
		for _, hint := range item.Related {
			target, err := identity.ResolveFileIdentity(hint.Digest, "")
			if err == nil {
				_, err = s.files.FlagRelationship(ctx, merge.RelationshipRequest{
					Source:     outcomes[i].CanonicalID,
					Target:     target.CanonicalID(),
					Type:       hint.Type,
					Confidence: hint.Confidence,
				})
			}
			if err != nil {
				outcomes[i] = s.failed(ctx, outcomes[i], fmt.Errorf("%s relationship: %w", hint.Type, err))
				break
			}
		}
	}
}

func (s *Batch) runMerges(ctx context.Context, requests []merge.Request, report *batch.Report, logger *slog.Logger) {
	for _, req := range requests {
		if ctx.Err() != nil {
			return
		}
		event, item, err := s.merges.Request(ctx, req)
		switch {
		case err == nil:
			report.Events = append(report.Events, event)
		case errors.Is(err, ErrQueuedForReview):
			report.Reviews = append(report.Reviews, item)
		case IsConflict(err):
			queued, qerr := s.merges.Queue(ctx, review.KindConflict, req, "", err.Error())
			if qerr != nil {
				report.Failed = append(report.Failed, batch.MergeFailure{Request: req, Err: qerr})
				continue
			}
			report.Reviews = append(report.Reviews, queued)
		default:
			logger.Warn("merge request failed",
				slog.String("entity_a", req.A),
				slog.String("entity_b", req.B),
				slog.String("error", err.Error()),
			)
			report.Failed = append(report.Failed, batch.MergeFailure{Request: req, Err: err})
		}
	}
}

// failed marks the file as errored and returns the error outcome.
func (s *Batch) failed(ctx context.Context, outcome batch.Outcome, cause error) batch.Outcome {
	outcome.Status, outcome.Err = batch.StatusError, cause
	if outcome.CanonicalID == "" {
		return outcome
	}
	if _, err := s.files.UpdateStatus(context.WithoutCancel(ctx), outcome.CanonicalID, graph.FileStatusError, cause.Error()); err != nil {
		s.logger.Warn("failed to mark file as errored",
			slog.String("canonical_id", outcome.CanonicalID),
			slog.String("error", err.Error()),
		)
	}
	return outcome
}
