package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/helixml/filegraph/domain/graph"
	"github.com/helixml/filegraph/domain/identity"
	"github.com/helixml/filegraph/domain/merge"
	"github.com/helixml/filegraph/domain/repository"
	"github.com/helixml/filegraph/domain/review"
)

// Merge provides merge requests and merge history.
type Merge struct {
	Runtime
	store   GraphStore
	reviews review.Store
	engine  merge.Engine
}

// NewMerge creates a new Merge service.
func NewMerge(rt Runtime, store GraphStore, reviews review.Store, engine merge.Engine) *Merge {
	return &Merge{Runtime: rt, store: store, reviews: reviews, engine: engine}
}

// MergeResult is the outcome of a merge request.
type MergeResult struct {
	Event graph.MergeEvent
	// Item is set when the merge was queued for review.
	Item review.Item
	// Replayed is true when the merge had already been applied and Event is
	// the prior event.
	Replayed bool
}

// Request merges two entities. It returns the merge event, or the prior
// event when the merge had already been applied. A request below the
// auto-accept confidence is queued instead, and Request returns the review
// item with ErrQueuedForReview.
func (s *Merge) Request(ctx context.Context, req merge.Request) (graph.MergeEvent, review.Item, error) {
	res, err := s.Submit(ctx, req)
	return res.Event, res.Item, err
}

// Submit is Request with the full outcome, including whether the merge
// was a replay.
func (s *Merge) Submit(ctx context.Context, req merge.Request) (res MergeResult, err error) {
	if err := s.check(); err != nil {
		return MergeResult{}, err
	}
	ctx, span := s.telemetry.start(ctx, "merge",
		attribute.String("entity_type", string(req.EntityType)),
		attribute.String("entity_a", req.A),
		attribute.String("entity_b", req.B),
		attribute.Float64("confidence", req.Confidence),
	)
	defer func() {
		if errors.Is(err, ErrQueuedForReview) {
			s.telemetry.finish(ctx, span, nil)
			return
		}
		s.telemetry.finish(ctx, span, err)
	}()

	decision, err := s.engine.DecideMerge(ctx, s.store, req)
	if err != nil {
		return MergeResult{}, err
	}

	if r, ok := decision.(merge.Review); ok {
		item, err := s.Queue(ctx, review.KindLowConfidence, req, r.Survivor, "")
		if err != nil {
			return MergeResult{}, err
		}
		span.SetAttributes(attribute.String("review_id", item.ID()))
		return MergeResult{Item: item}, ErrQueuedForReview
	}

	applied, err := s.store.Apply(ctx, decision)
	if err != nil {
		return MergeResult{}, fmt.Errorf("apply merge: %w", err)
	}
	s.telemetry.applied(ctx, span, applied)
	span.SetAttributes(
		attribute.String("event_id", applied.Event.ID()),
		attribute.Bool("replayed", applied.Replayed),
	)
	if !applied.Replayed {
		s.invalidateStats(ctx)
	}
	return MergeResult{Event: *applied.Event, Replayed: applied.Replayed}, nil
}

// Queue parks a merge request for a human decision.
func (s *Merge) Queue(ctx context.Context, kind review.Kind, req merge.Request, survivor, reason string) (review.Item, error) {
	if s.reviews == nil {
		return review.Item{}, fmt.Errorf("queue merge: no review store")
	}
	id := identity.EntityPrefix + uuid.Must(uuid.NewV7()).String()
	item, err := s.reviews.Save(ctx, review.NewItem(id, kind, req, survivor, reason, s.now()))
	if err != nil {
		return review.Item{}, fmt.Errorf("queue merge: %w", err)
	}
	s.telemetry.queued(ctx, kind)
	s.invalidateStats(ctx)

	s.logger.Info("merge queued for review",
		slog.String("review_id", item.ID()),
		slog.String("kind", string(kind)),
		slog.String("entity_type", string(req.EntityType)),
		slog.String("entity_a", req.A),
		slog.String("entity_b", req.B),
	)
	return item, nil
}

// History returns every merge that fed into the live form of an entity.
func (s *Merge) History(ctx context.Context, canonicalID string) ([]graph.MergeEvent, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if err := identity.ValidateEntityID(canonicalID); err != nil {
		return nil, err
	}
	return s.store.MergeHistory(ctx, canonicalID)
}

// Events returns recent merge events, newest first.
func (s *Merge) Events(ctx context.Context, limit, offset int) ([]graph.MergeEvent, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	options := []repository.Option{repository.WithOrderDesc("performed_at"), repository.WithOrderDesc("id")}
	if limit > 0 {
		options = append(options, repository.WithPagination(limit, offset)...)
	}
	return s.store.ListMergeEvents(ctx, options...)
}

// IsConflict reports whether a merge error belongs in the review queue
// rather than failing the caller.
func IsConflict(err error) bool {
	return errors.Is(err, graph.ErrAlreadyMerged) ||
		errors.Is(err, graph.ErrTypeMismatch) ||
		errors.Is(err, graph.ErrConcurrencyConflict)
}
