package service

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/helixml/filegraph/domain/graph"
	"github.com/helixml/filegraph/domain/repository"
	"github.com/helixml/filegraph/domain/review"
)

// Review resolves merges parked in the review queue.
type Review struct {
	Runtime
	reviews review.Store
	merges  *Merge
}

// NewReview creates a new Review service.
func NewReview(rt Runtime, reviews review.Store, merges *Merge) *Review {
	return &Review{Runtime: rt, reviews: reviews, merges: merges}
}

// List returns review items, oldest first. An empty state lists all.
func (s *Review) List(ctx context.Context, state review.State, limit, offset int) ([]review.Item, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	var options []repository.Option
	if state != "" {
		options = append(options, review.WithState(state))
	}
	options = append(options, repository.WithOrderAsc("created_at"), repository.WithOrderAsc("id"))
	if limit > 0 {
		options = append(options, repository.WithPagination(limit, offset)...)
	}
	return s.reviews.Find(ctx, options...)
}

// Count returns the number of items in a state.
func (s *Review) Count(ctx context.Context, state review.State) (int64, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	if state == "" {
		return s.reviews.Count(ctx)
	}
	return s.reviews.Count(ctx, review.WithState(state))
}

// Get returns one item.
func (s *Review) Get(ctx context.Context, id string) (review.Item, error) {
	if err := s.check(); err != nil {
		return review.Item{}, err
	}
	return s.reviews.Get(ctx, id)
}

// Approve applies a queued merge, bypassing the confidence threshold. The
// item stays pending when the merge fails.
func (s *Review) Approve(ctx context.Context, id, by string) (item review.Item, event graph.MergeEvent, err error) {
	if err := s.check(); err != nil {
		return review.Item{}, graph.MergeEvent{}, err
	}
	ctx, span := s.telemetry.start(ctx, "approve_review", attribute.String("review_id", id))
	defer func() { s.telemetry.finish(ctx, span, err) }()

	item, err = s.pending(ctx, id)
	if err != nil {
		return review.Item{}, graph.MergeEvent{}, err
	}

	req := item.Request()
	req.Force = true
	if req.Survivor == "" {
		req.Survivor = item.ProposedSurvivor()
	}
	if by != "" {
		req.PerformedBy = by
	}

	event, _, err = s.merges.Request(ctx, req)
	if err != nil {
		return item, graph.MergeEvent{}, fmt.Errorf("approve review %s: %w", id, err)
	}

	resolved, err := item.Resolve(review.StateApproved, by, "", s.now())
	if err != nil {
		return item, event, err
	}
	saved, err := s.reviews.Save(ctx, resolved)
	if err != nil {
		return item, event, fmt.Errorf("save review %s: %w", id, err)
	}

	s.logger.Info("review approved",
		slog.String("review_id", id),
		slog.String("event_id", event.ID()),
		slog.String("resolved_by", by),
	)
	return saved, event, nil
}

// Reject closes an item without merging.
func (s *Review) Reject(ctx context.Context, id, by, note string) (item review.Item, err error) {
	if err := s.check(); err != nil {
		return review.Item{}, err
	}
	ctx, span := s.telemetry.start(ctx, "reject_review", attribute.String("review_id", id))
	defer func() { s.telemetry.finish(ctx, span, err) }()

	item, err = s.pending(ctx, id)
	if err != nil {
		return review.Item{}, err
	}
	resolved, err := item.Resolve(review.StateRejected, by, note, s.now())
	if err != nil {
		return item, err
	}
	saved, err := s.reviews.Save(ctx, resolved)
	if err != nil {
		return item, fmt.Errorf("save review %s: %w", id, err)
	}
	s.invalidateStats(ctx)

	s.logger.Info("review rejected", slog.String("review_id", id), slog.String("resolved_by", by))
	return saved, nil
}

func (s *Review) pending(ctx context.Context, id string) (review.Item, error) {
	item, err := s.reviews.Get(ctx, id)
	if err != nil {
		return review.Item{}, err
	}
	if item.State() != review.StatePending {
		return item, fmt.Errorf("%w: review %s is already %s", graph.ErrInvalidInput, id, item.State())
	}
	return item, nil
}
