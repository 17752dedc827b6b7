package persistence

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"

	"github.com/helixml/filegraph/domain/repository"
	"github.com/helixml/filegraph/domain/review"
	"github.com/helixml/filegraph/internal/database"
)

var _ review.Store = ReviewStore{}

// ReviewStore implements review.Store using GORM.
type ReviewStore struct {
	database.Repository[review.Item, MergeReviewModel]
}

// NewReviewStore creates a new ReviewStore.
func NewReviewStore(db database.Database) ReviewStore {
	return ReviewStore{
		Repository: database.NewRepository[review.Item, MergeReviewModel](db, ReviewMapper{}, "merge review"),
	}
}

// Save creates or updates a review item.
func (s ReviewStore) Save(ctx context.Context, item review.Item) (review.Item, error) {
	model, err := s.Mapper().ToModel(item)
	if err != nil {
		return review.Item{}, err
	}

	result := s.DB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"state", "error", "resolved_by", "note", "resolved_at"}),
	}).Create(&model)

	if result.Error != nil {
		return review.Item{}, fmt.Errorf("save merge review: %w", result.Error)
	}
	return s.Mapper().ToDomain(model)
}

// Get returns a review item by id.
func (s ReviewStore) Get(ctx context.Context, id string) (review.Item, error) {
	item, err := s.FindOne(ctx, repository.WithCondition("id", id))
	if err != nil {
		return review.Item{}, notFound(err, "merge review", id)
	}
	return item, nil
}
