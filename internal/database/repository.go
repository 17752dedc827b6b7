package database

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/helixml/filegraph/domain/repository"
)

// ErrNotFound is wrapped by lookups that match no row.
var ErrNotFound = errors.New("entity not found")

// EntityMapper converts between a domain value D and its row model E.
type EntityMapper[D any, E any] interface {
	ToDomain(entity E) (D, error)
	ToModel(domain D) (E, error)
}

// Repository runs repository.Option queries against the table of E and maps
// rows to D. The zero transaction means each call uses its own session.
type Repository[D any, E any] struct {
	db     Database
	tx     *gorm.DB
	mapper EntityMapper[D, E]
	label  string
}

// NewRepository creates a Repository. label names the rows in errors.
func NewRepository[D any, E any](db Database, mapper EntityMapper[D, E], label string) Repository[D, E] {
	return Repository[D, E]{db: db, mapper: mapper, label: label}
}

// Within binds a copy of the repository to tx.
func (r Repository[D, E]) Within(tx *gorm.DB) Repository[D, E] {
	r.tx = tx
	return r
}

// DB returns the session calls would use: the bound transaction or a fresh
// one.
func (r Repository[D, E]) DB(ctx context.Context) *gorm.DB {
	if r.tx != nil {
		return r.tx.WithContext(ctx)
	}
	return r.db.Session(ctx)
}

// Mapper returns the row mapper.
func (r Repository[D, E]) Mapper() EntityMapper[D, E] {
	return r.mapper
}

func (r Repository[D, E]) table(ctx context.Context) *gorm.DB {
	return r.DB(ctx).Model(new(E))
}

// Find returns every match, mapped.
func (r Repository[D, E]) Find(ctx context.Context, options ...repository.Option) ([]D, error) {
	var rows []E
	if err := ApplyOptions(r.table(ctx), options...).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("find %s: %w", r.label, err)
	}

	out := make([]D, 0, len(rows))
	for _, row := range rows {
		d, err := r.mapper.ToDomain(row)
		if err != nil {
			return nil, fmt.Errorf("map %s: %w", r.label, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// FindOne returns the first match, mapped. No match wraps ErrNotFound.
func (r Repository[D, E]) FindOne(ctx context.Context, options ...repository.Option) (D, error) {
	row, err := r.FindModel(ctx, options...)
	if err != nil {
		var zero D
		return zero, err
	}
	d, err := r.mapper.ToDomain(row)
	if err != nil {
		return d, fmt.Errorf("map %s: %w", r.label, err)
	}
	return d, nil
}

// FindModel is FindOne without the mapping, for callers that update the row.
func (r Repository[D, E]) FindModel(ctx context.Context, options ...repository.Option) (E, error) {
	var row E
	err := ApplyOptions(r.DB(ctx), options...).Take(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return row, fmt.Errorf("%w: %s", ErrNotFound, r.label)
	case err != nil:
		return row, fmt.Errorf("find one %s: %w", r.label, err)
	}
	return row, nil
}

// Count ignores ordering and paging options.
func (r Repository[D, E]) Count(ctx context.Context, options ...repository.Option) (int64, error) {
	var n int64
	if err := ApplyConditions(r.table(ctx), options...).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count %s: %w", r.label, err)
	}
	return n, nil
}

// Exists reports whether anything matches.
func (r Repository[D, E]) Exists(ctx context.Context, options ...repository.Option) (bool, error) {
	n, err := r.Count(ctx, options...)
	return n > 0, err
}

// DeleteBy removes matches and returns how many rows went.
func (r Repository[D, E]) DeleteBy(ctx context.Context, options ...repository.Option) (int64, error) {
	res := ApplyConditions(r.DB(ctx), options...).Delete(new(E))
	if res.Error != nil {
		return 0, fmt.Errorf("delete %s: %w", r.label, res.Error)
	}
	return res.RowsAffected, nil
}
