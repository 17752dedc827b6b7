package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/helixml/filegraph/domain/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type widgetModel struct {
	ID     int64  `gorm:"primaryKey;autoIncrement"`
	Name   string `gorm:"size:64"`
	Parent *string
}

func (widgetModel) TableName() string { return "widgets" }

type widget struct {
	name string
}

type widgetMapper struct{}

func (widgetMapper) ToDomain(m widgetModel) (widget, error) {
	if m.Name == "corrupt" {
		return widget{}, errors.New("corrupt row")
	}
	return widget{name: m.Name}, nil
}

func (widgetMapper) ToModel(w widget) (widgetModel, error) { return widgetModel{Name: w.name}, nil }

func newWidgetRepo(t *testing.T) (Database, Repository[widget, widgetModel]) {
	t.Helper()
	ctx := context.Background()
	db, err := NewDatabase(ctx, "sqlite:///"+filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.GORM().AutoMigrate(&widgetModel{}))

	parent := "root"
	rows := []widgetModel{{Name: "a"}, {Name: "b", Parent: &parent}, {Name: "c", Parent: &parent}}
	require.NoError(t, db.Session(ctx).Create(&rows).Error)
	return db, NewRepository[widget, widgetModel](db, widgetMapper{}, "widget")
}

func TestRepository_FindAndCount(t *testing.T) {
	ctx := context.Background()
	_, repo := newWidgetRepo(t)

	found, err := repo.Find(ctx, repository.WithNotNull("parent"), repository.WithOrderDesc("name"))
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "c", found[0].name)

	count, err := repo.Count(ctx, repository.WithNull("parent"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	exists, err := repo.Exists(ctx, repository.WithCondition("name", "zzz"))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRepository_FindOneNotFound(t *testing.T) {
	_, repo := newWidgetRepo(t)

	_, err := repo.FindOne(context.Background(), repository.WithCondition("name", "missing"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRepository_WithinTransaction(t *testing.T) {
	ctx := context.Background()
	db, repo := newWidgetRepo(t)

	err := WithTransaction(ctx, db, func(tx *gorm.DB) error {
		n, err := repo.Within(tx).DeleteBy(ctx, repository.WithCondition("name", "a"))
		if err != nil {
			return err
		}
		assert.Equal(t, int64(1), n)
		return errors.New("abort")
	})
	require.Error(t, err)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count, "rolled back delete must not be visible")
}

func TestRepository_MappingErrorSurfaces(t *testing.T) {
	ctx := context.Background()
	db, repo := newWidgetRepo(t)
	require.NoError(t, db.Session(ctx).Create(&widgetModel{Name: "corrupt"}).Error)

	_, err := repo.Find(ctx)
	assert.ErrorContains(t, err, "map widget")

	_, err = repo.FindOne(ctx, repository.WithCondition("name", "corrupt"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}
