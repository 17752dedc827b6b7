package testdb_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/helixml/filegraph/internal/testdb"
)

func TestNew_IsMigrated(t *testing.T) {
	db := testdb.New(t)
	assert.True(t, db.GORM().Migrator().HasTable("files"))
	assert.True(t, db.GORM().Migrator().HasTable("merge_events"))
}

func TestNewPlain_IsEmpty(t *testing.T) {
	db := testdb.NewPlain(t)
	assert.False(t, db.GORM().Migrator().HasTable("files"))
}
