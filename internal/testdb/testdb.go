// Package testdb opens migrated SQLite databases for tests.
package testdb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/helixml/filegraph/infrastructure/persistence"
	"github.com/helixml/filegraph/internal/database"
)

// New returns a migrated in-memory database, closed with the test.
func New(t testing.TB) database.Database {
	t.Helper()
	db := NewPlain(t)
	require.NoError(t, persistence.Migrate(db), "testdb: migrate")
	return db
}

// NewFile returns a migrated database file in a temporary directory. Tests
// with concurrent writers need it, because SQLite gives each connection to
// ":memory:" its own database.
func NewFile(t testing.TB) database.Database {
	t.Helper()
	db := open(t, "sqlite:///"+filepath.Join(t.TempDir(), "filegraph.db"))
	require.NoError(t, persistence.Migrate(db), "testdb: migrate")
	return db
}

// NewPlain returns an empty in-memory database.
func NewPlain(t testing.TB) database.Database {
	t.Helper()
	return open(t, "sqlite:///:memory:")
}

func open(t testing.TB, url string) database.Database {
	t.Helper()
	db, err := database.NewDatabase(context.Background(), url)
	require.NoError(t, err, "testdb: open %s", url)
	t.Cleanup(func() { _ = db.Close() })
	return db
}
