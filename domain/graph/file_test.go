package graph

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFile_WithObservationTracksPathHistory(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := NewFile("urn:sha256:aa", "aa", "/in/a.pdf", 10, "application/pdf", t0)

	moved := f.WithObservation("/out/b.pdf", 0, "", t0.Add(time.Hour))
	again := moved.WithObservation("/in/a.pdf", 12, "", t0.Add(2*time.Hour))

	assert.Equal(t, "/in/a.pdf", again.OriginalPath())
	assert.Equal(t, "/in/a.pdf", again.CurrentPath())
	assert.Equal(t, []string{"/in/a.pdf", "/out/b.pdf"}, again.PathHistory())
	assert.Equal(t, int64(12), again.Size())
	assert.Equal(t, "application/pdf", again.MimeType())
	assert.Equal(t, []string{"/in/a.pdf"}, f.PathHistory(), "original must be unchanged")
	assert.Equal(t, []string{"urn:sha256:aa"}, again.SourceIDs())
}

func TestFile_EmptyPathIsNotRecorded(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := NewFile("urn:sha256:aa", "aa", "", 10, "", t0)
	assert.Empty(t, f.PathHistory())
	assert.Empty(t, f.OriginalPath())

	unchanged := f.WithObservation("", 0, "", t0.Add(time.Minute))
	assert.Empty(t, unchanged.PathHistory())

	located := unchanged.WithObservation("/in/a.pdf", 0, "", t0.Add(time.Hour))
	assert.Equal(t, "/in/a.pdf", located.OriginalPath())
	assert.Equal(t, "/in/a.pdf", located.CurrentPath())
	assert.Equal(t, []string{"/in/a.pdf"}, located.PathHistory())
}

func TestFile_WithStatus(t *testing.T) {
	now := time.Now()
	f := NewFile("urn:sha256:aa", "aa", "/a", 1, "", now)
	assert.Equal(t, FileStatusPending, f.Status())

	_, ok := f.OrganizedAt()
	assert.False(t, ok)

	o := f.WithStatus(FileStatusOrganized, "", now)
	at, ok := o.OrganizedAt()
	assert.True(t, ok)
	assert.Equal(t, now, at)

	e := o.WithStatus(FileStatusError, "boom", now)
	assert.Equal(t, "boom", e.StatusReason())
}

func TestParseFileStatus(t *testing.T) {
	s, err := ParseFileStatus("skipped")
	require.NoError(t, err)
	assert.Equal(t, FileStatusSkipped, s)

	_, err = ParseFileStatus("deleted")
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestUnionOrdered(t *testing.T) {
	got := UnionOrdered([]string{"a", "b"}, []string{"b", "c"}, []string{"a", "d"})
	assert.Equal(t, []string{"a", "b", "c", "d"}, got)
}
