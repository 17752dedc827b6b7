package merge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixml/filegraph/domain/graph"
	"github.com/helixml/filegraph/domain/identity"
)

type fakeSnapshot struct {
	files    map[string]graph.File
	entities map[string]graph.Entity
}

func newFakeSnapshot() *fakeSnapshot {
	return &fakeSnapshot{files: map[string]graph.File{}, entities: map[string]graph.Entity{}}
}

func (f *fakeSnapshot) FindFile(_ context.Context, id string) (graph.File, error) {
	file, ok := f.files[id]
	if !ok {
		return graph.File{}, graph.ErrNotFound
	}
	return file, nil
}

func (f *fakeSnapshot) FindEntity(_ context.Context, id string) (graph.Entity, error) {
	e, ok := f.entities[id]
	if !ok {
		return graph.Entity{}, graph.ErrNotFound
	}
	return e, nil
}

func (f *fakeSnapshot) ResolveLiveEntity(ctx context.Context, id string) (graph.Entity, error) {
	for i := 0; i < 8; i++ {
		e, err := f.FindEntity(ctx, id)
		if err != nil {
			return graph.Entity{}, err
		}
		into, merged := e.MergedInto()
		if !merged {
			return e, nil
		}
		id = into
	}
	return graph.Entity{}, graph.ErrCycleDetected
}

func (f *fakeSnapshot) addPerson(t *testing.T, name string, created time.Time) graph.Entity {
	t.Helper()
	id, err := identity.ResolveEntityIdentity(graph.EntityTypePerson, name)
	require.NoError(t, err)
	e := graph.NewEntity(graph.EntityTypePerson, id.CanonicalID(), name, id.NaturalKey(), nil, created)
	f.entities[e.CanonicalID()] = e
	return e
}

func (f *fakeSnapshot) absorb(survivor, absorbed graph.Entity) {
	f.entities[absorbed.CanonicalID()] = absorbed.AbsorbedBy(survivor.CanonicalID(), "urn:uuid:ev", time.Now())
}

func fileObservation(t *testing.T, digest, path string) FileObservation {
	t.Helper()
	id, err := identity.ResolveFileIdentity(digest, path)
	require.NoError(t, err)
	return FileObservation{Identity: id, Size: 1}
}

func TestEngine_DecideFile(t *testing.T) {
	ctx := context.Background()
	snap := newFakeSnapshot()
	engine := NewEngine()
	obs := fileObservation(t, "abcd", "/in/a.txt")

	d, err := engine.DecideFile(ctx, snap, obs)
	require.NoError(t, err)
	assert.IsType(t, CreateFile{}, d)
	assert.Equal(t, KindCreate, d.Kind())

	snap.files[obs.Identity.CanonicalID()] = graph.NewFile(obs.Identity.CanonicalID(), "abcd", "/in/a.txt", 1, "", time.Now())

	moved := fileObservation(t, "abcd", "/out/b.txt")
	d, err = engine.DecideFile(ctx, snap, moved)
	require.NoError(t, err)
	assert.IsType(t, AttachFile{}, d)
	assert.Equal(t, KindAttachUpdate, d.Kind())
}

func TestEngine_DecideEntity(t *testing.T) {
	ctx := context.Background()
	snap := newFakeSnapshot()
	engine := NewEngine()

	jon, err := identity.ResolveEntityIdentity(graph.EntityTypePerson, "Jon Smith")
	require.NoError(t, err)
	obs := EntityObservation{Identity: jon, DisplayName: "Jon Smith"}

	d, err := engine.DecideEntity(ctx, snap, obs)
	require.NoError(t, err)
	assert.IsType(t, CreateEntity{}, d)

	t0 := time.Now()
	jonathan := snap.addPerson(t, "Jonathan Smith", t0)
	jonEntity := snap.addPerson(t, "Jon Smith", t0.Add(time.Minute))

	d, err = engine.DecideEntity(ctx, snap, obs)
	require.NoError(t, err)
	assert.IsType(t, AttachEntity{}, d)

	snap.absorb(jonathan, jonEntity)
	d, err = engine.DecideEntity(ctx, snap, obs)
	require.NoError(t, err)
	redirect, ok := d.(RedirectAttach)
	require.True(t, ok)
	assert.Equal(t, jonathan.CanonicalID(), redirect.Survivor)
}

func TestEngine_DecideEntity_DetailsTypeMismatch(t *testing.T) {
	id, err := identity.ResolveEntityIdentity(graph.EntityTypeCompany, "Acme")
	require.NoError(t, err)
	_, err = NewEngine().DecideEntity(context.Background(), newFakeSnapshot(), EntityObservation{
		Identity: id,
		Details:  graph.PersonDetails{Email: "a@b"},
	})
	assert.True(t, errors.Is(err, graph.ErrTypeMismatch))
}

func TestEngine_DecideMerge_EarlierSurvives(t *testing.T) {
	ctx := context.Background()
	snap := newFakeSnapshot()
	t0 := time.Now()
	older := snap.addPerson(t, "Jonathan Smith", t0)
	newer := snap.addPerson(t, "Jon Smith", t0.Add(time.Hour))

	d, err := NewEngine().DecideMerge(ctx, snap, Request{
		EntityType: graph.EntityTypePerson,
		A:          newer.CanonicalID(),
		B:          older.CanonicalID(),
		Reason:     "user-confirmed alias",
		Confidence: 1,
	})
	require.NoError(t, err)
	m, ok := d.(Merge)
	require.True(t, ok)
	assert.Equal(t, older.CanonicalID(), m.Survivor)
	assert.Equal(t, newer.CanonicalID(), m.Absorbed)
}

func TestEngine_DecideMerge_TieBreaksOnCanonicalID(t *testing.T) {
	snap := newFakeSnapshot()
	t0 := time.Now()
	a := snap.addPerson(t, "Alpha", t0)
	b := snap.addPerson(t, "Beta", t0)

	d, err := NewEngine().DecideMerge(context.Background(), snap, Request{
		EntityType: graph.EntityTypePerson, A: a.CanonicalID(), B: b.CanonicalID(), Confidence: 1,
	})
	require.NoError(t, err)
	m := d.(Merge)
	lower := a.CanonicalID()
	if b.CanonicalID() < lower {
		lower = b.CanonicalID()
	}
	assert.Equal(t, lower, m.Survivor)
}

func TestEngine_DecideMerge_DesignatedSurvivor(t *testing.T) {
	snap := newFakeSnapshot()
	t0 := time.Now()
	older := snap.addPerson(t, "Jonathan Smith", t0)
	newer := snap.addPerson(t, "Jon Smith", t0.Add(time.Hour))

	d, err := NewEngine().DecideMerge(context.Background(), snap, Request{
		EntityType: graph.EntityTypePerson, A: older.CanonicalID(), B: newer.CanonicalID(),
		Survivor: newer.CanonicalID(), Confidence: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, newer.CanonicalID(), d.(Merge).Survivor)
}

func TestEngine_DecideMerge_Errors(t *testing.T) {
	ctx := context.Background()
	snap := newFakeSnapshot()
	t0 := time.Now()
	a := snap.addPerson(t, "A", t0)
	b := snap.addPerson(t, "B", t0.Add(time.Second))
	c := snap.addPerson(t, "C", t0.Add(2*time.Second))
	company, err := identity.ResolveEntityIdentity(graph.EntityTypeCompany, "Acme")
	require.NoError(t, err)
	snap.entities[company.CanonicalID()] = graph.NewEntity(graph.EntityTypeCompany, company.CanonicalID(), "Acme", "acme", nil, t0)
	snap.absorb(a, b)

	engine := NewEngine()
	cases := []struct {
		name string
		req  Request
		want error
	}{
		{"self", Request{EntityType: graph.EntityTypePerson, A: a.CanonicalID(), B: a.CanonicalID(), Confidence: 1}, graph.ErrInvalidInput},
		{"missing", Request{EntityType: graph.EntityTypePerson, A: a.CanonicalID(), B: "urn:uuid:00000000-0000-0000-0000-000000000000", Confidence: 1}, graph.ErrNotFound},
		{"cross type", Request{EntityType: graph.EntityTypePerson, A: a.CanonicalID(), B: company.CanonicalID(), Confidence: 1}, graph.ErrTypeMismatch},
		{"absorbed survivor", Request{EntityType: graph.EntityTypePerson, A: b.CanonicalID(), B: c.CanonicalID(), Survivor: b.CanonicalID(), Confidence: 1}, graph.ErrAlreadyMerged},
		{"absorbed participant", Request{EntityType: graph.EntityTypePerson, A: b.CanonicalID(), B: c.CanonicalID(), Confidence: 1}, graph.ErrAlreadyMerged},
		{"bad confidence", Request{EntityType: graph.EntityTypePerson, A: a.CanonicalID(), B: c.CanonicalID(), Confidence: 2}, graph.ErrInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := engine.DecideMerge(ctx, snap, tc.req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestEngine_DecideMerge_ReplayIsMerge(t *testing.T) {
	snap := newFakeSnapshot()
	t0 := time.Now()
	a := snap.addPerson(t, "A", t0)
	b := snap.addPerson(t, "B", t0.Add(time.Second))
	snap.absorb(a, b)

	d, err := NewEngine().DecideMerge(context.Background(), snap, Request{
		EntityType: graph.EntityTypePerson, A: b.CanonicalID(), B: a.CanonicalID(), Confidence: 1,
	})
	require.NoError(t, err)
	m := d.(Merge)
	assert.Equal(t, a.CanonicalID(), m.Survivor)
	assert.Equal(t, b.CanonicalID(), m.Absorbed)
}

func TestEngine_DecideMerge_LowConfidenceGoesToReview(t *testing.T) {
	snap := newFakeSnapshot()
	t0 := time.Now()
	a := snap.addPerson(t, "A", t0)
	b := snap.addPerson(t, "B", t0.Add(time.Second))
	engine := NewEngine(WithAutoAcceptConfidence(0.8))

	req := Request{EntityType: graph.EntityTypePerson, A: a.CanonicalID(), B: b.CanonicalID(), Confidence: 0.5}
	d, err := engine.DecideMerge(context.Background(), snap, req)
	require.NoError(t, err)
	review, ok := d.(Review)
	require.True(t, ok)
	assert.Equal(t, a.CanonicalID(), review.Survivor)

	req.Force = true
	d, err = engine.DecideMerge(context.Background(), snap, req)
	require.NoError(t, err)
	assert.IsType(t, Merge{}, d)
}

func TestEngine_DecideRelationship(t *testing.T) {
	ctx := context.Background()
	snap := newFakeSnapshot()
	a := fileObservation(t, "aa", "/a")
	b := fileObservation(t, "bb", "/b")
	snap.files[a.Identity.CanonicalID()] = graph.NewFile(a.Identity.CanonicalID(), "aa", "/a", 1, "", time.Now())

	req := RelationshipRequest{Source: a.Identity.CanonicalID(), Target: b.Identity.CanonicalID(), Type: graph.RelationshipSimilar, Confidence: 0.7}
	_, err := NewEngine().DecideRelationship(ctx, snap, req)
	assert.True(t, errors.Is(err, graph.ErrNotFound))

	snap.files[b.Identity.CanonicalID()] = graph.NewFile(b.Identity.CanonicalID(), "bb", "/b", 1, "", time.Now())
	d, err := NewEngine().DecideRelationship(ctx, snap, req)
	require.NoError(t, err)
	assert.Equal(t, KindLinkRelationship, d.Kind())
}
