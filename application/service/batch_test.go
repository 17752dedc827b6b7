package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixml/filegraph/application/service"
	"github.com/helixml/filegraph/domain/batch"
	"github.com/helixml/filegraph/domain/graph"
	"github.com/helixml/filegraph/domain/identity"
	"github.com/helixml/filegraph/domain/kv"
	"github.com/helixml/filegraph/domain/merge"
	"github.com/helixml/filegraph/domain/review"
)

func batchRun() batch.Run {
	return batch.Run{
		Items: []batch.Item{
			{
				Path:     "/inbox/alpha.pdf",
				Digest:   digest("alpha"),
				MimeType: "application/pdf",
				Entities: []batch.EntityRef{
					{Type: graph.EntityTypeCompany, Name: "Acme", Confidence: 0.9},
					{Type: graph.EntityTypeCategory, Name: "Invoices", Parent: "Finance", Confidence: 0.8},
				},
				Related: []batch.RelationHint{
					{Digest: digest("beta"), Type: graph.RelationshipDuplicate, Confidence: 0.7},
				},
			},
			{
				Path:     "/inbox/beta.pdf",
				Digest:   digest("beta"),
				Entities: []batch.EntityRef{{Type: graph.EntityTypePerson, Name: "Ada", Source: graph.AttributionManual, Confidence: 1}},
			},
			{Path: "/inbox/gamma.iso", Digest: digest("gamma"), Skip: true, SkipReason: "too large"},
			{Path: "/inbox/broken", Digest: "not hex"},
		},
	}
}

func entityID(t *testing.T, entityType graph.EntityType, name string) string {
	t.Helper()
	id, err := identity.ResolveEntityIdentity(entityType, name)
	require.NoError(t, err)
	return id.CanonicalID()
}

func TestBatch_Run(t *testing.T) {
	ctx := context.Background()
	s := newServices(t)

	acmeInc := s.observeEntity(t, graph.EntityTypeCompany, "Acme Inc")
	globex := s.observeEntity(t, graph.EntityTypeCompany, "Globex")
	globexLtd := s.observeEntity(t, graph.EntityTypeCompany, "Globex Ltd")

	acme := entityID(t, graph.EntityTypeCompany, "Acme")
	ada := entityID(t, graph.EntityTypePerson, "Ada")

	run := batchRun()
	run.Merges = []merge.Request{
		{EntityType: graph.EntityTypeCompany, A: acme, B: acmeInc.CanonicalID(), Survivor: acme, Confidence: 0.95},
		{EntityType: graph.EntityTypeCompany, A: acme, B: ada, Confidence: 1},
		{EntityType: graph.EntityTypeCompany, A: globex.CanonicalID(), B: globexLtd.CanonicalID(), Confidence: 0.3},
		{EntityType: graph.EntityTypeCompany, A: acme, B: entityID(t, graph.EntityTypeCompany, "Nobody"), Confidence: 1},
	}

	report, err := s.batch.Run(ctx, run)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Organized)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.Errors)
	assert.False(t, report.Cancelled)
	require.Len(t, report.Outcomes, 4)
	assert.Equal(t, batch.StatusError, report.Outcomes[3].Status)
	assert.ErrorIs(t, report.Outcomes[3].Err, graph.ErrInvalidInput)

	require.Len(t, report.Events, 1)
	assert.Equal(t, acme, report.Events[0].Survivor())

	require.Len(t, report.Reviews, 2)
	assert.Equal(t, review.KindConflict, report.Reviews[0].Kind())
	assert.Contains(t, report.Reviews[0].Error(), "type mismatch")
	assert.Equal(t, review.KindLowConfidence, report.Reviews[1].Kind())

	require.Len(t, report.Failed, 1)
	assert.ErrorIs(t, report.Failed[0].Err, graph.ErrNotFound)

	alpha, err := s.files.Get(ctx, report.Outcomes[0].CanonicalID)
	require.NoError(t, err)
	assert.Equal(t, graph.FileStatusOrganized, alpha.Status())

	gamma, err := s.files.Get(ctx, report.Outcomes[2].CanonicalID)
	require.NoError(t, err)
	assert.Equal(t, graph.FileStatusSkipped, gamma.Status())
	assert.Equal(t, "too large", gamma.StatusReason())

	related, err := s.files.Related(ctx, alpha.CanonicalID(), graph.RelationshipDuplicate, 1)
	require.NoError(t, err)
	require.Len(t, related, 1)
	assert.Equal(t, report.Outcomes[1].CanonicalID, related[0].File.CanonicalID())

	files, err := s.entities.ListFiles(ctx, acmeInc.CanonicalID(), 0, 0)
	require.NoError(t, err)
	require.Len(t, files, 1, "files follow the merge")
	assert.Equal(t, alpha.CanonicalID(), files[0].CanonicalID())

	counters, err := s.kv.MGet(ctx, kv.NamespaceStats, "runs:total", "runs:"+report.RunID+":processed", "runs:"+report.RunID+":errors")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"runs:total": "1",
		"runs:" + report.RunID + ":processed": "4",
		"runs:" + report.RunID + ":errors":    "1",
	}, counters)
}

func TestBatch_RelationshipToUnknownFileFailsItem(t *testing.T) {
	ctx := context.Background()
	s := newServices(t)

	report, err := s.batch.Run(ctx, batch.Run{Items: []batch.Item{{
		Path:    "/inbox/lonely.pdf",
		Digest:  digest("lonely"),
		Related: []batch.RelationHint{{Digest: digest("missing"), Type: graph.RelationshipVersion, Confidence: 1}},
	}}})
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, batch.StatusError, report.Outcomes[0].Status)
	assert.ErrorIs(t, report.Outcomes[0].Err, graph.ErrNotFound)

	file, err := s.files.Get(ctx, report.Outcomes[0].CanonicalID)
	require.NoError(t, err)
	assert.Equal(t, graph.FileStatusError, file.Status())
}

func TestBatch_CancelledContext(t *testing.T) {
	s := newServices(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := s.batch.Run(ctx, batchRun())
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, report.Cancelled)
	assert.Equal(t, 4, report.Errors)
	assert.Zero(t, report.Organized)

	total, err := s.files.Count(context.Background(), service.FileListParams{})
	require.NoError(t, err)
	assert.Zero(t, total, "nothing is applied after cancellation")
}
