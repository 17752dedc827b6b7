package service

import (
	"context"

	"github.com/helixml/filegraph/domain/graph"
	"github.com/helixml/filegraph/domain/merge"
	"github.com/helixml/filegraph/domain/repository"
)

// GraphStore is the storage the services read and write.
type GraphStore interface {
	merge.Store

	UpdateFileStatus(ctx context.Context, canonicalID string, status graph.FileStatus, reason string) (graph.File, error)
	ListFiles(ctx context.Context, options ...repository.Option) ([]graph.File, error)
	CountFiles(ctx context.Context, options ...repository.Option) (int64, error)
	ListEntities(ctx context.Context, t graph.EntityType, includeAbsorbed bool, limit, offset int) ([]graph.Entity, error)
	ListFilesByEntity(ctx context.Context, canonicalID string, limit, offset int) ([]graph.File, error)
	FileMemberships(ctx context.Context, fileID string) ([]graph.Membership, error)
	MergeHistory(ctx context.Context, canonicalID string) ([]graph.MergeEvent, error)
	ListMergeEvents(ctx context.Context, options ...repository.Option) ([]graph.MergeEvent, error)
	RelatedFiles(ctx context.Context, fileID string, relType graph.RelationshipType, depth int) ([]graph.RelatedFile, error)
	DuplicateGroups(ctx context.Context, contentHash string) ([][]graph.File, error)
	CategoryTree(ctx context.Context) ([]graph.CategoryNode, error)
	Stats(ctx context.Context) (graph.Stats, error)
}
