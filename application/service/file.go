package service

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/helixml/filegraph/domain/graph"
	"github.com/helixml/filegraph/domain/identity"
	"github.com/helixml/filegraph/domain/merge"
	"github.com/helixml/filegraph/domain/repository"
)

// FileObserveParams describes one sighting of a file.
type FileObserveParams struct {
	Digest   string
	Path     string
	Size     int64
	MimeType string
}

// FileListParams configures file listing.
type FileListParams struct {
	Status graph.FileStatus
	Limit  int
	Offset int
}

func (p FileListParams) options() []repository.Option {
	var options []repository.Option
	if p.Status != "" {
		options = append(options, repository.WithCondition("status", string(p.Status)))
	}
	return options
}

// File provides file observation and query operations.
type File struct {
	Runtime
	store  GraphStore
	engine merge.Engine
}

// NewFile creates a new File service.
func NewFile(rt Runtime, store GraphStore, engine merge.Engine) *File {
	return &File{Runtime: rt, store: store, engine: engine}
}

// Observe records a sighting. The file node is created on first sight and
// updated afterwards; created reports which happened.
func (s *File) Observe(ctx context.Context, params FileObserveParams) (file graph.File, created bool, err error) {
	if err := s.check(); err != nil {
		return graph.File{}, false, err
	}
	ctx, span := s.telemetry.start(ctx, "observe_file", attribute.String("path", params.Path))
	defer func() { s.telemetry.finish(ctx, span, err) }()

	id, err := identity.ResolveFileIdentity(params.Digest, params.Path)
	if err != nil {
		return graph.File{}, false, err
	}
	span.SetAttributes(attribute.String("canonical_id", id.CanonicalID()))

	obs := merge.FileObservation{Identity: id, Size: params.Size, MimeType: params.MimeType}
	decision, err := s.engine.DecideFile(ctx, s.store, obs)
	if err != nil {
		return graph.File{}, false, err
	}
	applied, err := s.store.Apply(ctx, decision)
	if err != nil {
		return graph.File{}, false, fmt.Errorf("observe file: %w", err)
	}
	s.telemetry.applied(ctx, span, applied)
	s.invalidateStats(ctx)

	s.logger.Debug("file observed",
		slog.String("canonical_id", id.CanonicalID()),
		slog.String("decision", string(applied.Kind)),
		slog.String("path", id.Path()),
	)
	return *applied.File, applied.Created, nil
}

// Get returns a file by canonical id.
func (s *File) Get(ctx context.Context, canonicalID string) (graph.File, error) {
	if err := s.check(); err != nil {
		return graph.File{}, err
	}
	if err := identity.ValidateFileID(canonicalID); err != nil {
		return graph.File{}, err
	}
	return s.store.FindFile(ctx, canonicalID)
}

// List returns files, optionally filtered by status.
func (s *File) List(ctx context.Context, params FileListParams) ([]graph.File, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	options := params.options()
	options = append(options, repository.WithOrderAsc("id"))
	if params.Limit > 0 {
		options = append(options, repository.WithPagination(params.Limit, params.Offset)...)
	}
	return s.store.ListFiles(ctx, options...)
}

// Count returns the number of files matching the filter.
func (s *File) Count(ctx context.Context, params FileListParams) (int64, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	return s.store.CountFiles(ctx, params.options()...)
}

// UpdateStatus sets the processing status of a file.
func (s *File) UpdateStatus(ctx context.Context, canonicalID string, status graph.FileStatus, reason string) (file graph.File, err error) {
	if err := s.check(); err != nil {
		return graph.File{}, err
	}
	ctx, span := s.telemetry.start(ctx, "update_file_status",
		attribute.String("canonical_id", canonicalID),
		attribute.String("status", string(status)),
	)
	defer func() { s.telemetry.finish(ctx, span, err) }()

	if _, err := graph.ParseFileStatus(string(status)); err != nil {
		return graph.File{}, err
	}
	file, err = s.store.UpdateFileStatus(ctx, canonicalID, status, reason)
	if err != nil {
		return graph.File{}, err
	}
	s.invalidateStats(ctx)
	return file, nil
}

// Related walks relationship edges from a file.
func (s *File) Related(ctx context.Context, canonicalID string, relType graph.RelationshipType, depth int) ([]graph.RelatedFile, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if relType != "" {
		if _, err := graph.ParseRelationshipType(string(relType)); err != nil {
			return nil, err
		}
	}
	return s.store.RelatedFiles(ctx, canonicalID, relType, depth)
}

// Duplicates returns groups of files joined by duplicate edges.
func (s *File) Duplicates(ctx context.Context, contentHash string) ([][]graph.File, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return s.store.DuplicateGroups(ctx, contentHash)
}

// Memberships returns the entity edges of a file.
func (s *File) Memberships(ctx context.Context, canonicalID string) ([]graph.Membership, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return s.store.FileMemberships(ctx, canonicalID)
}

// FlagRelationship records a typed edge between two files.
func (s *File) FlagRelationship(ctx context.Context, req merge.RelationshipRequest) (rel graph.Relationship, err error) {
	if err := s.check(); err != nil {
		return graph.Relationship{}, err
	}
	ctx, span := s.telemetry.start(ctx, "add_relationship",
		attribute.String("source", req.Source),
		attribute.String("target", req.Target),
		attribute.String("relationship_type", string(req.Type)),
	)
	defer func() { s.telemetry.finish(ctx, span, err) }()

	decision, err := s.engine.DecideRelationship(ctx, s.store, req)
	if err != nil {
		return graph.Relationship{}, err
	}
	applied, err := s.store.Apply(ctx, decision)
	if err != nil {
		return graph.Relationship{}, fmt.Errorf("add relationship: %w", err)
	}
	s.telemetry.applied(ctx, span, applied)
	s.invalidateStats(ctx)
	return *applied.Relationship, nil
}
