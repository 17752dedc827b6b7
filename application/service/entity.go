package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/helixml/filegraph/domain/graph"
	"github.com/helixml/filegraph/domain/identity"
	"github.com/helixml/filegraph/domain/merge"
)

// EntityObserveParams describes one mention of an entity.
type EntityObserveParams struct {
	Type graph.EntityType
	Name string

	// ParentKey is the natural key of the parent category ("finance/tax").
	// Missing ancestors are created. Only categories have parents.
	ParentKey string

	Details graph.Details
}

// LinkParams attaches a file to an entity.
type LinkParams struct {
	FileID     string
	EntityID   string
	Source     graph.AttributionSource
	Confidence float64
}

// Entity provides entity observation, linking and query operations.
type Entity struct {
	Runtime
	store  GraphStore
	engine merge.Engine
}

// NewEntity creates a new Entity service.
func NewEntity(rt Runtime, store GraphStore, engine merge.Engine) *Entity {
	return &Entity{Runtime: rt, store: store, engine: engine}
}

// Observe records a mention. A mention of an absorbed entity updates its
// live survivor, which is what Observe returns.
func (s *Entity) Observe(ctx context.Context, params EntityObserveParams) (entity graph.Entity, err error) {
	if err := s.check(); err != nil {
		return graph.Entity{}, err
	}
	ctx, span := s.telemetry.start(ctx, "observe_entity",
		attribute.String("entity_type", string(params.Type)),
		attribute.String("name", params.Name),
	)
	defer func() { s.telemetry.finish(ctx, span, err) }()

	key := params.Name
	details := params.Details
	if params.ParentKey != "" {
		if params.Type != graph.EntityTypeCategory {
			return graph.Entity{}, fmt.Errorf("%w: only categories have parents", graph.ErrInvalidInput)
		}
		parent, err := s.observeAncestors(ctx, params.ParentKey)
		if err != nil {
			return graph.Entity{}, err
		}
		category, ok := details.(graph.CategoryDetails)
		if !ok && details != nil {
			return graph.Entity{}, fmt.Errorf("%w: %s details for a category", graph.ErrTypeMismatch, details.EntityType())
		}
		category.Parent = parent.CanonicalID()
		details = category
		key = identity.CategoryKey(params.ParentKey, params.Name)
	}

	entity, err = s.observe(ctx, params.Type, key, params.Name, details)
	if err != nil {
		return graph.Entity{}, err
	}
	span.SetAttributes(attribute.String("canonical_id", entity.CanonicalID()))
	return entity, nil
}

// observeAncestors creates each prefix of a category path and returns the
// deepest one.
func (s *Entity) observeAncestors(ctx context.Context, path string) (graph.Entity, error) {
	var parent graph.Entity
	var key string
	for _, segment := range strings.Split(path, "/") {
		if strings.TrimSpace(segment) == "" {
			continue
		}
		var details graph.Details = graph.CategoryDetails{}
		if key != "" {
			details = graph.CategoryDetails{Parent: parent.CanonicalID()}
		}
		key = identity.CategoryKey(key, segment)
		node, err := s.observe(ctx, graph.EntityTypeCategory, key, strings.TrimSpace(segment), details)
		if err != nil {
			return graph.Entity{}, fmt.Errorf("category ancestor %q: %w", key, err)
		}
		parent = node
	}
	if key == "" {
		return graph.Entity{}, fmt.Errorf("%w: empty category path", graph.ErrInvalidInput)
	}
	return parent, nil
}

func (s *Entity) observe(ctx context.Context, t graph.EntityType, key, name string, details graph.Details) (graph.Entity, error) {
	id, err := identity.ResolveEntityIdentity(t, key)
	if err != nil {
		return graph.Entity{}, err
	}
	obs := merge.EntityObservation{Identity: id, DisplayName: strings.TrimSpace(name), Details: details}

	decision, err := s.engine.DecideEntity(ctx, s.store, obs)
	if err != nil {
		return graph.Entity{}, err
	}
	applied, err := s.store.Apply(ctx, decision)
	if err != nil {
		return graph.Entity{}, fmt.Errorf("observe entity: %w", err)
	}
	s.telemetry.applied(ctx, trace.SpanFromContext(ctx), applied)
	if applied.Created {
		s.invalidateStats(ctx)
	}

	s.logger.Debug("entity observed",
		slog.String("canonical_id", id.CanonicalID()),
		slog.String("entity_type", string(t)),
		slog.String("decision", string(applied.Kind)),
	)
	return *applied.Entity, nil
}

// Link attaches a file to an entity, or to its live survivor.
func (s *Entity) Link(ctx context.Context, params LinkParams) (m graph.Membership, err error) {
	if err := s.check(); err != nil {
		return graph.Membership{}, err
	}
	ctx, span := s.telemetry.start(ctx, "link_file_to_entity",
		attribute.String("file_id", params.FileID),
		attribute.String("entity_id", params.EntityID),
	)
	defer func() { s.telemetry.finish(ctx, span, err) }()

	source := params.Source
	if source == "" {
		source = graph.AttributionClassifier
	}
	decision, err := s.engine.DecideMembership(ctx, s.store, params.FileID, params.EntityID, source, params.Confidence)
	if err != nil {
		return graph.Membership{}, err
	}
	applied, err := s.store.Apply(ctx, decision)
	if err != nil {
		return graph.Membership{}, fmt.Errorf("link file to entity: %w", err)
	}
	s.telemetry.applied(ctx, span, applied)
	s.invalidateStats(ctx)
	return *applied.Membership, nil
}

// Get returns an entity by canonical id whatever its merge state.
func (s *Entity) Get(ctx context.Context, canonicalID string) (graph.Entity, error) {
	if err := s.check(); err != nil {
		return graph.Entity{}, err
	}
	if err := identity.ValidateEntityID(canonicalID); err != nil {
		return graph.Entity{}, err
	}
	return s.store.FindEntity(ctx, canonicalID)
}

// Resolve follows merged_into pointers to the live entity.
func (s *Entity) Resolve(ctx context.Context, canonicalID string) (graph.Entity, error) {
	if err := s.check(); err != nil {
		return graph.Entity{}, err
	}
	if err := identity.ValidateEntityID(canonicalID); err != nil {
		return graph.Entity{}, err
	}
	return s.store.ResolveLiveEntity(ctx, canonicalID)
}

// ResolveByName resolves the live entity a natural key currently names.
func (s *Entity) ResolveByName(ctx context.Context, t graph.EntityType, naturalKey string) (graph.Entity, error) {
	id, err := identity.ResolveEntityIdentity(t, naturalKey)
	if err != nil {
		return graph.Entity{}, err
	}
	return s.Resolve(ctx, id.CanonicalID())
}

// List returns entities of one type.
func (s *Entity) List(ctx context.Context, t graph.EntityType, includeAbsorbed bool, limit, offset int) ([]graph.Entity, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return s.store.ListEntities(ctx, t, includeAbsorbed, limit, offset)
}

// ListFiles returns the files linked to the live form of an entity.
func (s *Entity) ListFiles(ctx context.Context, canonicalID string, limit, offset int) ([]graph.File, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return s.store.ListFilesByEntity(ctx, canonicalID, limit, offset)
}

// CategoryTree returns the live category forest.
func (s *Entity) CategoryTree(ctx context.Context) ([]graph.CategoryNode, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return s.store.CategoryTree(ctx)
}
