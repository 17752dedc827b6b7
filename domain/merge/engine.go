// Package merge decides how observations and merge requests change the graph.
//
// The Engine is pure with respect to storage: it reads a Snapshot and returns
// a Decision. Stores apply decisions and re-check them under lock, since the
// snapshot may be stale by the time a decision is applied.
package merge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/helixml/filegraph/domain/graph"
)

// DefaultAutoAcceptConfidence is the lowest confidence merged without review.
const DefaultAutoAcceptConfidence = 0.9

// Engine turns observations into decisions.
type Engine struct {
	autoAccept float64
	now        func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithAutoAcceptConfidence sets the review threshold for merges.
func WithAutoAcceptConfidence(c float64) EngineOption {
	return func(e *Engine) {
		e.autoAccept = c
	}
}

// WithClock overrides the engine clock.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates an Engine.
func NewEngine(opts ...EngineOption) Engine {
	e := Engine{
		autoAccept: DefaultAutoAcceptConfidence,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// AutoAcceptConfidence returns the review threshold.
func (e Engine) AutoAcceptConfidence() float64 { return e.autoAccept }

// DecideFile chooses between creating a file node and attaching to one.
func (e Engine) DecideFile(ctx context.Context, snap Snapshot, obs FileObservation) (Decision, error) {
	if obs.Identity.CanonicalID() == "" {
		return nil, fmt.Errorf("%w: unresolved file identity", graph.ErrInvalidInput)
	}
	_, err := snap.FindFile(ctx, obs.Identity.CanonicalID())
	switch {
	case err == nil:
		return AttachFile{Observation: obs}, nil
	case errors.Is(err, graph.ErrNotFound):
		return CreateFile{Observation: obs}, nil
	default:
		return nil, fmt.Errorf("decide file: %w", err)
	}
}

// DecideEntity chooses between creating an entity, attaching to a live one,
// or redirecting to the survivor of an absorbed one.
func (e Engine) DecideEntity(ctx context.Context, snap Snapshot, obs EntityObservation) (Decision, error) {
	id := obs.Identity.CanonicalID()
	if id == "" {
		return nil, fmt.Errorf("%w: unresolved entity identity", graph.ErrInvalidInput)
	}
	if obs.Details != nil && obs.Details.EntityType() != obs.Identity.Type() {
		return nil, fmt.Errorf("%w: %s details for a %s", graph.ErrTypeMismatch, obs.Details.EntityType(), obs.Identity.Type())
	}

	existing, err := snap.FindEntity(ctx, id)
	if errors.Is(err, graph.ErrNotFound) {
		return CreateEntity{Observation: obs}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("decide entity: %w", err)
	}
	if existing.Type() != obs.Identity.Type() {
		return nil, fmt.Errorf("%w: %s is a %s", graph.ErrTypeMismatch, id, existing.Type())
	}
	if existing.IsLive() {
		return AttachEntity{Observation: obs}, nil
	}

	live, err := snap.ResolveLiveEntity(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("decide entity: %w", err)
	}
	return RedirectAttach{Observation: obs, Survivor: live.CanonicalID()}, nil
}

// DecideMembership validates a file to entity link.
func (e Engine) DecideMembership(ctx context.Context, snap Snapshot, fileID, entityID string, source graph.AttributionSource, confidence float64) (Decision, error) {
	if _, err := graph.NewMembership(fileID, "", entityID, source, confidence, e.now()); err != nil {
		return nil, err
	}
	if _, err := snap.FindFile(ctx, fileID); err != nil {
		return nil, fmt.Errorf("decide membership: file %s: %w", fileID, err)
	}
	if _, err := snap.FindEntity(ctx, entityID); err != nil {
		return nil, fmt.Errorf("decide membership: entity %s: %w", entityID, err)
	}
	return LinkMembership{FileID: fileID, EntityID: entityID, Source: source, Confidence: confidence}, nil
}

// DecideRelationship validates a file to file edge.
func (e Engine) DecideRelationship(ctx context.Context, snap Snapshot, req RelationshipRequest) (Decision, error) {
	rel, err := graph.NewRelationship(req.Source, req.Target, req.Type, req.Confidence, e.now())
	if err != nil {
		return nil, err
	}
	for _, id := range []string{req.Source, req.Target} {
		if _, err := snap.FindFile(ctx, id); err != nil {
			return nil, fmt.Errorf("decide relationship: file %s: %w", id, err)
		}
	}
	return LinkRelationship{Relationship: rel}, nil
}

// DecideMerge chooses the survivor of a merge request, or parks it for review.
func (e Engine) DecideMerge(ctx context.Context, snap Snapshot, req Request) (Decision, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	a, err := e.findTyped(ctx, snap, req.EntityType, req.A)
	if err != nil {
		return nil, err
	}
	b, err := e.findTyped(ctx, snap, req.EntityType, req.B)
	if err != nil {
		return nil, err
	}

	if replay, ok := replayed(req, a, b); ok {
		return replay, nil
	}

	survivor, absorbed := ChooseSurvivor(a, b, req.Survivor)

	if into, merged := survivor.MergedInto(); merged {
		return nil, fmt.Errorf("%w: survivor %s was merged into %s", graph.ErrAlreadyMerged, survivor.CanonicalID(), into)
	}
	if into, merged := absorbed.MergedInto(); merged {
		return nil, fmt.Errorf("%w: %s was merged into %s", graph.ErrAlreadyMerged, absorbed.CanonicalID(), into)
	}

	if req.Confidence < e.autoAccept && !req.Force {
		return Review{Request: req, Survivor: survivor.CanonicalID(), Absorbed: absorbed.CanonicalID()}, nil
	}

	return Merge{
		EntityType:  req.EntityType,
		Survivor:    survivor.CanonicalID(),
		Absorbed:    absorbed.CanonicalID(),
		Reason:      req.Reason,
		Confidence:  req.Confidence,
		PerformedBy: req.PerformedBy,
	}, nil
}

func (e Engine) findTyped(ctx context.Context, snap Snapshot, t graph.EntityType, id string) (graph.Entity, error) {
	entity, err := snap.FindEntity(ctx, id)
	if err != nil {
		return graph.Entity{}, fmt.Errorf("decide merge: %s: %w", id, err)
	}
	if entity.Type() != t {
		return graph.Entity{}, fmt.Errorf("%w: %s is a %s, not a %s", graph.ErrTypeMismatch, id, entity.Type(), t)
	}
	return entity, nil
}

// replayed detects a request that has already been applied, so the store can
// return the prior event instead of writing a new one.
func replayed(req Request, a, b graph.Entity) (Decision, bool) {
	for _, pair := range [][2]graph.Entity{{a, b}, {b, a}} {
		absorbed, survivor := pair[0], pair[1]
		into, merged := absorbed.MergedInto()
		if !merged || into != survivor.CanonicalID() {
			continue
		}
		if req.Survivor != "" && req.Survivor != survivor.CanonicalID() {
			return nil, false
		}
		return Merge{
			EntityType:  req.EntityType,
			Survivor:    survivor.CanonicalID(),
			Absorbed:    absorbed.CanonicalID(),
			Reason:      req.Reason,
			Confidence:  req.Confidence,
			PerformedBy: req.PerformedBy,
		}, true
	}
	return nil, false
}

// ChooseSurvivor returns (survivor, absorbed). A designated survivor wins;
// otherwise the entity created first survives, ties going to the lower
// canonical id.
func ChooseSurvivor(a, b graph.Entity, designated string) (graph.Entity, graph.Entity) {
	switch designated {
	case a.CanonicalID():
		return a, b
	case b.CanonicalID():
		return b, a
	}
	if b.CreatedAt().Before(a.CreatedAt()) {
		return b, a
	}
	if a.CreatedAt().Equal(b.CreatedAt()) && b.CanonicalID() < a.CanonicalID() {
		return b, a
	}
	return a, b
}
