package merge

import (
	"context"

	"github.com/helixml/filegraph/domain/graph"
)

// Snapshot is the read-only view of the graph the engine decides against.
type Snapshot interface {
	// FindFile returns the file with the canonical id, or graph.ErrNotFound.
	FindFile(ctx context.Context, canonicalID string) (graph.File, error)

	// FindEntity returns the entity with the canonical id whatever its
	// merge state, or graph.ErrNotFound.
	FindEntity(ctx context.Context, canonicalID string) (graph.Entity, error)

	// ResolveLiveEntity follows merged_into pointers to the live entity.
	ResolveLiveEntity(ctx context.Context, canonicalID string) (graph.Entity, error)
}

// Applied is what a store did for one decision.
type Applied struct {
	Kind         Kind
	File         *graph.File
	Entity       *graph.Entity
	Membership   *graph.Membership
	Relationship *graph.Relationship
	Event        *graph.MergeEvent

	// Created is true when a new node or edge row was inserted.
	Created bool

	// Replayed is true when a merge had already been applied and the prior
	// event was returned.
	Replayed bool
}

// Store applies decisions atomically.
type Store interface {
	Snapshot

	// Apply executes the decision in one transaction. Decisions computed from
	// a stale snapshot are re-validated under lock.
	Apply(ctx context.Context, decision Decision) (Applied, error)
}
