package merge

import (
	"fmt"

	"github.com/helixml/filegraph/domain/graph"
)

// Request asks for two entities to be declared the same.
type Request struct {
	EntityType graph.EntityType
	A          string
	B          string

	// Survivor optionally designates which of A or B survives. When empty
	// the entity created first survives.
	Survivor string

	Reason      string
	Confidence  float64
	PerformedBy string

	// Force bypasses the confidence threshold. Used when a reviewer
	// approves a queued merge.
	Force bool
}

// Validate checks the request shape without consulting the graph.
func (r Request) Validate() error {
	if !r.EntityType.IsValid() {
		return fmt.Errorf("%w: unknown entity type %q", graph.ErrInvalidInput, r.EntityType)
	}
	if r.A == "" || r.B == "" {
		return fmt.Errorf("%w: merge requires two entity ids", graph.ErrInvalidInput)
	}
	if r.A == r.B {
		return fmt.Errorf("%w: cannot merge an entity with itself", graph.ErrInvalidInput)
	}
	if r.Survivor != "" && r.Survivor != r.A && r.Survivor != r.B {
		return fmt.Errorf("%w: survivor must be one of the merged entities", graph.ErrInvalidInput)
	}
	return graph.ValidateConfidence(r.Confidence)
}

// RelationshipRequest asks for a typed edge between two files.
type RelationshipRequest struct {
	Source     string
	Target     string
	Type       graph.RelationshipType
	Confidence float64
}
