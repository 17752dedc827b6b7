package graph

import (
	"fmt"
	"time"
)

// RelationshipType is the kind of file to file edge.
type RelationshipType string

// RelationshipType values.
const (
	RelationshipDuplicate RelationshipType = "duplicate"
	RelationshipSimilar   RelationshipType = "similar"
	RelationshipVersion   RelationshipType = "version"
	RelationshipDerived   RelationshipType = "derived"
)

// ParseRelationshipType converts a string to a RelationshipType.
func ParseRelationshipType(s string) (RelationshipType, error) {
	switch t := RelationshipType(s); t {
	case RelationshipDuplicate, RelationshipSimilar, RelationshipVersion, RelationshipDerived:
		return t, nil
	}
	return "", fmt.Errorf("%w: unknown relationship type %q", ErrInvalidInput, s)
}

// Symmetric reports whether source and target are interchangeable.
func (t RelationshipType) Symmetric() bool {
	return t == RelationshipDuplicate || t == RelationshipSimilar
}

// Relationship is a typed edge between two files, unique per
// (source, target, type).
type Relationship struct {
	source     string
	target     string
	relType    RelationshipType
	confidence float64
	createdAt  time.Time
}

// NewRelationship creates a Relationship. Symmetric types are stored with
// the lower canonical id as source so that A-B and B-A are one edge.
func NewRelationship(source, target string, relType RelationshipType, confidence float64, now time.Time) (Relationship, error) {
	if source == "" || target == "" {
		return Relationship{}, fmt.Errorf("%w: relationship requires two file ids", ErrInvalidInput)
	}
	if source == target {
		return Relationship{}, fmt.Errorf("%w: file cannot relate to itself", ErrInvalidInput)
	}
	if err := ValidateConfidence(confidence); err != nil {
		return Relationship{}, err
	}
	if relType.Symmetric() && target < source {
		source, target = target, source
	}
	return Relationship{source: source, target: target, relType: relType, confidence: confidence, createdAt: now}, nil
}

// ReconstructRelationship reconstructs a Relationship from persistence.
func ReconstructRelationship(source, target string, relType RelationshipType, confidence float64, createdAt time.Time) Relationship {
	return Relationship{source: source, target: target, relType: relType, confidence: confidence, createdAt: createdAt}
}

// Source returns the source file canonical id.
func (r Relationship) Source() string { return r.source }

// Target returns the target file canonical id.
func (r Relationship) Target() string { return r.target }

// Type returns the relationship type.
func (r Relationship) Type() RelationshipType { return r.relType }

// Confidence returns the confidence in [0,1].
func (r Relationship) Confidence() float64 { return r.confidence }

// CreatedAt returns the creation timestamp.
func (r Relationship) CreatedAt() time.Time { return r.createdAt }

// Other returns the endpoint opposite to id.
func (r Relationship) Other(id string) string {
	if r.source == id {
		return r.target
	}
	return r.source
}

// RelatedFile is a file reached from another by following relationships.
type RelatedFile struct {
	File       File
	Type       RelationshipType
	Confidence float64
	Depth      int
}
