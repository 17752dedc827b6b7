package graph

import (
	"fmt"
	"time"
)

// AttributionSource records who asserted a membership edge.
type AttributionSource string

// AttributionSource values.
const (
	AttributionClassifier AttributionSource = "classifier"
	AttributionFilename   AttributionSource = "filename_pattern"
	AttributionMetadata   AttributionSource = "metadata"
	AttributionManual     AttributionSource = "manual"
	AttributionRule       AttributionSource = "rule"
)

// ParseAttributionSource converts a string to an AttributionSource.
// An empty string maps to the classifier.
func ParseAttributionSource(s string) (AttributionSource, error) {
	if s == "" {
		return AttributionClassifier, nil
	}
	switch src := AttributionSource(s); src {
	case AttributionClassifier, AttributionFilename, AttributionMetadata, AttributionManual, AttributionRule:
		return src, nil
	}
	return "", fmt.Errorf("%w: unknown attribution source %q", ErrInvalidInput, s)
}

// Membership is a file to entity edge.
type Membership struct {
	fileID     string
	entityType EntityType
	entityID   string
	source     AttributionSource
	confidence float64
	createdAt  time.Time
}

// NewMembership creates a validated Membership.
func NewMembership(fileID string, entityType EntityType, entityID string, source AttributionSource, confidence float64, now time.Time) (Membership, error) {
	if fileID == "" || entityID == "" {
		return Membership{}, fmt.Errorf("%w: membership requires file and entity ids", ErrInvalidInput)
	}
	if err := ValidateConfidence(confidence); err != nil {
		return Membership{}, err
	}
	return Membership{
		fileID:     fileID,
		entityType: entityType,
		entityID:   entityID,
		source:     source,
		confidence: confidence,
		createdAt:  now,
	}, nil
}

// ReconstructMembership reconstructs a Membership from persistence.
func ReconstructMembership(fileID string, entityType EntityType, entityID string, source AttributionSource, confidence float64, createdAt time.Time) Membership {
	return Membership{
		fileID:     fileID,
		entityType: entityType,
		entityID:   entityID,
		source:     source,
		confidence: confidence,
		createdAt:  createdAt,
	}
}

// FileID returns the file canonical id.
func (m Membership) FileID() string { return m.fileID }

// EntityType returns the entity type.
func (m Membership) EntityType() EntityType { return m.entityType }

// EntityID returns the entity canonical id.
func (m Membership) EntityID() string { return m.entityID }

// Source returns the attribution source.
func (m Membership) Source() AttributionSource { return m.source }

// Confidence returns the confidence in [0,1].
func (m Membership) Confidence() float64 { return m.confidence }

// CreatedAt returns the creation timestamp.
func (m Membership) CreatedAt() time.Time { return m.createdAt }

// ValidateConfidence rejects values outside [0,1].
func ValidateConfidence(c float64) error {
	if c < 0 || c > 1 || c != c {
		return fmt.Errorf("%w: confidence %v outside [0,1]", ErrInvalidInput, c)
	}
	return nil
}
