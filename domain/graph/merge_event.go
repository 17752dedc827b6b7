package graph

import "time"

// MergeEvent is the immutable audit record of one merge.
type MergeEvent struct {
	id          string
	entityType  EntityType
	survivor    string
	absorbed    []string
	reason      string
	confidence  float64
	performedBy string
	performedAt time.Time
}

// NewMergeEvent creates a MergeEvent.
func NewMergeEvent(
	id string,
	entityType EntityType,
	survivor string,
	absorbed []string,
	reason string,
	confidence float64,
	performedBy string,
	performedAt time.Time,
) MergeEvent {
	return MergeEvent{
		id:          id,
		entityType:  entityType,
		survivor:    survivor,
		absorbed:    cloneStrings(absorbed),
		reason:      reason,
		confidence:  confidence,
		performedBy: performedBy,
		performedAt: performedAt,
	}
}

// ID returns the time-ordered event id.
func (m MergeEvent) ID() string { return m.id }

// EntityType returns the type of the merged entities.
func (m MergeEvent) EntityType() EntityType { return m.entityType }

// Survivor returns the canonical id of the surviving entity.
func (m MergeEvent) Survivor() string { return m.survivor }

// Absorbed returns the canonical ids absorbed by this merge.
func (m MergeEvent) Absorbed() []string { return cloneStrings(m.absorbed) }

// Reason returns the free-text merge reason.
func (m MergeEvent) Reason() string { return m.reason }

// Confidence returns the confidence of the merge.
func (m MergeEvent) Confidence() float64 { return m.confidence }

// PerformedBy returns who requested the merge.
func (m MergeEvent) PerformedBy() string { return m.performedBy }

// PerformedAt returns when the merge was applied.
func (m MergeEvent) PerformedAt() time.Time { return m.performedAt }
