// Package batch describes bulk observation runs and their results.
package batch

import (
	"time"

	"github.com/helixml/filegraph/domain/graph"
	"github.com/helixml/filegraph/domain/merge"
	"github.com/helixml/filegraph/domain/review"
)

// EntityRef is an entity mention attached to a batch item.
type EntityRef struct {
	Type       graph.EntityType
	Name       string
	Parent     string
	Source     graph.AttributionSource
	Confidence float64
	Details    graph.Details
}

// RelationHint links a batch item to another file by content digest.
type RelationHint struct {
	Digest     string
	Type       graph.RelationshipType
	Confidence float64
}

// Item is one file in a batch run.
type Item struct {
	Path       string
	Digest     string
	Size       int64
	MimeType   string
	Entities   []EntityRef
	Related    []RelationHint
	Skip       bool
	SkipReason string
}

// Status is the per-file result of a run.
type Status string

// Status values.
const (
	StatusOrganized Status = "organized"
	StatusSkipped   Status = "skipped"
	StatusError     Status = "error"
)

// Outcome is the result of one item.
type Outcome struct {
	Path        string
	CanonicalID string
	Status      Status
	Err         error
}

// MergeFailure is a merge request that was neither applied nor queued.
type MergeFailure struct {
	Request merge.Request
	Err     error
}

// Report summarises a run.
type Report struct {
	RunID      string
	Outcomes   []Outcome
	Organized  int
	Skipped    int
	Errors     int
	Events     []graph.MergeEvent
	Reviews    []review.Item
	Failed     []MergeFailure
	Cancelled  bool
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns how long the run took.
func (r Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Tally recomputes the per-status counters from the outcomes.
func (r Report) Tally() Report {
	r.Organized, r.Skipped, r.Errors = 0, 0, 0
	for _, o := range r.Outcomes {
		switch o.Status {
		case StatusOrganized:
			r.Organized++
		case StatusSkipped:
			r.Skipped++
		case StatusError:
			r.Errors++
		}
	}
	return r
}

// Run is the input of a batch run.
type Run struct {
	Items  []Item
	Merges []merge.Request
}
