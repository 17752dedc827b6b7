package merge

import (
	"github.com/helixml/filegraph/domain/graph"
	"github.com/helixml/filegraph/domain/identity"
)

// Kind names a decision variant.
type Kind string

// Kind values.
const (
	KindCreate           Kind = "create"
	KindAttachUpdate     Kind = "attach_update"
	KindRedirectAttach   Kind = "redirect_attach"
	KindLinkMembership   Kind = "link_membership"
	KindLinkRelationship Kind = "link_relationship"
	KindMerge            Kind = "merge"
	KindReview           Kind = "review"
)

// Decision is what the engine wants done to the graph. The set of variants
// is closed: only types in this package implement it.
type Decision interface {
	Kind() Kind
	decision()
}

// FileObservation is one sighting of a file.
type FileObservation struct {
	Identity identity.FileIdentity
	Size     int64
	MimeType string
}

// EntityObservation is one mention of an entity.
type EntityObservation struct {
	Identity    identity.EntityIdentity
	DisplayName string
	Details     graph.Details
}

// CreateFile inserts a new file node.
type CreateFile struct {
	Observation FileObservation
}

// AttachFile updates an existing file node with a newer sighting.
type AttachFile struct {
	Observation FileObservation
}

// CreateEntity inserts a new live entity.
type CreateEntity struct {
	Observation EntityObservation
}

// AttachEntity updates an existing live entity.
type AttachEntity struct {
	Observation EntityObservation
}

// RedirectAttach sends a mention of an absorbed entity to its live survivor.
type RedirectAttach struct {
	Observation EntityObservation
	Survivor    string
}

// LinkMembership attaches a file to an entity, or to the entity's live
// survivor when the entity has been absorbed.
type LinkMembership struct {
	FileID     string
	EntityID   string
	Source     graph.AttributionSource
	Confidence float64
}

// LinkRelationship records a typed edge between two files.
type LinkRelationship struct {
	Relationship graph.Relationship
}

// Merge absorbs one live entity into another.
type Merge struct {
	EntityType  graph.EntityType
	Survivor    string
	Absorbed    string
	Reason      string
	Confidence  float64
	PerformedBy string
}

// Review parks a merge that needs a human decision.
type Review struct {
	Request  Request
	Survivor string
	Absorbed string
}

// Kind implements Decision.
func (CreateFile) Kind() Kind { return KindCreate }

// Kind implements Decision.
func (AttachFile) Kind() Kind { return KindAttachUpdate }

// Kind implements Decision.
func (CreateEntity) Kind() Kind { return KindCreate }

// Kind implements Decision.
func (AttachEntity) Kind() Kind { return KindAttachUpdate }

// Kind implements Decision.
func (RedirectAttach) Kind() Kind { return KindRedirectAttach }

// Kind implements Decision.
func (LinkMembership) Kind() Kind { return KindLinkMembership }

// Kind implements Decision.
func (LinkRelationship) Kind() Kind { return KindLinkRelationship }

// Kind implements Decision.
func (Merge) Kind() Kind { return KindMerge }

// Kind implements Decision.
func (Review) Kind() Kind { return KindReview }

func (CreateFile) decision()       {}
func (AttachFile) decision()       {}
func (CreateEntity) decision()     {}
func (AttachEntity) decision()     {}
func (RedirectAttach) decision()   {}
func (LinkMembership) decision()   {}
func (LinkRelationship) decision() {}
func (Merge) decision()            {}
func (Review) decision()           {}
