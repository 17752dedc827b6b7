package jsonapi

import (
	"time"

	"github.com/helixml/filegraph/application/service"
	"github.com/helixml/filegraph/domain/graph"
	"github.com/helixml/filegraph/domain/kv"
	"github.com/helixml/filegraph/domain/review"
)

// Resource types.
const (
	TypeFile         = "file"
	TypeEntity       = "entity"
	TypeMembership   = "membership"
	TypeRelationship = "relationship"
	TypeMergeEvent   = "merge_event"
	TypeReview       = "review"
	TypeCategory     = "category"
	TypeStats        = "stats"
)

// FileAttributes represents file attributes in JSON:API format.
type FileAttributes struct {
	ContentHash  string     `json:"content_hash"`
	OriginalPath string     `json:"original_path"`
	CurrentPath  string     `json:"current_path"`
	PathHistory  []string   `json:"path_history"`
	Size         int64      `json:"size"`
	MimeType     string     `json:"mime_type,omitempty"`
	Status       string     `json:"status"`
	StatusReason string     `json:"status_reason,omitempty"`
	SourceIDs    []string   `json:"source_ids"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	OrganizedAt  *time.Time `json:"organized_at,omitempty"`
}

// DetailsAttributes holds the type specific entity attributes. Only the
// fields of the entity's type are set.
type DetailsAttributes struct {
	Parent    string   `json:"parent,omitempty"`
	Level     *int     `json:"level,omitempty"`
	FullPath  string   `json:"full_path,omitempty"`
	Domain    string   `json:"domain,omitempty"`
	Email     string   `json:"email,omitempty"`
	Role      string   `json:"role,omitempty"`
	City      string   `json:"city,omitempty"`
	State     string   `json:"state,omitempty"`
	Country   string   `json:"country,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// EntityAttributes represents entity attributes in JSON:API format.
type EntityAttributes struct {
	EntityType     string            `json:"entity_type"`
	Name           string            `json:"name"`
	NormalizedName string            `json:"normalized_name"`
	SourceIDs      []string          `json:"source_ids"`
	MergedInto     *string           `json:"merged_into"`
	MergedByEvent  string            `json:"merged_by_event,omitempty"`
	Details        DetailsAttributes `json:"details"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// MembershipAttributes represents a file to entity link.
type MembershipAttributes struct {
	FileID     string    `json:"file_id"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Source     string    `json:"source"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

// RelationshipAttributes represents a typed file to file edge.
type RelationshipAttributes struct {
	Source     string    `json:"source"`
	Target     string    `json:"target"`
	Type       string    `json:"type"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

// MergeEventAttributes represents a merge event in JSON:API format.
type MergeEventAttributes struct {
	EntityType  string    `json:"entity_type"`
	Survivor    string    `json:"survivor"`
	Absorbed    []string  `json:"absorbed"`
	Reason      string    `json:"reason,omitempty"`
	Confidence  float64   `json:"confidence"`
	PerformedBy string    `json:"performed_by,omitempty"`
	PerformedAt time.Time `json:"performed_at"`
}

// ReviewAttributes represents a queued merge in JSON:API format.
type ReviewAttributes struct {
	Kind             string     `json:"kind"`
	State            string     `json:"state"`
	EntityType       string     `json:"entity_type"`
	A                string     `json:"a"`
	B                string     `json:"b"`
	ProposedSurvivor string     `json:"proposed_survivor,omitempty"`
	Reason           string     `json:"reason,omitempty"`
	Confidence       float64    `json:"confidence"`
	RequestedBy      string     `json:"requested_by,omitempty"`
	Error            string     `json:"error,omitempty"`
	ResolvedBy       string     `json:"resolved_by,omitempty"`
	Note             string     `json:"note,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
}

// StatsAttributes represents aggregate statistics.
type StatsAttributes struct {
	Graph       graph.Stats `json:"graph"`
	KV          kv.Info     `json:"kv"`
	GeneratedAt time.Time   `json:"generated_at"`
}

// Serializer converts domain objects to JSON:API resources.
type Serializer struct{}

// NewSerializer creates a new Serializer.
func NewSerializer() *Serializer {
	return &Serializer{}
}

// FileResource converts a file to a JSON:API resource.
func (s *Serializer) FileResource(f graph.File) *Resource {
	return NewResource(TypeFile, f.CanonicalID(), s.FileAttributes(f)).
		WithSelf("/api/v1/files/" + f.CanonicalID())
}

// FileAttributes returns the attributes of a file.
func (s *Serializer) FileAttributes(f graph.File) *FileAttributes {
	attrs := &FileAttributes{
		ContentHash:  f.ContentHash(),
		OriginalPath: f.OriginalPath(),
		CurrentPath:  f.CurrentPath(),
		PathHistory:  nonNil(f.PathHistory()),
		Size:         f.Size(),
		MimeType:     f.MimeType(),
		Status:       string(f.Status()),
		StatusReason: f.StatusReason(),
		SourceIDs:    nonNil(f.SourceIDs()),
		CreatedAt:    f.CreatedAt(),
		UpdatedAt:    f.UpdatedAt(),
	}
	if at, ok := f.OrganizedAt(); ok {
		attrs.OrganizedAt = &at
	}
	return attrs
}

// FileResources converts multiple files to JSON:API resources.
func (s *Serializer) FileResources(files []graph.File) []*Resource {
	resources := make([]*Resource, len(files))
	for i, f := range files {
		resources[i] = s.FileResource(f)
	}
	return resources
}

// RelatedFileResources converts related files. The edge that reached each
// file is carried in the resource meta.
func (s *Serializer) RelatedFileResources(related []graph.RelatedFile) []*Resource {
	resources := make([]*Resource, len(related))
	for i, r := range related {
		res := s.FileResource(r.File)
		res.Meta = &Meta{
			"relationship_type": string(r.Type),
			"confidence":        r.Confidence,
			"depth":             r.Depth,
		}
		resources[i] = res
	}
	return resources
}

// EntityResource converts an entity to a JSON:API resource.
func (s *Serializer) EntityResource(e graph.Entity) *Resource {
	into, _ := e.MergedInto()
	return NewResource(TypeEntity, e.CanonicalID(), s.EntityAttributes(e)).
		WithSelf("/api/v1/entities/"+e.CanonicalID()).
		Relate("merged_into", TypeEntity, into).
		Relate("merged_by", TypeMergeEvent, e.MergedByEvent())
}

// EntityAttributes returns the attributes of an entity.
func (s *Serializer) EntityAttributes(e graph.Entity) *EntityAttributes {
	attrs := &EntityAttributes{
		EntityType:     string(e.Type()),
		Name:           e.Name(),
		NormalizedName: e.NormalizedName(),
		SourceIDs:      nonNil(e.SourceIDs()),
		MergedByEvent:  e.MergedByEvent(),
		Details:        detailsAttributes(e.Details()),
		CreatedAt:      e.CreatedAt(),
		UpdatedAt:      e.UpdatedAt(),
	}
	if into, ok := e.MergedInto(); ok {
		attrs.MergedInto = &into
	}
	return attrs
}

// EntityResources converts multiple entities to JSON:API resources.
func (s *Serializer) EntityResources(entities []graph.Entity) []*Resource {
	resources := make([]*Resource, len(entities))
	for i, e := range entities {
		resources[i] = s.EntityResource(e)
	}
	return resources
}

func detailsAttributes(d graph.Details) DetailsAttributes {
	switch v := d.(type) {
	case graph.CategoryDetails:
		level := v.Level
		return DetailsAttributes{Parent: v.Parent, Level: &level, FullPath: v.FullPath}
	case graph.CompanyDetails:
		return DetailsAttributes{Domain: v.Domain}
	case graph.PersonDetails:
		return DetailsAttributes{Email: v.Email, Role: v.Role}
	case graph.LocationDetails:
		return DetailsAttributes{
			City:      v.City,
			State:     v.State,
			Country:   v.Country,
			Latitude:  v.Latitude,
			Longitude: v.Longitude,
		}
	}
	return DetailsAttributes{}
}

// MembershipResource converts a membership edge to a JSON:API resource.
func (s *Serializer) MembershipResource(m graph.Membership) *Resource {
	return NewResource(TypeMembership, m.FileID()+"|"+m.EntityID(), &MembershipAttributes{
		FileID:     m.FileID(),
		EntityType: string(m.EntityType()),
		EntityID:   m.EntityID(),
		Source:     string(m.Source()),
		Confidence: m.Confidence(),
		CreatedAt:  m.CreatedAt(),
	}).
		Relate("file", TypeFile, m.FileID()).
		Relate("entity", TypeEntity, m.EntityID())
}

// MembershipResources converts multiple memberships to JSON:API resources.
func (s *Serializer) MembershipResources(memberships []graph.Membership) []*Resource {
	resources := make([]*Resource, len(memberships))
	for i, m := range memberships {
		resources[i] = s.MembershipResource(m)
	}
	return resources
}

// RelationshipResource converts a relationship edge to a JSON:API resource.
func (s *Serializer) RelationshipResource(r graph.Relationship) *Resource {
	return NewResource(TypeRelationship, r.Source()+"|"+r.Target()+"|"+string(r.Type()), &RelationshipAttributes{
		Source:     r.Source(),
		Target:     r.Target(),
		Type:       string(r.Type()),
		Confidence: r.Confidence(),
		CreatedAt:  r.CreatedAt(),
	}).
		Relate("source", TypeFile, r.Source()).
		Relate("target", TypeFile, r.Target())
}

// MergeEventResource converts a merge event to a JSON:API resource.
func (s *Serializer) MergeEventResource(m graph.MergeEvent) *Resource {
	return NewResource(TypeMergeEvent, m.ID(), s.MergeEventAttributes(m)).
		Relate("survivor", TypeEntity, m.Survivor())
}

// MergeEventAttributes returns the attributes of a merge event.
func (s *Serializer) MergeEventAttributes(m graph.MergeEvent) *MergeEventAttributes {
	return &MergeEventAttributes{
		EntityType:  string(m.EntityType()),
		Survivor:    m.Survivor(),
		Absorbed:    nonNil(m.Absorbed()),
		Reason:      m.Reason(),
		Confidence:  m.Confidence(),
		PerformedBy: m.PerformedBy(),
		PerformedAt: m.PerformedAt(),
	}
}

// MergeEventResources converts multiple merge events to JSON:API resources.
func (s *Serializer) MergeEventResources(events []graph.MergeEvent) []*Resource {
	resources := make([]*Resource, len(events))
	for i, m := range events {
		resources[i] = s.MergeEventResource(m)
	}
	return resources
}

// ReviewResource converts a review item to a JSON:API resource.
func (s *Serializer) ReviewResource(item review.Item) *Resource {
	req := item.Request()
	attrs := &ReviewAttributes{
		Kind:             string(item.Kind()),
		State:            string(item.State()),
		EntityType:       string(req.EntityType),
		A:                req.A,
		B:                req.B,
		ProposedSurvivor: item.ProposedSurvivor(),
		Reason:           req.Reason,
		Confidence:       req.Confidence,
		RequestedBy:      req.PerformedBy,
		Error:            item.Error(),
		ResolvedBy:       item.ResolvedBy(),
		Note:             item.Note(),
		CreatedAt:        item.CreatedAt(),
	}
	if at, ok := item.ResolvedAt(); ok {
		attrs.ResolvedAt = &at
	}
	return NewResource(TypeReview, item.ID(), attrs)
}

// ReviewResources converts multiple review items to JSON:API resources.
func (s *Serializer) ReviewResources(items []review.Item) []*Resource {
	resources := make([]*Resource, len(items))
	for i, item := range items {
		resources[i] = s.ReviewResource(item)
	}
	return resources
}

// CategoryResources converts the roots of the category tree. Children stay
// nested in the attributes.
func (s *Serializer) CategoryResources(roots []graph.CategoryNode) []*Resource {
	resources := make([]*Resource, len(roots))
	for i, n := range roots {
		node := n
		resources[i] = NewResource(TypeCategory, n.CanonicalID, &node)
	}
	return resources
}

// StatsResource converts aggregate statistics to a JSON:API resource.
func (s *Serializer) StatsResource(agg service.Aggregate) *Resource {
	return NewResource(TypeStats, "aggregate", &StatsAttributes{
		Graph:       agg.Graph,
		KV:          agg.KV,
		GeneratedAt: agg.GeneratedAt,
	})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
