package persistence

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"github.com/helixml/filegraph/domain/graph"
	"github.com/helixml/filegraph/domain/merge"
	"github.com/helixml/filegraph/domain/review"
)

func encodeIDs(column string, ids []string) (datatypes.JSON, error) {
	if ids == nil {
		ids = []string{}
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", column, err)
	}
	return datatypes.JSON(raw), nil
}

// decodeIDs reads a JSON string list. An empty column is an empty list; a
// malformed one is an error.
func decodeIDs(column string, raw datatypes.JSON) ([]string, error) {
	if len(raw) == 0 {
		return []string{}, nil
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("decode %s: %w", column, err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// FileMapper maps between graph.File and FileModel.
type FileMapper struct{}

// ToDomain converts a FileModel to a graph.File.
func (FileMapper) ToDomain(m FileModel) (graph.File, error) {
	history, err := decodeIDs("path_history", m.PathHistory)
	if err != nil {
		return graph.File{}, fmt.Errorf("file %s: %w", m.CanonicalID, err)
	}
	sources, err := decodeIDs("source_ids", m.SourceIDs)
	if err != nil {
		return graph.File{}, fmt.Errorf("file %s: %w", m.CanonicalID, err)
	}
	return graph.ReconstructFile(
		m.ID,
		m.CanonicalID,
		m.ContentHash,
		m.OriginalPath,
		m.CurrentPath,
		history,
		m.Size,
		m.MimeType,
		graph.FileStatus(m.Status),
		m.StatusReason,
		sources,
		m.CreatedAt,
		m.UpdatedAt,
		m.OrganizedAt,
	), nil
}

// ToModel converts a graph.File to a FileModel.
func (FileMapper) ToModel(f graph.File) (FileModel, error) {
	history, err := encodeIDs("path_history", f.PathHistory())
	if err != nil {
		return FileModel{}, err
	}
	sources, err := encodeIDs("source_ids", f.SourceIDs())
	if err != nil {
		return FileModel{}, err
	}
	var organizedAt *time.Time
	if at, ok := f.OrganizedAt(); ok {
		organizedAt = &at
	}
	return FileModel{
		ID:           f.ID(),
		CanonicalID:  f.CanonicalID(),
		ContentHash:  f.ContentHash(),
		OriginalPath: f.OriginalPath(),
		CurrentPath:  f.CurrentPath(),
		PathHistory:  history,
		Size:         f.Size(),
		MimeType:     f.MimeType(),
		Status:       string(f.Status()),
		StatusReason: f.StatusReason(),
		SourceIDs:    sources,
		CreatedAt:    f.CreatedAt(),
		UpdatedAt:    f.UpdatedAt(),
		OrganizedAt:  organizedAt,
	}, nil
}

// entityRecord is implemented by the pointer types of every entity model.
type entityRecord interface {
	columns() *EntityColumns
	toDomain() (graph.Entity, error)
}

func (c EntityColumns) entity(t graph.EntityType, details graph.Details) (graph.Entity, error) {
	sources, err := decodeIDs("source_ids", c.SourceIDs)
	if err != nil {
		return graph.Entity{}, fmt.Errorf("%s %s: %w", t, c.CanonicalID, err)
	}
	return graph.ReconstructEntity(
		c.ID,
		t,
		c.CanonicalID,
		c.Name,
		c.NormalizedName,
		sources,
		deref(c.MergedInto),
		deref(c.MergedByEvent),
		details,
		c.CreatedAt,
		c.UpdatedAt,
	), nil
}

func entityColumns(e graph.Entity) (EntityColumns, error) {
	sources, err := encodeIDs("source_ids", e.SourceIDs())
	if err != nil {
		return EntityColumns{}, err
	}
	into, _ := e.MergedInto()
	return EntityColumns{
		ID:             e.ID(),
		CanonicalID:    e.CanonicalID(),
		Name:           e.Name(),
		NormalizedName: e.NormalizedName(),
		SourceIDs:      sources,
		MergedInto:     optional(into),
		MergedByEvent:  optional(e.MergedByEvent()),
		CreatedAt:      e.CreatedAt(),
		UpdatedAt:      e.UpdatedAt(),
	}, nil
}

func (m *CategoryModel) columns() *EntityColumns { return &m.EntityColumns }
func (m *CompanyModel) columns() *EntityColumns  { return &m.EntityColumns }
func (m *PersonModel) columns() *EntityColumns   { return &m.EntityColumns }
func (m *LocationModel) columns() *EntityColumns { return &m.EntityColumns }

func (m *CategoryModel) toDomain() (graph.Entity, error) {
	return m.entity(graph.EntityTypeCategory, graph.CategoryDetails{
		Parent:   deref(m.Parent),
		Level:    m.Level,
		FullPath: m.FullPath,
	})
}

func (m *CompanyModel) toDomain() (graph.Entity, error) {
	return m.entity(graph.EntityTypeCompany, graph.CompanyDetails{Domain: m.Domain})
}

func (m *PersonModel) toDomain() (graph.Entity, error) {
	return m.entity(graph.EntityTypePerson, graph.PersonDetails{Email: m.Email, Role: m.Role})
}

func (m *LocationModel) toDomain() (graph.Entity, error) {
	return m.entity(graph.EntityTypeLocation, graph.LocationDetails{
		City:      m.City,
		State:     m.State,
		Country:   m.Country,
		Latitude:  m.Latitude,
		Longitude: m.Longitude,
	})
}

// entityModel returns a pointer to the model for e, ready to insert.
func entityModel(e graph.Entity) (entityRecord, error) {
	cols, err := entityColumns(e)
	if err != nil {
		return nil, err
	}
	switch d := e.Details().(type) {
	case graph.CategoryDetails:
		return &CategoryModel{EntityColumns: cols, Parent: optional(d.Parent), Level: d.Level, FullPath: d.FullPath}, nil
	case graph.CompanyDetails:
		return &CompanyModel{EntityColumns: cols, Domain: d.Domain}, nil
	case graph.PersonDetails:
		return &PersonModel{EntityColumns: cols, Email: d.Email, Role: d.Role}, nil
	case graph.LocationDetails:
		return &LocationModel{
			EntityColumns: cols,
			City:          d.City,
			State:         d.State,
			Country:       d.Country,
			Latitude:      d.Latitude,
			Longitude:     d.Longitude,
		}, nil
	}
	return nil, fmt.Errorf("%w: unknown entity type %q", graph.ErrInvalidInput, e.Type())
}

// detailColumns returns the type specific columns to update for e.
func detailColumns(d graph.Details) map[string]any {
	switch d := d.(type) {
	case graph.CategoryDetails:
		return map[string]any{"parent_canonical_id": optional(d.Parent), "level": d.Level, "full_path": d.FullPath}
	case graph.CompanyDetails:
		return map[string]any{"domain": d.Domain}
	case graph.PersonDetails:
		return map[string]any{"email": d.Email, "role": d.Role}
	case graph.LocationDetails:
		return map[string]any{
			"city": d.City, "state": d.State, "country": d.Country,
			"latitude": d.Latitude, "longitude": d.Longitude,
		}
	}
	return map[string]any{}
}

// entityTable returns the table name of an entity type.
func entityTable(t graph.EntityType) string {
	switch t {
	case graph.EntityTypeCategory:
		return CategoryModel{}.TableName()
	case graph.EntityTypeCompany:
		return CompanyModel{}.TableName()
	case graph.EntityTypePerson:
		return PersonModel{}.TableName()
	case graph.EntityTypeLocation:
		return LocationModel{}.TableName()
	}
	return ""
}

// MergeEventMapper maps between graph.MergeEvent and MergeEventModel.
type MergeEventMapper struct{}

// ToDomain converts a MergeEventModel to a graph.MergeEvent.
func (MergeEventMapper) ToDomain(m MergeEventModel) (graph.MergeEvent, error) {
	absorbed, err := decodeIDs("absorbed_entity_ids", m.Absorbed)
	if err != nil {
		return graph.MergeEvent{}, fmt.Errorf("merge event %s: %w", m.ID, err)
	}
	return graph.NewMergeEvent(
		m.ID,
		graph.EntityType(m.EntityType),
		m.Survivor,
		absorbed,
		m.Reason,
		m.Confidence,
		m.PerformedBy,
		m.PerformedAt,
	), nil
}

// ToModel converts a graph.MergeEvent to a MergeEventModel.
func (MergeEventMapper) ToModel(e graph.MergeEvent) (MergeEventModel, error) {
	absorbed, err := encodeIDs("absorbed_entity_ids", e.Absorbed())
	if err != nil {
		return MergeEventModel{}, err
	}
	return MergeEventModel{
		ID:          e.ID(),
		EntityType:  string(e.EntityType()),
		Survivor:    e.Survivor(),
		Absorbed:    absorbed,
		Reason:      e.Reason(),
		Confidence:  e.Confidence(),
		PerformedBy: e.PerformedBy(),
		PerformedAt: e.PerformedAt(),
	}, nil
}

// ReviewMapper maps between review.Item and MergeReviewModel.
type ReviewMapper struct{}

// ToDomain converts a MergeReviewModel to a review.Item.
func (ReviewMapper) ToDomain(m MergeReviewModel) (review.Item, error) {
	req := merge.Request{
		EntityType:  graph.EntityType(m.EntityType),
		A:           m.EntityA,
		B:           m.EntityB,
		Survivor:    m.Designated,
		Reason:      m.Reason,
		Confidence:  m.Confidence,
		PerformedBy: m.RequestedBy,
	}
	return review.ReconstructItem(
		m.ID,
		review.Kind(m.Kind),
		review.State(m.State),
		req,
		m.ProposedSurvivor,
		m.Error,
		m.ResolvedBy,
		m.Note,
		m.CreatedAt,
		m.ResolvedAt,
	), nil
}

// ToModel converts a review.Item to a MergeReviewModel.
func (ReviewMapper) ToModel(i review.Item) (MergeReviewModel, error) {
	req := i.Request()
	var resolvedAt *time.Time
	if at, ok := i.ResolvedAt(); ok {
		resolvedAt = &at
	}
	return MergeReviewModel{
		ID:               i.ID(),
		Kind:             string(i.Kind()),
		State:            string(i.State()),
		EntityType:       string(req.EntityType),
		EntityA:          req.A,
		EntityB:          req.B,
		Designated:       req.Survivor,
		ProposedSurvivor: i.ProposedSurvivor(),
		Reason:           req.Reason,
		Confidence:       req.Confidence,
		RequestedBy:      req.PerformedBy,
		Error:            i.Error(),
		ResolvedBy:       i.ResolvedBy(),
		Note:             i.Note(),
		CreatedAt:        i.CreatedAt(),
		ResolvedAt:       resolvedAt,
	}, nil
}
