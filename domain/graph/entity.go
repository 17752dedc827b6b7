package graph

import "time"

// Details carries the attributes specific to one entity type.
type Details interface {
	EntityType() EntityType
}

// CategoryDetails places a category in the category tree.
type CategoryDetails struct {
	// Parent is the canonical id of the parent category, empty for roots.
	Parent   string
	Level    int
	FullPath string
}

// EntityType implements Details.
func (CategoryDetails) EntityType() EntityType { return EntityTypeCategory }

// CompanyDetails holds company attributes.
type CompanyDetails struct {
	Domain string
}

// EntityType implements Details.
func (CompanyDetails) EntityType() EntityType { return EntityTypeCompany }

// PersonDetails holds person attributes.
type PersonDetails struct {
	Email string
	Role  string
}

// EntityType implements Details.
func (PersonDetails) EntityType() EntityType { return EntityTypePerson }

// LocationDetails holds location attributes.
type LocationDetails struct {
	City      string
	State     string
	Country   string
	Latitude  *float64
	Longitude *float64
}

// EntityType implements Details.
func (LocationDetails) EntityType() EntityType { return EntityTypeLocation }

// EmptyDetails returns the zero Details value for a type.
func EmptyDetails(t EntityType) Details {
	switch t {
	case EntityTypeCategory:
		return CategoryDetails{}
	case EntityTypeCompany:
		return CompanyDetails{}
	case EntityTypePerson:
		return PersonDetails{}
	case EntityTypeLocation:
		return LocationDetails{}
	}
	return nil
}

// Entity is a category, company, person or location node.
//
// An entity is live while mergedInto is empty. Once absorbed it keeps its
// row and canonical id forever and points at the entity that absorbed it.
type Entity struct {
	id             int64
	entityType     EntityType
	canonicalID    string
	name           string
	normalizedName string
	sourceIDs      []string
	mergedInto     string
	mergedByEvent  string
	details        Details
	createdAt      time.Time
	updatedAt      time.Time
}

// NewEntity creates a live entity whose source ids contain only its own id.
func NewEntity(
	entityType EntityType,
	canonicalID, name, normalizedName string,
	details Details,
	now time.Time,
) Entity {
	if details == nil {
		details = EmptyDetails(entityType)
	}
	return Entity{
		entityType:     entityType,
		canonicalID:    canonicalID,
		name:           name,
		normalizedName: normalizedName,
		sourceIDs:      []string{canonicalID},
		details:        details,
		createdAt:      now,
		updatedAt:      now,
	}
}

// ReconstructEntity reconstructs an Entity from persistence.
func ReconstructEntity(
	id int64,
	entityType EntityType,
	canonicalID, name, normalizedName string,
	sourceIDs []string,
	mergedInto, mergedByEvent string,
	details Details,
	createdAt, updatedAt time.Time,
) Entity {
	if details == nil {
		details = EmptyDetails(entityType)
	}
	return Entity{
		id:             id,
		entityType:     entityType,
		canonicalID:    canonicalID,
		name:           name,
		normalizedName: normalizedName,
		sourceIDs:      cloneStrings(sourceIDs),
		mergedInto:     mergedInto,
		mergedByEvent:  mergedByEvent,
		details:        details,
		createdAt:      createdAt,
		updatedAt:      updatedAt,
	}
}

// ID returns the storage surrogate key (0 if not persisted).
func (e Entity) ID() int64 { return e.id }

// Type returns the entity type.
func (e Entity) Type() EntityType { return e.entityType }

// CanonicalID returns the name-derived identifier.
func (e Entity) CanonicalID() string { return e.canonicalID }

// Name returns the display name as first observed.
func (e Entity) Name() string { return e.name }

// NormalizedName returns the natural key the canonical id was derived from.
func (e Entity) NormalizedName() string { return e.normalizedName }

// SourceIDs returns this entity's id followed by every id it has absorbed.
func (e Entity) SourceIDs() []string { return cloneStrings(e.sourceIDs) }

// MergedInto returns the canonical id of the absorbing entity, if absorbed.
func (e Entity) MergedInto() (string, bool) { return e.mergedInto, e.mergedInto != "" }

// MergedByEvent returns the id of the merge event that absorbed this entity.
func (e Entity) MergedByEvent() string { return e.mergedByEvent }

// IsLive reports whether the entity has not been absorbed.
func (e Entity) IsLive() bool { return e.mergedInto == "" }

// Details returns the type specific attributes.
func (e Entity) Details() Details { return e.details }

// CreatedAt returns the creation timestamp.
func (e Entity) CreatedAt() time.Time { return e.createdAt }

// UpdatedAt returns the last update timestamp.
func (e Entity) UpdatedAt() time.Time { return e.updatedAt }

// Category returns the category details when the entity is a category.
func (e Entity) Category() (CategoryDetails, bool) {
	d, ok := e.details.(CategoryDetails)
	return d, ok
}

// Absorbs returns the survivor after absorbing other. The source id sets are
// unioned in order.
func (e Entity) Absorbs(other Entity, now time.Time) Entity {
	e.sourceIDs = UnionOrdered(e.sourceIDs, other.sourceIDs)
	e.updatedAt = now
	return e
}

// AbsorbedBy returns a copy marked as merged into survivor by event.
func (e Entity) AbsorbedBy(survivor, eventID string, now time.Time) Entity {
	e.sourceIDs = cloneStrings(e.sourceIDs)
	e.mergedInto = survivor
	e.mergedByEvent = eventID
	e.updatedAt = now
	return e
}

// WithDetails returns a copy with new type specific attributes.
func (e Entity) WithDetails(details Details, now time.Time) Entity {
	if details == nil || details.EntityType() != e.entityType {
		return e
	}
	e.sourceIDs = cloneStrings(e.sourceIDs)
	e.details = details
	e.updatedAt = now
	return e
}
