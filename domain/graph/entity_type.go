package graph

import (
	"fmt"
	"strings"
)

// EntityType discriminates the entity tables.
type EntityType string

// EntityType values.
const (
	EntityTypeCategory EntityType = "category"
	EntityTypeCompany  EntityType = "company"
	EntityTypePerson   EntityType = "person"
	EntityTypeLocation EntityType = "location"
)

// EntityTypes returns every supported entity type in a stable order.
func EntityTypes() []EntityType {
	return []EntityType{EntityTypeCategory, EntityTypeCompany, EntityTypePerson, EntityTypeLocation}
}

// ParseEntityType converts a string to an EntityType.
func ParseEntityType(s string) (EntityType, error) {
	t := EntityType(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", fmt.Errorf("%w: unknown entity type %q", ErrInvalidInput, s)
	}
	return t, nil
}

// IsValid reports whether the type is one of the supported entity types.
func (t EntityType) IsValid() bool {
	switch t {
	case EntityTypeCategory, EntityTypeCompany, EntityTypePerson, EntityTypeLocation:
		return true
	}
	return false
}

// String implements fmt.Stringer.
func (t EntityType) String() string { return string(t) }
