package persistence

import (
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrImmutableEvent is returned when something tries to change a merge event.
var ErrImmutableEvent = errors.New("merge events are append-only")

// FileModel represents a content-identified file.
type FileModel struct {
	ID           int64          `gorm:"column:id;primaryKey;autoIncrement"`
	CanonicalID  string         `gorm:"column:canonical_id;uniqueIndex;size:96;not null"`
	ContentHash  string         `gorm:"column:content_hash;index;size:128;not null"`
	OriginalPath string         `gorm:"column:original_path;type:text"`
	CurrentPath  string         `gorm:"column:current_path;type:text"`
	PathHistory  datatypes.JSON `gorm:"column:path_history"`
	Size         int64          `gorm:"column:size"`
	MimeType     string         `gorm:"column:mime_type;index;size:255"`
	Status       string         `gorm:"column:status;index;size:32;not null"`
	StatusReason string         `gorm:"column:status_reason;type:text"`
	SourceIDs    datatypes.JSON `gorm:"column:source_ids"`
	CreatedAt    time.Time      `gorm:"column:created_at"`
	UpdatedAt    time.Time      `gorm:"column:updated_at"`
	OrganizedAt  *time.Time     `gorm:"column:organized_at"`
}

// TableName returns the table name.
func (FileModel) TableName() string {
	return "files"
}

// EntityColumns are shared by every entity table.
type EntityColumns struct {
	ID             int64          `gorm:"column:id;primaryKey;autoIncrement"`
	CanonicalID    string         `gorm:"column:canonical_id;uniqueIndex;size:96;not null"`
	Name           string         `gorm:"column:name;size:512;not null"`
	NormalizedName string         `gorm:"column:normalized_name;index;size:512;not null"`
	SourceIDs      datatypes.JSON `gorm:"column:source_ids"`
	MergedInto     *string        `gorm:"column:merged_into;index;size:96"`
	MergedByEvent  *string        `gorm:"column:merged_by_event;size:96"`
	CreatedAt      time.Time      `gorm:"column:created_at"`
	UpdatedAt      time.Time      `gorm:"column:updated_at"`
}

// CategoryModel represents a category in the category tree.
type CategoryModel struct {
	EntityColumns `gorm:"embedded"`
	Parent        *string `gorm:"column:parent_canonical_id;index;size:96"`
	Level         int     `gorm:"column:level"`
	FullPath      string  `gorm:"column:full_path;type:text"`
}

// TableName returns the table name.
func (CategoryModel) TableName() string {
	return "categories"
}

// CompanyModel represents a company.
type CompanyModel struct {
	EntityColumns `gorm:"embedded"`
	Domain        string `gorm:"column:domain;size:255"`
}

// TableName returns the table name.
func (CompanyModel) TableName() string {
	return "companies"
}

// PersonModel represents a person.
type PersonModel struct {
	EntityColumns `gorm:"embedded"`
	Email         string `gorm:"column:email;size:255"`
	Role          string `gorm:"column:role;size:255"`
}

// TableName returns the table name.
func (PersonModel) TableName() string {
	return "people"
}

// LocationModel represents a location.
type LocationModel struct {
	EntityColumns `gorm:"embedded"`
	City          string   `gorm:"column:city;size:255"`
	State         string   `gorm:"column:state;size:255"`
	Country       string   `gorm:"column:country;size:255"`
	Latitude      *float64 `gorm:"column:latitude"`
	Longitude     *float64 `gorm:"column:longitude"`
}

// TableName returns the table name.
func (LocationModel) TableName() string {
	return "locations"
}

// FileEntityLinkModel is a membership edge between a file and an entity.
type FileEntityLinkModel struct {
	ID         int64     `gorm:"column:id;primaryKey;autoIncrement"`
	FileID     int64     `gorm:"column:file_id;not null;uniqueIndex:idx_file_entity_link,priority:1"`
	EntityType string    `gorm:"column:entity_type;size:32;not null;uniqueIndex:idx_file_entity_link,priority:2;index:idx_link_entity,priority:1"`
	EntityID   int64     `gorm:"column:entity_id;not null;uniqueIndex:idx_file_entity_link,priority:3;index:idx_link_entity,priority:2"`
	Source     string    `gorm:"column:source;size:32"`
	Confidence float64   `gorm:"column:confidence"`
	CreatedAt  time.Time `gorm:"column:created_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}

// TableName returns the table name.
func (FileEntityLinkModel) TableName() string {
	return "file_entity_links"
}

// FileRelationshipModel is a typed edge between two files.
type FileRelationshipModel struct {
	ID           int64     `gorm:"column:id;primaryKey;autoIncrement"`
	SourceFileID int64     `gorm:"column:source_file_id;not null;uniqueIndex:idx_file_relationship,priority:1"`
	TargetFileID int64     `gorm:"column:target_file_id;not null;index;uniqueIndex:idx_file_relationship,priority:2"`
	Type         string    `gorm:"column:relationship_type;size:32;not null;uniqueIndex:idx_file_relationship,priority:3"`
	Confidence   float64   `gorm:"column:confidence"`
	CreatedAt    time.Time `gorm:"column:created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at"`
}

// TableName returns the table name.
func (FileRelationshipModel) TableName() string {
	return "file_relationships"
}

// MergeEventModel is an append-only merge audit record.
type MergeEventModel struct {
	ID          string         `gorm:"column:id;primaryKey;size:96"`
	EntityType  string         `gorm:"column:entity_type;size:32;not null"`
	Survivor    string         `gorm:"column:surviving_entity_id;index;size:96;not null"`
	Absorbed    datatypes.JSON `gorm:"column:absorbed_entity_ids"`
	Reason      string         `gorm:"column:reason;type:text"`
	Confidence  float64        `gorm:"column:confidence"`
	PerformedBy string         `gorm:"column:performed_by;size:255"`
	PerformedAt time.Time      `gorm:"column:performed_at;index"`
}

// TableName returns the table name.
func (MergeEventModel) TableName() string {
	return "merge_events"
}

// BeforeUpdate refuses updates.
func (MergeEventModel) BeforeUpdate(*gorm.DB) error {
	return ErrImmutableEvent
}

// BeforeDelete refuses deletes.
func (MergeEventModel) BeforeDelete(*gorm.DB) error {
	return ErrImmutableEvent
}

// MergeReviewModel is a merge request parked for review.
type MergeReviewModel struct {
	ID               string     `gorm:"column:id;primaryKey;size:96"`
	Kind             string     `gorm:"column:kind;size:32;not null"`
	State            string     `gorm:"column:state;index;size:32;not null"`
	EntityType       string     `gorm:"column:entity_type;size:32;not null"`
	EntityA          string     `gorm:"column:entity_a;size:96;not null"`
	EntityB          string     `gorm:"column:entity_b;size:96;not null"`
	Designated       string     `gorm:"column:designated_survivor;size:96"`
	ProposedSurvivor string     `gorm:"column:proposed_survivor;size:96"`
	Reason           string     `gorm:"column:reason;type:text"`
	Confidence       float64    `gorm:"column:confidence"`
	RequestedBy      string     `gorm:"column:requested_by;size:255"`
	Error            string     `gorm:"column:error;type:text"`
	ResolvedBy       string     `gorm:"column:resolved_by;size:255"`
	Note             string     `gorm:"column:note;type:text"`
	CreatedAt        time.Time  `gorm:"column:created_at;index"`
	ResolvedAt       *time.Time `gorm:"column:resolved_at"`
}

// TableName returns the table name.
func (MergeReviewModel) TableName() string {
	return "merge_reviews"
}

// KeyValueModel is one auxiliary key-value entry.
type KeyValueModel struct {
	ID        int64      `gorm:"column:id;primaryKey;autoIncrement"`
	Namespace string     `gorm:"column:namespace;size:64;not null;uniqueIndex:idx_kv_namespace_key,priority:1"`
	Key       string     `gorm:"column:key;size:512;not null;uniqueIndex:idx_kv_namespace_key,priority:2"`
	Value     string     `gorm:"column:value;type:text"`
	ExpiresAt *time.Time `gorm:"column:expires_at;index"`
	CreatedAt time.Time  `gorm:"column:created_at"`
	UpdatedAt time.Time  `gorm:"column:updated_at"`
}

// TableName returns the table name.
func (KeyValueModel) TableName() string {
	return "key_value_store"
}
