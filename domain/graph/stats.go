package graph

// EntityCounts splits an entity table into live and absorbed rows.
type EntityCounts struct {
	Live     int64 `json:"live"`
	Absorbed int64 `json:"absorbed"`
}

// NamedCount is a label with a count.
type NamedCount struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// Stats is an aggregate snapshot of the graph.
type Stats struct {
	Files          int64                       `json:"files"`
	FilesByStatus  map[FileStatus]int64        `json:"files_by_status"`
	Entities       map[EntityType]EntityCounts `json:"entities"`
	Memberships    int64                       `json:"memberships"`
	Relationships  int64                       `json:"relationships"`
	MergeEvents    int64                       `json:"merge_events"`
	PendingReviews int64                       `json:"pending_reviews"`
	TopMimeTypes   []NamedCount                `json:"top_mime_types"`
	TopCategories  []NamedCount                `json:"top_categories"`
}

// CategoryNode is one node of the live category tree.
type CategoryNode struct {
	CanonicalID string         `json:"canonical_id"`
	Name        string         `json:"name"`
	FullPath    string         `json:"full_path"`
	Level       int            `json:"level"`
	FileCount   int64          `json:"file_count"`
	Children    []CategoryNode `json:"children,omitempty"`
}
