// Package dto holds the request attributes accepted by the v1 API.
package dto

// FileStatusAttributes is the body of PATCH /files/{id}/status.
type FileStatusAttributes struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// RelationshipAttributes is the body of POST /files/{id}/relationships.
type RelationshipAttributes struct {
	Target     string   `json:"target"`
	Type       string   `json:"type"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// MergeRequestAttributes is the body of POST /merges.
type MergeRequestAttributes struct {
	EntityType  string   `json:"entity_type"`
	A           string   `json:"a"`
	B           string   `json:"b"`
	Survivor    string   `json:"survivor,omitempty"`
	Reason      string   `json:"reason,omitempty"`
	Confidence  *float64 `json:"confidence,omitempty"`
	PerformedBy string   `json:"performed_by,omitempty"`
}

// ReviewDecisionAttributes is the body of the review approve and reject
// endpoints.
type ReviewDecisionAttributes struct {
	By   string `json:"by,omitempty"`
	Note string `json:"note,omitempty"`
}
