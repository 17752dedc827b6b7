// Package jsonapi renders filegraph values as JSON:API documents and reads
// JSON:API request bodies.
package jsonapi

import (
	"encoding/json"
	"fmt"
	"io"
)

// Document is a top-level document. Data is a *Resource or []*Resource.
type Document struct {
	Data  any    `json:"data"`
	Meta  *Meta  `json:"meta,omitempty"`
	Links *Links `json:"links,omitempty"`
}

// Meta is free-form metadata.
type Meta map[string]any

// Links are the navigation links of a document or resource.
type Links struct {
	Self  string `json:"self,omitempty"`
	First string `json:"first,omitempty"`
	Last  string `json:"last,omitempty"`
	Prev  string `json:"prev,omitempty"`
	Next  string `json:"next,omitempty"`
}

// Resource is a resource object.
type Resource struct {
	Type          string        `json:"type"`
	ID            string        `json:"id"`
	Attributes    any           `json:"attributes"`
	Relationships Relationships `json:"relationships,omitempty"`
	Links         *Links        `json:"links,omitempty"`
	Meta          *Meta         `json:"meta,omitempty"`
}

// Relationships are keyed by relationship name.
type Relationships map[string]*Relationship

// Relationship points at one related resource.
type Relationship struct {
	Data *ResourceIdentifier `json:"data"`
}

// ResourceIdentifier names a resource without its attributes.
type ResourceIdentifier struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// NewResource creates a resource.
func NewResource(resourceType, id string, attrs any) *Resource {
	return &Resource{Type: resourceType, ID: id, Attributes: attrs}
}

// Relate adds a to-one relationship. An empty id is skipped, so optional
// links such as merged_into can be set unconditionally.
func (r *Resource) Relate(name, resourceType, id string) *Resource {
	if id == "" {
		return r
	}
	if r.Relationships == nil {
		r.Relationships = Relationships{}
	}
	r.Relationships[name] = &Relationship{Data: &ResourceIdentifier{Type: resourceType, ID: id}}
	return r
}

// WithSelf sets the resource's canonical URL.
func (r *Resource) WithSelf(path string) *Resource {
	r.Links = &Links{Self: path}
	return r
}

// NewSingleResponse wraps one resource.
func NewSingleResponse(resource *Resource) *Document {
	return &Document{Data: resource}
}

// NewListResponse wraps a list. A nil list renders as [].
func NewListResponse(resources []*Resource) *Document {
	if resources == nil {
		resources = []*Resource{}
	}
	return &Document{Data: resources}
}

// Request is a request document whose primary data carries attributes A.
type Request[A any] struct {
	Data struct {
		Type       string `json:"type"`
		ID         string `json:"id,omitempty"`
		Attributes A      `json:"attributes"`
	} `json:"data"`
}

// DecodeRequest reads a request document and checks its resource type.
func DecodeRequest[A any](r io.Reader, resourceType string) (A, error) {
	var doc Request[A]
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		var zero A
		return zero, fmt.Errorf("decode request body: %w", err)
	}
	if doc.Data.Type != resourceType {
		var zero A
		return zero, fmt.Errorf("resource type %q, want %q", doc.Data.Type, resourceType)
	}
	return doc.Data.Attributes, nil
}
