// Package identity derives canonical identifiers for files and entities.
//
// Identifiers are pure functions of their inputs: the same digest or the same
// normalized natural key always yields the same id, across processes and
// across time. Nothing here performs I/O.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/helixml/filegraph/domain/graph"
)

// URN prefixes for canonical ids.
const (
	FilePrefix   = "urn:sha256:"
	EntityPrefix = "urn:uuid:"
)

// Per-type UUIDv5 namespaces. Changing one re-keys every entity of that type.
var (
	NamespaceCategory = uuid.MustParse("c4e8a9c0-2345-6789-abcd-ef0123456789")
	NamespaceCompany  = uuid.MustParse("c0e1a2b3-4567-89ab-cdef-012345678901")
	NamespacePerson   = uuid.MustParse("d1e2a3b4-5678-9abc-def0-123456789012")
	NamespaceLocation = uuid.MustParse("e2e3a4b5-6789-abcd-ef01-234567890123")
)

// FileIdentity is the resolved identity of one file sighting.
type FileIdentity struct {
	canonicalID string
	digest      string
	path        string
}

// CanonicalID returns the content-derived id.
func (f FileIdentity) CanonicalID() string { return f.canonicalID }

// Digest returns the normalized digest the id was derived from.
func (f FileIdentity) Digest() string { return f.digest }

// Path returns the cleaned absolute path of this sighting.
func (f FileIdentity) Path() string { return f.path }

// EntityIdentity is the resolved identity of one entity mention.
type EntityIdentity struct {
	entityType  graph.EntityType
	canonicalID string
	naturalKey  string
}

// Type returns the entity type.
func (e EntityIdentity) Type() graph.EntityType { return e.entityType }

// CanonicalID returns the name-derived id.
func (e EntityIdentity) CanonicalID() string { return e.canonicalID }

// NaturalKey returns the normalized key the id was derived from.
func (e EntityIdentity) NaturalKey() string { return e.naturalKey }

// ResolveFileIdentity derives the canonical id of a file from its content
// digest. The path is carried along but never influences the id, so a moved
// file keeps its identity.
func ResolveFileIdentity(contentDigest, absolutePath string) (FileIdentity, error) {
	digest := strings.ToLower(strings.TrimSpace(contentDigest))
	if digest == "" {
		return FileIdentity{}, fmt.Errorf("%w: empty content digest", graph.ErrInvalidInput)
	}
	if _, err := hex.DecodeString(digest); err != nil {
		return FileIdentity{}, fmt.Errorf("%w: content digest is not hex", graph.ErrInvalidInput)
	}

	sum := sha256.Sum256([]byte(digest))

	path := strings.TrimSpace(absolutePath)
	if path != "" {
		path = filepath.Clean(path)
	}

	return FileIdentity{
		canonicalID: FilePrefix + hex.EncodeToString(sum[:]),
		digest:      digest,
		path:        path,
	}, nil
}

// ResolveEntityIdentity derives the canonical id of an entity from its type
// and natural key. Keys that differ only in case or whitespace resolve to the
// same id.
func ResolveEntityIdentity(entityType graph.EntityType, naturalKey string) (EntityIdentity, error) {
	ns, err := Namespace(entityType)
	if err != nil {
		return EntityIdentity{}, err
	}
	key := NormalizeKey(naturalKey)
	if key == "" {
		return EntityIdentity{}, fmt.Errorf("%w: empty %s name", graph.ErrInvalidInput, entityType)
	}
	return EntityIdentity{
		entityType:  entityType,
		canonicalID: EntityPrefix + uuid.NewSHA1(ns, []byte(key)).String(),
		naturalKey:  key,
	}, nil
}

// Namespace returns the UUIDv5 namespace of an entity type.
func Namespace(entityType graph.EntityType) (uuid.UUID, error) {
	switch entityType {
	case graph.EntityTypeCategory:
		return NamespaceCategory, nil
	case graph.EntityTypeCompany:
		return NamespaceCompany, nil
	case graph.EntityTypePerson:
		return NamespacePerson, nil
	case graph.EntityTypeLocation:
		return NamespaceLocation, nil
	}
	return uuid.Nil, fmt.Errorf("%w: unknown entity type %q", graph.ErrInvalidInput, entityType)
}

// NormalizeKey lowercases, trims and collapses internal whitespace.
func NormalizeKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// CategoryKey builds the natural key of a nested category from its parent's
// natural key and its own name.
func CategoryKey(parentKey, name string) string {
	parent := NormalizeKey(parentKey)
	child := NormalizeKey(name)
	if parent == "" {
		return child
	}
	if child == "" {
		return ""
	}
	return parent + "/" + child
}

// NewMergeEventID returns a time-ordered merge event id.
func NewMergeEventID() string {
	return EntityPrefix + uuid.Must(uuid.NewV7()).String()
}

// IsFileID reports whether id has the file id form.
func IsFileID(id string) bool {
	rest, ok := strings.CutPrefix(id, FilePrefix)
	if !ok || len(rest) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(rest)
	return err == nil
}

// IsEntityID reports whether id has the entity id form.
func IsEntityID(id string) bool {
	rest, ok := strings.CutPrefix(id, EntityPrefix)
	if !ok {
		return false
	}
	_, err := uuid.Parse(rest)
	return err == nil
}

// ValidateEntityID returns ErrInvalidInput unless id is an entity id.
func ValidateEntityID(id string) error {
	if !IsEntityID(id) {
		return fmt.Errorf("%w: %q is not an entity id", graph.ErrInvalidInput, id)
	}
	return nil
}

// ValidateFileID returns ErrInvalidInput unless id is a file id.
func ValidateFileID(id string) error {
	if !IsFileID(id) {
		return fmt.Errorf("%w: %q is not a file id", graph.ErrInvalidInput, id)
	}
	return nil
}
