package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/helixml/filegraph/domain/batch"
	"github.com/helixml/filegraph/domain/graph"
	"github.com/helixml/filegraph/domain/identity"
	"github.com/helixml/filegraph/domain/merge"
)

// Manifest describes one ingest run.
//
//	items:
//	  - path: /srv/inbox/invoice-0042.pdf
//	    mime_type: application/pdf
//	    entities:
//	      - {type: company, name: Acme Corp, details: {domain: acme.example}}
//	      - {type: category, name: Invoices, parent: finance}
//	    related:
//	      - {path: /srv/inbox/invoice-0042-draft.pdf, type: version}
//	merges:
//	  - {entity_type: company, a: Acme Corp, b: ACME Inc, reason: same registration}
type Manifest struct {
	Items  []ManifestItem  `yaml:"items"`
	Merges []ManifestMerge `yaml:"merges"`
}

// ManifestItem is one file. Without a digest the file at path is hashed,
// skipped files included.
type ManifestItem struct {
	Path       string            `yaml:"path"`
	Digest     string            `yaml:"digest"`
	Size       int64             `yaml:"size"`
	MimeType   string            `yaml:"mime_type"`
	Skip       bool              `yaml:"skip"`
	SkipReason string            `yaml:"skip_reason"`
	Entities   []ManifestEntity  `yaml:"entities"`
	Related    []ManifestRelated `yaml:"related"`
}

// ManifestEntity is an entity mentioned by an item.
type ManifestEntity struct {
	Type       string          `yaml:"type"`
	Name       string          `yaml:"name"`
	Parent     string          `yaml:"parent"`
	Source     string          `yaml:"source"`
	Confidence *float64        `yaml:"confidence"`
	Details    ManifestDetails `yaml:"details"`
}

// ManifestDetails is the union of the per-type detail fields.
type ManifestDetails struct {
	Domain    string   `yaml:"domain"`
	Email     string   `yaml:"email"`
	Role      string   `yaml:"role"`
	City      string   `yaml:"city"`
	State     string   `yaml:"state"`
	Country   string   `yaml:"country"`
	Latitude  *float64 `yaml:"latitude"`
	Longitude *float64 `yaml:"longitude"`
}

// ManifestRelated points at another file by digest or path.
type ManifestRelated struct {
	Digest     string   `yaml:"digest"`
	Path       string   `yaml:"path"`
	Type       string   `yaml:"type"`
	Confidence *float64 `yaml:"confidence"`
}

// ManifestMerge names two entities by canonical id or by name.
type ManifestMerge struct {
	EntityType  string   `yaml:"entity_type"`
	A           string   `yaml:"a"`
	B           string   `yaml:"b"`
	Survivor    string   `yaml:"survivor"`
	Reason      string   `yaml:"reason"`
	Confidence  *float64 `yaml:"confidence"`
	PerformedBy string   `yaml:"performed_by"`
}

// ReadManifest decodes a manifest, rejecting unknown fields.
func ReadManifest(r io.Reader) (Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		if err == io.EOF {
			return Manifest{}, nil
		}
		return Manifest{}, fmt.Errorf("decode manifest: %w", err)
	}
	return m, nil
}

// manifestBuilder converts a manifest into a batch run. Relative paths are
// resolved against baseDir.
type manifestBuilder struct {
	baseDir   string
	performer string
	open      func(path string) (io.ReadCloser, error)
}

func newManifestBuilder(baseDir, performer string) manifestBuilder {
	return manifestBuilder{
		baseDir:   baseDir,
		performer: performer,
		open:      func(path string) (io.ReadCloser, error) { return os.Open(path) },
	}
}

// Run builds the batch input.
func (b manifestBuilder) Run(m Manifest) (batch.Run, error) {
	run := batch.Run{Items: make([]batch.Item, 0, len(m.Items))}
	digests := make(map[string]string, len(m.Items))

	for i, mi := range m.Items {
		path := b.resolve(mi.Path)
		digest := strings.ToLower(strings.TrimSpace(mi.Digest))
		if digest == "" {
			d, err := b.digest(path)
			if err != nil {
				return batch.Run{}, fmt.Errorf("item %d (%s): %w", i, mi.Path, err)
			}
			digest = d
		}
		digests[path] = digest

		item := batch.Item{
			Path:       path,
			Digest:     digest,
			Size:       mi.Size,
			MimeType:   mi.MimeType,
			Skip:       mi.Skip,
			SkipReason: mi.SkipReason,
		}
		for j, me := range mi.Entities {
			ref, err := entityRef(me)
			if err != nil {
				return batch.Run{}, fmt.Errorf("item %d entity %d: %w", i, j, err)
			}
			item.Entities = append(item.Entities, ref)
		}
		run.Items = append(run.Items, item)
	}

	// Related hints may name files by path, so they resolve after every
	// item has a digest.
	for i, mi := range m.Items {
		for j, mr := range mi.Related {
			t, err := graph.ParseRelationshipType(mr.Type)
			if err != nil {
				return batch.Run{}, fmt.Errorf("item %d related %d: %w", i, j, err)
			}
			digest := strings.ToLower(strings.TrimSpace(mr.Digest))
			if digest == "" {
				path := b.resolve(mr.Path)
				known, ok := digests[path]
				if !ok {
					if known, err = b.digest(path); err != nil {
						return batch.Run{}, fmt.Errorf("item %d related %d: %w", i, j, err)
					}
				}
				digest = known
			}
			run.Items[i].Related = append(run.Items[i].Related, batch.RelationHint{
				Digest:     digest,
				Type:       t,
				Confidence: valueOr(mr.Confidence, 1.0),
			})
		}
	}

	for i, mm := range m.Merges {
		req, err := b.mergeRequest(mm)
		if err != nil {
			return batch.Run{}, fmt.Errorf("merge %d: %w", i, err)
		}
		run.Merges = append(run.Merges, req)
	}
	return run, nil
}

func (b manifestBuilder) mergeRequest(mm ManifestMerge) (merge.Request, error) {
	t, err := graph.ParseEntityType(mm.EntityType)
	if err != nil {
		return merge.Request{}, err
	}
	a, err := entityRefID(t, mm.A)
	if err != nil {
		return merge.Request{}, err
	}
	bID, err := entityRefID(t, mm.B)
	if err != nil {
		return merge.Request{}, err
	}
	var survivor string
	if mm.Survivor != "" {
		if survivor, err = entityRefID(t, mm.Survivor); err != nil {
			return merge.Request{}, err
		}
	}
	performer := mm.PerformedBy
	if performer == "" {
		performer = b.performer
	}
	return merge.Request{
		EntityType:  t,
		A:           a,
		B:           bID,
		Survivor:    survivor,
		Reason:      mm.Reason,
		Confidence:  valueOr(mm.Confidence, 1.0),
		PerformedBy: performer,
	}, nil
}

func (b manifestBuilder) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || b.baseDir == "" {
		return path
	}
	return filepath.Join(b.baseDir, path)
}

func (b manifestBuilder) digest(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: item needs a path or a digest", graph.ErrInvalidInput)
	}
	f, err := b.open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return identity.DigestReader(f)
}

func entityRef(me ManifestEntity) (batch.EntityRef, error) {
	t, err := graph.ParseEntityType(me.Type)
	if err != nil {
		return batch.EntityRef{}, err
	}
	source, err := graph.ParseAttributionSource(me.Source)
	if err != nil {
		return batch.EntityRef{}, err
	}
	if me.Parent != "" && t != graph.EntityTypeCategory {
		return batch.EntityRef{}, fmt.Errorf("%w: only categories have parents", graph.ErrInvalidInput)
	}
	return batch.EntityRef{
		Type:       t,
		Name:       me.Name,
		Parent:     me.Parent,
		Source:     source,
		Confidence: valueOr(me.Confidence, 1.0),
		Details:    me.Details.For(t),
	}, nil
}

// For returns the details of an entity type, or nil when none are set.
func (d ManifestDetails) For(t graph.EntityType) graph.Details {
	switch t {
	case graph.EntityTypeCompany:
		if d.Domain != "" {
			return graph.CompanyDetails{Domain: d.Domain}
		}
	case graph.EntityTypePerson:
		if d.Email != "" || d.Role != "" {
			return graph.PersonDetails{Email: d.Email, Role: d.Role}
		}
	case graph.EntityTypeLocation:
		if d != (ManifestDetails{}) {
			return graph.LocationDetails{
				City:      d.City,
				State:     d.State,
				Country:   d.Country,
				Latitude:  d.Latitude,
				Longitude: d.Longitude,
			}
		}
	}
	return nil
}

// entityRefID returns ref when it is a canonical entity id, and otherwise
// derives the id the name would have.
func entityRefID(t graph.EntityType, ref string) (string, error) {
	if identity.IsEntityID(ref) {
		return ref, nil
	}
	id, err := identity.ResolveEntityIdentity(t, ref)
	if err != nil {
		return "", err
	}
	return id.CanonicalID(), nil
}

func valueOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}
