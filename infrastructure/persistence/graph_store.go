package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/helixml/filegraph/domain/graph"
	"github.com/helixml/filegraph/domain/merge"
	"github.com/helixml/filegraph/domain/repository"
	"github.com/helixml/filegraph/internal/database"
)

// DefaultMaxHops bounds how many merged_into pointers are followed.
const DefaultMaxHops = 32

var _ merge.Store = GraphStore{}

// GraphStore persists files, entities and their edges, and applies merge
// engine decisions.
//
// Every write runs in one transaction while holding a lock per canonical id
// it touches: an in-process keyed mutex, plus transaction scoped advisory
// locks on PostgreSQL so that several processes can share one database.
// Lost races are retried under RetryPolicy.
type GraphStore struct {
	db      database.Database
	files   database.Repository[graph.File, FileModel]
	events  database.Repository[graph.MergeEvent, MergeEventModel]
	locks   *KeyedMutex
	retry   RetryPolicy
	maxHops int
	now     func() time.Time
	logger  *slog.Logger
}

// GraphStoreOption configures a GraphStore.
type GraphStoreOption func(*GraphStore)

// WithMaxHops sets the bound on merged_into chains.
func WithMaxHops(n int) GraphStoreOption {
	return func(s *GraphStore) {
		if n > 0 {
			s.maxHops = n
		}
	}
}

// WithRetryPolicy sets the retry policy for conflicting writes.
func WithRetryPolicy(p RetryPolicy) GraphStoreOption {
	return func(s *GraphStore) { s.retry = p }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) GraphStoreOption {
	return func(s *GraphStore) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) GraphStoreOption {
	return func(s *GraphStore) { s.logger = l }
}

// WithLocks shares a KeyedMutex between stores on the same database.
func WithLocks(k *KeyedMutex) GraphStoreOption {
	return func(s *GraphStore) { s.locks = k }
}

// NewGraphStore creates a GraphStore.
func NewGraphStore(db database.Database, opts ...GraphStoreOption) GraphStore {
	s := GraphStore{
		db:      db,
		files:   database.NewRepository[graph.File, FileModel](db, FileMapper{}, "file"),
		events:  database.NewRepository[graph.MergeEvent, MergeEventModel](db, MergeEventMapper{}, "merge event"),
		locks:   NewKeyedMutex(),
		retry:   DefaultRetryPolicy(),
		maxHops: DefaultMaxHops,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// FindFile returns the file with the canonical id.
func (s GraphStore) FindFile(ctx context.Context, canonicalID string) (graph.File, error) {
	file, err := s.files.FindOne(ctx, repository.WithCanonicalID(canonicalID))
	if err != nil {
		return graph.File{}, notFound(err, "file", canonicalID)
	}
	return file, nil
}

// FindEntity returns the entity with the canonical id, live or absorbed.
func (s GraphStore) FindEntity(ctx context.Context, canonicalID string) (graph.Entity, error) {
	return s.findEntity(s.db.Session(ctx), canonicalID)
}

// ResolveLiveEntity follows merged_into pointers to the live entity.
func (s GraphStore) ResolveLiveEntity(ctx context.Context, canonicalID string) (graph.Entity, error) {
	return s.resolveLive(s.db.Session(ctx), canonicalID)
}

// FindTypedEntity returns the entity with the canonical id, or
// graph.ErrTypeMismatch when it exists under another type.
func (s GraphStore) FindTypedEntity(ctx context.Context, t graph.EntityType, canonicalID string) (graph.Entity, error) {
	return s.findTyped(s.db.Session(ctx), t, canonicalID)
}

// Merge absorbs d.Absorbed into d.Survivor. Replaying a merge that already
// happened returns the prior event.
func (s GraphStore) Merge(ctx context.Context, d merge.Merge) (graph.MergeEvent, error) {
	applied, err := s.merge(ctx, d)
	if err != nil {
		return graph.MergeEvent{}, err
	}
	return *applied.Event, nil
}

// AddRelationship records a file to file edge, once per (source, target, type).
func (s GraphStore) AddRelationship(ctx context.Context, rel graph.Relationship) (graph.Relationship, error) {
	applied, err := s.addRelationship(ctx, rel)
	if err != nil {
		return graph.Relationship{}, err
	}
	return *applied.Relationship, nil
}

// LinkFileToEntity attaches a file to the live form of an entity.
func (s GraphStore) LinkFileToEntity(ctx context.Context, d merge.LinkMembership) (graph.Membership, error) {
	applied, err := s.linkMembership(ctx, d)
	if err != nil {
		return graph.Membership{}, err
	}
	return *applied.Membership, nil
}

// Apply executes one decision atomically. Create and attach decisions are
// re-checked under lock, so a decision made from a stale snapshot still
// converges: a create that lost a race attaches, and an attach to an entity
// absorbed in the meantime is redirected to its survivor.
func (s GraphStore) Apply(ctx context.Context, decision merge.Decision) (merge.Applied, error) {
	switch d := decision.(type) {
	case merge.CreateFile:
		return s.observeFile(ctx, d.Observation)
	case merge.AttachFile:
		return s.observeFile(ctx, d.Observation)
	case merge.CreateEntity:
		return s.observeEntity(ctx, d.Observation)
	case merge.AttachEntity:
		return s.observeEntity(ctx, d.Observation)
	case merge.RedirectAttach:
		return s.observeEntity(ctx, d.Observation)
	case merge.LinkMembership:
		return s.linkMembership(ctx, d)
	case merge.LinkRelationship:
		return s.addRelationship(ctx, d.Relationship)
	case merge.Merge:
		return s.merge(ctx, d)
	case merge.Review:
		return merge.Applied{}, fmt.Errorf("%w: review decisions are queued, not applied", graph.ErrInvalidInput)
	}
	return merge.Applied{}, fmt.Errorf("%w: unknown decision %T", graph.ErrInvalidInput, decision)
}

// write runs fn in a transaction while holding the keys returned by keys,
// retrying lost races. keys is evaluated on every attempt. fn must only use
// tx: SQLite has a single connection and it belongs to the transaction.
func (s GraphStore) write(
	ctx context.Context,
	keys func() ([]string, error),
	fn func(tx *gorm.DB) (merge.Applied, error),
) (merge.Applied, error) {
	var applied merge.Applied
	err := s.retry.Do(ctx, func() error {
		ks, err := keys()
		if err != nil {
			return err
		}

		unlock, err := s.locks.Lock(ctx, ks...)
		if err != nil {
			return err
		}
		defer unlock()

		applied, err = database.WithTransactionResult(ctx, s.db, fn, database.WithAdvisoryLocks(ks...))
		if err != nil && IsRetryable(err) {
			s.logger.Debug("write lost a race, retrying", slog.Any("keys", ks), slog.String("error", err.Error()))
		}
		return err
	})
	return applied, err
}

func static(keys ...string) func() ([]string, error) {
	return func() ([]string, error) { return keys, nil }
}

func (s GraphStore) observeFile(ctx context.Context, obs merge.FileObservation) (merge.Applied, error) {
	id := obs.Identity.CanonicalID()
	if id == "" {
		return merge.Applied{}, fmt.Errorf("%w: unresolved file identity", graph.ErrInvalidInput)
	}

	return s.write(ctx, static(id), func(tx *gorm.DB) (merge.Applied, error) {
		now := s.now()
		model, err := s.files.Within(tx).FindModel(ctx, repository.WithCanonicalID(id))
		if errors.Is(err, database.ErrNotFound) {
			file := graph.NewFile(id, obs.Identity.Digest(), obs.Identity.Path(), obs.Size, obs.MimeType, now)
			created, err := FileMapper{}.ToModel(file)
			if err != nil {
				return merge.Applied{}, err
			}
			if err := tx.Create(&created).Error; err != nil {
				return merge.Applied{}, fmt.Errorf("create file: %w", err)
			}
			out, err := FileMapper{}.ToDomain(created)
			if err != nil {
				return merge.Applied{}, err
			}
			return merge.Applied{Kind: merge.KindCreate, File: &out, Created: true}, nil
		}
		if err != nil {
			return merge.Applied{}, err
		}

		current, err := FileMapper{}.ToDomain(model)
		if err != nil {
			return merge.Applied{}, err
		}
		file := current.WithObservation(obs.Identity.Path(), obs.Size, obs.MimeType, now)
		updated, err := FileMapper{}.ToModel(file)
		if err != nil {
			return merge.Applied{}, err
		}
		if err := tx.Model(&FileModel{}).Where("id = ?", updated.ID).Updates(map[string]any{
			"original_path": updated.OriginalPath,
			"current_path":  updated.CurrentPath,
			"path_history":  updated.PathHistory,
			"size":          updated.Size,
			"mime_type":     updated.MimeType,
			"updated_at":    updated.UpdatedAt,
		}).Error; err != nil {
			return merge.Applied{}, fmt.Errorf("update file: %w", err)
		}
		return merge.Applied{Kind: merge.KindAttachUpdate, File: &file}, nil
	})
}

func (s GraphStore) observeEntity(ctx context.Context, obs merge.EntityObservation) (merge.Applied, error) {
	id := obs.Identity.CanonicalID()
	t := obs.Identity.Type()
	if id == "" {
		return merge.Applied{}, fmt.Errorf("%w: unresolved entity identity", graph.ErrInvalidInput)
	}
	if obs.Details != nil && obs.Details.EntityType() != t {
		return merge.Applied{}, fmt.Errorf("%w: %s details for a %s", graph.ErrTypeMismatch, obs.Details.EntityType(), t)
	}

	return s.write(ctx, static(id), func(tx *gorm.DB) (merge.Applied, error) {
		now := s.now()
		existing, err := s.findEntity(tx, id)
		if errors.Is(err, graph.ErrNotFound) {
			return s.createEntity(tx, obs, now)
		}
		if err != nil {
			return merge.Applied{}, err
		}
		if existing.Type() != t {
			return merge.Applied{}, fmt.Errorf("%w: %s is a %s", graph.ErrTypeMismatch, id, existing.Type())
		}

		if !existing.IsLive() {
			live, err := s.resolveLive(tx, id)
			if err != nil {
				return merge.Applied{}, err
			}
			return merge.Applied{Kind: merge.KindRedirectAttach, Entity: &live}, nil
		}

		updated := existing
		// Category placement is fixed at creation; moving a category is a merge.
		if hasDetails(obs.Details) && t != graph.EntityTypeCategory {
			updated = existing.WithDetails(obs.Details, now)
			columns := detailColumns(obs.Details)
			columns["updated_at"] = now
			if err := tx.Table(entityTable(t)).Where("id = ?", existing.ID()).Updates(columns).Error; err != nil {
				return merge.Applied{}, fmt.Errorf("update %s: %w", t, err)
			}
		}
		return merge.Applied{Kind: merge.KindAttachUpdate, Entity: &updated}, nil
	})
}

func (s GraphStore) createEntity(tx *gorm.DB, obs merge.EntityObservation, now time.Time) (merge.Applied, error) {
	t := obs.Identity.Type()
	key := obs.Identity.NaturalKey()

	details := obs.Details
	if details == nil {
		details = graph.EmptyDetails(t)
	}
	if category, ok := details.(graph.CategoryDetails); ok {
		placed, err := s.placeCategory(tx, category, key)
		if err != nil {
			return merge.Applied{}, err
		}
		details = placed
	}

	name := obs.DisplayName
	if name == "" {
		name = key
	}

	record, err := entityModel(graph.NewEntity(t, obs.Identity.CanonicalID(), name, key, details, now))
	if err != nil {
		return merge.Applied{}, err
	}
	if err := tx.Create(record).Error; err != nil {
		return merge.Applied{}, fmt.Errorf("create %s: %w", t, err)
	}
	out, err := record.toDomain()
	if err != nil {
		return merge.Applied{}, err
	}
	return merge.Applied{Kind: merge.KindCreate, Entity: &out, Created: true}, nil
}

// placeCategory attaches a new category under the live form of its parent.
func (s GraphStore) placeCategory(tx *gorm.DB, details graph.CategoryDetails, key string) (graph.CategoryDetails, error) {
	if details.FullPath == "" {
		details.FullPath = key
	}
	if details.Parent == "" {
		details.Level = 0
		return details, nil
	}

	parent, err := s.resolveLive(tx, details.Parent)
	if err != nil {
		return details, fmt.Errorf("category parent %s: %w", details.Parent, err)
	}
	parentDetails, ok := parent.Category()
	if !ok {
		return details, fmt.Errorf("%w: parent %s is a %s", graph.ErrTypeMismatch, details.Parent, parent.Type())
	}
	details.Parent = parent.CanonicalID()
	details.Level = parentDetails.Level + 1
	return details, nil
}

func (s GraphStore) linkMembership(ctx context.Context, d merge.LinkMembership) (merge.Applied, error) {
	if err := graph.ValidateConfidence(d.Confidence); err != nil {
		return merge.Applied{}, err
	}

	var expected string
	keys := func() ([]string, error) {
		root, err := s.ResolveLiveEntity(ctx, d.EntityID)
		if err != nil {
			return nil, err
		}
		expected = root.CanonicalID()
		return []string{d.FileID, d.EntityID, expected}, nil
	}

	return s.write(ctx, keys, func(tx *gorm.DB) (merge.Applied, error) {
		file, err := s.files.Within(tx).FindModel(ctx, repository.WithCanonicalID(d.FileID))
		if err != nil {
			return merge.Applied{}, notFound(err, "file", d.FileID)
		}
		live, err := s.resolveLive(tx, d.EntityID)
		if err != nil {
			return merge.Applied{}, err
		}
		if live.CanonicalID() != expected {
			return merge.Applied{}, errStale
		}

		source := d.Source
		if source == "" {
			source = graph.AttributionClassifier
		}
		now := s.now()
		membership, err := graph.NewMembership(d.FileID, live.Type(), live.CanonicalID(), source, d.Confidence, now)
		if err != nil {
			return merge.Applied{}, err
		}

		var link FileEntityLinkModel
		err = tx.Where("file_id = ? AND entity_type = ? AND entity_id = ?", file.ID, string(live.Type()), live.ID()).
			Take(&link).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			link = FileEntityLinkModel{
				FileID:     file.ID,
				EntityType: string(live.Type()),
				EntityID:   live.ID(),
				Source:     string(membership.Source()),
				Confidence: d.Confidence,
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			if err := tx.Create(&link).Error; err != nil {
				return merge.Applied{}, fmt.Errorf("create membership: %w", err)
			}
			return merge.Applied{Kind: merge.KindLinkMembership, Membership: &membership, Entity: &live, Created: true}, nil
		case err != nil:
			return merge.Applied{}, fmt.Errorf("find membership: %w", err)
		}

		if err := tx.Model(&FileEntityLinkModel{}).Where("id = ?", link.ID).Updates(map[string]any{
			"source":     string(membership.Source()),
			"confidence": d.Confidence,
			"updated_at": now,
		}).Error; err != nil {
			return merge.Applied{}, fmt.Errorf("update membership: %w", err)
		}
		membership = graph.ReconstructMembership(d.FileID, live.Type(), live.CanonicalID(), membership.Source(), d.Confidence, link.CreatedAt)
		return merge.Applied{Kind: merge.KindLinkMembership, Membership: &membership, Entity: &live}, nil
	})
}

func (s GraphStore) addRelationship(ctx context.Context, rel graph.Relationship) (merge.Applied, error) {
	return s.write(ctx, static(rel.Source(), rel.Target()), func(tx *gorm.DB) (merge.Applied, error) {
		files := s.files.Within(tx)
		source, err := files.FindModel(ctx, repository.WithCanonicalID(rel.Source()))
		if err != nil {
			return merge.Applied{}, notFound(err, "file", rel.Source())
		}
		target, err := files.FindModel(ctx, repository.WithCanonicalID(rel.Target()))
		if err != nil {
			return merge.Applied{}, notFound(err, "file", rel.Target())
		}

		now := s.now()
		var row FileRelationshipModel
		err = tx.Where("source_file_id = ? AND target_file_id = ? AND relationship_type = ?", source.ID, target.ID, string(rel.Type())).
			Take(&row).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			row = FileRelationshipModel{
				SourceFileID: source.ID,
				TargetFileID: target.ID,
				Type:         string(rel.Type()),
				Confidence:   rel.Confidence(),
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if err := tx.Create(&row).Error; err != nil {
				return merge.Applied{}, fmt.Errorf("create relationship: %w", err)
			}
			out := graph.ReconstructRelationship(rel.Source(), rel.Target(), rel.Type(), rel.Confidence(), now)
			return merge.Applied{Kind: merge.KindLinkRelationship, Relationship: &out, Created: true}, nil
		case err != nil:
			return merge.Applied{}, fmt.Errorf("find relationship: %w", err)
		}

		if err := tx.Model(&FileRelationshipModel{}).Where("id = ?", row.ID).Updates(map[string]any{
			"confidence": rel.Confidence(),
			"updated_at": now,
		}).Error; err != nil {
			return merge.Applied{}, fmt.Errorf("update relationship: %w", err)
		}
		out := graph.ReconstructRelationship(rel.Source(), rel.Target(), rel.Type(), rel.Confidence(), row.CreatedAt)
		return merge.Applied{Kind: merge.KindLinkRelationship, Relationship: &out}, nil
	})
}

// UpdateFileStatus sets the organization status of a file.
func (s GraphStore) UpdateFileStatus(ctx context.Context, canonicalID string, status graph.FileStatus, reason string) (graph.File, error) {
	applied, err := s.write(ctx, static(canonicalID), func(tx *gorm.DB) (merge.Applied, error) {
		model, err := s.files.Within(tx).FindModel(ctx, repository.WithCanonicalID(canonicalID))
		if err != nil {
			return merge.Applied{}, notFound(err, "file", canonicalID)
		}
		current, err := FileMapper{}.ToDomain(model)
		if err != nil {
			return merge.Applied{}, err
		}
		file := current.WithStatus(status, reason, s.now())
		updated, err := FileMapper{}.ToModel(file)
		if err != nil {
			return merge.Applied{}, err
		}
		if err := tx.Model(&FileModel{}).Where("id = ?", updated.ID).Updates(map[string]any{
			"status":        updated.Status,
			"status_reason": updated.StatusReason,
			"organized_at":  updated.OrganizedAt,
			"updated_at":    updated.UpdatedAt,
		}).Error; err != nil {
			return merge.Applied{}, fmt.Errorf("update file status: %w", err)
		}
		return merge.Applied{Kind: merge.KindAttachUpdate, File: &file}, nil
	})
	if err != nil {
		return graph.File{}, err
	}
	return *applied.File, nil
}

func (s GraphStore) findEntity(tx *gorm.DB, canonicalID string) (graph.Entity, error) {
	for _, t := range graph.EntityTypes() {
		entity, err := takeEntity(tx, t, "canonical_id = ?", canonicalID)
		if err == nil {
			return entity, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return graph.Entity{}, fmt.Errorf("find entity %s: %w", canonicalID, err)
		}
	}
	return graph.Entity{}, fmt.Errorf("%w: entity %s", graph.ErrNotFound, canonicalID)
}

func (s GraphStore) findTyped(tx *gorm.DB, t graph.EntityType, canonicalID string) (graph.Entity, error) {
	entity, err := s.findEntity(tx, canonicalID)
	if err != nil {
		return graph.Entity{}, err
	}
	if entity.Type() != t {
		return graph.Entity{}, fmt.Errorf("%w: %s is a %s, not a %s", graph.ErrTypeMismatch, canonicalID, entity.Type(), t)
	}
	return entity, nil
}

func (s GraphStore) resolveLive(tx *gorm.DB, canonicalID string) (graph.Entity, error) {
	current, err := s.findEntity(tx, canonicalID)
	if err != nil {
		return graph.Entity{}, err
	}

	seen := map[string]struct{}{current.CanonicalID(): {}}
	for hops := 0; ; hops++ {
		into, merged := current.MergedInto()
		if !merged {
			return current, nil
		}
		if hops >= s.maxHops {
			return graph.Entity{}, fmt.Errorf("%w: %s is more than %d merges deep", graph.ErrCycleDetected, canonicalID, s.maxHops)
		}
		if _, loop := seen[into]; loop {
			return graph.Entity{}, fmt.Errorf("%w: %s loops back to %s", graph.ErrCycleDetected, canonicalID, into)
		}
		seen[into] = struct{}{}

		next, err := takeEntity(tx, current.Type(), "canonical_id = ?", into)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return graph.Entity{}, fmt.Errorf("%w: %s was merged into missing %s", graph.ErrNotFound, current.CanonicalID(), into)
		}
		if err != nil {
			return graph.Entity{}, fmt.Errorf("resolve %s: %w", canonicalID, err)
		}
		current = next
	}
}

func takeEntity(tx *gorm.DB, t graph.EntityType, query string, args ...any) (graph.Entity, error) {
	switch t {
	case graph.EntityTypeCategory:
		return takeRecord[CategoryModel](tx, query, args...)
	case graph.EntityTypeCompany:
		return takeRecord[CompanyModel](tx, query, args...)
	case graph.EntityTypePerson:
		return takeRecord[PersonModel](tx, query, args...)
	case graph.EntityTypeLocation:
		return takeRecord[LocationModel](tx, query, args...)
	}
	return graph.Entity{}, fmt.Errorf("%w: unknown entity type %q", graph.ErrInvalidInput, t)
}

func takeRecord[M any, P interface {
	*M
	entityRecord
}](tx *gorm.DB, query string, args ...any) (graph.Entity, error) {
	var model M
	if err := tx.Where(query, args...).Take(&model).Error; err != nil {
		return graph.Entity{}, err
	}
	return P(&model).toDomain()
}

func listRecords[M any, P interface {
	*M
	entityRecord
}](q *gorm.DB) ([]graph.Entity, error) {
	var models []M
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]graph.Entity, len(models))
	for i := range models {
		entity, err := P(&models[i]).toDomain()
		if err != nil {
			return nil, err
		}
		out[i] = entity
	}
	return out, nil
}

func hasDetails(d graph.Details) bool {
	return d != nil && d != graph.EmptyDetails(d.EntityType())
}

func notFound(err error, what, id string) error {
	if errors.Is(err, database.ErrNotFound) || errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s %s", graph.ErrNotFound, what, id)
	}
	return err
}
