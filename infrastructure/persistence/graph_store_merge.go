package persistence

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/helixml/filegraph/domain/graph"
	"github.com/helixml/filegraph/domain/identity"
	"github.com/helixml/filegraph/domain/merge"
	"github.com/helixml/filegraph/domain/repository"
)

// merge absorbs one entity into another in a single transaction. Membership
// edges move to the survivor, category children are re-parented, source ids
// are unioned, the absorbed row is pointed at the survivor and an event is
// appended. Repeating an applied merge returns the original event.
func (s GraphStore) merge(ctx context.Context, d merge.Merge) (merge.Applied, error) {
	if d.Survivor == "" || d.Absorbed == "" || d.Survivor == d.Absorbed {
		return merge.Applied{}, fmt.Errorf("%w: merge requires two distinct entities", graph.ErrInvalidInput)
	}

	return s.write(ctx, static(d.Survivor, d.Absorbed), func(tx *gorm.DB) (merge.Applied, error) {
		survivor, err := s.findTyped(tx, d.EntityType, d.Survivor)
		if err != nil {
			return merge.Applied{}, err
		}
		absorbed, err := s.findTyped(tx, d.EntityType, d.Absorbed)
		if err != nil {
			return merge.Applied{}, err
		}

		if into, merged := absorbed.MergedInto(); merged {
			if into != survivor.CanonicalID() {
				return merge.Applied{}, fmt.Errorf("%w: %s was merged into %s", graph.ErrAlreadyMerged, absorbed.CanonicalID(), into)
			}
			event, err := s.events.Within(tx).FindOne(ctx, repository.WithCondition("id", absorbed.MergedByEvent()))
			if err != nil {
				return merge.Applied{}, notFound(err, "merge event", absorbed.MergedByEvent())
			}
			return merge.Applied{Kind: merge.KindMerge, Entity: &survivor, Event: &event, Replayed: true}, nil
		}
		if into, merged := survivor.MergedInto(); merged {
			return merge.Applied{}, fmt.Errorf("%w: survivor %s was merged into %s", graph.ErrAlreadyMerged, survivor.CanonicalID(), into)
		}

		if d.EntityType == graph.EntityTypeCategory {
			if err := s.checkAncestry(tx, survivor, absorbed); err != nil {
				return merge.Applied{}, err
			}
		}

		now := s.now()
		event := graph.NewMergeEvent(
			identity.NewMergeEventID(),
			d.EntityType,
			survivor.CanonicalID(),
			[]string{absorbed.CanonicalID()},
			d.Reason,
			d.Confidence,
			d.PerformedBy,
			now,
		)

		moved, err := reassignMemberships(tx, d.EntityType, absorbed.ID(), survivor.ID(), now)
		if err != nil {
			return merge.Applied{}, err
		}

		table := entityTable(d.EntityType)
		if d.EntityType == graph.EntityTypeCategory {
			if err := s.reparentCategories(tx, absorbed, survivor, now); err != nil {
				return merge.Applied{}, err
			}
		}

		merged := survivor.Absorbs(absorbed, now)
		sources, err := encodeIDs("source_ids", merged.SourceIDs())
		if err != nil {
			return merge.Applied{}, err
		}
		if err := tx.Table(table).Where("id = ?", survivor.ID()).Updates(map[string]any{
			"source_ids": sources,
			"updated_at": now,
		}).Error; err != nil {
			return merge.Applied{}, fmt.Errorf("update survivor: %w", err)
		}

		result := tx.Table(table).Where("id = ? AND merged_into IS NULL", absorbed.ID()).Updates(map[string]any{
			"merged_into":     survivor.CanonicalID(),
			"merged_by_event": event.ID(),
			"updated_at":      now,
		})
		if result.Error != nil {
			return merge.Applied{}, fmt.Errorf("mark absorbed: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return merge.Applied{}, errStale
		}

		model, err := MergeEventMapper{}.ToModel(event)
		if err != nil {
			return merge.Applied{}, err
		}
		if err := tx.Create(&model).Error; err != nil {
			return merge.Applied{}, fmt.Errorf("record merge event: %w", err)
		}

		s.logger.Info("entities merged",
			slog.String("type", string(d.EntityType)),
			slog.String("survivor", survivor.CanonicalID()),
			slog.String("absorbed", absorbed.CanonicalID()),
			slog.Int64("memberships_moved", moved),
			slog.String("event", event.ID()),
		)
		return merge.Applied{Kind: merge.KindMerge, Entity: &merged, Event: &event}, nil
	})
}

// checkAncestry rejects a category merge that would make a category its own
// ancestor.
func (s GraphStore) checkAncestry(tx *gorm.DB, survivor, absorbed graph.Entity) error {
	current := survivor
	for depth := 0; depth < s.maxHops; depth++ {
		details, _ := current.Category()
		if details.Parent == "" {
			return nil
		}
		parent, err := s.resolveLive(tx, details.Parent)
		if err != nil {
			return fmt.Errorf("ancestor of %s: %w", current.CanonicalID(), err)
		}
		if parent.CanonicalID() == absorbed.CanonicalID() {
			return fmt.Errorf("%w: %s is nested under %s", graph.ErrInvalidInput, survivor.CanonicalID(), absorbed.CanonicalID())
		}
		current = parent
	}
	return fmt.Errorf("%w: category %s is nested more than %d deep", graph.ErrCycleDetected, survivor.CanonicalID(), s.maxHops)
}

// reparentCategories moves the children of from under to and rewrites
// level and full_path across the moved subtrees.
func (s GraphStore) reparentCategories(tx *gorm.DB, from, to graph.Entity, now time.Time) error {
	type node struct {
		canonicalID string
		path        string
		level       int
	}

	target, _ := to.Category()
	if target.FullPath == "" {
		target.FullPath = to.NormalizedName()
	}
	level := []node{{canonicalID: from.CanonicalID(), path: target.FullPath, level: target.Level}}

	for depth := 0; len(level) > 0; depth++ {
		if depth > s.maxHops {
			return fmt.Errorf("%w: category %s is nested more than %d deep", graph.ErrCycleDetected, from.CanonicalID(), s.maxHops)
		}
		var next []node
		for _, parent := range level {
			var children []CategoryModel
			if err := tx.Where("parent_canonical_id = ?", parent.canonicalID).Find(&children).Error; err != nil {
				return fmt.Errorf("find child categories: %w", err)
			}
			for _, child := range children {
				placed := node{
					canonicalID: child.CanonicalID,
					path:        parent.path + "/" + lastSegment(child.FullPath, child.NormalizedName),
					level:       parent.level + 1,
				}
				columns := map[string]any{"level": placed.level, "full_path": placed.path, "updated_at": now}
				if depth == 0 {
					columns["parent_canonical_id"] = to.CanonicalID()
				}
				if err := tx.Model(&CategoryModel{}).Where("id = ?", child.ID).Updates(columns).Error; err != nil {
					return fmt.Errorf("re-parent category %s: %w", child.CanonicalID, err)
				}
				next = append(next, placed)
			}
		}
		level = next
	}
	return nil
}

func lastSegment(path, fallback string) string {
	if path == "" {
		return fallback
	}
	return path[strings.LastIndex(path, "/")+1:]
}

// reassignMemberships moves every edge of one entity to another. A file
// linked to both keeps one edge with the higher confidence.
func reassignMemberships(tx *gorm.DB, t graph.EntityType, from, to int64, now time.Time) (int64, error) {
	shared := tx.Model(&FileEntityLinkModel{}).
		Select("file_id").
		Where("entity_type = ? AND entity_id = ?", string(t), to)

	var collisions []FileEntityLinkModel
	if err := tx.Where("entity_type = ? AND entity_id = ? AND file_id IN (?)", string(t), from, shared).
		Find(&collisions).Error; err != nil {
		return 0, fmt.Errorf("find shared memberships: %w", err)
	}

	for _, c := range collisions {
		if err := tx.Model(&FileEntityLinkModel{}).
			Where("entity_type = ? AND entity_id = ? AND file_id = ? AND confidence < ?", string(t), to, c.FileID, c.Confidence).
			Updates(map[string]any{"confidence": c.Confidence, "source": c.Source, "updated_at": now}).Error; err != nil {
			return 0, fmt.Errorf("keep stronger membership: %w", err)
		}
		if err := tx.Delete(&FileEntityLinkModel{}, c.ID).Error; err != nil {
			return 0, fmt.Errorf("drop duplicate membership: %w", err)
		}
	}

	result := tx.Model(&FileEntityLinkModel{}).
		Where("entity_type = ? AND entity_id = ?", string(t), from).
		Updates(map[string]any{"entity_id": to, "updated_at": now})
	if result.Error != nil {
		return 0, fmt.Errorf("move memberships: %w", result.Error)
	}
	return result.RowsAffected + int64(len(collisions)), nil
}
