package persistence

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"gorm.io/gorm"

	"github.com/helixml/filegraph/domain/graph"
	"github.com/helixml/filegraph/domain/repository"
	"github.com/helixml/filegraph/domain/review"
)

// MaxRelatedDepth caps relationship traversal.
const MaxRelatedDepth = 3

// topN is how many rows the ranked statistics keep.
const topN = 10

// ListFiles returns files matching the options.
func (s GraphStore) ListFiles(ctx context.Context, options ...repository.Option) ([]graph.File, error) {
	return s.files.Find(ctx, options...)
}

// CountFiles counts files matching the options.
func (s GraphStore) CountFiles(ctx context.Context, options ...repository.Option) (int64, error) {
	return s.files.Count(ctx, options...)
}

// ListEntities returns entities of one type ordered by id.
func (s GraphStore) ListEntities(ctx context.Context, t graph.EntityType, includeAbsorbed bool, limit, offset int) ([]graph.Entity, error) {
	q := s.db.Session(ctx).Order("id")
	if !includeAbsorbed {
		q = q.Where("merged_into IS NULL")
	}
	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}

	switch t {
	case graph.EntityTypeCategory:
		return listRecords[CategoryModel](q)
	case graph.EntityTypeCompany:
		return listRecords[CompanyModel](q)
	case graph.EntityTypePerson:
		return listRecords[PersonModel](q)
	case graph.EntityTypeLocation:
		return listRecords[LocationModel](q)
	}
	return nil, fmt.Errorf("%w: unknown entity type %q", graph.ErrInvalidInput, t)
}

// ListFilesByEntity returns the files linked to the live form of an entity.
func (s GraphStore) ListFilesByEntity(ctx context.Context, canonicalID string, limit, offset int) ([]graph.File, error) {
	root, err := s.ResolveLiveEntity(ctx, canonicalID)
	if err != nil {
		return nil, err
	}

	q := s.db.Session(ctx).
		Model(&FileModel{}).
		Select("files.*").
		Joins("JOIN file_entity_links ON file_entity_links.file_id = files.id").
		Where("file_entity_links.entity_type = ? AND file_entity_links.entity_id = ?", string(root.Type()), root.ID()).
		Order("files.id")
	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}

	var models []FileModel
	if err := q.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list files of %s: %w", canonicalID, err)
	}
	files := make([]graph.File, len(models))
	for i, m := range models {
		file, err := FileMapper{}.ToDomain(m)
		if err != nil {
			return nil, err
		}
		files[i] = file
	}
	return files, nil
}

// FileMemberships returns the membership edges of a file.
func (s GraphStore) FileMemberships(ctx context.Context, fileID string) ([]graph.Membership, error) {
	file, err := s.files.FindModel(ctx, repository.WithCanonicalID(fileID))
	if err != nil {
		return nil, notFound(err, "file", fileID)
	}

	db := s.db.Session(ctx)
	var links []FileEntityLinkModel
	if err := db.Where("file_id = ?", file.ID).Order("entity_type, id").Find(&links).Error; err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}

	byType := map[string][]int64{}
	for _, l := range links {
		byType[l.EntityType] = append(byType[l.EntityType], l.EntityID)
	}
	canonical := map[string]map[int64]string{}
	for t, ids := range byType {
		var rows []struct {
			ID          int64
			CanonicalID string
		}
		if err := db.Table(entityTable(graph.EntityType(t))).Select("id, canonical_id").Where("id IN ?", ids).Scan(&rows).Error; err != nil {
			return nil, fmt.Errorf("resolve %s ids: %w", t, err)
		}
		canonical[t] = make(map[int64]string, len(rows))
		for _, r := range rows {
			canonical[t][r.ID] = r.CanonicalID
		}
	}

	out := make([]graph.Membership, 0, len(links))
	for _, l := range links {
		out = append(out, graph.ReconstructMembership(
			fileID,
			graph.EntityType(l.EntityType),
			canonical[l.EntityType][l.EntityID],
			graph.AttributionSource(l.Source),
			l.Confidence,
			l.CreatedAt,
		))
	}
	return out, nil
}

// MergeHistory returns every merge that fed into the live form of an entity,
// oldest first.
func (s GraphStore) MergeHistory(ctx context.Context, canonicalID string) ([]graph.MergeEvent, error) {
	root, err := s.ResolveLiveEntity(ctx, canonicalID)
	if err != nil {
		return nil, err
	}
	return s.events.Find(ctx,
		repository.WithConditionIn("surviving_entity_id", root.SourceIDs()),
		repository.WithOrderAsc("performed_at"),
		repository.WithOrderAsc("id"),
	)
}

// ListMergeEvents returns merge events matching the options.
func (s GraphStore) ListMergeEvents(ctx context.Context, options ...repository.Option) ([]graph.MergeEvent, error) {
	return s.events.Find(ctx, options...)
}

// RelatedFiles walks relationships breadth first from a file, up to depth
// hops (at most MaxRelatedDepth). An empty relType follows every type.
func (s GraphStore) RelatedFiles(ctx context.Context, fileID string, relType graph.RelationshipType, depth int) ([]graph.RelatedFile, error) {
	depth = max(1, min(depth, MaxRelatedDepth))

	start, err := s.files.FindModel(ctx, repository.WithCanonicalID(fileID))
	if err != nil {
		return nil, notFound(err, "file", fileID)
	}

	type hit struct {
		relType    string
		confidence float64
		depth      int
	}

	db := s.db.Session(ctx)
	visited := map[int64]struct{}{start.ID: {}}
	hits := map[int64]hit{}
	var order []int64
	frontier := []int64{start.ID}

	for level := 1; level <= depth && len(frontier) > 0; level++ {
		q := db.Where("(source_file_id IN ? OR target_file_id IN ?)", frontier, frontier)
		if relType != "" {
			q = q.Where("relationship_type = ?", string(relType))
		}
		var edges []FileRelationshipModel
		if err := q.Order("id").Find(&edges).Error; err != nil {
			return nil, fmt.Errorf("walk relationships: %w", err)
		}

		current := make(map[int64]struct{}, len(frontier))
		for _, id := range frontier {
			current[id] = struct{}{}
		}

		var next []int64
		for _, e := range edges {
			for _, pair := range [][2]int64{{e.SourceFileID, e.TargetFileID}, {e.TargetFileID, e.SourceFileID}} {
				from, to := pair[0], pair[1]
				if _, ok := current[from]; !ok {
					continue
				}
				if _, seen := visited[to]; seen {
					continue
				}
				visited[to] = struct{}{}
				hits[to] = hit{relType: e.Type, confidence: e.Confidence, depth: level}
				order = append(order, to)
				next = append(next, to)
			}
		}
		frontier = next
	}

	if len(order) == 0 {
		return []graph.RelatedFile{}, nil
	}

	files, err := s.files.Find(ctx, repository.WithIDIn(order))
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]graph.File, len(files))
	for _, f := range files {
		byID[f.ID()] = f
	}

	out := make([]graph.RelatedFile, 0, len(order))
	for _, id := range order {
		f, ok := byID[id]
		if !ok {
			continue
		}
		h := hits[id]
		out = append(out, graph.RelatedFile{
			File:       f,
			Type:       graph.RelationshipType(h.relType),
			Confidence: h.confidence,
			Depth:      h.depth,
		})
	}
	return out, nil
}

// DuplicateGroups returns the groups of files joined by duplicate edges,
// largest first. Identical content is already one file, so a group is the
// connected component of near-duplicates. With a digest, only the group
// holding that file is returned.
func (s GraphStore) DuplicateGroups(ctx context.Context, contentHash string) ([][]graph.File, error) {
	var edges []FileRelationshipModel
	err := s.db.Session(ctx).
		Where("relationship_type = ?", string(graph.RelationshipDuplicate)).
		Order("id").
		Find(&edges).Error
	if err != nil {
		return nil, fmt.Errorf("list duplicate edges: %w", err)
	}

	parent := map[int64]int64{}
	var find func(int64) int64
	find = func(x int64) int64 {
		p, ok := parent[x]
		if !ok || p == x {
			parent[x] = x
			return x
		}
		root := find(p)
		parent[x] = root
		return root
	}
	for _, e := range edges {
		a, b := find(e.SourceFileID), find(e.TargetFileID)
		if a != b {
			parent[max(a, b)] = min(a, b)
		}
	}

	members := map[int64][]int64{}
	for id := range parent {
		root := find(id)
		members[root] = append(members[root], id)
	}

	var wanted []int64
	if contentHash != "" {
		file, err := s.files.FindModel(ctx, repository.WithCondition("content_hash", strings.ToLower(strings.TrimSpace(contentHash))))
		if err != nil {
			return nil, notFound(err, "file with digest", contentHash)
		}
		if _, ok := parent[file.ID]; !ok {
			return [][]graph.File{}, nil
		}
		wanted = []int64{find(file.ID)}
	} else {
		for root := range members {
			wanted = append(wanted, root)
		}
	}

	var ids []int64
	for _, root := range wanted {
		ids = append(ids, members[root]...)
	}
	if len(ids) == 0 {
		return [][]graph.File{}, nil
	}
	files, err := s.files.Find(ctx, repository.WithIDIn(ids), repository.WithOrderAsc("id"))
	if err != nil {
		return nil, err
	}

	byRoot := map[int64][]graph.File{}
	for _, f := range files {
		root := find(f.ID())
		byRoot[root] = append(byRoot[root], f)
	}
	groups := make([][]graph.File, 0, len(byRoot))
	for _, group := range byRoot {
		groups = append(groups, group)
	}
	sort.Slice(groups, func(i, j int) bool {
		if len(groups[i]) != len(groups[j]) {
			return len(groups[i]) > len(groups[j])
		}
		return groups[i][0].ID() < groups[j][0].ID()
	})
	return groups, nil
}

// CategoryTree returns the live categories as a forest, with file counts.
// Children whose parent was absorbed hang under the parent's survivor.
func (s GraphStore) CategoryTree(ctx context.Context) ([]graph.CategoryNode, error) {
	db := s.db.Session(ctx)

	var models []CategoryModel
	if err := db.Order("name, id").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}

	var counts []struct {
		EntityID int64
		Count    int64
	}
	if err := db.Model(&FileEntityLinkModel{}).
		Select("entity_id, COUNT(*) AS count").
		Where("entity_type = ?", string(graph.EntityTypeCategory)).
		Group("entity_id").
		Scan(&counts).Error; err != nil {
		return nil, fmt.Errorf("count category files: %w", err)
	}
	fileCounts := make(map[int64]int64, len(counts))
	for _, c := range counts {
		fileCounts[c.EntityID] = c.Count
	}

	mergedInto := map[string]string{}
	live := map[string]CategoryModel{}
	for _, m := range models {
		if m.MergedInto != nil {
			mergedInto[m.CanonicalID] = *m.MergedInto
			continue
		}
		live[m.CanonicalID] = m
	}

	resolve := func(id string) string {
		for hops := 0; hops < s.maxHops; hops++ {
			next, ok := mergedInto[id]
			if !ok {
				return id
			}
			id = next
		}
		return ""
	}

	children := map[string][]string{}
	var roots []string
	for _, m := range models {
		if m.MergedInto != nil {
			continue
		}
		parent := ""
		if m.Parent != nil {
			parent = resolve(*m.Parent)
		}
		if _, ok := live[parent]; !ok || parent == m.CanonicalID {
			roots = append(roots, m.CanonicalID)
			continue
		}
		children[parent] = append(children[parent], m.CanonicalID)
	}

	var build func(id string, level int, path map[string]struct{}) graph.CategoryNode
	build = func(id string, level int, path map[string]struct{}) graph.CategoryNode {
		m := live[id]
		node := graph.CategoryNode{
			CanonicalID: m.CanonicalID,
			Name:        m.Name,
			FullPath:    m.FullPath,
			Level:       level,
			FileCount:   fileCounts[m.ID],
		}
		path[id] = struct{}{}
		for _, child := range children[id] {
			if _, loop := path[child]; loop {
				continue
			}
			node.Children = append(node.Children, build(child, level+1, path))
		}
		delete(path, id)
		return node
	}

	tree := make([]graph.CategoryNode, 0, len(roots))
	for _, id := range roots {
		tree = append(tree, build(id, 0, map[string]struct{}{}))
	}
	return tree, nil
}

// Stats aggregates counts over the whole graph.
func (s GraphStore) Stats(ctx context.Context) (graph.Stats, error) {
	db := s.db.Session(ctx)
	stats := graph.Stats{
		FilesByStatus: map[graph.FileStatus]int64{},
		Entities:      map[graph.EntityType]graph.EntityCounts{},
	}

	counts := []struct {
		model any
		dest  *int64
	}{
		{&FileModel{}, &stats.Files},
		{&FileEntityLinkModel{}, &stats.Memberships},
		{&FileRelationshipModel{}, &stats.Relationships},
		{&MergeEventModel{}, &stats.MergeEvents},
	}
	for _, c := range counts {
		if err := db.Model(c.model).Count(c.dest).Error; err != nil {
			return graph.Stats{}, fmt.Errorf("count: %w", err)
		}
	}
	if err := db.Model(&MergeReviewModel{}).Where("state = ?", string(review.StatePending)).Count(&stats.PendingReviews).Error; err != nil {
		return graph.Stats{}, fmt.Errorf("count pending reviews: %w", err)
	}

	var byStatus []graph.NamedCount
	if err := db.Model(&FileModel{}).Select("status AS name, COUNT(*) AS count").Group("status").Scan(&byStatus).Error; err != nil {
		return graph.Stats{}, fmt.Errorf("count files by status: %w", err)
	}
	for _, c := range byStatus {
		stats.FilesByStatus[graph.FileStatus(c.Name)] = c.Count
	}

	for _, t := range graph.EntityTypes() {
		entityCounts, err := countEntities(db, t)
		if err != nil {
			return graph.Stats{}, err
		}
		stats.Entities[t] = entityCounts
	}

	if err := db.Model(&FileModel{}).
		Select("mime_type AS name, COUNT(*) AS count").
		Where("mime_type <> ''").
		Group("mime_type").
		Order("count DESC, name").
		Limit(topN).
		Scan(&stats.TopMimeTypes).Error; err != nil {
		return graph.Stats{}, fmt.Errorf("rank mime types: %w", err)
	}

	if err := db.Table("file_entity_links").
		Select("categories.name AS name, COUNT(*) AS count").
		Joins("JOIN categories ON categories.id = file_entity_links.entity_id").
		Where("file_entity_links.entity_type = ?", string(graph.EntityTypeCategory)).
		Group("categories.name").
		Order("count DESC, name").
		Limit(topN).
		Scan(&stats.TopCategories).Error; err != nil {
		return graph.Stats{}, fmt.Errorf("rank categories: %w", err)
	}

	if stats.TopMimeTypes == nil {
		stats.TopMimeTypes = []graph.NamedCount{}
	}
	if stats.TopCategories == nil {
		stats.TopCategories = []graph.NamedCount{}
	}
	return stats, nil
}

func countEntities(db *gorm.DB, t graph.EntityType) (graph.EntityCounts, error) {
	var out graph.EntityCounts
	table := entityTable(t)
	if err := db.Table(table).Where("merged_into IS NULL").Count(&out.Live).Error; err != nil {
		return out, fmt.Errorf("count live %s: %w", t, err)
	}
	if err := db.Table(table).Where("merged_into IS NOT NULL").Count(&out.Absorbed).Error; err != nil {
		return out, fmt.Errorf("count absorbed %s: %w", t, err)
	}
	return out, nil
}
