// Package persistence stores the file graph, the merge review queue and the
// SQL key-value backend with GORM.
package persistence

import (
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/helixml/filegraph/internal/database"
)

// minPostgresVersion is the first release with hashtextextended, which the
// advisory locks rely on.
const minPostgresVersion = 110000

// Migrate checks the server, brings the schema up to date and verifies the
// result. Every step is safe to repeat.
func Migrate(db database.Database) error {
	steps := []struct {
		name string
		run  func(database.Database) error
	}{
		{"check server", PreMigrate},
		{"auto migrate", AutoMigrate},
		{"validate schema", ValidateSchema},
	}
	for _, step := range steps {
		if err := step.run(db); err != nil {
			return fmt.Errorf("%s: %w", step.name, err)
		}
	}
	return nil
}

// PreMigrate refuses PostgreSQL servers older than 11.
func PreMigrate(db database.Database) error {
	if !db.IsPostgres() {
		return nil
	}

	var version int
	if err := db.GORM().Raw(`SHOW server_version_num`).Scan(&version).Error; err != nil {
		return fmt.Errorf("read server version: %w", err)
	}
	if version < minPostgresVersion {
		return fmt.Errorf("postgresql %d is too old, 11 or newer is required", version)
	}
	return nil
}

// AutoMigrate creates or extends every table, then the edge foreign keys.
func AutoMigrate(db database.Database) error {
	if err := db.GORM().AutoMigrate(models()...); err != nil {
		return err
	}
	if db.IsPostgres() {
		return ensureEdgeConstraints(db.GORM())
	}
	return nil
}

// Edge rows reference files by surrogate id without GORM associations, so
// their foreign keys are declared here. Deleting a file drops its edges.
var edgeConstraints = []struct {
	table, name, column string
}{
	{"file_entity_links", "fk_file_entity_links_file", "file_id"},
	{"file_relationships", "fk_file_relationships_source", "source_file_id"},
	{"file_relationships", "fk_file_relationships_target", "target_file_id"},
}

func ensureEdgeConstraints(gdb *gorm.DB) error {
	for _, c := range edgeConstraints {
		var exists bool
		err := gdb.Raw(`SELECT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = ?)`, c.name).Scan(&exists).Error
		if err != nil {
			return fmt.Errorf("look up constraint %s: %w", c.name, err)
		}
		if exists {
			continue
		}
		stmt := fmt.Sprintf(`ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES files(id) ON DELETE CASCADE`,
			c.table, c.name, c.column)
		if err := gdb.Exec(stmt).Error; err != nil {
			return fmt.Errorf("add constraint %s: %w", c.name, err)
		}
	}
	return nil
}

func models() []any {
	return []any{
		&FileModel{},
		&CategoryModel{},
		&CompanyModel{},
		&PersonModel{},
		&LocationModel{},
		&FileEntityLinkModel{},
		&FileRelationshipModel{},
		&MergeEventModel{},
		&MergeReviewModel{},
		&KeyValueModel{},
	}
}

// ValidateSchema reports every model column missing from the database, for
// example after a failed or partial migration by another binary.
func ValidateSchema(db database.Database) error {
	gdb := db.GORM()

	var missing []string
	for _, model := range models() {
		stmt := &gorm.Statement{DB: gdb}
		if err := stmt.Parse(model); err != nil {
			return fmt.Errorf("parse model schema: %w", err)
		}
		columns, err := gdb.Migrator().ColumnTypes(model)
		if err != nil {
			return fmt.Errorf("read columns of %s: %w", stmt.Table, err)
		}

		have := make(map[string]struct{}, len(columns))
		for _, col := range columns {
			have[col.Name()] = struct{}{}
		}
		for _, field := range stmt.Schema.Fields {
			if field.DBName == "" {
				continue
			}
			if _, ok := have[field.DBName]; !ok {
				missing = append(missing, stmt.Table+"."+field.DBName)
			}
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("schema is missing %d columns: %s", len(missing), strings.Join(missing, ", "))
	}
	return nil
}
