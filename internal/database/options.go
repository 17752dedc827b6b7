package database

import (
	"gorm.io/gorm"

	"github.com/helixml/filegraph/domain/repository"
)

// ApplyOptions translates repository options into WHERE, ORDER BY, LIMIT
// and OFFSET on db.
func ApplyOptions(db *gorm.DB, options ...repository.Option) *gorm.DB {
	q := repository.Build(options...)

	db = where(db, q)
	for _, o := range q.Orders() {
		db = db.Order(o.Clause())
	}
	if q.Limit() > 0 {
		db = db.Limit(q.Limit())
	}
	if q.Offset() > 0 {
		db = db.Offset(q.Offset())
	}
	return db
}

// ApplyConditions applies only the WHERE part, for counts and deletes.
func ApplyConditions(db *gorm.DB, options ...repository.Option) *gorm.DB {
	return where(db, repository.Build(options...))
}

func where(db *gorm.DB, q repository.Query) *gorm.DB {
	for _, c := range q.Conditions() {
		clause, args := c.Clause()
		db = db.Where(clause, args...)
	}
	return db
}
