// Package repository describes store lookups as composable options, so
// domain packages can filter and page without importing the SQL layer.
package repository

import "fmt"

// Option refines a Query.
type Option func(Query) Query

// Query is an immutable description of a lookup.
type Query struct {
	where   []Condition
	orderBy []Order
	limit   int
	offset  int
}

// Build applies options to an empty Query.
func Build(options ...Option) Query {
	var q Query
	for _, opt := range options {
		q = opt(q)
	}
	return q
}

// Conditions returns a copy of the filters, combined with AND.
func (q Query) Conditions() []Condition { return append([]Condition(nil), q.where...) }

// Orders returns a copy of the sort keys, most significant first.
func (q Query) Orders() []Order { return append([]Order(nil), q.orderBy...) }

// Limit is the row cap. Zero means unbounded.
func (q Query) Limit() int { return q.limit }

// Offset is the number of rows skipped.
func (q Query) Offset() int { return q.offset }

// Operator is a column predicate in SQL form.
type Operator string

// Operators.
const (
	OpEqual   Operator = "= ?"
	OpIn      Operator = "IN ?"
	OpIsNull  Operator = "IS NULL"
	OpNotNull Operator = "IS NOT NULL"
)

// Condition is a predicate on one column.
type Condition struct {
	field string
	op    Operator
	value any
}

// Field returns the column name.
func (c Condition) Field() string { return c.field }

// Operator returns the predicate.
func (c Condition) Operator() Operator { return c.op }

// Value returns the bound value, nil for the null checks.
func (c Condition) Value() any { return c.value }

// Clause returns the WHERE fragment and its arguments.
func (c Condition) Clause() (string, []any) {
	clause := c.field + " " + string(c.op)
	switch c.op {
	case OpIsNull, OpNotNull:
		return clause, nil
	default:
		return clause, []any{c.value}
	}
}

func (c Condition) String() string {
	switch c.op {
	case OpIsNull, OpNotNull:
		return c.field + " " + string(c.op)
	case OpIn:
		return fmt.Sprintf("%s IN %v", c.field, c.value)
	default:
		return fmt.Sprintf("%s = %v", c.field, c.value)
	}
}

// Order is a sort key.
type Order struct {
	field string
	desc  bool
}

// Field returns the column name.
func (o Order) Field() string { return o.field }

// Ascending reports the direction.
func (o Order) Ascending() bool { return !o.desc }

// Clause returns the ORDER BY fragment.
func (o Order) Clause() string {
	if o.desc {
		return o.field + " DESC"
	}
	return o.field + " ASC"
}

func where(c Condition) Option {
	return func(q Query) Query {
		q.where = append(q.where[:len(q.where):len(q.where)], c)
		return q
	}
}

func orderBy(o Order) Option {
	return func(q Query) Query {
		q.orderBy = append(q.orderBy[:len(q.orderBy):len(q.orderBy)], o)
		return q
	}
}

// WithCondition filters on field = value. Domain packages build their typed
// options on it.
func WithCondition(field string, value any) Option {
	return where(Condition{field: field, op: OpEqual, value: value})
}

// WithConditionIn filters on field IN values.
func WithConditionIn(field string, values any) Option {
	return where(Condition{field: field, op: OpIn, value: values})
}

// WithNull filters on field IS NULL.
func WithNull(field string) Option {
	return where(Condition{field: field, op: OpIsNull})
}

// WithNotNull filters on field IS NOT NULL.
func WithNotNull(field string) Option {
	return where(Condition{field: field, op: OpNotNull})
}

// WithIDIn filters on surrogate row ids.
func WithIDIn(ids []int64) Option {
	return WithConditionIn("id", ids)
}

// WithCanonicalID filters on the public id of a file, entity or event.
func WithCanonicalID(id string) Option {
	return WithCondition("canonical_id", id)
}

// WithOrderAsc sorts by field, ascending.
func WithOrderAsc(field string) Option {
	return orderBy(Order{field: field})
}

// WithOrderDesc sorts by field, descending.
func WithOrderDesc(field string) Option {
	return orderBy(Order{field: field, desc: true})
}

// WithLimit caps the number of rows.
func WithLimit(n int) Option {
	return func(q Query) Query {
		q.limit = n
		return q
	}
}

// WithOffset skips n rows.
func WithOffset(n int) Option {
	return func(q Query) Query {
		q.offset = n
		return q
	}
}

// WithPagination is WithLimit and WithOffset together.
func WithPagination(limit, offset int) []Option {
	return []Option{WithLimit(limit), WithOffset(offset)}
}
