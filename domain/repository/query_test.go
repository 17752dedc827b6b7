package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuild(t *testing.T) {
	opts := []Option{
		WithCanonicalID("urn:uuid:1"),
		WithConditionIn("status", []string{"pending", "error"}),
		WithNull("merged_into"),
		WithOrderDesc("created_at"),
		WithOrderAsc("id"),
	}
	q := Build(append(opts, WithPagination(10, 20)...)...)

	conds := q.Conditions()
	assert.Len(t, conds, 3)
	assert.Equal(t, "canonical_id = urn:uuid:1", conds[0].String())
	assert.Equal(t, OpIn, conds[1].Operator())
	assert.Equal(t, "merged_into IS NULL", conds[2].String())

	orders := q.Orders()
	assert.Equal(t, "created_at DESC", orders[0].Clause())
	assert.False(t, orders[0].Ascending())
	assert.Equal(t, "id ASC", orders[1].Clause())

	assert.Equal(t, 10, q.Limit())
	assert.Equal(t, 20, q.Offset())
}

func TestCondition_Clause(t *testing.T) {
	tests := []struct {
		opt        Option
		wantClause string
		wantArgs   []any
	}{
		{WithCondition("name", "acme"), "name = ?", []any{"acme"}},
		{WithIDIn([]int64{1, 2}), "id IN ?", []any{[]int64{1, 2}}},
		{WithNull("merged_into"), "merged_into IS NULL", nil},
		{WithNotNull("merged_into"), "merged_into IS NOT NULL", nil},
	}

	for _, tt := range tests {
		t.Run(tt.wantClause, func(t *testing.T) {
			clause, args := Build(tt.opt).Conditions()[0].Clause()
			assert.Equal(t, tt.wantClause, clause)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestQuery_IsImmutable(t *testing.T) {
	base := Build(WithCondition("type", "company"))

	// Two refinements of one base must not share a backing array.
	a := WithCondition("name", "a")(base)
	b := WithCondition("name", "b")(base)

	assert.Len(t, base.Conditions(), 1)
	assert.Equal(t, "a", a.Conditions()[1].Value())
	assert.Equal(t, "b", b.Conditions()[1].Value())

	conds := a.Conditions()
	conds[0] = Condition{}
	assert.Equal(t, "company", a.Conditions()[0].Value())
}

func TestBuild_Empty(t *testing.T) {
	q := Build()
	assert.Empty(t, q.Conditions())
	assert.Empty(t, q.Orders())
	assert.Zero(t, q.Limit())
}
