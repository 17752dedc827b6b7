// Package review models merges parked for a human decision.
package review

import (
	"context"
	"fmt"
	"time"

	"github.com/helixml/filegraph/domain/graph"
	"github.com/helixml/filegraph/domain/merge"
	"github.com/helixml/filegraph/domain/repository"
)

// Kind is why an item was queued.
type Kind string

// Kind values.
const (
	KindLowConfidence Kind = "low_confidence"
	KindConflict      Kind = "conflict"
)

// State is the lifecycle of an item.
type State string

// State values.
const (
	StatePending  State = "pending"
	StateApproved State = "approved"
	StateRejected State = "rejected"
)

// ParseState converts a string to a State.
func ParseState(s string) (State, error) {
	switch st := State(s); st {
	case StatePending, StateApproved, StateRejected:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown review state %q", graph.ErrInvalidInput, s)
}

// Item is one queued merge.
type Item struct {
	id         string
	kind       Kind
	state      State
	request    merge.Request
	survivor   string
	errMessage string
	resolvedBy string
	note       string
	createdAt  time.Time
	resolvedAt *time.Time
}

// NewItem queues a merge request.
func NewItem(id string, kind Kind, req merge.Request, survivor, errMessage string, now time.Time) Item {
	return Item{
		id:         id,
		kind:       kind,
		state:      StatePending,
		request:    req,
		survivor:   survivor,
		errMessage: errMessage,
		createdAt:  now,
	}
}

// ReconstructItem reconstructs an Item from persistence.
func ReconstructItem(
	id string,
	kind Kind,
	state State,
	req merge.Request,
	survivor, errMessage, resolvedBy, note string,
	createdAt time.Time,
	resolvedAt *time.Time,
) Item {
	return Item{
		id:         id,
		kind:       kind,
		state:      state,
		request:    req,
		survivor:   survivor,
		errMessage: errMessage,
		resolvedBy: resolvedBy,
		note:       note,
		createdAt:  createdAt,
		resolvedAt: resolvedAt,
	}
}

// ID returns the item id.
func (i Item) ID() string { return i.id }

// Kind returns why the item was queued.
func (i Item) Kind() Kind { return i.kind }

// State returns the lifecycle state.
func (i Item) State() State { return i.state }

// Request returns the original merge request.
func (i Item) Request() merge.Request { return i.request }

// ProposedSurvivor returns the survivor the engine picked, if any.
func (i Item) ProposedSurvivor() string { return i.survivor }

// Error returns the conflict message for conflict items.
func (i Item) Error() string { return i.errMessage }

// ResolvedBy returns who resolved the item.
func (i Item) ResolvedBy() string { return i.resolvedBy }

// Note returns the resolution note.
func (i Item) Note() string { return i.note }

// CreatedAt returns when the item was queued.
func (i Item) CreatedAt() time.Time { return i.createdAt }

// ResolvedAt returns when the item was resolved, if it was.
func (i Item) ResolvedAt() (time.Time, bool) {
	if i.resolvedAt == nil {
		return time.Time{}, false
	}
	return *i.resolvedAt, true
}

// Resolve returns a copy in a terminal state.
func (i Item) Resolve(state State, by, note string, now time.Time) (Item, error) {
	if i.state != StatePending {
		return i, fmt.Errorf("%w: review %s is already %s", graph.ErrInvalidInput, i.id, i.state)
	}
	if state == StatePending {
		return i, fmt.Errorf("%w: cannot resolve to pending", graph.ErrInvalidInput)
	}
	at := now
	i.state = state
	i.resolvedBy = by
	i.note = note
	i.resolvedAt = &at
	return i, nil
}

// Store persists review items.
type Store interface {
	Save(ctx context.Context, item Item) (Item, error)
	Get(ctx context.Context, id string) (Item, error)
	Find(ctx context.Context, options ...repository.Option) ([]Item, error)
	Count(ctx context.Context, options ...repository.Option) (int64, error)
}

// WithState filters by state.
func WithState(state State) repository.Option {
	return repository.WithCondition("state", string(state))
}
