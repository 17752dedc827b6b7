package batch

import (
	"fmt"
	"time"
)

// State is the lifecycle of a run's progress.
type State string

// State values.
const (
	StateStarted    State = "started"
	StateInProgress State = "in_progress"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

// IsTerminal returns true if the state is final.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Progress is an immutable snapshot of a run's progress.
type Progress struct {
	runID     string
	state     State
	total     int
	current   int
	errors    int
	message   string
	updatedAt time.Time
}

// NewProgress starts tracking a run.
func NewProgress(runID string) Progress {
	return Progress{runID: runID, state: StateStarted, updatedAt: time.Now().UTC()}
}

// RunID returns the run id.
func (p Progress) RunID() string { return p.runID }

// State returns the current state.
func (p Progress) State() State { return p.state }

// Total returns the number of items in the run.
func (p Progress) Total() int { return p.total }

// Current returns the number of items processed.
func (p Progress) Current() int { return p.current }

// Errors returns the number of failed items.
func (p Progress) Errors() int { return p.errors }

// Message returns the latest message.
func (p Progress) Message() string { return p.message }

// UpdatedAt returns the time of the last change.
func (p Progress) UpdatedAt() time.Time { return p.updatedAt }

// CompletionPercent returns progress in [0,100].
func (p Progress) CompletionPercent() float64 {
	if p.total <= 0 {
		if p.state == StateCompleted {
			return 100
		}
		return 0
	}
	pct := float64(p.current) / float64(p.total) * 100
	if pct > 100 {
		return 100
	}
	return pct
}

// SetTotal returns a copy with the item count set.
func (p Progress) SetTotal(total int) Progress {
	p.total = total
	p.state = StateInProgress
	p.updatedAt = time.Now().UTC()
	return p
}

// Advance returns a copy with one more processed item.
func (p Progress) Advance(failed bool, message string) Progress {
	p.current++
	if failed {
		p.errors++
	}
	p.state = StateInProgress
	p.message = message
	p.updatedAt = time.Now().UTC()
	return p
}

// Complete returns a terminal copy.
func (p Progress) Complete() Progress {
	p.state = StateCompleted
	p.message = fmt.Sprintf("%d processed, %d errors", p.current, p.errors)
	p.updatedAt = time.Now().UTC()
	return p
}

// Fail returns a failed terminal copy.
func (p Progress) Fail(message string) Progress {
	p.state = StateFailed
	p.message = message
	p.updatedAt = time.Now().UTC()
	return p
}

// Cancel returns a cancelled terminal copy.
func (p Progress) Cancel() Progress {
	p.state = StateCancelled
	p.message = "cancelled"
	p.updatedAt = time.Now().UTC()
	return p
}
