package filegraph

import (
	"errors"

	"github.com/helixml/filegraph/application/service"
	"github.com/helixml/filegraph/domain/graph"
)

var (
	// ErrNoDatabase indicates no database was configured.
	ErrNoDatabase = errors.New("filegraph: no database configured")

	// ErrClientClosed indicates the client has been closed.
	ErrClientClosed = service.ErrClientClosed

	// ErrQueuedForReview is returned by merge requests that were parked in
	// the review queue instead of being applied.
	ErrQueuedForReview = service.ErrQueuedForReview
)

// Graph errors re-exported for callers that only import the root package.
var (
	ErrInvalidInput        = graph.ErrInvalidInput
	ErrNotFound            = graph.ErrNotFound
	ErrAlreadyMerged       = graph.ErrAlreadyMerged
	ErrTypeMismatch        = graph.ErrTypeMismatch
	ErrConcurrencyConflict = graph.ErrConcurrencyConflict
	ErrCycleDetected       = graph.ErrCycleDetected
)
