package service

import "errors"

// ErrClientClosed indicates the client has been closed.
var ErrClientClosed = errors.New("filegraph: client is closed")

// ErrQueuedForReview indicates a merge was parked in the review queue
// instead of being applied.
var ErrQueuedForReview = errors.New("merge queued for review")
