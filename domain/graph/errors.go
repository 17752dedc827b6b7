package graph

import "errors"

// Errors surfaced by identity resolution, merge decisions and the graph store.
var (
	// ErrInvalidInput means a caller supplied an empty or malformed value.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound means a canonical id has no node.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyMerged means a merge named an entity that has already been absorbed.
	ErrAlreadyMerged = errors.New("entity already merged")

	// ErrTypeMismatch means a merge crossed entity types.
	ErrTypeMismatch = errors.New("entity type mismatch")

	// ErrConcurrencyConflict means a write lost every retry to concurrent writers.
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	// ErrCycleDetected means a merged_into chain loops or exceeds the hop bound.
	// This is a data corruption signal, never a normal outcome.
	ErrCycleDetected = errors.New("merge chain cycle detected")
)
