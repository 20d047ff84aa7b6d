package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrConcurrentUpdate is returned when a conditional order update
	// matched no rows because the observed balance was stale.
	ErrConcurrentUpdate = errors.New("order was updated concurrently")
)
