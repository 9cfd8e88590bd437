package storage

import "errors"

var (
	// ErrNotFound reports that the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrStaleData reports that a write lost an optimistic-locking race
	// and must be retried against a fresh read.
	ErrStaleData = errors.New("stale data: record was modified concurrently")
	// ErrAlreadyExists reports a create against an existing key.
	ErrAlreadyExists = errors.New("record already exists")
)
