package storage

import "errors"

// Sentinel errors for storage operations.
var (
	// ErrConflict is returned when a record with the given ID already exists.
	ErrConflict = errors.New("request record already exists")

	// ErrClosed is returned by stores that have been closed.
	ErrClosed = errors.New("request log is closed")
)
