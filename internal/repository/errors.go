package repository

import "errors"

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	// ErrVersionConflict is returned by event stores when the stream moved
	// past the expected version.
	ErrVersionConflict = errors.New("version conflict")
)
