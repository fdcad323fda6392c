package domain

import "errors"

var (
	// ErrNotFound is returned by stores when a keyed record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned by stores when an optimistic write lost a race.
	ErrConflict = errors.New("conflict")
)
