package notes

import "errors"

var (
	// ErrScorerRequired is returned when a scorer is not provided.
	ErrScorerRequired = errors.New("scorer required")

	// ErrRegistryRequired is returned when a lookup registry is not provided.
	ErrRegistryRequired = errors.New("lookup registry required")

	// ErrEmptyNote is returned for a blank note.
	ErrEmptyNote = errors.New("note is empty")
)
