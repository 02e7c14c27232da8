package lookup

import "errors"

var (
	// ErrBackendRequired is returned when an Agent is created without a backend.
	ErrBackendRequired = errors.New("lookup backend required")

	// ErrInvalidConcurrency is returned for a permit count below one.
	ErrInvalidConcurrency = errors.New("lookup concurrency must be at least 1")

	// ErrUnknownSystem is returned when no agent serves the requested code system.
	ErrUnknownSystem = errors.New("no lookup backend for code system")

	// ErrMalformedResponse is returned by backends for bodies that are not JSON.
	ErrMalformedResponse = errors.New("malformed lookup response")
)
