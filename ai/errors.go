package ai

import "errors"

var (
	// ErrEmptyResponse is returned when the service produced no output.
	ErrEmptyResponse = errors.New("ai: empty response")

	// ErrCountMismatch is returned when a batch call returns a different
	// number of results than inputs.
	ErrCountMismatch = errors.New("ai: result count does not match input count")

	// ErrDimensionMismatch is returned when an embedding has the wrong length.
	ErrDimensionMismatch = errors.New("ai: embedding dimension mismatch")

	// ErrMalformedJSON is returned when structured output cannot be decoded.
	ErrMalformedJSON = errors.New("ai: malformed JSON response")
)
