package reembed

import "errors"

var (
	// ErrSegmentStoreRequired is returned when a segment store is not provided.
	ErrSegmentStoreRequired = errors.New("segment store required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")
)
